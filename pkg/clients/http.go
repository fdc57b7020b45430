package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/platinummonkey/finance/pkg/models"
)

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 16 << 20

// errRetryable marks failures worth another attempt
var errRetryable = errors.New("retryable response")

// tokens caches the client credentials token. Refresh forces a new one.
type tokens struct {
	config *clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func (t *tokens) get(ctx context.Context, refresh bool) (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !refresh && t.token.Valid() {
		return t.token, nil
	}

	token, err := t.config.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to obtain token: %v", models.ErrUnauthorized, err)
	}
	t.token = token
	return token, nil
}

type response struct {
	status int
	body   []byte
}

// client is the HTTP layer shared by the service clients
type client struct {
	baseURL string
	http    *http.Client
	tokens  *tokens
	retry   *RetryPolicy
	log     *logrus.Logger
}

func newClient(baseURL string, cfg Config, log *logrus.Logger) (*client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: service URL is required", ErrInvalidConfig)
	}
	if log == nil {
		log = logrus.New()
	}

	c := &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		retry: NewRetryPolicy(cfg.Retry),
		log:   log,
	}

	if cfg.TokenURL != "" {
		c.tokens = &tokens{config: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}}
	}
	return c, nil
}

// do sends a request, retrying transport errors and server errors with
// backoff. Every non-2xx outcome is returned as an error.
func (c *client) do(ctx context.Context, method, path string) ([]byte, error) {
	url := c.baseURL + path

	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, method, url)
		if err == nil {
			err = classify(method, url, resp)
		}
		if err == nil {
			return resp.body, nil
		}

		if !errors.Is(err, errRetryable) || !c.retry.ShouldRetry(attempt, err) {
			return nil, err
		}

		delay := c.retry.NextRetryDelay(attempt)
		c.log.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"delay":   delay,
		}).Debugf("Retrying request: %v", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s %s: %v", models.ErrUnavailable, method, url, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// send performs one attempt, re-authenticating once on 401
func (c *client) send(ctx context.Context, method, url string) (response, error) {
	resp, err := c.sendWithToken(ctx, method, url, false)
	if err != nil || resp.status != http.StatusUnauthorized || c.tokens == nil {
		return resp, err
	}

	c.log.WithField("url", url).Debug("Token rejected, authenticating again")
	return c.sendWithToken(ctx, method, url, true)
}

func (c *client) sendWithToken(ctx context.Context, method, url string, refresh bool) (response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return response{}, fmt.Errorf("%w: invalid request %s %s: %v", models.ErrInvalidParameter, method, url, err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.get(ctx, refresh)
		if err != nil {
			return response{}, err
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%w: %s %s: %v: %w", models.ErrUnavailable, method, url, err, errRetryable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return response{}, fmt.Errorf("%w: reading %s %s: %v: %w", models.ErrUnavailable, method, url, err, errRetryable)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func classify(method, url string, resp response) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusNotImplemented:
		return fmt.Errorf("%w: %s %s", models.ErrNotImplemented, method, url)
	case resp.status >= 500:
		return fmt.Errorf("%w: %s %s returned %d: %s: %w",
			models.ErrUnavailable, method, url, resp.status, snippet(resp.body), errRetryable)
	default:
		return fmt.Errorf("%w: %s %s returned %d: %s",
			models.ErrUnavailable, method, url, resp.status, snippet(resp.body))
	}
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
