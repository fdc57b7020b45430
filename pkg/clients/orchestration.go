package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/observability"
)

// Orchestration operations, used as metric labels
const (
	OperationPause     = "pause"
	OperationHibernate = "hibernate"
	OperationStop      = "stop"
	OperationResume    = "resume"
	OperationPurge     = "purge"
)

const hibernateCacheType = "hibernate_unsupported"

// OrchestrationClient controls user resources through the resource
// allocation service
type OrchestrationClient struct {
	*client
	metrics *observability.Metrics

	// users whose provider answered 501 to a hibernate request
	noHibernate *lru.LRU[models.UserID, struct{}]
}

// NewOrchestrationClient creates an orchestration client
func NewOrchestrationClient(cfg Config, metrics *observability.Metrics, log *logrus.Logger) (*OrchestrationClient, error) {
	c, err := newClient(cfg.OrchestratorURL, cfg, log)
	if err != nil {
		return nil, err
	}

	size := cfg.HibernateCacheSize
	if size <= 0 {
		size = DefaultConfig().HibernateCacheSize
	}

	return &OrchestrationClient{
		client:      c,
		metrics:     metrics,
		noHibernate: lru.NewLRU[models.UserID, struct{}](size, nil, cfg.HibernateCacheTTL),
	}, nil
}

// PauseResources pauses every compute of the user
func (c *OrchestrationClient) PauseResources(ctx context.Context, id, provider string) error {
	return c.call(ctx, OperationPause, http.MethodPost, "/ras/computes/pause", id, provider)
}

// HibernateResources hibernates every compute of the user. Users whose
// provider does not support hibernation get ErrNotImplemented.
func (c *OrchestrationClient) HibernateResources(ctx context.Context, id, provider string) error {
	key := models.UserID{ID: id, Provider: provider}

	_, unsupported := c.noHibernate.Get(key)
	c.metrics.RecordCacheLookup(hibernateCacheType, unsupported)
	if unsupported {
		return fmt.Errorf("%w: hibernation is not supported for user %s", models.ErrNotImplemented, key)
	}

	err := c.call(ctx, OperationHibernate, http.MethodPost, "/ras/computes/hibernate", id, provider)
	if errors.Is(err, models.ErrNotImplemented) {
		c.noHibernate.Add(key, struct{}{})
	}
	return err
}

// StopResources stops every compute of the user
func (c *OrchestrationClient) StopResources(ctx context.Context, id, provider string) error {
	return c.call(ctx, OperationStop, http.MethodPost, "/ras/computes/stop", id, provider)
}

// ResumeResources resumes every compute of the user
func (c *OrchestrationClient) ResumeResources(ctx context.Context, id, provider string) error {
	return c.call(ctx, OperationResume, http.MethodPost, "/ras/computes/resume", id, provider)
}

// PurgeUser deletes every resource of the user
func (c *OrchestrationClient) PurgeUser(ctx context.Context, id, provider string) error {
	return c.call(ctx, OperationPurge, http.MethodDelete, "/ras/admin/purge", id, provider)
}

func (c *OrchestrationClient) call(ctx context.Context, operation, method, base, id, provider string) error {
	path := fmt.Sprintf("%s/%s/%s", base, url.PathEscape(id), url.PathEscape(provider))

	_, err := c.do(ctx, method, path)
	c.metrics.RecordOrchestrationCall(operation, err)
	if err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"user":      id,
		"provider":  provider,
		"operation": operation,
	}).Debug("Orchestration call succeeded")
	return nil
}
