package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/records"
)

// DateFormat is the layout of the period bounds in usage requests
const DateFormat = "2006-01-02_15:04:05"

// AccountingClient reads usage records from the accounting service
type AccountingClient struct {
	*client
	localProvider string
}

// NewAccountingClient creates an accounting client
func NewAccountingClient(cfg Config, log *logrus.Logger) (*AccountingClient, error) {
	c, err := newClient(cfg.AccountingURL, cfg, log)
	if err != nil {
		return nil, err
	}
	return &AccountingClient{client: c, localProvider: cfg.LocalProvider}, nil
}

// GetUserRecords returns the compute and volume records of a user for
// [start, end)
func (c *AccountingClient) GetUserRecords(ctx context.Context, id, provider string, start, end int64) ([]records.Record, error) {
	path := fmt.Sprintf("/accs/usage/%s/%s/%s/%s/%s",
		url.PathEscape(id),
		url.PathEscape(provider),
		url.PathEscape(c.localProvider),
		formatMillis(start),
		formatMillis(end),
	)

	body, err := c.do(ctx, "GET", path)
	if err != nil {
		return nil, err
	}

	var all []records.Record
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, fmt.Errorf("%w: malformed usage response for user %s/%s: %v",
			models.ErrUnavailable, provider, id, err)
	}

	useful := make([]records.Record, 0, len(all))
	for _, record := range all {
		switch models.ResourceType(record.ResourceType) {
		case models.ResourceTypeCompute, models.ResourceTypeVolume:
			useful = append(useful, record)
		}
	}

	c.log.WithFields(logrus.Fields{
		"user":     id,
		"provider": provider,
		"records":  len(useful),
	}).Debug("Fetched usage records")
	return useful, nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(DateFormat)
}
