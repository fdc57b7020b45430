package billing

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/observability"
	"github.com/platinummonkey/finance/pkg/storage"
)

var tracer = otel.Tracer("github.com/platinummonkey/finance/pkg/billing")

// Users looks up and persists finance users
type Users interface {
	GetUserByID(id, provider string) (*models.FinanceUser, error)
	SaveUser(ctx context.Context, user *models.FinanceUser) error
}

type options struct {
	planName string
	archive  storage.InvoiceArchive
	metrics  *observability.Metrics
	log      *logrus.Logger
}

// Option configures a billing manager
type Option func(*options)

// WithPlanName labels metrics and logs with the owning plan
func WithPlanName(name string) Option {
	return func(o *options) { o.planName = name }
}

// WithArchive copies every generated invoice to an archive
func WithArchive(archive storage.InvoiceArchive) Option {
	return func(o *options) { o.archive = archive }
}

// WithMetrics records billing metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.New()
	}
	return o
}
