package billing

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/records"
)

// InvoiceManager bills postpaid users with invoices
type InvoiceManager struct {
	users  Users
	policy *models.FinancePolicy
	options
}

// NewInvoiceManager creates an invoice manager pricing with policy
func NewInvoiceManager(users Users, policy *models.FinancePolicy, opts ...Option) *InvoiceManager {
	return &InvoiceManager{
		users:   users,
		policy:  policy,
		options: buildOptions(opts),
	}
}

// HasPaid reports whether the user has no defaulting invoice. Caller must
// hold the user lock.
func (m *InvoiceManager) HasPaid(user *models.FinanceUser) bool {
	return !user.HasDefaultingInvoice()
}

// InvoicesArePaid reports whether every invoice of the user is paid. Caller
// must hold the user lock.
func (m *InvoiceManager) InvoicesArePaid(user *models.FinanceUser) bool {
	return user.InvoicesArePaid()
}

// GenerateInvoiceForUser bills the user for [start, end) with a WAITING
// invoice. Caller must hold the user lock.
func (m *InvoiceManager) GenerateInvoiceForUser(ctx context.Context, user *models.FinanceUser, start, end int64, recs []records.Record) error {
	return m.generate(ctx, user, start, end, recs, false)
}

// GenerateLastInvoiceForUser bills the user for [start, end) with a final
// invoice owed immediately. Caller must hold the user lock.
func (m *InvoiceManager) GenerateLastInvoiceForUser(ctx context.Context, user *models.FinanceUser, start, end int64, recs []records.Record) error {
	return m.generate(ctx, user, start, end, recs, true)
}

func (m *InvoiceManager) generate(ctx context.Context, user *models.FinanceUser, start, end int64, recs []records.Record, final bool) error {
	ctx, span := tracer.Start(ctx, "billing.GenerateInvoice")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", user.Key().String()),
		attribute.String("plan", m.planName),
		attribute.Bool("final", final),
		attribute.Int("records", len(recs)),
	)

	invoice, err := m.buildInvoice(user, start, end, recs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build invoice")
		return err
	}

	if final {
		user.AddInvoiceAsDebt(invoice)
	} else {
		user.AddInvoice(invoice)
	}
	user.LastBillingTime = end

	if err := m.users.SaveUser(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save user")
		return err
	}

	m.metrics.RecordInvoice(m.planName, final, invoice.Total)
	m.log.WithFields(logrus.Fields{
		"user":    user.Key().String(),
		"plan":    m.planName,
		"invoice": invoice.ID,
		"total":   invoice.Total,
		"final":   final,
	}).Debug("Generated invoice")

	if m.archive != nil {
		if err := m.archive.ArchiveInvoice(ctx, invoice); err != nil {
			m.log.WithField("invoice", invoice.ID).Warnf("Failed to archive invoice: %v", err)
		}
	}
	return nil
}

func (m *InvoiceManager) buildInvoice(user *models.FinanceUser, start, end int64, recs []records.Record) (*models.Invoice, error) {
	charges, err := periods(m.policy.Table(), recs, start, end)
	if err != nil {
		return nil, err
	}

	builder := NewInvoiceBuilder(user.ID, user.Provider, start, end)
	for _, p := range charges {
		builder.AddItem(p.orderID, p.item, p.state, p.price, p.units)
	}
	return builder.Build(), nil
}
