package billing

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/records"
)

// CreditsManager bills prepaid users by deducting credits
type CreditsManager struct {
	users  Users
	policy *models.FinancePolicy
	options
}

// NewCreditsManager creates a credits manager pricing with policy
func NewCreditsManager(users Users, policy *models.FinancePolicy, opts ...Option) *CreditsManager {
	return &CreditsManager{
		users:   users,
		policy:  policy,
		options: buildOptions(opts),
	}
}

// HasPaid reports whether the user's balance is not negative. Caller must
// hold the user lock.
func (m *CreditsManager) HasPaid(user *models.FinanceUser) bool {
	return user.Credits.Value >= 0
}

// StartPaymentProcess deducts the usage in [start, end) from the user's
// credits. Nothing is deducted if any record cannot be priced. Caller must
// hold the user lock.
func (m *CreditsManager) StartPaymentProcess(ctx context.Context, user *models.FinanceUser, start, end int64, recs []records.Record) error {
	ctx, span := tracer.Start(ctx, "billing.DeductCredits")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", user.Key().String()),
		attribute.String("plan", m.planName),
		attribute.Int("records", len(recs)),
	)

	charges, err := periods(m.policy.Table(), recs, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to price usage")
		return err
	}

	before := user.Credits.Value
	for _, p := range charges {
		user.Credits.Deduct(p.price, p.units)
	}
	user.LastBillingTime = end

	if err := m.users.SaveUser(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save user")
		return err
	}

	deducted := before - user.Credits.Value
	m.metrics.RecordCreditsDeducted(m.planName, deducted)
	m.log.WithFields(logrus.Fields{
		"user":     user.Key().String(),
		"plan":     m.planName,
		"deducted": deducted,
		"balance":  user.Credits.Value,
	}).Debug("Deducted credits")
	return nil
}
