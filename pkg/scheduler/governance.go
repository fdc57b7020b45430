package scheduler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
)

// PaymentChecker reports whether a locked user is up to date with a payment
// obligation
type PaymentChecker interface {
	HasPaid(user *models.FinanceUser) bool
}

// DebtsChecker reports whether a locked user settled the final invoices of
// past subscriptions
type DebtsChecker interface {
	Check(user *models.FinanceUser) bool
}

// StateUpdater advances the governance state of a locked user
type StateUpdater interface {
	UpdateUserState(ctx context.Context, user *models.FinanceUser, paid bool) (bool, error)
}

// StopServiceRunner applies the governance policy to every user of a plan
type StopServiceRunner struct {
	plan    string
	users   Users
	debts   DebtsChecker
	current PaymentChecker
	policy  StateUpdater
	log     *logrus.Logger
}

// NewStopServiceRunner creates a governance runner. current is the payment
// check of the plan kind.
func NewStopServiceRunner(plan string, users Users, debts DebtsChecker, current PaymentChecker, policy StateUpdater, log *logrus.Logger) *StopServiceRunner {
	if log == nil {
		log = logrus.New()
	}
	return &StopServiceRunner{
		plan:    plan,
		users:   users,
		debts:   debts,
		current: current,
		policy:  policy,
		log:     log,
	}
}

// Sweep evaluates every user and persists the ones whose state changed
func (r *StopServiceRunner) Sweep(ctx context.Context) error {
	return forEachUser(ctx, r.users, r.plan, r.log, func(ctx context.Context, user *models.FinanceUser) error {
		paid := r.debts.Check(user) && r.current.HasPaid(user)

		changed, err := r.policy.UpdateUserState(ctx, user, paid)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return r.users.SaveUser(ctx, user)
	})
}
