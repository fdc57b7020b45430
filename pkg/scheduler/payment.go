package scheduler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/billing"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

// PostpaidPaymentRunner invoices the users of a postpaid plan once every
// billing interval
type PostpaidPaymentRunner struct {
	plan            string
	users           Users
	accounting      Accounting
	invoices        *billing.InvoiceManager
	billingInterval int64
	clock           timeutil.Clock
	log             *logrus.Logger
}

// NewPostpaidPaymentRunner creates a runner billing every billingIntervalMillis
func NewPostpaidPaymentRunner(plan string, users Users, accounting Accounting, invoices *billing.InvoiceManager, billingIntervalMillis int64, clock timeutil.Clock, log *logrus.Logger) *PostpaidPaymentRunner {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &PostpaidPaymentRunner{
		plan:            plan,
		users:           users,
		accounting:      accounting,
		invoices:        invoices,
		billingInterval: billingIntervalMillis,
		clock:           clock,
		log:             log,
	}
}

// Sweep invoices every user whose billing interval elapsed
func (r *PostpaidPaymentRunner) Sweep(ctx context.Context) error {
	return forEachUser(ctx, r.users, r.plan, r.log, func(ctx context.Context, user *models.FinanceUser) error {
		now := r.clock.NowMillis()
		if now-user.LastBillingTime < r.billingInterval {
			return nil
		}
		return r.bill(ctx, user, now, false)
	})
}

// RunLastPaymentForUser issues the final invoice of a user leaving the plan,
// regardless of the billing interval. The caller must not hold the user lock.
func (r *PostpaidPaymentRunner) RunLastPaymentForUser(ctx context.Context, id, provider string) error {
	user, err := r.users.GetUserByID(id, provider)
	if err != nil {
		return err
	}

	user.Lock()
	defer user.Unlock()
	return r.RunLastPayment(ctx, user)
}

// RunLastPayment is RunLastPaymentForUser for a caller holding the user lock
func (r *PostpaidPaymentRunner) RunLastPayment(ctx context.Context, user *models.FinanceUser) error {
	if err := r.bill(ctx, user, r.clock.NowMillis(), true); err != nil {
		return fmt.Errorf("%w: failed to run last payment for user %s: %v", models.ErrInternal, user.Key(), err)
	}
	return nil
}

func (r *PostpaidPaymentRunner) bill(ctx context.Context, user *models.FinanceUser, now int64, final bool) error {
	start := user.LastBillingTime
	recs, err := r.accounting.GetUserRecords(ctx, user.ID, user.Provider, start, now)
	if err != nil {
		return err
	}

	if final {
		return r.invoices.GenerateLastInvoiceForUser(ctx, user, start, now, recs)
	}
	return r.invoices.GenerateInvoiceForUser(ctx, user, start, now, recs)
}

// PrepaidPaymentRunner deducts the usage of prepaid users from their credits
// on every sweep
type PrepaidPaymentRunner struct {
	plan       string
	users      Users
	accounting Accounting
	credits    *billing.CreditsManager
	clock      timeutil.Clock
	log        *logrus.Logger
}

// NewPrepaidPaymentRunner creates a prepaid billing runner
func NewPrepaidPaymentRunner(plan string, users Users, accounting Accounting, credits *billing.CreditsManager, clock timeutil.Clock, log *logrus.Logger) *PrepaidPaymentRunner {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &PrepaidPaymentRunner{
		plan:       plan,
		users:      users,
		accounting: accounting,
		credits:    credits,
		clock:      clock,
		log:        log,
	}
}

// Sweep charges every user for the usage since its last deduction
func (r *PrepaidPaymentRunner) Sweep(ctx context.Context) error {
	return forEachUser(ctx, r.users, r.plan, r.log, func(ctx context.Context, user *models.FinanceUser) error {
		start, end := user.LastBillingTime, r.clock.NowMillis()
		recs, err := r.accounting.GetUserRecords(ctx, user.ID, user.Provider, start, end)
		if err != nil {
			return err
		}
		return r.credits.StartPaymentProcess(ctx, user, start, end, recs)
	})
}
