package plans

import (
	"context"
	"fmt"

	"github.com/platinummonkey/finance/pkg/billing"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/scheduler"
)

// PostpaidPlan invoices usage once every billing interval. A user is in
// good standing while no invoice is defaulting.
type PostpaidPlan struct {
	*plan
	invoices *billing.InvoiceManager
}

// NewPostpaidPlan builds a postpaid plan. It requires billing_interval,
// invoice_wait_time, time_to_wait_before_stopping,
// finance_plan_default_resource_value and a rule set.
func NewPostpaidPlan(name string, options map[string]string, deps Dependencies) (FinancePlan, error) {
	base, err := newPlan(KindPostpaid, name, postpaidLayout, options, deps)
	if err != nil {
		return nil, err
	}

	p := &PostpaidPlan{plan: base}
	p.invoices = billing.NewInvoiceManager(base.deps.Users, base.policy, base.billingOptions()...)
	base.current = p.invoices
	base.build = p.workers
	return p, nil
}

func (p *PostpaidPlan) workers(s settings) (scheduler.SweepFunc, scheduler.SweepFunc) {
	return p.payments(s).Sweep, p.stopServiceSweep(s)
}

func (p *PostpaidPlan) payments(s settings) *scheduler.PostpaidPaymentRunner {
	return scheduler.NewPostpaidPaymentRunner(p.name, p.deps.Users, p.deps.Accounting, p.invoices,
		s.billingInterval, p.deps.Clock, p.deps.Log)
}

// UnregisterUser purges the resources of a user with no open invoices,
// issues its final invoice and unsubscribes it. The user stays locked
// throughout, so no sweep can bill it in between.
func (p *PostpaidPlan) UnregisterUser(ctx context.Context, id, provider string) error {
	return p.withUser(id, provider, func(user *models.FinanceUser) error {
		if err := p.requirePaid(user); err != nil {
			return err
		}
		if err := p.resources().PurgeResources(ctx, user); err != nil {
			return err
		}
		if err := p.payments(p.currentSettings()).RunLastPayment(ctx, user); err != nil {
			return err
		}
		return p.deps.Users.UnregisterLocked(ctx, user)
	})
}

// ChangePlan issues the final invoice of a user with no open invoices and
// moves it to another plan
func (p *PostpaidPlan) ChangePlan(ctx context.Context, id, provider, newPlanName string) error {
	if newPlanName == p.name {
		return fmt.Errorf("%w: user %s/%s is already subscribed to plan %s",
			models.ErrInvalidParameter, provider, id, newPlanName)
	}

	return p.withUser(id, provider, func(user *models.FinanceUser) error {
		if err := p.requirePaid(user); err != nil {
			return err
		}
		if err := p.payments(p.currentSettings()).RunLastPayment(ctx, user); err != nil {
			return err
		}
		return p.deps.Users.ChangePlanLocked(ctx, user, newPlanName)
	})
}

// requirePaid fails when the locked user has an invoice that is not paid
func (p *PostpaidPlan) requirePaid(user *models.FinanceUser) error {
	if !p.invoices.InvoicesArePaid(user) {
		return fmt.Errorf("%w: user %s has unpaid invoices", models.ErrUserHasNotPaid, user.Key())
	}
	return nil
}
