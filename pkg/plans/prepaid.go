package plans

import (
	"context"

	"github.com/platinummonkey/finance/pkg/billing"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/scheduler"
)

// PrepaidPlan deducts usage from credits the users bought in advance. A
// user is in good standing while its balance is not negative.
type PrepaidPlan struct {
	*plan
	credits *billing.CreditsManager
}

// NewPrepaidPlan builds a prepaid plan. It requires credits_deduction_wait_time,
// time_to_wait_before_stopping, finance_plan_default_resource_value and a rule
// set.
func NewPrepaidPlan(name string, options map[string]string, deps Dependencies) (FinancePlan, error) {
	base, err := newPlan(KindPrepaid, name, prepaidLayout, options, deps)
	if err != nil {
		return nil, err
	}

	p := &PrepaidPlan{plan: base}
	p.credits = billing.NewCreditsManager(base.deps.Users, base.policy, base.billingOptions()...)
	base.current = p.credits
	base.build = p.workers
	return p, nil
}

func (p *PrepaidPlan) workers(s settings) (scheduler.SweepFunc, scheduler.SweepFunc) {
	payments := scheduler.NewPrepaidPaymentRunner(p.name, p.deps.Users, p.deps.Accounting, p.credits, p.deps.Clock, p.deps.Log)
	return payments.Sweep, p.stopServiceSweep(s)
}

// UnregisterUser purges the user's resources and unsubscribes it. The
// remaining balance is kept.
func (p *PrepaidPlan) UnregisterUser(ctx context.Context, id, provider string) error {
	return p.withUser(id, provider, func(user *models.FinanceUser) error {
		if err := p.resources().PurgeResources(ctx, user); err != nil {
			return err
		}
		return p.deps.Users.UnregisterLocked(ctx, user)
	})
}

// ChangePlan moves the user to another plan
func (p *PrepaidPlan) ChangePlan(ctx context.Context, id, provider, newPlanName string) error {
	return p.deps.Users.ChangePlan(ctx, id, provider, newPlanName)
}
