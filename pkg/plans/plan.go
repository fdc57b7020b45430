package plans

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/billing"
	"github.com/platinummonkey/finance/pkg/governance"
	"github.com/platinummonkey/finance/pkg/lease"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/observability"
	"github.com/platinummonkey/finance/pkg/scheduler"
	"github.com/platinummonkey/finance/pkg/storage"
	"github.com/platinummonkey/finance/pkg/store"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

// Plan kinds
const (
	KindPrepaid  = "prepaid"
	KindPostpaid = "postpaid"
)

// OperationCreate is the resource operation gated on payment
const OperationCreate = "create"

// FinancePlan is a plan together with the user flows it owns. Callers hold
// the plan lock around every flow.
type FinancePlan interface {
	store.Plan

	RegisterUser(ctx context.Context, id, provider string) error
	UnregisterUser(ctx context.Context, id, provider string) error
	ChangePlan(ctx context.Context, id, provider, newPlanName string) error
	PurgeUser(ctx context.Context, id, provider string) error
	IsAuthorized(ctx context.Context, id, provider, operation string) (bool, error)
}

// Dependencies are the services shared by every plan
type Dependencies struct {
	Users        *store.UsersHolder
	Accounting   scheduler.Accounting
	Orchestrator governance.Orchestrator
	Archive      storage.InvoiceArchive
	Lease        lease.Lease
	Metrics      *observability.Metrics
	Clock        timeutil.Clock
	Log          *logrus.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Log == nil {
		d.Log = logrus.New()
	}
	return d
}

// New builds a plan of a registered kind
func New(kind, name string, options map[string]string, deps Dependencies) (FinancePlan, error) {
	factory, err := Get(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidParameter, err)
	}
	return factory(name, options, deps)
}

// StoreFactory rebuilds persisted plans for the plans holder
func StoreFactory(deps Dependencies) store.PlanFactory {
	return func(record storage.PlanRecord) (store.Plan, error) {
		return New(record.Kind, record.Name, record.Options, deps)
	}
}

// sweepBuilder builds the sweeps of the two runners of a plan
type sweepBuilder func(s settings) (payments, stopService scheduler.SweepFunc)

// plan holds what prepaid and postpaid plans share
type plan struct {
	sync.Mutex

	name   string
	kind   string
	layout layout
	deps   Dependencies
	policy *models.FinancePolicy
	debts  *billing.DebtsChecker

	// current is the payment check of the plan kind
	current scheduler.PaymentChecker
	build   sweepBuilder

	runMu       sync.Mutex
	options     map[string]string
	settings    settings
	started     bool
	billing     *scheduler.StoppableRunner
	stopService *scheduler.StoppableRunner
}

func newPlan(kind, name string, l layout, options map[string]string, deps Dependencies) (*plan, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: plan name is required", models.ErrInvalidParameter)
	}

	s, err := parseSettings(options, l)
	if err != nil {
		return nil, err
	}
	if s.rules == nil {
		return nil, fmt.Errorf("%w: one of %s or %s is required",
			models.ErrInvalidParameter, OptionRules, OptionRulesFilePath)
	}

	policy, err := models.NewFinancePolicy(name, s.defaultValue, s.rules)
	if err != nil {
		return nil, err
	}

	deps = deps.withDefaults()
	return &plan{
		name:     name,
		kind:     kind,
		layout:   l,
		deps:     deps,
		policy:   policy,
		debts:    billing.NewDebtsChecker(deps.Users),
		options:  copyOptions(options),
		settings: s,
	}, nil
}

func (p *plan) Name() string { return p.name }

func (p *plan) Kind() string { return p.kind }

// Policy returns the price table of the plan
func (p *plan) Policy() *models.FinancePolicy { return p.policy }

func (p *plan) Options() map[string]string {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return copyOptions(p.options)
}

// SetOptions applies new options. Without a rule set the current rules are
// kept and only the default value changes.
func (p *plan) SetOptions(options map[string]string) error {
	s, err := parseSettings(options, p.layout)
	if err != nil {
		return err
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	applied := copyOptions(options)
	rules := s.rules
	if rules == nil {
		rules = p.policy.Rules()
		for _, key := range []string{OptionRules, OptionRulesFilePath} {
			if value, ok := p.options[key]; ok {
				applied[key] = value
			}
		}
	}

	if err := p.policy.Update(s.defaultValue, rules); err != nil {
		return err
	}
	p.settings = s
	p.options = applied

	p.deps.Log.WithField("plan", p.name).Debug("Applied plan options")
	return nil
}

func (p *plan) currentSettings() settings {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.settings
}

// Start launches both workers and waits until each has begun its first
// cycle
func (p *plan) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.started {
		return
	}

	payments, stopService := p.build(p.settings)
	opts := []scheduler.RunnerOption{
		scheduler.WithRunnerLogger(p.deps.Log),
		scheduler.WithRunnerMetrics(p.deps.Metrics),
	}
	if p.deps.Lease != nil {
		opts = append(opts, scheduler.WithLease(p.deps.Lease))
	}

	p.billing = scheduler.NewStoppableRunner(p.name, scheduler.WorkerBilling,
		millis(p.settings.billingSleep), payments, opts...)
	p.stopService = scheduler.NewStoppableRunner(p.name, scheduler.WorkerGovernance,
		millis(p.settings.stopServiceSleep), stopService, opts...)

	p.billing.Start()
	p.stopService.Start()
	<-p.billing.Ready()
	<-p.stopService.Ready()

	p.started = true
	p.deps.Log.WithFields(logrus.Fields{"plan": p.name, "kind": p.kind}).Info("Started plan workers")
}

// Stop stops both workers and waits until they exited
func (p *plan) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.started {
		return
	}

	p.billing.Stop()
	p.stopService.Stop()
	p.started = false
	p.deps.Log.WithField("plan", p.name).Info("Stopped plan workers")
}

func (p *plan) IsStarted() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.started
}

func (p *plan) resources() *governance.ResourcesPolicy {
	return p.resourcesWith(p.currentSettings())
}

func (p *plan) resourcesWith(s settings) *governance.ResourcesPolicy {
	return governance.NewResourcesPolicy(p.deps.Orchestrator, s.gracePeriod, p.deps.Clock, p.deps.Metrics, p.deps.Log)
}

func (p *plan) billingOptions() []billing.Option {
	return []billing.Option{
		billing.WithPlanName(p.name),
		billing.WithArchive(p.deps.Archive),
		billing.WithMetrics(p.deps.Metrics),
		billing.WithLogger(p.deps.Log),
	}
}

func (p *plan) stopServiceSweep(s settings) scheduler.SweepFunc {
	runner := scheduler.NewStopServiceRunner(p.name, p.deps.Users, p.debts, p.current, p.resourcesWith(s), p.deps.Log)
	return runner.Sweep
}

// RegisterUser subscribes the user and resumes any resources left stopped
// by a previous subscription
func (p *plan) RegisterUser(ctx context.Context, id, provider string) error {
	if err := p.deps.Users.RegisterUser(ctx, id, provider, p.name); err != nil {
		return err
	}

	return p.withUser(id, provider, func(user *models.FinanceUser) error {
		return p.resources().ResumeResources(ctx, user)
	})
}

// PurgeUser deletes every resource of the user and then the user itself
func (p *plan) PurgeUser(ctx context.Context, id, provider string) error {
	return p.withUser(id, provider, func(user *models.FinanceUser) error {
		if err := p.resources().PurgeResources(ctx, user); err != nil {
			return err
		}
		if user.Subscribed {
			if err := p.deps.Users.UnregisterLocked(ctx, user); err != nil {
				return err
			}
		}
		return p.deps.Users.RemoveLocked(ctx, user)
	})
}

// IsAuthorized gates resource creation on the user being up to date with
// both its debts and its current payments
func (p *plan) IsAuthorized(ctx context.Context, id, provider, operation string) (bool, error) {
	if operation != OperationCreate {
		return true, nil
	}

	var paid bool
	err := p.withUser(id, provider, func(user *models.FinanceUser) error {
		paid = p.debts.Check(user) && p.current.HasPaid(user)
		return nil
	})
	return paid, err
}

// withUser runs fn with the user locked
func (p *plan) withUser(id, provider string, fn func(user *models.FinanceUser) error) error {
	user, err := p.deps.Users.LockUser(id, provider)
	if err != nil {
		return err
	}
	defer user.Unlock()
	return fn(user)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
