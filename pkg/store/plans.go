package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/storage"
	"github.com/platinummonkey/finance/pkg/synclist"
)

// Plan is a running finance plan as seen by the holder. The embedded Locker
// is the plan-level mutex; configuration changes hold it while the workers
// are stopped, so they never interleave with a sweep.
type Plan interface {
	sync.Locker

	Name() string
	Kind() string
	// Options returns a copy of the current plan options
	Options() map[string]string
	// SetOptions validates and applies options; on error nothing changes
	SetOptions(options map[string]string) error
	Start()
	Stop()
	IsStarted() bool
}

// PlanFactory rebuilds a plan from its persisted form
type PlanFactory func(record storage.PlanRecord) (Plan, error)

// PlansHolder keeps the registered plans
type PlansHolder struct {
	store storage.PlanStore
	users *UsersHolder
	log   *logrus.Logger

	mu    sync.Mutex // serializes membership changes
	plans *synclist.List[Plan]
}

// NewPlansHolder creates an empty holder
func NewPlansHolder(store storage.PlanStore, users *UsersHolder, log *logrus.Logger) *PlansHolder {
	if log == nil {
		log = logrus.New()
	}
	return &PlansHolder{
		store: store,
		users: users,
		log:   log,
		plans: synclist.New[Plan](),
	}
}

// Users returns the users holder the plans partition their users in
func (h *PlansHolder) Users() *UsersHolder {
	return h.users
}

// Reload replaces the registered plans with the persisted set. Plans that
// can no longer be built are skipped and logged. Loaded plans are not
// started.
func (h *PlansHolder) Reload(ctx context.Context, factory PlanFactory) error {
	records, err := h.store.LoadPlans(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to load plans: %v", models.ErrInternal, err)
	}

	plans := synclist.New[Plan]()
	for _, record := range records {
		plan, err := factory(record)
		if err != nil {
			h.log.WithFields(logrus.Fields{"plan": record.Name, "kind": record.Kind}).
				Errorf("Failed to rebuild plan: %v", err)
			continue
		}
		plans.AddItem(plan)
	}

	h.mu.Lock()
	h.plans = plans
	h.mu.Unlock()

	h.log.Infof("Loaded %d plans", plans.Len())
	return nil
}

func (h *PlansHolder) list() *synclist.List[Plan] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plans
}

// RegisterPlan adds and persists a new plan
func (h *PlansHolder) RegisterPlan(ctx context.Context, plan Plan) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.find(h.plans, plan.Name()); err == nil {
		return fmt.Errorf("%w: plan %s already exists", models.ErrInvalidParameter, plan.Name())
	}

	h.plans.AddItem(plan)
	if err := h.store.SavePlan(ctx, record(plan)); err != nil {
		h.plans.RemoveItem(plan)
		return fmt.Errorf("%w: failed to save plan %s: %v", models.ErrInternal, plan.Name(), err)
	}

	h.log.WithFields(logrus.Fields{"plan": plan.Name(), "kind": plan.Kind()}).Info("Registered plan")
	return nil
}

// GetPlan returns the plan with the given name
func (h *PlansHolder) GetPlan(name string) (Plan, error) {
	return h.find(h.list(), name)
}

func (h *PlansHolder) find(plans *synclist.List[Plan], name string) (Plan, error) {
	return synclist.Select(plans, func(p Plan) (bool, error) {
		return p.Name() == name, nil
	}, fmt.Errorf("%w: plan %s", models.ErrNotFound, name))
}

// ListPlans returns every registered plan
func (h *PlansHolder) ListPlans() []Plan {
	return h.list().Snapshot()
}

// RemovePlan stops and deletes a plan that has no registered users
func (h *PlansHolder) RemovePlan(ctx context.Context, name string) error {
	plan, err := h.GetPlan(name)
	if err != nil {
		return err
	}

	plan.Lock()
	defer plan.Unlock()

	if !h.users.GetRegisteredUsersByPlan(name).IsEmpty() {
		return fmt.Errorf("%w: plan %s has registered users", models.ErrInvalidParameter, name)
	}

	// a plan that is still persisted keeps running
	if err := h.store.RemovePlan(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: failed to remove plan %s: %v", models.ErrInternal, name, err)
	}

	plan.Stop()

	h.mu.Lock()
	h.plans.RemoveItem(plan)
	h.mu.Unlock()

	h.log.WithField("plan", name).Info("Removed plan")
	return nil
}

// UpdatePlan replaces the options of a plan. Workers are stopped while the
// options change and restarted afterwards, also when validation fails.
func (h *PlansHolder) UpdatePlan(ctx context.Context, name string, options map[string]string) error {
	plan, err := h.GetPlan(name)
	if err != nil {
		return err
	}

	plan.Lock()
	defer plan.Unlock()

	wasStarted := plan.IsStarted()
	plan.Stop()
	if wasStarted {
		defer plan.Start()
	}

	if err := plan.SetOptions(options); err != nil {
		return err
	}
	if err := h.store.SavePlan(ctx, record(plan)); err != nil {
		return fmt.Errorf("%w: failed to save plan %s: %v", models.ErrInternal, name, err)
	}

	h.log.WithField("plan", name).Info("Updated plan options")
	return nil
}

// GetPlanOptions returns the options of a plan
func (h *PlansHolder) GetPlanOptions(name string) (map[string]string, error) {
	plan, err := h.GetPlan(name)
	if err != nil {
		return nil, err
	}

	plan.Lock()
	defer plan.Unlock()
	return plan.Options(), nil
}

// GetUserPlan returns the plan a user is subscribed to
func (h *PlansHolder) GetUserPlan(id, provider string) (Plan, error) {
	user, err := h.users.GetUserByID(id, provider)
	if err != nil {
		return nil, err
	}

	user.Lock()
	subscribed, planName := user.Subscribed, user.PlanName
	user.Unlock()

	if !subscribed {
		return nil, fmt.Errorf("%w: user %s is not subscribed to any plan", models.ErrInvalidParameter, user.Key())
	}
	return h.GetPlan(planName)
}

func record(plan Plan) storage.PlanRecord {
	return storage.PlanRecord{
		Name:    plan.Name(),
		Kind:    plan.Kind(),
		Options: plan.Options(),
	}
}
