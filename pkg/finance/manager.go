package finance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/finance/pkg/config"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/plans"
	"github.com/platinummonkey/finance/pkg/store"
)

// maxPlanLookups bounds how often an operation re-resolves the plan of a
// user that moved between lookup and lock
const maxPlanLookups = 3

// ConfigLoader reads a fresh engine configuration on reload
type ConfigLoader func() (config.FinanceConfig, error)

// Manager is the entry point of every inbound operation. Operations run
// concurrently with each other and with the plan workers; Reload waits for
// in-flight operations and blocks new ones until it is done.
type Manager struct {
	plans *store.PlansHolder
	users *store.UsersHolder
	deps  plans.Dependencies
	load  ConfigLoader
	log   *logrus.Logger

	gate sync.RWMutex

	cfgMu sync.Mutex
	cfg   config.FinanceConfig
}

// NewManager creates a manager over holder. The plans it builds share deps,
// whose Users is replaced by the holder's users. load may be nil, in which
// case Reload keeps the current configuration.
func NewManager(holder *store.PlansHolder, deps plans.Dependencies, cfg config.FinanceConfig, load ConfigLoader) *Manager {
	deps.Users = holder.Users()
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	return &Manager{
		plans: holder,
		users: holder.Users(),
		deps:  deps,
		load:  load,
		log:   deps.Log,
		cfg:   cfg,
	}
}

// Config returns the engine configuration in use
func (m *Manager) Config() config.FinanceConfig {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.cfg
}

// Start loads the persisted plans and users, creates the default plan when
// there is none and starts every plan
func (m *Manager) Start(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()

	if err := m.reloadStore(ctx); err != nil {
		return err
	}
	if err := m.ensureDefaultPlan(ctx); err != nil {
		return err
	}
	return m.startPlans()
}

// Stop stops the workers of every plan
func (m *Manager) Stop(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	return m.stopPlans()
}

// Reload stops every plan, replaces the configuration, rebuilds plans and
// users from the store and starts the plans again
func (m *Manager) Reload(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()

	m.log.Info("Reloading configuration")
	if err := m.stopPlans(); err != nil {
		return err
	}

	if m.load != nil {
		cfg, err := m.load()
		if err != nil {
			m.log.Errorf("Failed to load configuration, keeping the current one: %v", err)
			if startErr := m.startPlans(); startErr != nil {
				m.log.Errorf("Failed to restart plans: %v", startErr)
			}
			return fmt.Errorf("%w: failed to load configuration: %v", models.ErrInvalidParameter, err)
		}
		m.cfgMu.Lock()
		m.cfg = cfg
		m.cfgMu.Unlock()
	}

	if err := m.reloadStore(ctx); err != nil {
		return err
	}
	if err := m.ensureDefaultPlan(ctx); err != nil {
		return err
	}
	if err := m.startPlans(); err != nil {
		return err
	}

	m.log.Info("Reload complete")
	return nil
}

func (m *Manager) reloadStore(ctx context.Context) error {
	if err := m.plans.Reload(ctx, plans.StoreFactory(m.deps)); err != nil {
		return err
	}
	return m.users.Reload(ctx)
}

func (m *Manager) ensureDefaultPlan(ctx context.Context) error {
	if len(m.plans.ListPlans()) > 0 {
		return nil
	}

	cfg := m.Config()
	plan, err := plans.New(cfg.DefaultPlanKind, cfg.DefaultPlanName, cfg.DefaultPlanOptions, m.deps)
	if err != nil {
		return fmt.Errorf("failed to create default plan: %w", err)
	}
	if err := m.plans.RegisterPlan(ctx, plan); err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{"plan": cfg.DefaultPlanName, "kind": cfg.DefaultPlanKind}).Info("Created default plan")
	return nil
}

func (m *Manager) startPlans() error {
	var g errgroup.Group
	for _, plan := range m.plans.ListPlans() {
		if plan.IsStarted() {
			continue
		}
		g.Go(func() error {
			plan.Start()
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) stopPlans() error {
	var g errgroup.Group
	for _, plan := range m.plans.ListPlans() {
		g.Go(func() error {
			plan.Stop()
			return nil
		})
	}
	return g.Wait()
}

// RegisterUser subscribes a user to a plan
func (m *Manager) RegisterUser(ctx context.Context, id, provider, planName string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()

	plan, err := m.financePlan(planName)
	if err != nil {
		return err
	}

	plan.Lock()
	defer plan.Unlock()
	if !m.isRegistered(plan) {
		return fmt.Errorf("%w: plan %s", models.ErrNotFound, planName)
	}
	return plan.RegisterUser(ctx, id, provider)
}

// UnregisterUser ends the subscription of a user through its plan
func (m *Manager) UnregisterUser(ctx context.Context, id, provider string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()

	plan, unlock, err := m.lockUserPlan(id, provider, nil)
	if err != nil {
		return err
	}
	defer unlock()
	return plan.UnregisterUser(ctx, id, provider)
}

// RemoveUser deletes an unsubscribed user
func (m *Manager) RemoveUser(ctx context.Context, id, provider string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()
	return m.users.RemoveUser(ctx, id, provider)
}

// PurgeUser deletes every resource of a user and then the user
func (m *Manager) PurgeUser(ctx context.Context, id, provider string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()

	user, err := m.users.LockUser(id, provider)
	if err != nil {
		return err
	}
	if !user.Subscribed {
		defer user.Unlock()
		return m.purgeInactive(ctx, user)
	}
	// plan locks come before user locks
	user.Unlock()

	plan, unlock, err := m.lockUserPlan(id, provider, nil)
	if err != nil {
		return err
	}
	defer unlock()
	return plan.PurgeUser(ctx, id, provider)
}

// purgeInactive purges a locked user that has no plan to do it
func (m *Manager) purgeInactive(ctx context.Context, user *models.FinanceUser) error {
	if m.deps.Orchestrator != nil {
		if err := m.deps.Orchestrator.PurgeUser(ctx, user.ID, user.Provider); err != nil {
			return err
		}
	}
	return m.users.RemoveLocked(ctx, user)
}

// ChangePlan moves a user to another plan. Both plans are locked, so the
// target plan cannot be removed while the user moves in.
func (m *Manager) ChangePlan(ctx context.Context, id, provider, newPlanName string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()

	target, err := m.financePlan(newPlanName)
	if err != nil {
		return err
	}

	plan, unlock, err := m.lockUserPlan(id, provider, target)
	if err != nil {
		return err
	}
	defer unlock()

	if !m.isRegistered(target) {
		return fmt.Errorf("%w: plan %s", models.ErrNotFound, newPlanName)
	}
	return plan.ChangePlan(ctx, id, provider, newPlanName)
}

// UpdateFinanceState applies finance state properties to a user
func (m *Manager) UpdateFinanceState(ctx context.Context, id, provider string, state map[string]string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()

	user, err := m.users.LockUser(id, provider)
	if err != nil {
		return err
	}
	defer user.Unlock()

	if err := user.UpdateFinanceState(state); err != nil {
		return err
	}
	return m.users.SaveUser(ctx, user)
}

// GetFinanceState renders one finance state property of a user
func (m *Manager) GetFinanceState(id, provider, property string) (string, error) {
	m.gate.RLock()
	defer m.gate.RUnlock()

	user, err := m.users.LockUser(id, provider)
	if err != nil {
		return "", err
	}
	defer user.Unlock()
	return user.GetFinanceState(property)
}

// IsAuthorized reports whether the user may perform operation
func (m *Manager) IsAuthorized(ctx context.Context, id, provider, operation string) (bool, error) {
	m.gate.RLock()
	defer m.gate.RUnlock()

	stored, err := m.plans.GetUserPlan(id, provider)
	if err != nil {
		return false, err
	}
	plan, err := asFinancePlan(stored)
	if err != nil {
		return false, err
	}
	return plan.IsAuthorized(ctx, id, provider, operation)
}

// CreatePlan builds, persists and starts a new plan
func (m *Manager) CreatePlan(ctx context.Context, kind, name string, options map[string]string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()

	plan, err := plans.New(kind, name, options, m.deps)
	if err != nil {
		return err
	}
	if err := m.plans.RegisterPlan(ctx, plan); err != nil {
		return err
	}

	plan.Start()
	return nil
}

// GetPlanOptions returns the options of a plan
func (m *Manager) GetPlanOptions(name string) (map[string]string, error) {
	m.gate.RLock()
	defer m.gate.RUnlock()
	return m.plans.GetPlanOptions(name)
}

// UpdatePlanOptions replaces the options of a plan
func (m *Manager) UpdatePlanOptions(ctx context.Context, name string, options map[string]string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()
	return m.plans.UpdatePlan(ctx, name, options)
}

// RemovePlan deletes a plan without registered users
func (m *Manager) RemovePlan(ctx context.Context, name string) error {
	m.gate.RLock()
	defer m.gate.RUnlock()
	return m.plans.RemovePlan(ctx, name)
}

// PlanNames returns the sorted names of the registered plans
func (m *Manager) PlanNames() []string {
	m.gate.RLock()
	defer m.gate.RUnlock()

	registered := m.plans.ListPlans()
	names := make([]string, 0, len(registered))
	for _, plan := range registered {
		names = append(names, plan.Name())
	}
	sort.Strings(names)
	return names
}

func (m *Manager) financePlan(name string) (plans.FinancePlan, error) {
	stored, err := m.plans.GetPlan(name)
	if err != nil {
		return nil, err
	}
	return asFinancePlan(stored)
}

func asFinancePlan(stored store.Plan) (plans.FinancePlan, error) {
	plan, ok := stored.(plans.FinancePlan)
	if !ok {
		return nil, fmt.Errorf("%w: plan %s does not manage users", models.ErrInternal, stored.Name())
	}
	return plan, nil
}

// isRegistered reports whether plan is still the registered plan of its
// name. Caller must hold the plan lock.
func (m *Manager) isRegistered(plan store.Plan) bool {
	current, err := m.plans.GetPlan(plan.Name())
	return err == nil && current == plan
}

// lockUserPlan locks the plan of a subscribed user, together with other
// when it is set, and returns a function releasing both. Plans are locked in
// name order.
func (m *Manager) lockUserPlan(id, provider string, other store.Plan) (plans.FinancePlan, func(), error) {
	for range maxPlanLookups {
		stored, err := m.plans.GetUserPlan(id, provider)
		if err != nil {
			return nil, nil, err
		}
		plan, err := asFinancePlan(stored)
		if err != nil {
			return nil, nil, err
		}

		if other != nil && other.Name() == plan.Name() {
			return nil, nil, fmt.Errorf("%w: user %s@%s is already subscribed to plan %s",
				models.ErrInvalidParameter, id, provider, other.Name())
		}

		unlock := lockPlans(plan, other)

		// the user may have moved before the lock was taken
		if m.subscribedTo(id, provider, plan.Name()) && m.isRegistered(plan) {
			return plan, unlock, nil
		}
		unlock()
	}

	return nil, nil, fmt.Errorf("%w: plan of user %s@%s kept changing", models.ErrInternal, id, provider)
}

func lockPlans(first, second store.Plan) func() {
	if second == nil {
		first.Lock()
		return first.Unlock
	}

	if second.Name() < first.Name() {
		first, second = second, first
	}
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

func (m *Manager) subscribedTo(id, provider, planName string) bool {
	user, err := m.users.GetUserByID(id, provider)
	if err != nil {
		return false
	}

	user.Lock()
	defer user.Unlock()
	return user.Subscribed && user.PlanName == planName
}
