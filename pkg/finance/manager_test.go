package finance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/finance/pkg/config"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/plans"
	"github.com/platinummonkey/finance/pkg/records"
	"github.com/platinummonkey/finance/pkg/storage"
	"github.com/platinummonkey/finance/pkg/store"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

type mockAccounting struct{}

func (mockAccounting) GetUserRecords(ctx context.Context, id, provider string, start, end int64) ([]records.Record, error) {
	return nil, nil
}

type mockOrchestrator struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockOrchestrator) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return nil
}

func (m *mockOrchestrator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockOrchestrator) PauseResources(ctx context.Context, id, provider string) error {
	return m.record("pause " + id)
}

func (m *mockOrchestrator) HibernateResources(ctx context.Context, id, provider string) error {
	return m.record("hibernate " + id)
}

func (m *mockOrchestrator) StopResources(ctx context.Context, id, provider string) error {
	return m.record("stop " + id)
}

func (m *mockOrchestrator) ResumeResources(ctx context.Context, id, provider string) error {
	return m.record("resume " + id)
}

func (m *mockOrchestrator) PurgeUser(ctx context.Context, id, provider string) error {
	return m.record("purge " + id)
}

func postpaidOptions() map[string]string {
	return map[string]string{
		plans.OptionBillingInterval:          "3600000",
		plans.OptionInvoiceWaitTime:          "60000",
		plans.OptionTimeToWaitBeforeStopping: "10000",
		plans.OptionDefaultResourceValue:     "0.5",
		plans.OptionRules:                    `{"small": "compute,fulfilled,1,2,10/h"}`,
	}
}

func prepaidOptions() map[string]string {
	return map[string]string{
		plans.OptionCreditsDeductionWaitTime: "60000",
		plans.OptionTimeToWaitBeforeStopping: "10000",
		plans.OptionDefaultResourceValue:     "0.5",
		plans.OptionRules:                    `{"small": "compute,fulfilled,1,2,10/h"}`,
	}
}

func financeConfig() config.FinanceConfig {
	return config.FinanceConfig{
		DefaultPlanKind:    plans.KindPostpaid,
		DefaultPlanName:    "default",
		DefaultPlanOptions: postpaidOptions(),
	}
}

type fixture struct {
	backend      *storage.MemoryStore
	orchestrator *mockOrchestrator
	log          *logrus.Logger
	clock        *timeutil.FixedClock
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &fixture{
		backend:      storage.NewMemoryStore(),
		orchestrator: &mockOrchestrator{},
		log:          log,
		clock:        &timeutil.FixedClock{Millis: 1000},
	}
}

// manager builds a manager over the fixture's backend and stops it when the
// test ends
func (f *fixture) manager(t *testing.T, cfg config.FinanceConfig, load ConfigLoader) *Manager {
	t.Helper()
	users := store.NewUsersHolder(f.backend, f.clock, f.log)
	holder := store.NewPlansHolder(f.backend, users, f.log)
	m := NewManager(holder, plans.Dependencies{
		Accounting:   mockAccounting{},
		Orchestrator: f.orchestrator,
		Clock:        f.clock,
		Log:          f.log,
	}, cfg, load)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func startedManager(t *testing.T) (*Manager, *fixture) {
	t.Helper()
	f := newFixture()
	m := f.manager(t, financeConfig(), nil)
	require.NoError(t, m.Start(context.Background()))
	return m, f
}

func TestManager_StartCreatesDefaultPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m := f.manager(t, financeConfig(), nil)
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, []string{"default"}, m.PlanNames())

	options, err := m.GetPlanOptions("default")
	require.NoError(t, err)
	assert.Equal(t, postpaidOptions(), options)

	require.NoError(t, m.Stop(ctx))

	// a second engine over the same backend finds the persisted plan
	other := f.manager(t, config.FinanceConfig{
		DefaultPlanKind:    plans.KindPrepaid,
		DefaultPlanName:    "fallback",
		DefaultPlanOptions: prepaidOptions(),
	}, nil)
	require.NoError(t, other.Start(ctx))
	assert.Equal(t, []string{"default"}, other.PlanNames())
}

func TestManager_StartRejectsInvalidDefaultPlan(t *testing.T) {
	f := newFixture()
	cfg := financeConfig()
	cfg.DefaultPlanKind = "freemium"

	m := f.manager(t, cfg, nil)
	assert.Error(t, m.Start(context.Background()))
	assert.Empty(t, m.PlanNames())
}

func TestManager_UserLifecycle(t *testing.T) {
	m, f := startedManager(t)
	ctx := context.Background()
	require.NoError(t, m.CreatePlan(ctx, plans.KindPrepaid, "silver", prepaidOptions()))

	err := m.RegisterUser(ctx, "alice", "idp", "gold")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "default"))
	err = m.RegisterUser(ctx, "alice", "idp", "silver")
	assert.ErrorIs(t, err, models.ErrUserAlreadyExists)

	t.Run("change plan", func(t *testing.T) {
		err := m.ChangePlan(ctx, "alice", "idp", "default")
		assert.ErrorIs(t, err, models.ErrInvalidParameter)

		err = m.ChangePlan(ctx, "alice", "idp", "gold")
		assert.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, m.ChangePlan(ctx, "alice", "idp", "silver"))

		plan, err := m.plans.GetUserPlan("alice", "idp")
		require.NoError(t, err)
		assert.Equal(t, "silver", plan.Name())
	})

	t.Run("remove requires unsubscribing first", func(t *testing.T) {
		err := m.RemoveUser(ctx, "alice", "idp")
		assert.ErrorIs(t, err, models.ErrInvalidParameter)
	})

	t.Run("unregister", func(t *testing.T) {
		require.NoError(t, m.UnregisterUser(ctx, "alice", "idp"))

		err := m.UnregisterUser(ctx, "alice", "idp")
		assert.ErrorIs(t, err, models.ErrInvalidParameter)

		_, err = m.IsAuthorized(ctx, "alice", "idp", plans.OperationCreate)
		assert.ErrorIs(t, err, models.ErrInvalidParameter)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, m.RemoveUser(ctx, "alice", "idp"))

		err := m.RemoveUser(ctx, "alice", "idp")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	assert.Equal(t, []string{"resume alice", "purge alice"}, f.orchestrator.Calls())
}

func TestManager_PurgeUser(t *testing.T) {
	m, f := startedManager(t)
	ctx := context.Background()

	require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "default"))
	require.NoError(t, m.RegisterUser(ctx, "bob", "idp", "default"))
	require.NoError(t, m.UnregisterUser(ctx, "bob", "idp"))

	require.NoError(t, m.PurgeUser(ctx, "alice", "idp"))
	require.NoError(t, m.PurgeUser(ctx, "bob", "idp"))

	_, err := m.users.GetUserByID("alice", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = m.users.GetUserByID("bob", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = m.PurgeUser(ctx, "carol", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, []string{
		"resume alice",
		"resume bob",
		"purge bob",
		"purge alice",
		"purge bob",
	}, f.orchestrator.Calls())
}

func TestManager_FinanceState(t *testing.T) {
	m, f := startedManager(t)
	ctx := context.Background()

	_, err := m.GetFinanceState("alice", "idp", models.PropertyUserCredits)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "default"))

	value, err := m.GetFinanceState("alice", "idp", models.PropertyUserCredits)
	require.NoError(t, err)
	assert.Equal(t, "0", value)

	require.NoError(t, m.UpdateFinanceState(ctx, "alice", "idp", map[string]string{
		models.PropertyType:         models.PropertyTypeCredits,
		models.PropertyCreditsToAdd: "12.5",
	}))

	value, err = m.GetFinanceState("alice", "idp", models.PropertyUserCredits)
	require.NoError(t, err)
	assert.Equal(t, "12.5", value)

	err = m.UpdateFinanceState(ctx, "alice", "idp", map[string]string{
		models.PropertyType: "LOYALTY",
	})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	stored, ok := f.backend.User(models.UserID{ID: "alice", Provider: "idp"})
	require.True(t, ok)
	assert.Equal(t, 12.5, stored.Credits.Value)
}

func TestManager_IsAuthorized(t *testing.T) {
	m, _ := startedManager(t)
	ctx := context.Background()

	_, err := m.IsAuthorized(ctx, "alice", "idp", plans.OperationCreate)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "default"))

	ok, err := m.IsAuthorized(ctx, "alice", "idp", plans.OperationCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := m.users.GetUserByID("alice", "idp")
	require.NoError(t, err)
	user.Lock()
	user.AddInvoice(&models.Invoice{ID: "inv-1", Total: 4, State: models.InvoiceStateDefaulting})
	user.Unlock()

	ok, err = m.IsAuthorized(ctx, "alice", "idp", plans.OperationCreate)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.IsAuthorized(ctx, "alice", "idp", "delete")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_Plans(t *testing.T) {
	m, _ := startedManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreatePlan(ctx, plans.KindPrepaid, "silver", prepaidOptions()))
	assert.Equal(t, []string{"default", "silver"}, m.PlanNames())

	plan, err := m.plans.GetPlan("silver")
	require.NoError(t, err)
	assert.True(t, plan.IsStarted())

	err = m.CreatePlan(ctx, plans.KindPrepaid, "silver", prepaidOptions())
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	err = m.CreatePlan(ctx, "freemium", "free", nil)
	assert.Error(t, err)

	t.Run("update options", func(t *testing.T) {
		options := prepaidOptions()
		options[plans.OptionDefaultResourceValue] = "0.75"
		require.NoError(t, m.UpdatePlanOptions(ctx, "silver", options))

		got, err := m.GetPlanOptions("silver")
		require.NoError(t, err)
		assert.Equal(t, "0.75", got[plans.OptionDefaultResourceValue])

		options[plans.OptionCreditsDeductionWaitTime] = "soon"
		err = m.UpdatePlanOptions(ctx, "silver", options)
		assert.ErrorIs(t, err, models.ErrInvalidParameter)
		assert.True(t, plan.IsStarted())

		err = m.UpdatePlanOptions(ctx, "gold", options)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "silver"))

		err := m.RemovePlan(ctx, "silver")
		assert.ErrorIs(t, err, models.ErrInvalidParameter)

		require.NoError(t, m.ChangePlan(ctx, "alice", "idp", "default"))
		require.NoError(t, m.RemovePlan(ctx, "silver"))
		assert.False(t, plan.IsStarted())
		assert.Equal(t, []string{"default"}, m.PlanNames())

		_, err = m.GetPlanOptions("silver")
		assert.ErrorIs(t, err, models.ErrNotFound)
		err = m.RegisterUser(ctx, "bob", "idp", "silver")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestManager_Reload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	next := financeConfig()
	var loadErr error
	m := f.manager(t, financeConfig(), func() (config.FinanceConfig, error) {
		return next, loadErr
	})
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "default"))

	t.Run("keeps plans and users", func(t *testing.T) {
		require.NoError(t, m.Reload(ctx))
		assert.Equal(t, []string{"default"}, m.PlanNames())

		plan, err := m.plans.GetUserPlan("alice", "idp")
		require.NoError(t, err)
		assert.Equal(t, "default", plan.Name())
		assert.True(t, plan.IsStarted())
	})

	t.Run("loader failure keeps running", func(t *testing.T) {
		loadErr = errors.New("bad yaml")
		err := m.Reload(ctx)
		assert.ErrorIs(t, err, models.ErrInvalidParameter)

		plan, err := m.plans.GetPlan("default")
		require.NoError(t, err)
		assert.True(t, plan.IsStarted())
		assert.Equal(t, "default", m.Config().DefaultPlanName)
		loadErr = nil
	})

	t.Run("default plan comes from the new configuration", func(t *testing.T) {
		require.NoError(t, m.UnregisterUser(ctx, "alice", "idp"))
		require.NoError(t, m.RemovePlan(ctx, "default"))

		next = config.FinanceConfig{
			DefaultPlanKind:    plans.KindPrepaid,
			DefaultPlanName:    "fallback",
			DefaultPlanOptions: prepaidOptions(),
		}
		require.NoError(t, m.Reload(ctx))

		assert.Equal(t, "fallback", m.Config().DefaultPlanName)
		assert.Equal(t, []string{"fallback"}, m.PlanNames())
		require.NoError(t, m.RegisterUser(ctx, "alice", "idp", "fallback"))
	})
}
