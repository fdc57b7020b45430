package plans

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

func userOf(t *testing.T, deps Dependencies, id string) *models.FinanceUser {
	t.Helper()
	user, err := deps.Users.GetUserByID(id, "idp")
	require.NoError(t, err)
	return user
}

func TestPostpaidPlan_RegisterAndUnregister(t *testing.T) {
	deps, orchestrator := newDeps(t)
	plan, err := NewPostpaidPlan("gold", postpaidOptions(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, plan.RegisterUser(ctx, "alice", "idp"))
	assert.Equal(t, []string{"resume alice"}, orchestrator.Calls())

	err = plan.RegisterUser(ctx, "alice", "idp")
	assert.ErrorIs(t, err, models.ErrUserAlreadyExists)

	alice := userOf(t, deps, "alice")

	t.Run("open invoices block leaving", func(t *testing.T) {
		alice.Lock()
		alice.AddInvoice(&models.Invoice{ID: "inv-1", Total: 4, State: models.InvoiceStateWaiting})
		alice.Unlock()

		err := plan.UnregisterUser(ctx, "alice", "idp")
		assert.ErrorIs(t, err, models.ErrUserHasNotPaid)
		assert.True(t, alice.Subscribed)

		err = plan.ChangePlan(ctx, "alice", "idp", "silver")
		assert.ErrorIs(t, err, models.ErrUserHasNotPaid)
		assert.Equal(t, "gold", alice.PlanName)
	})

	t.Run("paid user leaves with a final invoice", func(t *testing.T) {
		alice.Lock()
		require.NoError(t, alice.UpdateFinanceState(map[string]string{
			models.PropertyType: models.PropertyTypeInvoice,
			"inv-1":             string(models.InvoiceStatePaid),
		}))
		alice.Unlock()

		require.NoError(t, plan.UnregisterUser(ctx, "alice", "idp"))

		assert.False(t, alice.Subscribed)
		require.Len(t, alice.Invoices, 2)
		// no usage, so the final invoice is settled immediately
		assert.Equal(t, models.InvoiceStatePaid, alice.Invoices[1].State)
		assert.Equal(t, []string{"resume alice", "purge alice"}, orchestrator.Calls())
		assert.True(t, deps.Users.InactiveUsers().Contains(alice))
	})
}

func TestPostpaidPlan_ChangePlan(t *testing.T) {
	deps, _ := newDeps(t)
	plan, err := NewPostpaidPlan("gold", postpaidOptions(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, plan.RegisterUser(ctx, "alice", "idp"))

	err = plan.ChangePlan(ctx, "alice", "idp", "gold")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	require.NoError(t, plan.ChangePlan(ctx, "alice", "idp", "silver"))

	alice := userOf(t, deps, "alice")
	assert.Equal(t, "silver", alice.PlanName)
	assert.Len(t, alice.Invoices, 1)
	assert.True(t, deps.Users.GetRegisteredUsersByPlan("gold").IsEmpty())
	assert.True(t, deps.Users.GetRegisteredUsersByPlan("silver").Contains(alice))
}

func TestPrepaidPlan_Flows(t *testing.T) {
	deps, orchestrator := newDeps(t)
	plan, err := NewPrepaidPlan("bronze", prepaidOptions(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, plan.RegisterUser(ctx, "alice", "idp"))
	require.NoError(t, plan.RegisterUser(ctx, "bob", "idp"))

	// prepaid users leave regardless of their balance
	alice := userOf(t, deps, "alice")
	alice.Lock()
	alice.Credits.Deduct(1, 5)
	alice.Unlock()

	require.NoError(t, plan.UnregisterUser(ctx, "alice", "idp"))
	assert.False(t, alice.Subscribed)
	assert.Empty(t, alice.Invoices)
	assert.Equal(t, -5.0, alice.Credits.Value)

	require.NoError(t, plan.ChangePlan(ctx, "bob", "idp", "gold"))
	assert.Equal(t, "gold", userOf(t, deps, "bob").PlanName)

	assert.Equal(t, []string{"resume alice", "resume bob", "purge alice"}, orchestrator.Calls())
}

func TestPlan_PurgeUser(t *testing.T) {
	deps, orchestrator := newDeps(t)
	plan, err := NewPrepaidPlan("bronze", prepaidOptions(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, plan.RegisterUser(ctx, "alice", "idp"))
	require.NoError(t, plan.PurgeUser(ctx, "alice", "idp"))

	_, err = deps.Users.GetUserByID("alice", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []string{"resume alice", "purge alice"}, orchestrator.Calls())

	err = plan.PurgeUser(ctx, "alice", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPlan_IsAuthorized(t *testing.T) {
	deps, _ := newDeps(t)
	postpaid, err := NewPostpaidPlan("gold", postpaidOptions(), deps)
	require.NoError(t, err)
	prepaid, err := NewPrepaidPlan("bronze", prepaidOptions(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, postpaid.RegisterUser(ctx, "alice", "idp"))
	require.NoError(t, prepaid.RegisterUser(ctx, "bob", "idp"))

	ok, err := postpaid.IsAuthorized(ctx, "alice", "idp", OperationCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	alice := userOf(t, deps, "alice")
	alice.Lock()
	alice.AddInvoice(&models.Invoice{ID: "inv-1", Total: 4, State: models.InvoiceStateDefaulting})
	alice.Unlock()

	ok, err = postpaid.IsAuthorized(ctx, "alice", "idp", OperationCreate)
	require.NoError(t, err)
	assert.False(t, ok)

	// only creation is gated
	ok, err = postpaid.IsAuthorized(ctx, "alice", "idp", "delete")
	require.NoError(t, err)
	assert.True(t, ok)

	bob := userOf(t, deps, "bob")
	bob.Lock()
	bob.Credits.Deduct(1, 1)
	bob.Unlock()

	ok, err = prepaid.IsAuthorized(ctx, "bob", "idp", OperationCreate)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = prepaid.IsAuthorized(ctx, "nobody", "idp", OperationCreate)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// gatedOrchestrator holds PurgeUser until released
type gatedOrchestrator struct {
	*mockOrchestrator
	purging chan struct{}
	release chan struct{}
}

func (g *gatedOrchestrator) PurgeUser(ctx context.Context, id, provider string) error {
	close(g.purging)
	<-g.release
	return g.mockOrchestrator.PurgeUser(ctx, id, provider)
}

func TestPostpaidPlan_UnregisterExcludesBillingSweep(t *testing.T) {
	deps, orchestrator := newDeps(t)
	gated := &gatedOrchestrator{
		mockOrchestrator: orchestrator,
		purging:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	deps.Orchestrator = gated
	plan, err := NewPostpaidPlan("gold", postpaidOptions(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, plan.RegisterUser(ctx, "alice", "idp"))
	alice := userOf(t, deps, "alice")

	// a billing cycle is due, so a sweep would add a WAITING invoice
	deps.Clock.(*timeutil.FixedClock).Advance(time.Hour)

	unregistered := make(chan error, 1)
	go func() {
		unregistered <- plan.UnregisterUser(ctx, "alice", "idp")
	}()
	<-gated.purging

	swept := make(chan error, 1)
	go func() {
		swept <- plan.(*PostpaidPlan).payments(plan.(*PostpaidPlan).currentSettings()).Sweep(ctx)
	}()

	select {
	case <-swept:
		t.Fatal("billing sweep ran while the user was leaving the plan")
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.release)
	require.NoError(t, <-unregistered)
	require.NoError(t, <-swept)

	alice.Lock()
	defer alice.Unlock()
	assert.False(t, alice.Subscribed)
	require.Len(t, alice.Invoices, 1)
	assert.Equal(t, models.InvoiceStatePaid, alice.Invoices[0].State)
	assert.True(t, alice.InvoicesArePaid())
}
