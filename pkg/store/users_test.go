package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/storage"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

func newTestUsers(t *testing.T) (*UsersHolder, *storage.MemoryStore, *timeutil.FixedClock) {
	t.Helper()
	backend := storage.NewMemoryStore()
	clock := &timeutil.FixedClock{Millis: 1000}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return NewUsersHolder(backend, clock, log), backend, clock
}

type failingUserStore struct {
	storage.UserStore
}

func (failingUserStore) SaveUser(ctx context.Context, user *models.FinanceUser) error {
	return errors.New("disk full")
}

func TestUsersHolder_RegisterUser(t *testing.T) {
	users, backend, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))

	user, err := users.GetUserByID("alice", "idp")
	require.NoError(t, err)
	assert.True(t, user.Subscribed)
	assert.Equal(t, "gold", user.PlanName)
	assert.Equal(t, int64(1000), user.LastBillingTime)
	assert.True(t, users.GetRegisteredUsersByPlan("gold").Contains(user))

	saved, ok := backend.User(user.Key())
	require.True(t, ok)
	assert.Equal(t, "gold", saved.PlanName)

	err = users.RegisterUser(ctx, "alice", "idp", "silver")
	assert.ErrorIs(t, err, models.ErrUserAlreadyExists)
	assert.True(t, users.GetRegisteredUsersByPlan("silver").IsEmpty())
}

func TestUsersHolder_UnregisterAndResubscribe(t *testing.T) {
	users, _, clock := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))
	user, err := users.GetUserByID("alice", "idp")
	require.NoError(t, err)
	user.AddInvoice(&models.Invoice{ID: "inv-1", State: models.InvoiceStatePaid})

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, users.UnregisterUser(ctx, "alice", "idp"))
	assert.False(t, user.Subscribed)
	assert.False(t, users.GetRegisteredUsersByPlan("gold").Contains(user))
	assert.True(t, users.InactiveUsers().Contains(user))
	assert.Equal(t, int64(1500), user.Subscriptions[0].EndTime)

	err = users.UnregisterUser(ctx, "alice", "idp")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "silver"))
	assert.False(t, users.InactiveUsers().Contains(user))
	assert.True(t, users.GetRegisteredUsersByPlan("silver").Contains(user))
	assert.Len(t, user.Invoices, 1)
	assert.Len(t, user.Subscriptions, 2)
	assert.Equal(t, int64(2000), user.LastBillingTime)
}

func TestUsersHolder_RemoveUser(t *testing.T) {
	users, backend, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))

	err := users.RemoveUser(ctx, "alice", "idp")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	require.NoError(t, users.UnregisterUser(ctx, "alice", "idp"))
	require.NoError(t, users.RemoveUser(ctx, "alice", "idp"))

	_, err = users.GetUserByID("alice", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.True(t, users.InactiveUsers().IsEmpty())
	_, ok := backend.User(models.UserID{ID: "alice", Provider: "idp"})
	assert.False(t, ok)

	err = users.RemoveUser(ctx, "alice", "idp")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUsersHolder_ChangePlan(t *testing.T) {
	users, _, clock := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))
	user, err := users.GetUserByID("alice", "idp")
	require.NoError(t, err)

	clock.Advance(100 * time.Millisecond)
	require.NoError(t, users.ChangePlan(ctx, "alice", "idp", "silver"))
	assert.Equal(t, "silver", user.PlanName)
	assert.True(t, user.Subscribed)
	assert.False(t, users.GetRegisteredUsersByPlan("gold").Contains(user))
	assert.True(t, users.GetRegisteredUsersByPlan("silver").Contains(user))
	assert.False(t, users.InactiveUsers().Contains(user))
	assert.Equal(t, int64(1100), user.LastBillingTime)
	require.Len(t, user.Subscriptions, 2)
	assert.Equal(t, int64(1100), user.Subscriptions[0].EndTime)

	err = users.ChangePlan(ctx, "alice", "idp", "silver")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
	assert.True(t, users.GetRegisteredUsersByPlan("silver").Contains(user))

	err = users.ChangePlan(ctx, "bob", "idp", "silver")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUsersHolder_SinglePartition(t *testing.T) {
	users, _, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))
	require.NoError(t, users.ChangePlan(ctx, "alice", "idp", "silver"))
	require.NoError(t, users.UnregisterUser(ctx, "alice", "idp"))
	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))

	user, err := users.GetUserByID("alice", "idp")
	require.NoError(t, err)

	count := 0
	for _, plan := range []string{"gold", "silver"} {
		if users.GetRegisteredUsersByPlan(plan).Contains(user) {
			count++
		}
	}
	if users.InactiveUsers().Contains(user) {
		count++
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"gold"}, users.PlanNames())
}

func TestUsersHolder_Reload(t *testing.T) {
	users, backend, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))
	require.NoError(t, users.RegisterUser(ctx, "bob", "idp", "silver"))
	require.NoError(t, users.RegisterUser(ctx, "carol", "idp", "gold"))
	require.NoError(t, users.UnregisterUser(ctx, "carol", "idp"))

	reloaded := NewUsersHolder(backend, &timeutil.FixedClock{}, nil)
	require.NoError(t, reloaded.Reload(ctx))

	assert.Equal(t, 1, reloaded.GetRegisteredUsersByPlan("gold").Len())
	assert.Equal(t, 1, reloaded.GetRegisteredUsersByPlan("silver").Len())
	assert.Equal(t, 1, reloaded.InactiveUsers().Len())

	carol, err := reloaded.GetUserByID("carol", "idp")
	require.NoError(t, err)
	assert.False(t, carol.Subscribed)
}

func TestUsersHolder_SaveFailureKeepsChange(t *testing.T) {
	users := NewUsersHolder(failingUserStore{storage.NewMemoryStore()}, &timeutil.FixedClock{}, nil)

	err := users.RegisterUser(context.Background(), "alice", "idp", "gold")
	assert.ErrorIs(t, err, models.ErrInternal)

	user, err := users.GetUserByID("alice", "idp")
	require.NoError(t, err)
	assert.True(t, user.Subscribed)
}

func TestUsersHolder_UserLockDoesNotBlockOtherUsers(t *testing.T) {
	users, _, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))
	require.NoError(t, users.RegisterUser(ctx, "bob", "idp", "silver"))

	alice, err := users.LockUser("alice", "idp")
	require.NoError(t, err)

	unregistered := make(chan error, 1)
	go func() {
		unregistered <- users.UnregisterUser(ctx, "alice", "idp")
	}()

	looked := make(chan struct{})
	go func() {
		defer close(looked)
		_, _ = users.GetUserByID("bob", "idp")
		users.GetRegisteredUsersByPlan("silver")
		_ = users.RegisterUser(ctx, "carol", "idp", "silver")
	}()

	select {
	case <-looked:
	case <-time.After(time.Second):
		t.Fatal("unrelated users blocked behind a held user lock")
	}

	select {
	case err := <-unregistered:
		t.Fatalf("unregister finished while the user was locked: %v", err)
	default:
	}

	alice.Unlock()
	require.NoError(t, <-unregistered)
	assert.True(t, users.InactiveUsers().Contains(alice))
	assert.Equal(t, 2, users.GetRegisteredUsersByPlan("silver").Len())
}

func TestUsersHolder_LockUserAfterRemoval(t *testing.T) {
	users, _, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))
	require.NoError(t, users.UnregisterUser(ctx, "alice", "idp"))

	alice, err := users.LockUser("alice", "idp")
	require.NoError(t, err)

	locked := make(chan error, 1)
	go func() {
		user, err := users.LockUser("alice", "idp")
		if err == nil {
			user.Unlock()
		}
		locked <- err
	}()

	require.NoError(t, users.RemoveLocked(ctx, alice))
	alice.Unlock()

	assert.ErrorIs(t, <-locked, models.ErrNotFound)
}

func TestUsersHolder_ChangePlanLocked(t *testing.T) {
	users, _, _ := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, users.RegisterUser(ctx, "alice", "idp", "gold"))

	alice, err := users.LockUser("alice", "idp")
	require.NoError(t, err)
	err = users.ChangePlanLocked(ctx, alice, "gold")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
	require.NoError(t, users.ChangePlanLocked(ctx, alice, "silver"))
	alice.Unlock()

	assert.True(t, users.GetRegisteredUsersByPlan("gold").IsEmpty())
	assert.True(t, users.GetRegisteredUsersByPlan("silver").Contains(alice))
}
