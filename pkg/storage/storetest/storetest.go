// Package storetest provides a behavioural test suite shared by every
// storage.Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/storage"
)

// Run exercises the full Store contract against an empty store
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("users round trip", func(t *testing.T) {
		user := models.NewFinanceUser("alice", "idp/one")
		user.Subscribe("gold", 1000)
		user.Credits.Value = 42.5
		user.AddInvoice(&models.Invoice{
			ID:         "inv-1",
			UserID:     "alice",
			ProviderID: "idp/one",
			StartTime:  1000,
			EndTime:    2000,
			Items: []models.InvoiceItem{
				{OrderID: "o1", Item: models.NewComputeItem(2, 1024), State: models.OrderStateFulfilled, Value: 3},
			},
			Total: 3,
			State: models.InvoiceStateWaiting,
		})
		require.NoError(t, store.SaveUser(ctx, user))

		// saving again updates in place
		user.State = models.UserStateWaitingForStop
		user.WaitPeriodStart = 1500
		require.NoError(t, store.SaveUser(ctx, user))

		users, err := store.LoadUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)

		loaded := users[0]
		assert.Equal(t, user.Key(), loaded.Key())
		assert.True(t, loaded.Subscribed)
		assert.Equal(t, "gold", loaded.PlanName)
		assert.Equal(t, int64(1000), loaded.LastBillingTime)
		assert.Equal(t, 42.5, loaded.Credits.Value)
		assert.Equal(t, models.UserStateWaitingForStop, loaded.State)
		assert.Equal(t, int64(1500), loaded.WaitPeriodStart)
		require.Len(t, loaded.Invoices, 1)
		assert.Equal(t, user.Invoices[0], loaded.Invoices[0])
	})

	t.Run("remove user", func(t *testing.T) {
		user := models.NewFinanceUser("bob", "idp")
		require.NoError(t, store.SaveUser(ctx, user))
		require.NoError(t, store.RemoveUser(ctx, user.Key()))

		users, err := store.LoadUsers(ctx)
		require.NoError(t, err)
		for _, u := range users {
			assert.NotEqual(t, user.Key(), u.Key())
		}

		err = store.RemoveUser(ctx, user.Key())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("plans round trip", func(t *testing.T) {
		plan := storage.PlanRecord{
			Name:    "gold",
			Kind:    "postpaid",
			Options: map[string]string{"billing_interval": "60000"},
		}
		require.NoError(t, store.SavePlan(ctx, plan))

		plan.Options["billing_interval"] = "120000"
		require.NoError(t, store.SavePlan(ctx, plan))
		require.NoError(t, store.SavePlan(ctx, storage.PlanRecord{Name: "silver", Kind: "prepaid", Options: map[string]string{}}))

		plans, err := store.LoadPlans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 2)

		byName := map[string]storage.PlanRecord{}
		for _, p := range plans {
			byName[p.Name] = p
		}
		assert.Equal(t, "postpaid", byName["gold"].Kind)
		assert.Equal(t, "120000", byName["gold"].Options["billing_interval"])
		assert.Equal(t, "prepaid", byName["silver"].Kind)

		require.NoError(t, store.RemovePlan(ctx, "silver"))
		assert.ErrorIs(t, store.RemovePlan(ctx, "silver"), storage.ErrNotFound)

		plans, err = store.LoadPlans(ctx)
		require.NoError(t, err)
		assert.Len(t, plans, 1)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
