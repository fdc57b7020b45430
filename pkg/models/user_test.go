package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoice(id string, total float64) *Invoice {
	return &Invoice{ID: id, UserID: "u", ProviderID: "p", Total: total, State: InvoiceStateWaiting}
}

func TestInvoice_SetState(t *testing.T) {
	tests := []struct {
		from, to InvoiceState
		ok       bool
	}{
		{InvoiceStateWaiting, InvoiceStatePaid, true},
		{InvoiceStateDefaulting, InvoiceStatePaid, true},
		{InvoiceStateWaiting, InvoiceStateDefaulting, true},
		{InvoiceStatePaid, InvoiceStateDefaulting, false},
		{InvoiceStatePaid, InvoiceStatePaid, false},
		{InvoiceStateDefaulting, InvoiceStateDefaulting, false},
		{InvoiceStateDefaulting, InvoiceStateWaiting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			inv := &Invoice{ID: "i", State: tt.from}
			err := inv.SetState(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, inv.State)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParameter)
				assert.Equal(t, tt.from, inv.State)
			}
		})
	}
}

func TestFinanceUser_SubscribeLifecycle(t *testing.T) {
	u := NewFinanceUser("u", "p")
	assert.Equal(t, UserID{ID: "u", Provider: "p"}, u.Key())
	assert.Equal(t, "u@p", u.Key().String())
	assert.Equal(t, UserStateDefault, u.State)

	u.Subscribe("plan-a", 100)
	assert.True(t, u.Subscribed)
	assert.Equal(t, "plan-a", u.PlanName)
	assert.Equal(t, int64(100), u.LastBillingTime)

	u.Unsubscribe(200)
	assert.False(t, u.Subscribed)
	assert.Empty(t, u.PlanName)
	require.Len(t, u.Subscriptions, 1)
	assert.Equal(t, Subscription{PlanName: "plan-a", StartTime: 100, EndTime: 200}, u.Subscriptions[0])
}

func TestFinanceUser_PaidChecks(t *testing.T) {
	u := NewFinanceUser("u", "p")
	assert.True(t, u.InvoicesArePaid())
	assert.True(t, u.DebtsArePaid())

	u.AddInvoice(newInvoice("i1", 10))
	assert.False(t, u.InvoicesArePaid())
	assert.False(t, u.HasDefaultingInvoice())

	require.NoError(t, u.Invoices[0].SetState(InvoiceStateDefaulting))
	assert.True(t, u.HasDefaultingInvoice())
	// regular invoices are not subscription debts
	assert.True(t, u.DebtsArePaid())
}

func TestFinanceUser_AddInvoiceAsDebt(t *testing.T) {
	u := NewFinanceUser("u", "p")

	u.AddInvoiceAsDebt(newInvoice("zero", 0))
	assert.Equal(t, InvoiceStatePaid, u.Invoices[0].State)
	assert.Empty(t, u.LastSubscriptionsDebts)

	u.AddInvoiceAsDebt(newInvoice("owed", 5))
	assert.Equal(t, InvoiceStateDefaulting, u.Invoices[1].State)
	assert.Equal(t, []string{"owed"}, u.LastSubscriptionsDebts)
	assert.False(t, u.DebtsArePaid())

	require.NoError(t, u.UpdateFinanceState(map[string]string{
		PropertyType: PropertyTypeInvoice,
		"owed":       "PAID",
	}))
	assert.True(t, u.DebtsArePaid())
	assert.Empty(t, u.LastSubscriptionsDebts)
	assert.True(t, u.InvoicesArePaid())
}

func TestFinanceUser_UpdateFinanceState_Invoices(t *testing.T) {
	u := NewFinanceUser("u", "p")
	u.AddInvoice(newInvoice("i1", 1))
	u.AddInvoice(newInvoice("i2", 2))

	require.NoError(t, u.UpdateFinanceState(map[string]string{
		PropertyType: PropertyTypeInvoice,
		"i1":         "defaulting",
	}))
	assert.Equal(t, InvoiceStateDefaulting, u.Invoices[0].State)

	// one invalid transition rejects the whole update
	err := u.UpdateFinanceState(map[string]string{
		PropertyType: PropertyTypeInvoice,
		"i1":         "PAID",
		"i2":         "WAITING",
	})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, InvoiceStateDefaulting, u.Invoices[0].State)
	assert.Equal(t, InvoiceStateWaiting, u.Invoices[1].State)

	err = u.UpdateFinanceState(map[string]string{
		PropertyType: PropertyTypeInvoice,
		"missing":    "PAID",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinanceUser_UpdateFinanceState_Credits(t *testing.T) {
	u := NewFinanceUser("u", "p")

	require.NoError(t, u.UpdateFinanceState(map[string]string{
		PropertyType:         PropertyTypeCredits,
		PropertyCreditsToAdd: "12.5",
	}))
	assert.Equal(t, 12.5, u.Credits.Value)

	tests := []map[string]string{
		{PropertyType: PropertyTypeCredits},
		{PropertyType: PropertyTypeCredits, PropertyCreditsToAdd: "abc"},
		{PropertyType: PropertyTypeCredits, PropertyCreditsToAdd: "-1"},
		{PropertyType: PropertyTypeCredits, PropertyCreditsToAdd: "NaN"},
		{PropertyType: PropertyTypeCredits, PropertyCreditsToAdd: "+Inf"},
		{PropertyType: PropertyTypeCredits, PropertyCreditsToAdd: "-Inf"},
		{PropertyType: "UNKNOWN"},
		{},
	}
	for _, props := range tests {
		assert.ErrorIs(t, u.UpdateFinanceState(props), ErrInvalidParameter)
	}
	assert.Equal(t, 12.5, u.Credits.Value)

	// a rejected top-up leaves the balance usable
	require.NoError(t, u.UpdateFinanceState(map[string]string{
		PropertyType:         PropertyTypeCredits,
		PropertyCreditsToAdd: "100",
	}))
	assert.Equal(t, 112.5, u.Credits.Value)
}

func TestFinanceUser_GetFinanceState(t *testing.T) {
	u := NewFinanceUser("u", "p")
	u.Credits.Value = 7.25
	u.AddInvoice(&Invoice{ID: "i1", UserID: "u", ProviderID: "p", StartTime: 1, EndTime: 2, Total: 3, State: InvoiceStateWaiting})

	credits, err := u.GetFinanceState(PropertyUserCredits)
	require.NoError(t, err)
	assert.Equal(t, "7.25", credits)

	invoices, err := u.GetFinanceState(PropertyAllUserInvoices)
	require.NoError(t, err)
	assert.Equal(t, "[{id:i1,userId:u,providerId:p,state:WAITING,startTime:1,endTime:2,total:3.000,items:[]}]", invoices)

	_, err = u.GetFinanceState("NOPE")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestUserCredits(t *testing.T) {
	c := &UserCredits{Value: 100}
	c.Deduct(10, 2)
	assert.Equal(t, 80.0, c.Value)
	assert.ErrorIs(t, c.Add(-1), ErrInvalidParameter)
	require.NoError(t, c.Add(20))
	assert.Equal(t, 100.0, c.Value)

	assert.ErrorIs(t, c.Add(math.NaN()), ErrInvalidParameter)
	assert.ErrorIs(t, c.Add(math.Inf(1)), ErrInvalidParameter)
	assert.Equal(t, 100.0, c.Value)

	c.Value = math.MaxFloat64
	assert.ErrorIs(t, c.Add(math.MaxFloat64), ErrInvalidParameter)
	assert.Equal(t, math.MaxFloat64, c.Value)
}

func TestParseOrderState(t *testing.T) {
	state, err := ParseOrderState("FULFILLED")
	require.NoError(t, err)
	assert.Equal(t, OrderStateFulfilled, state)

	_, err = ParseOrderState("sleeping")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestResourceItem_String(t *testing.T) {
	assert.Equal(t, "compute{vcpu:2,ram:1024}", NewComputeItem(2, 1024).String())
	assert.Equal(t, "volume{size:30}", NewVolumeItem(30).String())
}
