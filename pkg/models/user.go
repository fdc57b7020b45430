package models

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Finance state property names
const (
	PropertyType         = "PROPERTY_TYPE"
	PropertyTypeInvoice  = "INVOICE"
	PropertyTypeCredits  = "CREDITS"
	PropertyCreditsToAdd = "CREDITS_TO_ADD"

	PropertyAllUserInvoices = "ALL_USER_INVOICES"
	PropertyUserCredits     = "USER_CREDITS"
)

// UserID identifies a user across identity providers
type UserID struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

func (u UserID) String() string {
	return u.ID + "@" + u.Provider
}

// UserState is the resource governance state of a user
type UserState string

const (
	UserStateDefault        UserState = "DEFAULT"
	UserStateWaitingForStop UserState = "WAITING_FOR_STOP"
	UserStateStopping       UserState = "STOPPING"
	UserStateStopped        UserState = "STOPPED"
	UserStateResuming       UserState = "RESUMING"
)

// Subscription records one period of membership in a plan
type Subscription struct {
	PlanName  string `json:"plan_name"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
}

// FinanceUser is the billing record of one user. All fields must only be
// read or written while holding the user lock; methods below assume the
// caller holds it.
type FinanceUser struct {
	mu sync.Mutex

	ID                     string            `json:"id"`
	Provider               string            `json:"provider"`
	Subscribed             bool              `json:"subscribed"`
	PlanName               string            `json:"plan_name,omitempty"`
	LastBillingTime        int64             `json:"last_billing_time"`
	Invoices               []*Invoice        `json:"invoices"`
	Credits                *UserCredits      `json:"credits"`
	State                  UserState         `json:"state"`
	WaitPeriodStart        int64             `json:"wait_period_start"`
	LastSubscriptionsDebts []string          `json:"last_subscriptions_debts"`
	Subscriptions          []Subscription    `json:"subscriptions"`
	Properties             map[string]string `json:"properties,omitempty"`
}

// NewFinanceUser creates an unsubscribed user with an empty ledger
func NewFinanceUser(id, provider string) *FinanceUser {
	return &FinanceUser{
		ID:       id,
		Provider: provider,
		State:    UserStateDefault,
		Credits: &UserCredits{
			UserID:     id,
			ProviderID: provider,
		},
		Invoices:               []*Invoice{},
		LastSubscriptionsDebts: []string{},
		Subscriptions:          []Subscription{},
		Properties:             map[string]string{},
	}
}

// Lock acquires the user lock
func (u *FinanceUser) Lock() { u.mu.Lock() }

// Unlock releases the user lock
func (u *FinanceUser) Unlock() { u.mu.Unlock() }

// Key returns the user identity
func (u *FinanceUser) Key() UserID {
	return UserID{ID: u.ID, Provider: u.Provider}
}

// Subscribe marks the user as a member of planName starting at now
func (u *FinanceUser) Subscribe(planName string, now int64) {
	u.Subscribed = true
	u.PlanName = planName
	u.LastBillingTime = now
	u.Subscriptions = append(u.Subscriptions, Subscription{PlanName: planName, StartTime: now})
}

// Unsubscribe ends the current subscription
func (u *FinanceUser) Unsubscribe(now int64) {
	u.Subscribed = false
	u.PlanName = ""
	if n := len(u.Subscriptions); n > 0 && u.Subscriptions[n-1].EndTime == 0 {
		u.Subscriptions[n-1].EndTime = now
	}
}

// AddInvoice appends a freshly generated invoice
func (u *FinanceUser) AddInvoice(invoice *Invoice) {
	u.Invoices = append(u.Invoices, invoice)
}

// AddInvoiceAsDebt appends a final invoice. Final invoices with a positive
// total are owed immediately and tracked as subscription debts.
func (u *FinanceUser) AddInvoiceAsDebt(invoice *Invoice) {
	if invoice.Total > 0 {
		invoice.State = InvoiceStateDefaulting
		u.LastSubscriptionsDebts = append(u.LastSubscriptionsDebts, invoice.ID)
	} else {
		invoice.State = InvoiceStatePaid
	}
	u.Invoices = append(u.Invoices, invoice)
}

// InvoicesArePaid reports whether every invoice is paid
func (u *FinanceUser) InvoicesArePaid() bool {
	for _, invoice := range u.Invoices {
		if invoice.State != InvoiceStatePaid {
			return false
		}
	}
	return true
}

// HasDefaultingInvoice reports whether any invoice is defaulting
func (u *FinanceUser) HasDefaultingInvoice() bool {
	for _, invoice := range u.Invoices {
		if invoice.State == InvoiceStateDefaulting {
			return true
		}
	}
	return false
}

// DebtsArePaid reports whether every final invoice from previous
// subscriptions has been settled
func (u *FinanceUser) DebtsArePaid() bool {
	for _, id := range u.LastSubscriptionsDebts {
		if invoice := u.invoice(id); invoice != nil && invoice.State == InvoiceStateDefaulting {
			return false
		}
	}
	return true
}

func (u *FinanceUser) invoice(id string) *Invoice {
	for _, invoice := range u.Invoices {
		if invoice.ID == id {
			return invoice
		}
	}
	return nil
}

// UpdateFinanceState applies an externally reported change. Either every
// change is applied or none is.
func (u *FinanceUser) UpdateFinanceState(properties map[string]string) error {
	propertyType, ok := properties[PropertyType]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrInvalidParameter, PropertyType)
	}

	switch propertyType {
	case PropertyTypeInvoice:
		return u.updateInvoices(properties)
	case PropertyTypeCredits:
		return u.addCredits(properties)
	default:
		return fmt.Errorf("%w: unknown property type %q", ErrInvalidParameter, propertyType)
	}
}

func (u *FinanceUser) updateInvoices(properties map[string]string) error {
	type change struct {
		invoice *Invoice
		state   InvoiceState
	}

	changes := make([]change, 0, len(properties))
	for id, value := range properties {
		if id == PropertyType {
			continue
		}

		invoice := u.invoice(id)
		if invoice == nil {
			return fmt.Errorf("%w: invoice %s of user %s", ErrNotFound, id, u.Key())
		}
		state, err := ParseInvoiceState(value)
		if err != nil {
			return err
		}
		if !canTransition(invoice.State, state) {
			return fmt.Errorf("%w: invoice %s cannot change from %s to %s",
				ErrInvalidParameter, id, invoice.State, state)
		}
		changes = append(changes, change{invoice: invoice, state: state})
	}

	for _, c := range changes {
		if err := c.invoice.SetState(c.state); err != nil {
			return err
		}
		if c.state == InvoiceStatePaid {
			u.removeDebt(c.invoice.ID)
		}
	}
	return nil
}

func canTransition(from, to InvoiceState) bool {
	candidate := Invoice{State: from}
	return candidate.SetState(to) == nil
}

func (u *FinanceUser) removeDebt(id string) {
	debts := u.LastSubscriptionsDebts[:0]
	for _, debt := range u.LastSubscriptionsDebts {
		if debt != id {
			debts = append(debts, debt)
		}
	}
	u.LastSubscriptionsDebts = debts
}

func (u *FinanceUser) addCredits(properties map[string]string) error {
	raw, ok := properties[PropertyCreditsToAdd]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrInvalidParameter, PropertyCreditsToAdd)
	}

	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid credits value %q", ErrInvalidParameter, raw)
	}

	if u.Credits == nil {
		u.Credits = &UserCredits{UserID: u.ID, ProviderID: u.Provider}
	}
	return u.Credits.Add(amount)
}

// GetFinanceState renders one finance property
func (u *FinanceUser) GetFinanceState(property string) (string, error) {
	switch property {
	case PropertyAllUserInvoices:
		rendered := make([]string, 0, len(u.Invoices))
		for _, invoice := range u.Invoices {
			rendered = append(rendered, invoice.String())
		}
		return "[" + strings.Join(rendered, ",") + "]", nil
	case PropertyUserCredits:
		if u.Credits == nil {
			return "0", nil
		}
		return strconv.FormatFloat(u.Credits.Value, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: unknown finance property %q", ErrInvalidParameter, property)
	}
}
