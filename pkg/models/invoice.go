package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// InvoiceState is the payment state of an invoice
type InvoiceState string

const (
	InvoiceStateWaiting    InvoiceState = "WAITING"
	InvoiceStatePaid       InvoiceState = "PAID"
	InvoiceStateDefaulting InvoiceState = "DEFAULTING"
)

// ParseInvoiceState parses an invoice state, ignoring case
func ParseInvoiceState(s string) (InvoiceState, error) {
	switch state := InvoiceState(strings.ToUpper(strings.TrimSpace(s))); state {
	case InvoiceStateWaiting, InvoiceStatePaid, InvoiceStateDefaulting:
		return state, nil
	default:
		return "", fmt.Errorf("%w: unknown invoice state %q", ErrInvalidParameter, s)
	}
}

// InvoiceItem is one billed (order, item, state) line
type InvoiceItem struct {
	OrderID string       `json:"order_id"`
	Item    ResourceItem `json:"item"`
	State   OrderState   `json:"state"`
	Value   float64      `json:"value"`
}

// Invoice is a postpaid billing statement for one user over [StartTime, EndTime)
type Invoice struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	ProviderID string        `json:"provider_id"`
	StartTime  int64         `json:"start_time"`
	EndTime    int64         `json:"end_time"`
	Items      []InvoiceItem `json:"items"`
	Total      float64       `json:"total"`
	State      InvoiceState  `json:"state"`
}

// SetState moves the invoice to a new payment state. Invoices can be paid
// while waiting or defaulting, and can only default while waiting.
func (i *Invoice) SetState(state InvoiceState) error {
	switch state {
	case InvoiceStatePaid:
		if i.State == InvoiceStateWaiting || i.State == InvoiceStateDefaulting {
			i.State = InvoiceStatePaid
			return nil
		}
	case InvoiceStateDefaulting:
		if i.State == InvoiceStateWaiting {
			i.State = InvoiceStateDefaulting
			return nil
		}
	}

	return fmt.Errorf("%w: invoice %s cannot change from %s to %s",
		ErrInvalidParameter, i.ID, i.State, state)
}

// String renders the invoice in a compact, deterministic form
func (i *Invoice) String() string {
	items := make([]string, 0, len(i.Items))
	for _, item := range i.Items {
		items = append(items, fmt.Sprintf("{order:%s,item:%s,state:%s,value:%.3f}",
			item.OrderID, item.Item, item.State, item.Value))
	}
	sort.Strings(items)

	return fmt.Sprintf("{id:%s,userId:%s,providerId:%s,state:%s,startTime:%d,endTime:%d,total:%.3f,items:[%s]}",
		i.ID, i.UserID, i.ProviderID, i.State, i.StartTime, i.EndTime, i.Total, strings.Join(items, ","))
}

// UserCredits is the prepaid balance of a user
type UserCredits struct {
	UserID     string  `json:"user_id"`
	ProviderID string  `json:"provider_id"`
	Value      float64 `json:"value"`
}

// Deduct charges valuePerUnit for each of the given units
func (c *UserCredits) Deduct(valuePerUnit float64, units int64) {
	c.Value -= valuePerUnit * float64(units)
}

// Add tops up the balance. Negative or non-finite amounts, and amounts that
// would overflow the balance, are rejected.
func (c *UserCredits) Add(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: invalid credits amount %v", ErrInvalidParameter, amount)
	}
	if math.IsInf(c.Value+amount, 0) {
		return fmt.Errorf("%w: credits balance would overflow", ErrInvalidParameter)
	}
	c.Value += amount
	return nil
}
