package billing

import (
	"github.com/google/uuid"

	"github.com/platinummonkey/finance/pkg/models"
)

// InvoiceBuilder accumulates invoice items for one user and period
type InvoiceBuilder struct {
	userID     string
	providerID string
	start      int64
	end        int64
	items      []models.InvoiceItem
	total      float64
}

// NewInvoiceBuilder starts an empty invoice
func NewInvoiceBuilder(userID, providerID string, start, end int64) *InvoiceBuilder {
	return &InvoiceBuilder{
		userID:     userID,
		providerID: providerID,
		start:      start,
		end:        end,
		items:      []models.InvoiceItem{},
	}
}

// AddItem adds a line charging valuePerUnit for each unit used
func (b *InvoiceBuilder) AddItem(orderID string, item models.ResourceItem, state models.OrderState, valuePerUnit float64, units int64) {
	value := valuePerUnit * float64(units)
	b.items = append(b.items, models.InvoiceItem{
		OrderID: orderID,
		Item:    item,
		State:   state,
		Value:   value,
	})
	b.total += value
}

// Build returns the invoice in the WAITING state with a fresh id
func (b *InvoiceBuilder) Build() *models.Invoice {
	items := make([]models.InvoiceItem, len(b.items))
	copy(items, b.items)

	return &models.Invoice{
		ID:         uuid.NewString(),
		UserID:     b.userID,
		ProviderID: b.providerID,
		StartTime:  b.start,
		EndTime:    b.end,
		Items:      items,
		Total:      b.total,
		State:      models.InvoiceStateWaiting,
	}
}
