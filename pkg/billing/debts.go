package billing

import (
	"context"

	"github.com/platinummonkey/finance/pkg/models"
)

// DebtsChecker reports whether users settled the final invoices of earlier
// subscriptions
type DebtsChecker struct {
	users Users
}

// NewDebtsChecker creates a debts checker
func NewDebtsChecker(users Users) *DebtsChecker {
	return &DebtsChecker{users: users}
}

// HasPaid looks the user up and reports whether none of its subscription
// debts is still defaulting
func (c *DebtsChecker) HasPaid(ctx context.Context, id, provider string) (bool, error) {
	user, err := c.users.GetUserByID(id, provider)
	if err != nil {
		return false, err
	}

	user.Lock()
	defer user.Unlock()
	return c.Check(user), nil
}

// Check is HasPaid for a user whose lock the caller already holds
func (c *DebtsChecker) Check(user *models.FinanceUser) bool {
	return user.DebtsArePaid()
}
