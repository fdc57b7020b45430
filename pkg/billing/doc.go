// Package billing turns usage records into charges for finance users.
//
// # Overview
//
// Both plan kinds walk the state history of every usage record pairwise
// inside the billing window [start, end). For each pair of consecutive
// timestamps the state at the first one is priced with the plan policy:
//
//	price := table.Price(item, state)
//	units := timeutil.RoundUpTimePeriod(t[i+1]-t[i], price.TimeUnit)
//	value := price.Value * units
//
// Partial units are billed as a full unit and zero elapsed time bills zero.
//
// # Postpaid
//
// InvoiceManager accumulates the charges into an Invoice and appends it to
// the user as WAITING. A final invoice, generated when a user leaves a
// postpaid plan, is appended as DEFAULTING and recorded as a subscription
// debt, since there is no later billing cycle to settle it in.
//
// # Prepaid
//
// CreditsManager deducts the charges from the user's credits. A user has paid
// while the balance is not negative.
//
// # Debts
//
// DebtsChecker reports whether a user settled the final invoices of previous
// subscriptions, independently of the current plan.
//
// # Locking
//
// Methods that take a *models.FinanceUser expect the caller to hold the user
// lock. Each computation reads one immutable snapshot of the policy.
package billing
