// Package models defines the finance domain types: users and their ledgers,
// invoices, prepaid credits, resource items and finance policies.
//
// # Overview
//
// A FinanceUser is identified by (ID, Provider). It keeps its invoices,
// credits and governance state across plan changes and unsubscription, so
// unpaid debts survive a move to another plan. Every field is guarded by the
// user lock:
//
//	user.Lock()
//	defer user.Unlock()
//	user.AddInvoice(invoice)
//
// # Finance Policies
//
// A FinancePolicy maps (resource item, order state) to a price per metering
// unit. Rules are written one per name:
//
//	compute-small-running: compute,fulfilled,2,4096,0.5/h
//	volume-10g:            volume,fulfilled,10,0.01/m
//
// Billing reads a PriceTable snapshot so a concurrent Update never changes
// prices in the middle of a computation.
//
// # Errors
//
// Sentinel errors (ErrNotFound, ErrInvalidParameter, ...) are shared by every
// package and always wrapped with %w.
package models
