// Package async provides panic-safe helpers for background work.
//
// # Overview
//
// SafeGo runs fire-and-forget tasks, such as archiving an invoice, in their
// own goroutine with a timeout and panic recovery:
//
//	async.SafeGo(ctx, log, 30*time.Second, "archive invoice", func(ctx context.Context) error {
//		return archive.ArchiveInvoice(ctx, invoice)
//	})
//
// Guard runs one iteration of a long-lived loop so that a panic in a single
// sweep is logged and the loop continues:
//
//	for !stopped() {
//		async.Guard(log, "billing sweep", sweep)
//	}
//
// # Related Packages
//
//   - pkg/scheduler: Guards every sweep
//   - pkg/billing: Archives invoices with SafeGo
package async
