// Package scheduler runs the background workers of a finance plan.
//
// # Overview
//
// Every plan owns two workers, each a StoppableRunner driving one sweep
// function at a fixed interval:
//
//   - billing: PostpaidPaymentRunner or PrepaidPaymentRunner
//   - governance: StopServiceRunner
//
// A sweep walks the plan's user partition with a cursor, locking one user at
// a time. A partition modified during the walk ends the sweep early; the next
// cycle starts over. Errors for a single user are logged and the sweep moves
// on to the next user.
//
// # Lifecycle
//
//	runner := scheduler.NewStoppableRunner("gold", scheduler.WorkerBilling, time.Minute, payments.Sweep)
//	runner.Start()
//	<-runner.Ready()
//	...
//	runner.Stop() // blocks until the loop exited
//
// Stop interrupts the sleep and lets the sweep in progress finish the current
// user.
//
// # Replicas
//
// WithLease makes a runner acquire a named lease before every sweep, so
// replicas sharing a store never sweep the same plan concurrently.
package scheduler
