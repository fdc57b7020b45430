package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` for fire-and-forget work.
//
// Example:
//
//	async.SafeGo(ctx, log, 30*time.Second, "archive invoice", func(ctx context.Context) error {
//	    return archive.ArchiveInvoice(ctx, invoice)
//	})
func SafeGo(parentCtx context.Context, log *logrus.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	go func() {
		// detached from the caller's cancellation, bounded by timeout
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer Recover(log, taskName)

		if err := fn(ctx); err != nil {
			log.WithField("task", taskName).Errorf("Background task failed: %v", err)
		}
	}()
}

// Recover logs a panic with its stack trace instead of crashing the process.
// It must be deferred directly.
//
//	defer async.Recover(log, "billing sweep")
func Recover(log *logrus.Logger, taskName string) {
	if r := recover(); r != nil {
		if log == nil {
			log = logrus.StandardLogger()
		}
		log.WithFields(logrus.Fields{
			"task":  taskName,
			"stack": string(debug.Stack()),
		}).Errorf("Recovered from panic: %v", r)
	}
}

// Guard runs fn and converts a panic into a logged error, so a loop calling
// it keeps going. It reports whether fn completed without panicking.
func Guard(log *logrus.Logger, taskName string, fn func()) (ok bool) {
	defer Recover(log, taskName)
	fn()
	return true
}
