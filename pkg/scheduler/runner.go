package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/finance/pkg/async"
	"github.com/platinummonkey/finance/pkg/lease"
	"github.com/platinummonkey/finance/pkg/observability"
)

// Worker names, used in lease names, metrics and logs
const (
	WorkerBilling    = "billing"
	WorkerGovernance = "governance"
)

// SweepFunc performs one pass of a worker. ctx is canceled when the runner
// is stopped.
type SweepFunc func(ctx context.Context) error

// RunnerOption configures a StoppableRunner
type RunnerOption func(*StoppableRunner)

// WithLease requires the runner to hold a lease while sweeping
func WithLease(l lease.Lease) RunnerOption {
	return func(r *StoppableRunner) { r.lease = l }
}

// WithRunnerMetrics records sweep and lease metrics
func WithRunnerMetrics(metrics *observability.Metrics) RunnerOption {
	return func(r *StoppableRunner) { r.metrics = metrics }
}

// WithRunnerLogger sets the logger
func WithRunnerLogger(log *logrus.Logger) RunnerOption {
	return func(r *StoppableRunner) { r.log = log }
}

// StoppableRunner sleeps for an interval, then sweeps, until stopped
type StoppableRunner struct {
	plan     string
	worker   string
	interval time.Duration
	sweep    SweepFunc
	lease    lease.Lease
	metrics  *observability.Metrics
	log      *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}
}

// NewStoppableRunner creates a stopped runner
func NewStoppableRunner(plan, worker string, interval time.Duration, sweep SweepFunc, opts ...RunnerOption) *StoppableRunner {
	r := &StoppableRunner{
		plan:     plan,
		worker:   worker,
		interval: interval,
		sweep:    sweep,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logrus.New()
	}

	// a runner that never started is ready and inactive
	r.done = make(chan struct{})
	close(r.done)
	r.ready = make(chan struct{})
	close(r.ready)
	return r
}

// Name returns the plan/worker name of the runner
func (r *StoppableRunner) Name() string {
	return r.plan + "/" + r.worker
}

// Start launches the loop. Starting a running runner does nothing.
func (r *StoppableRunner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.ready = make(chan struct{})

	go r.loop(ctx, r.ready, r.done)
}

// Ready is closed once the loop has begun its first cycle
func (r *StoppableRunner) Ready() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Stop asks the loop to exit and blocks until it has
func (r *StoppableRunner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsActive reports whether the loop is running
func (r *StoppableRunner) IsActive() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (r *StoppableRunner) loop(ctx context.Context, ready, done chan struct{}) {
	defer close(done)

	log := r.log.WithFields(logrus.Fields{"plan": r.plan, "worker": r.worker})
	log.Debug("Runner started")
	close(ready)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Runner stopped")
			return
		case <-timer.C:
		}

		async.Guard(r.log, r.Name(), func() { r.runOnce(ctx) })
		timer.Reset(r.interval)
	}
}

func (r *StoppableRunner) runOnce(ctx context.Context) {
	if r.lease != nil {
		acquired, err := r.lease.Acquire(ctx, r.Name())
		r.metrics.RecordLease(r.worker, acquired, err)
		if err != nil {
			r.log.WithField("lease", r.Name()).Warnf("Failed to acquire lease: %v", err)
			return
		}
		if !acquired {
			r.log.WithField("lease", r.Name()).Debug("Lease held by another replica, skipping sweep")
			return
		}
		defer func() {
			if err := r.lease.Release(context.WithoutCancel(ctx), r.Name()); err != nil {
				r.log.WithField("lease", r.Name()).Warnf("Failed to release lease: %v", err)
			}
		}()
	}

	ctx, span := observability.StartSpan(ctx, "finance.sweep",
		attribute.String("finance.plan", r.plan),
		attribute.String("finance.worker", r.worker))

	start := time.Now()
	err := r.sweep(ctx)
	observability.EndSpan(span, err)
	r.metrics.RecordSweep(r.plan, r.worker, time.Since(start), err)
	if err != nil {
		r.log.WithFields(logrus.Fields{"plan": r.plan, "worker": r.worker}).Errorf("Sweep failed: %v", err)
	}
}
