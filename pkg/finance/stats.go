package finance

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/observability"
	"github.com/platinummonkey/finance/pkg/store"
)

// DBStatser exposes connection pool statistics; *sql.DB implements it
type DBStatser interface {
	Stats() sql.DBStats
}

// StatsCollector publishes plan and user gauges on a cron schedule
type StatsCollector struct {
	plans   *store.PlansHolder
	metrics *observability.Metrics
	db      DBStatser
	log     *logrus.Logger
	cron    *cron.Cron
}

// NewStatsCollector creates a collector. db may be nil.
func NewStatsCollector(plans *store.PlansHolder, metrics *observability.Metrics, db DBStatser, log *logrus.Logger) *StatsCollector {
	if log == nil {
		log = logrus.New()
	}
	cronLogger := cron.PrintfLogger(log)
	return &StatsCollector{
		plans:   plans,
		metrics: metrics,
		db:      db,
		log:     log,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start schedules the collection and runs it once right away
func (c *StatsCollector) Start(schedule string) error {
	if _, err := c.cron.AddFunc(schedule, c.Collect); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	c.Collect()
	c.cron.Start()

	c.log.WithField("schedule", schedule).Info("Scheduled stats collection")
	return nil
}

// Stop unschedules the collection and returns a context done once a running
// collection finished
func (c *StatsCollector) Stop() context.Context {
	return c.cron.Stop()
}

// Collect publishes the current gauges
func (c *StatsCollector) Collect() {
	if c.metrics == nil {
		return
	}

	registered := c.plans.ListPlans()
	users := c.plans.Users()
	states := make(map[models.UserState]int)

	c.metrics.UsersByPlan.Reset()
	for _, plan := range registered {
		partition := users.GetRegisteredUsersByPlan(plan.Name()).Snapshot()
		c.metrics.UsersByPlan.WithLabelValues(plan.Name()).Set(float64(len(partition)))

		for _, user := range partition {
			user.Lock()
			states[user.State]++
			user.Unlock()
		}
	}

	c.metrics.UsersByState.Reset()
	for state, count := range states {
		c.metrics.UsersByState.WithLabelValues(string(state)).Set(float64(count))
	}

	c.metrics.PlansTotal.Set(float64(len(registered)))
	c.metrics.InactiveUsersTotal.Set(float64(users.InactiveUsers().Len()))

	if c.db != nil {
		c.metrics.UpdateDBStats(c.db.Stats())
	}
	c.log.Debug("Collected stats")
}
