/*
Package finance wires the plans and users holders into the engine served by
the finance service.

A Manager is the entry point of every inbound operation: registering,
unregistering, purging and moving users, updating and reading their finance
state, authorizing resource operations and managing plans. Operations run
concurrently; Reload stops the plan workers, reads the configuration again,
rebuilds plans and users from storage and restarts the workers.

	m := finance.NewManager(holder, plans.Dependencies{
		Accounting:   accounting,
		Orchestrator: orchestrator,
	}, cfg.Finance, loader)
	if err := m.Start(ctx); err != nil {
		return err
	}

A Watcher triggers Reload when the plan options file changes, and a
StatsCollector publishes plan and user gauges on a cron schedule.
*/
package finance
