// Package storage provides pluggable persistence backends for finance users
// and plan definitions.
//
// # Overview
//
// The finance service keeps all working state in memory and writes through to
// a Store after every mutation. On start (and on reload) the store is read
// back in full with LoadPlans and LoadUsers.
//
//	type Store interface {
//		UserStore  // SaveUser, RemoveUser, LoadUsers
//		PlanStore  // SavePlan, RemovePlan, LoadPlans
//		HealthChecker
//		Close() error
//	}
//
// SaveUser serializes the whole user, so callers must hold the user lock
// while saving.
//
// # Backend Implementations
//
// FileSystemStore: one JSON document per user and per plan. Best for
// development and single-node deployments.
//
//	store, err := storage.NewFileSystemStore("/var/lib/finance")
//
// SQLStore: users as JSON documents and plans as rows, over database/sql.
// The postgres and sqlite subpackages open the connection and apply the
// schema:
//
//	store, err := postgres.NewStore(ctx, config)
//	store, err := sqlite.NewStore(ctx, "/var/lib/finance/finance.db")
//
// MemoryStore: volatile, for tests and dry runs.
//
// # Invoice Archive
//
// InvoiceArchive receives every generated invoice. The archive subpackage
// implements it on S3 compatible object storage.
//
// # Testing
//
// The storetest package runs the same behavioural suite against every
// backend.
package storage
