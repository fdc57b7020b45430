// Package store holds the in-memory working set of the finance service: the
// registered plans and the users partitioned by the plan they subscribe to.
//
// # Overview
//
// Every mutation is applied in memory first and then written through to a
// storage.Store. A failed write is reported as models.ErrInternal while the
// in-memory change is kept, so the next successful save of the same user
// catches the backend up.
//
// # Partitions
//
// A user lives in exactly one partition at a time: the partition of its
// current plan or the inactive partition. Partitions are synclist.Lists, so
// plan workers can walk them with a cursor while users register and leave.
//
//	users := store.NewUsersHolder(backend, timeutil.SystemClock{}, log)
//	plans := store.NewPlansHolder(backend, users, log)
//
// # Locking
//
// The UsersHolder mutex is always taken before a user lock. A worker that
// holds a user lock may save the user with SaveUser, which does not touch the
// holder mutex, but must not register, unregister or look up users.
//
// Plans carry their own lock. RemovePlan and UpdatePlan hold it while the
// plan workers are stopped.
package store
