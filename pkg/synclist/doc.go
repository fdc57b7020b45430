// Package synclist provides an ordered collection that many independent
// consumers can walk concurrently while producers add and remove items.
//
// # Overview
//
// Background sweeps scan the users of a plan while API requests register,
// move and remove users at the same time. Instead of locking the whole
// collection for the duration of a sweep, every consumer gets its own
// versioned cursor. Any structural change bumps the list version and
// invalidates all outstanding cursors; the next GetNext on an invalidated
// cursor reports ErrModified once and discards the cursor.
//
// # Cursor API
//
//	id := list.StartIterating()
//	defer list.StopIterating(id)
//
//	for {
//		user, ok, err := list.GetNext(id)
//		if err != nil {
//			return err // ErrModified: start a new pass if needed
//		}
//		if !ok {
//			break
//		}
//		process(user)
//	}
//
// # Helpers
//
// Select and ProcessAll wrap the cursor protocol and transparently retry the
// whole pass when the list is modified underneath them. Any other error is
// returned after the cursor is released.
//
//	user, err := synclist.Select(users, func(u *models.FinanceUser) (bool, error) {
//		return u.ID == id, nil
//	}, models.ErrNotFound)
package synclist
