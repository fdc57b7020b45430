package synclist

import (
	"container/list"
	"errors"
	"sync"
)

var (
	// ErrModified is returned by GetNext when the list changed since the
	// cursor was created or last advanced
	ErrModified = errors.New("list modified during iteration")

	// ErrUnknownConsumer is returned for cursor ids that were never issued
	// or were already released
	ErrUnknownConsumer = errors.New("unknown list consumer")
)

type cursor struct {
	next    *list.Element
	version uint64
}

// List is an ordered, duplicate-free collection supporting concurrent
// independent iteration. The zero value is not usable; call New.
type List[T comparable] struct {
	mu      sync.Mutex
	items   *list.List
	index   map[T]*list.Element
	version uint64
	nextID  int
	cursors map[int]*cursor
}

// New creates an empty list
func New[T comparable]() *List[T] {
	return &List[T]{
		items:   list.New(),
		index:   make(map[T]*list.Element),
		cursors: make(map[int]*cursor),
	}
}

// StartIterating registers a new cursor positioned before the first element
func (l *List[T]) StartIterating() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.cursors[id] = &cursor{
		next:    l.items.Front(),
		version: l.version,
	}
	return id
}

// GetNext advances the cursor and returns the next item. ok is false once
// the end of the list is reached.
func (l *List[T]) GetNext(id int) (item T, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.cursors[id]
	if !exists {
		return item, false, ErrUnknownConsumer
	}

	if c.version != l.version {
		delete(l.cursors, id)
		return item, false, ErrModified
	}

	if c.next == nil {
		return item, false, nil
	}

	item = c.next.Value.(T)
	c.next = c.next.Next()
	return item, true, nil
}

// StopIterating releases a cursor. Releasing an unknown id is a no-op.
func (l *List[T]) StopIterating(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cursors, id)
}

// AddItem appends item to the end of the list. Returns false if the item
// is already present, in which case the list is left untouched.
func (l *List[T]) AddItem(item T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[item]; exists {
		return false
	}

	l.index[item] = l.items.PushBack(item)
	l.version++
	return true
}

// RemoveItem removes item from the list. Returns false if it was not present.
func (l *List[T]) RemoveItem(item T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, exists := l.index[item]
	if !exists {
		return false
	}

	l.items.Remove(elem)
	delete(l.index, item)
	l.version++
	return true
}

// Contains reports whether item is in the list
func (l *List[T]) Contains(item T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.index[item]
	return exists
}

// IsEmpty reports whether the list has no items
func (l *List[T]) IsEmpty() bool {
	return l.Len() == 0
}

// Len returns the number of items
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items.Len()
}

// Snapshot returns a copy of the current items in order
func (l *List[T]) Snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]T, 0, l.items.Len())
	for e := l.items.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value.(T))
	}
	return result
}

// consumers returns the number of open cursors
func (l *List[T]) consumers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cursors)
}
