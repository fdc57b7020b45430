// Package records converts accounting usage records into billable items and
// per-period state histories.
package records

import (
	"errors"
	"fmt"
	"sort"

	"github.com/platinummonkey/finance/pkg/models"
)

var (
	// ErrInvalidHistory is returned when a record has no state changes at all
	ErrInvalidHistory = errors.New("record has no state history")
)

// Spec is the resource shape reported by the accounting service
type Spec struct {
	VCPU int `json:"vcpu,omitempty"`
	RAM  int `json:"ram,omitempty"`
	Size int `json:"size,omitempty"`
}

// Record is one order's usage as reported by the accounting service.
// StateHistory maps a state change time (epoch ms) to the state entered.
type Record struct {
	OrderID      string                      `json:"order_id"`
	ResourceType string                      `json:"resource_type"`
	Spec         Spec                        `json:"spec"`
	StateHistory map[int64]models.OrderState `json:"state_history"`
}

// Entry is one point of a windowed state history
type Entry struct {
	Timestamp int64
	State     models.OrderState
}

// ItemFromRecord returns the billable item described by a record
func ItemFromRecord(record Record) (models.ResourceItem, error) {
	switch models.ResourceType(record.ResourceType) {
	case models.ResourceTypeCompute:
		return models.NewComputeItem(record.Spec.VCPU, record.Spec.RAM), nil
	case models.ResourceTypeVolume:
		return models.NewVolumeItem(record.Spec.Size), nil
	default:
		return models.ResourceItem{}, fmt.Errorf("%w: unknown resource item type %q",
			models.ErrInvalidParameter, record.ResourceType)
	}
}

// StateHistoryOnPeriod returns the state changes of record within [start, end)
// sorted by time, bracketed so consecutive entries can be billed pairwise.
//
// The first entry holds the state the order was in when the period began; if
// the order was created inside the period it starts at its first change. A
// final entry at end carries the last state unless the order was closed
// inside the period, in which case the remaining time is not billable.
func StateHistoryOnPeriod(record Record, start, end int64) ([]Entry, error) {
	history := record.StateHistory
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: order %s: %w", models.ErrInvalidParameter, record.OrderID, ErrInvalidHistory)
	}

	timestamps := make([]int64, 0, len(history))
	for ts := range history {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	lastBeforeEnd, ok := highestBefore(timestamps, end)
	if !ok {
		// the order did not exist yet during this period
		return []Entry{}, nil
	}

	lower, ok := highestBefore(timestamps, start)
	if !ok {
		lower = timestamps[0]
	}

	window := map[int64]models.OrderState{
		max(start, lower): history[lower],
	}
	if endState := history[lastBeforeEnd]; endState != models.OrderStateClosed {
		window[end] = endState
	}
	for _, ts := range timestamps {
		if ts >= start && ts < end {
			window[ts] = history[ts]
		}
	}

	entries := make([]Entry, 0, len(window))
	for ts, state := range window {
		entries = append(entries, Entry{Timestamp: ts, State: state})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}

func highestBefore(sorted []int64, limit int64) (int64, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= limit })
	if i == 0 {
		return 0, false
	}
	return sorted[i-1], true
}
