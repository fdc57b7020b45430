// Package timeutil converts metered durations into billable time units.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for negative periods and unsupported units
var ErrInvalidPeriod = errors.New("invalid time period")

// TimeUnit is the metering unit of a price
type TimeUnit string

const (
	Milliseconds TimeUnit = "ms"
	Seconds      TimeUnit = "s"
	Minutes      TimeUnit = "m"
	Hours        TimeUnit = "h"
)

var unitMillis = map[TimeUnit]int64{
	Milliseconds: 1,
	Seconds:      1000,
	Minutes:      60 * 1000,
	Hours:        60 * 60 * 1000,
}

// ParseTimeUnit parses the short unit notation used in price rules
func ParseTimeUnit(s string) (TimeUnit, error) {
	unit := TimeUnit(s)
	if _, ok := unitMillis[unit]; !ok {
		return "", fmt.Errorf("%w: unsupported time unit %q", ErrInvalidPeriod, s)
	}
	return unit, nil
}

// Millis returns the length of one unit in milliseconds
func (u TimeUnit) Millis() (int64, error) {
	ms, ok := unitMillis[u]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported time unit %q", ErrInvalidPeriod, string(u))
	}
	return ms, nil
}

// RoundUpTimePeriod converts a period in milliseconds to the given unit,
// rounding partial units up.
func RoundUpTimePeriod(periodMillis int64, unit TimeUnit) (int64, error) {
	if periodMillis < 0 {
		return 0, fmt.Errorf("%w: negative period %d", ErrInvalidPeriod, periodMillis)
	}

	factor, err := unit.Millis()
	if err != nil {
		return 0, err
	}

	units := periodMillis / factor
	if periodMillis%factor != 0 {
		units++
	}
	return units, nil
}

// Clock supplies the current time. Tests substitute a fixed clock.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock
type SystemClock struct{}

// NowMillis returns the current Unix time in milliseconds
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FixedClock is a manually advanced clock
type FixedClock struct {
	Millis int64
}

// NowMillis returns the clock's current value
func (c *FixedClock) NowMillis() int64 {
	return c.Millis
}

// Advance moves the clock forward
func (c *FixedClock) Advance(d time.Duration) {
	c.Millis += d.Milliseconds()
}
