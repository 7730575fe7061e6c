package forecast

import (
	"time"

	"github.com/homewatt/homewatt/pkg/types"
)

const (
	// SlotsPerDay aliases the shared constant so callers inside this package
	// don't reach into types for loop bounds.
	SlotsPerDay = types.SlotsPerDay

	// DefaultWindowDays is the trailing-history window for the global
	// baseline.
	DefaultWindowDays = 14

	// WeekdayWindowDays is the trailing-history window for per-weekday
	// baselines. Each weekday appears only ~4 times in 28 days, so the
	// stratified window is doubled to keep sample counts usable.
	WeekdayWindowDays = 28
)

// SlotIndex maps a timestamp to its time-of-day slot, 0..95. Only the
// wall-clock hour and minute matter; the date and location of t are the
// caller's concern.
func SlotIndex(t time.Time) int {
	return t.Hour()*4 + t.Minute()/15
}
