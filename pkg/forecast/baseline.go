package forecast

import (
	"sort"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
	"gonum.org/v1/gonum/stat"
)

// ComputeBaseline builds the expected time-of-day load profile for signal
// from binned history: the mean of observed values per slot over the
// trailing windowDays distinct calendar dates. Records missing the signal
// are skipped, slots with no observations stay 0, and empty history yields
// an all-zero curve rather than an error so a fresh install still serves a
// (flat) forecast.
func ComputeBaseline(history []types.BinnedRecord, signal types.Signal, windowDays int) types.Curve {
	return computeBaseline(history, signal, windowDays, nil)
}

// ComputeBaselineWeekday is ComputeBaseline restricted to records falling
// on the given weekday. Used by the weekday_profile learning mode, where
// each day of the week gets its own profile instead of a shared one.
func ComputeBaselineWeekday(history []types.BinnedRecord, signal types.Signal, weekday time.Weekday, windowDays int) types.Curve {
	return computeBaseline(history, signal, windowDays, func(t time.Time) bool {
		return t.Weekday() == weekday
	})
}

func computeBaseline(history []types.BinnedRecord, signal types.Signal, windowDays int, keep func(time.Time) bool) types.Curve {
	var curve types.Curve
	if len(history) == 0 || windowDays <= 0 {
		return curve
	}

	// The window is counted in distinct calendar dates present in the
	// history, not wall-clock days from now, so gaps in collection don't
	// silently shrink the sample.
	dateSet := make(map[string]struct{})
	for _, rec := range history {
		if rec.BinStart.IsZero() {
			continue
		}
		dateSet[rec.BinStart.Format(types.DateLayout)] = struct{}{}
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > windowDays {
		dates = dates[len(dates)-windowDays:]
	}
	inWindow := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		inWindow[d] = struct{}{}
	}

	var slots [SlotsPerDay][]float64
	for _, rec := range history {
		if rec.BinStart.IsZero() {
			continue
		}
		if _, ok := inWindow[rec.BinStart.Format(types.DateLayout)]; !ok {
			continue
		}
		if keep != nil && !keep(rec.BinStart) {
			continue
		}
		v := rec.Value(signal)
		if v == nil {
			continue
		}
		i := SlotIndex(rec.BinStart)
		slots[i] = append(slots[i], *v)
	}

	for i, vals := range slots {
		if len(vals) == 0 {
			continue
		}
		curve[i] = stat.Mean(vals, nil)
	}
	return curve
}
