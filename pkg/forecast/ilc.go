package forecast

import (
	"time"

	"github.com/homewatt/homewatt/pkg/types"
)

// UpdateCurve folds yesterday's observed errors into an ILC correction
// curve. For each binned record carrying the signal, the slot's correction
// moves toward (actual - baseline[slot]) at rate alpha and is clamped to
// [-cmax, cmax]. Records are processed in the order given, so when a slot
// appears more than once the last record wins the final say (each earlier
// one still decays the previous value). The updated curve is re-smoothed
// before being returned so persisted corrections stay spike-free.
func UpdateCurve(yesterday []types.BinnedRecord, signal types.Signal, baseline, existing types.Curve, alpha, cmax float64) types.Curve {
	curve := existing
	for _, rec := range yesterday {
		if rec.BinStart.IsZero() {
			// Malformed bin timestamps are skipped rather than aborting the
			// whole day's update.
			continue
		}
		v := rec.Value(signal)
		if v == nil {
			continue
		}
		i := SlotIndex(rec.BinStart)
		err := *v - baseline[i]
		next := (1-alpha)*curve[i] + alpha*err
		curve[i] = clamp(next, -cmax, cmax)
	}
	return Smooth(curve)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ShouldUpdate reports whether the daily ILC update should run: at most
// once per local calendar day, keyed by the stored date marker. An empty
// marker (fresh install, or cleared metadata) always allows an update.
func ShouldUpdate(lastUpdate string, today time.Time) bool {
	return lastUpdate != today.Format(types.DateLayout)
}
