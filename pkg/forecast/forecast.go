// Package forecast holds the pure load-forecasting math: time-of-day
// baselines over binned history, 3-tap smoothing, ILC error-correction
// curves, and the horizon assembler. Nothing here touches storage, the
// network, or the clock; callers pass history, persisted curves, and "now"
// in, and get timestamps and per-signal watt series out.
package forecast

import (
	"time"

	"github.com/homewatt/homewatt/pkg/types"
)

// Build assembles the forecast for the next horizonHours at 15-minute
// resolution. The first timestamp is one bin after the latest record in
// history (one bin after now when history is empty), so the forecast
// always starts in the future relative to what has been observed.
//
// Per-signal values depend on mode:
//
//	ilc_yesterday   smoothed 14-day baseline + persisted ILC correction
//	off             smoothed 14-day baseline only
//	weekday_profile smoothed per-weekday 28-day baseline, no ILC term
//
// Every value is floored at 0; a learned negative correction can cancel
// the baseline but never predict negative household load.
func Build(history []types.BinnedRecord, horizonHours int, curves map[types.Signal]types.Curve, mode types.LearningMode, now time.Time, signals []types.Signal) ([]time.Time, map[types.Signal][]float64) {
	steps := horizonHours * 4
	if steps <= 0 {
		return nil, map[types.Signal][]float64{}
	}

	// Anchor on the latest observed bin so the series stays bin-aligned even
	// when polling lags; now only seeds the empty-history cold start.
	var start time.Time
	for _, rec := range history {
		if rec.BinStart.After(start) {
			start = rec.BinStart
		}
	}
	if start.IsZero() {
		start = now
	}
	start = start.Add(types.BinDuration)

	times := make([]time.Time, steps)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * types.BinDuration)
	}

	// Weekday mode needs one baseline per day of week; the other modes share
	// a single global baseline per signal. Baselines are computed once per
	// signal, then indexed per step.
	values := make(map[types.Signal][]float64, len(signals))
	for _, sig := range signals {
		var global types.Curve
		var byWeekday [7]types.Curve
		if mode == types.LearningModeWeekdayProfile {
			for d := time.Sunday; d <= time.Saturday; d++ {
				byWeekday[d] = Smooth(ComputeBaselineWeekday(history, sig, d, WeekdayWindowDays))
			}
		} else {
			global = Smooth(ComputeBaseline(history, sig, DefaultWindowDays))
		}
		correction := curves[sig]

		series := make([]float64, steps)
		for i, t := range times {
			slot := SlotIndex(t)
			var v float64
			switch mode {
			case types.LearningModeILCYesterday:
				v = global[slot] + correction[slot]
			case types.LearningModeOff:
				v = global[slot]
			case types.LearningModeWeekdayProfile:
				v = byWeekday[t.Weekday()][slot]
			}
			if v < 0 {
				v = 0
			}
			series[i] = v
		}
		values[sig] = series
	}
	return times, values
}
