package forecast

import (
	"testing"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	return loc
}

// binDay generates a full day of binned records with value v for signal.
func binDay(day time.Time, signal types.Signal, v float64) []types.BinnedRecord {
	recs := make([]types.BinnedRecord, 0, SlotsPerDay)
	for i := 0; i < SlotsPerDay; i++ {
		recs = append(recs, types.BinnedRecord{
			BinStart: day.Add(time.Duration(i) * types.BinDuration),
			Values:   map[types.Signal]*float64{signal: fp(v)},
		})
	}
	return recs
}

func TestSlotIndex(t *testing.T) {
	loc := mustLoc(t)
	tests := []struct {
		hour, min int
		expected  int
	}{
		{0, 0, 0},
		{0, 14, 0},
		{0, 15, 1},
		{8, 0, 32},
		{12, 30, 50},
		{23, 45, 95},
		{23, 59, 95},
	}
	for _, tt := range tests {
		ts := time.Date(2026, 8, 20, tt.hour, tt.min, 0, 0, loc)
		assert.Equal(t, tt.expected, SlotIndex(ts), "%02d:%02d", tt.hour, tt.min)
	}
}

func TestComputeBaselineMean(t *testing.T) {
	loc := mustLoc(t)
	day1 := time.Date(2026, 8, 18, 0, 0, 0, 0, loc)
	day2 := time.Date(2026, 8, 19, 0, 0, 0, 0, loc)

	history := []types.BinnedRecord{
		{BinStart: day1.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(1000)}},
		{BinStart: day2.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(1400)}},
		// a record for another slot should not leak into slot 32
		{BinStart: day2.Add(9 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(9000)}},
	}

	curve := ComputeBaseline(history, types.SignalTotal, DefaultWindowDays)
	assert.Equal(t, 1200.0, curve[32])
	assert.Equal(t, 9000.0, curve[36])
	assert.Zero(t, curve[0])
}

func TestComputeBaselineWindow(t *testing.T) {
	loc := mustLoc(t)
	// 20 days of history with a 2-day window: only the 2 most recent dates
	// should contribute.
	var history []types.BinnedRecord
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, loc)
	for d := 0; d < 20; d++ {
		v := 100.0
		if d >= 18 {
			v = 500.0
		}
		history = append(history, types.BinnedRecord{
			BinStart: base.AddDate(0, 0, d).Add(12 * time.Hour),
			Values:   map[types.Signal]*float64{types.SignalTotal: fp(v)},
		})
	}

	curve := ComputeBaseline(history, types.SignalTotal, 2)
	assert.Equal(t, 500.0, curve[48])
}

func TestComputeBaselineEdgeCases(t *testing.T) {
	loc := mustLoc(t)
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, loc)

	t.Run("empty history", func(t *testing.T) {
		curve := ComputeBaseline(nil, types.SignalTotal, DefaultWindowDays)
		assert.Equal(t, types.Curve{}, curve)
	})

	t.Run("absent values ignored", func(t *testing.T) {
		history := []types.BinnedRecord{
			{BinStart: day.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: nil}},
			{BinStart: day.Add(8 * time.Hour).AddDate(0, 0, 1), Values: map[types.Signal]*float64{types.SignalTotal: fp(600)}},
		}
		curve := ComputeBaseline(history, types.SignalTotal, DefaultWindowDays)
		// the nil observation must not drag the mean toward zero
		assert.Equal(t, 600.0, curve[32])
	})

	t.Run("zero bin timestamps skipped", func(t *testing.T) {
		history := []types.BinnedRecord{
			{Values: map[types.Signal]*float64{types.SignalTotal: fp(123)}},
		}
		curve := ComputeBaseline(history, types.SignalTotal, DefaultWindowDays)
		assert.Equal(t, types.Curve{}, curve)
	})
}

func TestComputeBaselineWeekday(t *testing.T) {
	loc := mustLoc(t)
	// 2026-08-17 is a Monday, 2026-08-18 a Tuesday.
	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, loc)
	tuesday := time.Date(2026, 8, 18, 0, 0, 0, 0, loc)
	require.Equal(t, time.Monday, monday.Weekday())

	history := []types.BinnedRecord{
		{BinStart: monday.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(2000)}},
		{BinStart: tuesday.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(100)}},
	}

	curve := ComputeBaselineWeekday(history, types.SignalTotal, time.Monday, WeekdayWindowDays)
	assert.Equal(t, 2000.0, curve[32])

	curve = ComputeBaselineWeekday(history, types.SignalTotal, time.Tuesday, WeekdayWindowDays)
	assert.Equal(t, 100.0, curve[32])

	curve = ComputeBaselineWeekday(history, types.SignalTotal, time.Sunday, WeekdayWindowDays)
	assert.Equal(t, types.Curve{}, curve)
}

func TestSmooth(t *testing.T) {
	t.Run("interior average", func(t *testing.T) {
		var c types.Curve
		c[9], c[10], c[11] = 300, 600, 900
		out := Smooth(c)
		assert.Equal(t, 600.0, out[10])
	})

	t.Run("edges damped by zero padding", func(t *testing.T) {
		var c types.Curve
		for i := range c {
			c[i] = 300
		}
		out := Smooth(c)
		assert.Equal(t, 200.0, out[0])
		assert.Equal(t, 200.0, out[95])
		assert.Equal(t, 300.0, out[50])
	})

	t.Run("not circular across midnight", func(t *testing.T) {
		var c types.Curve
		c[95] = 900
		out := Smooth(c)
		// slot 0 must not pick up slot 95's value
		assert.Zero(t, out[0])
		assert.Equal(t, 300.0, out[94])
	})
}

func TestUpdateCurve(t *testing.T) {
	loc := mustLoc(t)
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, loc)

	t.Run("single slot error", func(t *testing.T) {
		var baseline types.Curve
		baseline[32] = 1000
		yesterday := []types.BinnedRecord{
			{BinStart: day.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(1200)}},
		}

		got := UpdateCurve(yesterday, types.SignalTotal, baseline, types.Curve{}, 0.2, 4000)

		// pre-smoothing the slot holds 0.2*(1200-1000)=40; the 3-tap pass
		// spreads it across the neighbors
		assert.InDelta(t, 40.0/3, got[31], 1e-9)
		assert.InDelta(t, 40.0/3, got[32], 1e-9)
		assert.InDelta(t, 40.0/3, got[33], 1e-9)
		assert.Zero(t, got[30])
	})

	t.Run("clamped to cmax", func(t *testing.T) {
		yesterday := []types.BinnedRecord{
			{BinStart: day.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(100000)}},
		}
		var existing types.Curve
		existing[32] = 1900

		got := UpdateCurve(yesterday, types.SignalTotal, types.Curve{}, existing, 0.2, 2000)
		// unclamped would be 0.8*1900 + 0.2*100000 = 21520
		assert.InDelta(t, 2000.0/3, got[32], 1e-9)
	})

	t.Run("negative errors clamp symmetrically", func(t *testing.T) {
		var baseline types.Curve
		baseline[10] = 50000
		yesterday := []types.BinnedRecord{
			{BinStart: day.Add(2*time.Hour + 30*time.Minute), Values: map[types.Signal]*float64{types.SignalTotal: fp(0)}},
		}

		got := UpdateCurve(yesterday, types.SignalTotal, baseline, types.Curve{}, 0.5, 2000)
		assert.InDelta(t, -2000.0/3, got[10], 1e-9)
	})

	t.Run("zero alpha only re-smooths", func(t *testing.T) {
		var existing types.Curve
		existing[20], existing[21], existing[22] = 90, 120, 150
		yesterday := []types.BinnedRecord{
			{BinStart: day.Add(5 * time.Hour), Values: map[types.Signal]*float64{types.SignalTotal: fp(5000)}},
		}

		got := UpdateCurve(yesterday, types.SignalTotal, types.Curve{}, existing, 0, 4000)
		// with no learning the observations contribute nothing
		assert.Equal(t, Smooth(existing), got)
	})

	t.Run("sequential decay within a day", func(t *testing.T) {
		// two records in the same slot: the first update decays into the second
		ts := day.Add(8 * time.Hour)
		yesterday := []types.BinnedRecord{
			{BinStart: ts, Values: map[types.Signal]*float64{types.SignalTotal: fp(100)}},
			{BinStart: ts, Values: map[types.Signal]*float64{types.SignalTotal: fp(100)}},
		}

		got := UpdateCurve(yesterday, types.SignalTotal, types.Curve{}, types.Curve{}, 0.5, 4000)
		// 0.5*100 = 50, then 0.5*50 + 0.5*100 = 75, smoothed
		assert.InDelta(t, 75.0/3, got[32], 1e-9)
	})

	t.Run("missing values and zero timestamps skipped", func(t *testing.T) {
		yesterday := []types.BinnedRecord{
			{Values: map[types.Signal]*float64{types.SignalTotal: fp(500)}},
			{BinStart: day.Add(8 * time.Hour), Values: map[types.Signal]*float64{types.SignalL1: fp(500)}},
		}
		got := UpdateCurve(yesterday, types.SignalTotal, types.Curve{}, types.Curve{}, 0.2, 4000)
		assert.Equal(t, types.Curve{}, got)
	})
}

func TestShouldUpdate(t *testing.T) {
	loc := mustLoc(t)
	today := time.Date(2026, 8, 20, 9, 30, 0, 0, loc)

	assert.True(t, ShouldUpdate("", today), "empty marker always updates")
	assert.True(t, ShouldUpdate("2026-08-19", today))
	assert.False(t, ShouldUpdate("2026-08-20", today))
}

func TestBuildTimestamps(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 8, 20, 10, 7, 0, 0, loc)

	t.Run("starts after latest bin", func(t *testing.T) {
		latest := time.Date(2026, 8, 20, 9, 45, 0, 0, loc)
		history := []types.BinnedRecord{
			{BinStart: latest.Add(-types.BinDuration), Values: map[types.Signal]*float64{types.SignalTotal: fp(100)}},
			{BinStart: latest, Values: map[types.Signal]*float64{types.SignalTotal: fp(100)}},
		}

		times, values := Build(history, 48, nil, types.LearningModeOff, now, []types.Signal{types.SignalTotal})
		require.Len(t, times, 48*4)
		assert.Equal(t, latest.Add(types.BinDuration), times[0])
		assert.Equal(t, types.BinDuration, times[1].Sub(times[0]))
		require.Len(t, values[types.SignalTotal], 48*4)
	})

	t.Run("stale history still anchors on its latest bin", func(t *testing.T) {
		// polling stopped hours ago: the series continues from the last
		// observation, not from the wall clock
		latest := time.Date(2026, 8, 20, 3, 30, 0, 0, loc)
		history := []types.BinnedRecord{
			{BinStart: latest, Values: map[types.Signal]*float64{types.SignalTotal: fp(100)}},
		}

		times, _ := Build(history, 1, nil, types.LearningModeOff, now, []types.Signal{types.SignalTotal})
		require.Len(t, times, 4)
		assert.Equal(t, latest.Add(types.BinDuration), times[0])
	})

	t.Run("empty history starts after now", func(t *testing.T) {
		times, values := Build(nil, 1, nil, types.LearningModeOff, now, []types.Signal{types.SignalTotal})
		require.Len(t, times, 4)
		assert.Equal(t, now.Add(types.BinDuration), times[0])
		assert.Equal(t, []float64{0, 0, 0, 0}, values[types.SignalTotal])
	})
}

func TestBuildModes(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 8, 20, 23, 50, 0, 0, loc)

	// flat 300W history covering a full week so every weekday has a profile
	// and the smoothed baseline is exactly 300 away from the padded edges
	var history []types.BinnedRecord
	for d := 1; d <= 7; d++ {
		day := time.Date(2026, 8, 20-d, 0, 0, 0, 0, loc)
		history = append(history, binDay(day, types.SignalTotal, 300)...)
	}

	var correction types.Curve
	for i := range correction {
		correction[i] = 50
	}
	curves := map[types.Signal]types.Curve{types.SignalTotal: correction}

	t.Run("ilc_yesterday adds correction", func(t *testing.T) {
		times, values := Build(history, 24, curves, types.LearningModeILCYesterday, now, []types.Signal{types.SignalTotal})
		// find an interior slot to avoid the smoothing edge damping
		for i, ts := range times {
			if SlotIndex(ts) == 50 {
				assert.Equal(t, 350.0, values[types.SignalTotal][i])
				return
			}
		}
		t.Fatal("horizon never covered slot 50")
	})

	t.Run("off ignores correction", func(t *testing.T) {
		times, values := Build(history, 24, curves, types.LearningModeOff, now, []types.Signal{types.SignalTotal})
		for i, ts := range times {
			if SlotIndex(ts) == 50 {
				assert.Equal(t, 300.0, values[types.SignalTotal][i])
				return
			}
		}
		t.Fatal("horizon never covered slot 50")
	})

	t.Run("weekday_profile ignores correction", func(t *testing.T) {
		times, values := Build(history, 24, curves, types.LearningModeWeekdayProfile, now, []types.Signal{types.SignalTotal})
		for i, ts := range times {
			if SlotIndex(ts) == 50 {
				assert.Equal(t, 300.0, values[types.SignalTotal][i])
				return
			}
		}
		t.Fatal("horizon never covered slot 50")
	})
}

func TestBuildFloorsAtZero(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, loc)

	day := time.Date(2026, 8, 19, 0, 0, 0, 0, loc)
	history := binDay(day, types.SignalTotal, 100)

	var correction types.Curve
	for i := range correction {
		correction[i] = -4000
	}
	curves := map[types.Signal]types.Curve{types.SignalTotal: correction}

	_, values := Build(history, 48, curves, types.LearningModeILCYesterday, now, []types.Signal{types.SignalTotal})
	for i, v := range values[types.SignalTotal] {
		require.GreaterOrEqual(t, v, 0.0, "step %d", i)
	}
}
