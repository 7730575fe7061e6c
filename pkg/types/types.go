package types

import (
	"fmt"
	"time"
)

// SlotsPerDay is the number of 15-minute time-of-day slots in a local day.
const SlotsPerDay = 96

// BinDuration is the width of one slot.
const BinDuration = 15 * time.Minute

// DateLayout is the format used for calendar-day markers (e.g. the last
// ILC update date stored in metadata).
const DateLayout = "2006-01-02"

// Signal identifies one tracked power series.
type Signal string

const (
	SignalTotal    Signal = "total_w"
	SignalL1       Signal = "l1_w"
	SignalL2       Signal = "l2_w"
	SignalL3       Signal = "l3_w"
	SignalInverter Signal = "inverter_w"
	SignalGridL1   Signal = "grid_l1_w"
	SignalGridL2   Signal = "grid_l2_w"
	SignalGridL3   Signal = "grid_l3_w"
	SignalSOC      Signal = "soc"
)

// ForecastSignals are the signals we forecast and learn ILC corrections for.
// Grid power and SOC are binned for the history API but not forecast.
var ForecastSignals = []Signal{
	SignalTotal,
	SignalL1,
	SignalL2,
	SignalL3,
	SignalInverter,
}

// Sample is one raw polled measurement for one entity. A nil Value records
// that the entity was polled but had no usable reading; that absence is
// meaningful and distinct from zero.
type Sample struct {
	TSUTC    time.Time `json:"tsUTC"`
	EntityID string    `json:"entityID"`
	Value    *float64  `json:"value"`
}

// BinnedRecord is the aggregate for one 15-minute local-time bin. A later
// poll within the same bin overwrites the record (last write wins, not
// averaged). Signals without a reading are absent from Values.
type BinnedRecord struct {
	BinStart time.Time           `json:"binStart"`
	Values   map[Signal]*float64 `json:"values"`
}

// Value returns the recorded value for the signal, or nil when absent.
func (r BinnedRecord) Value(s Signal) *float64 {
	if r.Values == nil {
		return nil
	}
	return r.Values[s]
}

// Curve is a per-slot series covering a full local day: a baseline, a
// smoothed baseline, or an ILC correction. The fixed-size array guarantees
// every slot is present; slots without data are simply 0.
type Curve [SlotsPerDay]float64

// LearningMode selects how the forecast assembler combines the baseline
// with learned corrections.
type LearningMode int

const (
	// LearningModeILCYesterday applies the persisted ILC correction curve on
	// top of the smoothed global baseline.
	LearningModeILCYesterday LearningMode = iota
	// LearningModeOff uses the smoothed global baseline alone.
	LearningModeOff
	// LearningModeWeekdayProfile uses per-day-of-week baselines and no ILC
	// term; weekday stratification replaces daily-error learning rather than
	// composing with it.
	LearningModeWeekdayProfile
)

// ParseLearningMode parses the configured mode string. Unknown values are a
// configuration error and fail loud rather than silently defaulting.
func ParseLearningMode(s string) (LearningMode, error) {
	switch s {
	case "ilc_yesterday":
		return LearningModeILCYesterday, nil
	case "off":
		return LearningModeOff, nil
	case "weekday_profile":
		return LearningModeWeekdayProfile, nil
	}
	return 0, fmt.Errorf("unknown learning mode: %q", s)
}

func (m LearningMode) String() string {
	switch m {
	case LearningModeILCYesterday:
		return "ilc_yesterday"
	case LearningModeOff:
		return "off"
	case LearningModeWeekdayProfile:
		return "weekday_profile"
	}
	return fmt.Sprintf("LearningMode(%d)", int(m))
}

// ILCPolicy holds the per-signal learning constants: alpha is the
// exponential learning rate and CMaxW bounds the correction to
// [-CMaxW, CMaxW] watts.
type ILCPolicy struct {
	Alpha float64 `json:"alpha"`
	CMaxW float64 `json:"cmaxW"`
}

// DefaultILCPolicies mirrors the installed sensor limits: a whole-home
// correction may swing further than a single phase.
var DefaultILCPolicies = map[Signal]ILCPolicy{
	SignalTotal:    {Alpha: 0.2, CMaxW: 4000},
	SignalL1:       {Alpha: 0.2, CMaxW: 2000},
	SignalL2:       {Alpha: 0.2, CMaxW: 2000},
	SignalL3:       {Alpha: 0.2, CMaxW: 2000},
	SignalInverter: {Alpha: 0.2, CMaxW: 4000},
}
