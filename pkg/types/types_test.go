package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLearningMode(t *testing.T) {
	tests := []struct {
		in       string
		expected LearningMode
		wantErr  bool
	}{
		{"ilc_yesterday", LearningModeILCYesterday, false},
		{"off", LearningModeOff, false},
		{"weekday_profile", LearningModeWeekdayProfile, false},
		{"", 0, true},
		{"ILC_YESTERDAY", 0, true},
		{"yesterday", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseLearningMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
			// String round-trips
			assert.Equal(t, tt.in, mode.String())
		})
	}
}

func TestBinnedRecordValue(t *testing.T) {
	v := 123.0
	rec := BinnedRecord{
		BinStart: time.Now(),
		Values:   map[Signal]*float64{SignalTotal: &v, SignalL1: nil},
	}
	require.NotNil(t, rec.Value(SignalTotal))
	assert.Equal(t, 123.0, *rec.Value(SignalTotal))
	assert.Nil(t, rec.Value(SignalL1), "explicit nil stays nil")
	assert.Nil(t, rec.Value(SignalL2), "missing signal is nil")
	assert.Nil(t, BinnedRecord{}.Value(SignalTotal))
}

func TestBinnedRecordJSONRoundTrip(t *testing.T) {
	v := 42.5
	rec := BinnedRecord{
		BinStart: time.Date(2026, 8, 20, 10, 15, 0, 0, time.UTC),
		Values:   map[Signal]*float64{SignalTotal: &v, SignalInverter: nil},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var got BinnedRecord
	require.NoError(t, json.Unmarshal(b, &got))
	assert.True(t, got.BinStart.Equal(rec.BinStart))
	require.NotNil(t, got.Value(SignalTotal))
	assert.Equal(t, v, *got.Value(SignalTotal))
	// absence must survive persistence, it is distinct from zero
	assert.Nil(t, got.Value(SignalInverter))
}

func TestDefaultILCPolicies(t *testing.T) {
	for _, sig := range ForecastSignals {
		p, ok := DefaultILCPolicies[sig]
		require.True(t, ok, "missing policy for %s", sig)
		assert.Equal(t, 0.2, p.Alpha)
		assert.Greater(t, p.CMaxW, 0.0)
	}
	assert.Equal(t, 4000.0, DefaultILCPolicies[SignalTotal].CMaxW)
	assert.Equal(t, 2000.0, DefaultILCPolicies[SignalL1].CMaxW)
	assert.Equal(t, 4000.0, DefaultILCPolicies[SignalInverter].CMaxW)
}
