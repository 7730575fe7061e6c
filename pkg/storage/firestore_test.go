package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestFirestoreProvider(t *testing.T) {
	// Check if emulator is running or configured
	// We assume it is running on localhost:8087 as per task
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")

	// Use a test project ID
	projectID := "test-project-id"

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: projectID,
		database:  randDB,
		homeID:    "test-home",
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Bins", func(t *testing.T) {
		now := time.Now().Truncate(time.Second).UTC() // Firestore timestamp precision (RFC3339 is seconds)
		r1 := types.BinnedRecord{
			BinStart: now.Add(-30 * time.Minute),
			Values:   map[types.Signal]*float64{types.SignalTotal: fp(1000)},
		}
		r2 := types.BinnedRecord{
			BinStart: now.Add(-15 * time.Minute),
			Values:   map[types.Signal]*float64{types.SignalTotal: fp(1200)},
		}

		require.NoError(t, f.UpsertBinned(ctx, r1))
		require.NoError(t, f.UpsertBinned(ctx, r2))

		recs, err := f.GetBinnedHistory(ctx, now.Add(-time.Hour), now)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		require.NotNil(t, recs[0].Value(types.SignalTotal))
		assert.Equal(t, 1000.0, *recs[0].Value(types.SignalTotal))

		t.Run("UpsertOverwrite", func(t *testing.T) {
			r2Updated := types.BinnedRecord{
				BinStart: r2.BinStart,
				Values:   map[types.Signal]*float64{types.SignalTotal: fp(1300)},
			}
			require.NoError(t, f.UpsertBinned(ctx, r2Updated))

			recs, err := f.GetBinnedHistory(ctx, now.Add(-time.Hour), now)
			require.NoError(t, err)
			require.Len(t, recs, 2, "upsert must replace, not append")
			require.NotNil(t, recs[1].Value(types.SignalTotal))
			assert.Equal(t, 1300.0, *recs[1].Value(types.SignalTotal))
		})

		t.Run("LatestBinTime", func(t *testing.T) {
			ts, err := f.GetLatestBinTime(ctx)
			require.NoError(t, err)
			assert.True(t, ts.Equal(r2.BinStart), "got %v", ts)
		})

		t.Run("Count", func(t *testing.T) {
			count, err := f.CountBinned(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
		})
	})

	t.Run("MissingBinStart", func(t *testing.T) {
		err := f.UpsertBinned(ctx, types.BinnedRecord{})
		assert.ErrorContains(t, err, "missing binStart")
	})

	t.Run("Samples", func(t *testing.T) {
		now := time.Now().Truncate(time.Second).UTC()
		samples := []types.Sample{
			{TSUTC: now.Add(-time.Minute), EntityID: "sensor.total", Value: fp(900)},
			{TSUTC: now, EntityID: "sensor.total", Value: fp(950)},
			{TSUTC: now, EntityID: "sensor.l1", Value: nil},
		}
		require.NoError(t, f.InsertSamples(ctx, samples))

		got, err := f.GetLatestSamples(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		// newest first, absence round-trips as nil
		for _, s := range got {
			assert.True(t, s.TSUTC.Equal(now))
		}
	})

	t.Run("Curves", func(t *testing.T) {
		// absent curve is all zeros, not an error
		curve, err := f.GetCurve(ctx, types.SignalL2)
		require.NoError(t, err)
		assert.Equal(t, types.Curve{}, curve)

		curve[32] = 40
		curve[95] = -120
		require.NoError(t, f.SetCurve(ctx, types.SignalL2, curve))

		got, err := f.GetCurve(ctx, types.SignalL2)
		require.NoError(t, err)
		assert.Equal(t, curve, got)
	})

	t.Run("Metadata", func(t *testing.T) {
		// absent key is ""
		v, err := f.GetMetadata(ctx, MetaLastILCUpdateLocal)
		require.NoError(t, err)
		assert.Equal(t, "", v)

		require.NoError(t, f.SetMetadata(ctx, MetaLastILCUpdateLocal, "2026-08-20"))

		v, err = f.GetMetadata(ctx, MetaLastILCUpdateLocal)
		require.NoError(t, err)
		assert.Equal(t, "2026-08-20", v)
	})
}
