package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Metadata keys used by the poller and the status endpoint.
const (
	MetaLastPollUTC        = "last_poll_utc"
	MetaLastILCUpdateLocal = "last_ilc_update_local"
)

// Database defines the interface for persisting samples, binned records,
// learned curves, and metadata.
type Database interface {
	// Raw samples
	InsertSamples(ctx context.Context, samples []types.Sample) error
	GetLatestSamples(ctx context.Context, limit int) ([]types.Sample, error)

	// Binned records
	// UpsertBinned adds or replaces the record for its bin (last write wins).
	UpsertBinned(ctx context.Context, rec types.BinnedRecord) error
	GetBinnedHistory(ctx context.Context, start, end time.Time) ([]types.BinnedRecord, error)
	GetLatestBinTime(ctx context.Context) (time.Time, error)
	CountBinned(ctx context.Context) (int, error)

	// Learned curves
	// GetCurve returns a zero curve when no curve is stored for the signal.
	GetCurve(ctx context.Context, signal types.Signal) (types.Curve, error)
	SetCurve(ctx context.Context, signal types.Signal, curve types.Curve) error

	// Metadata
	// GetMetadata returns "" when the key is absent.
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
