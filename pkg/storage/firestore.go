package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Records are stored as JSON blobs under a per-home document so
// one project can host several homes.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
	homeID    string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	homeID := lflag.String("firestore-home-id", "default", "Document ID for this home under the homes collection")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.homeID = *homeID

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) collection(name string) *firestore.CollectionRef {
	return f.client.Collection("homes").Doc(f.homeID).Collection(name)
}

// InsertSamples adds raw polled samples to the "samples" collection.
// The document ID combines the RFC3339 timestamp and the entity so samples
// from the same poll don't collide.
func (f *FirestoreProvider) InsertSamples(ctx context.Context, samples []types.Sample) error {
	coll := f.collection("samples")
	for _, s := range samples {
		jsonBytes, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		docID := s.TSUTC.UTC().Format(time.RFC3339) + "_" + s.EntityID
		_, err = coll.Doc(docID).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": s.TSUTC,
		})
		if err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", docID, err)
		}
	}
	return nil
}

// GetLatestSamples retrieves the most recently polled samples, newest first.
func (f *FirestoreProvider) GetLatestSamples(ctx context.Context, limit int) ([]types.Sample, error) {
	iter := f.collection("samples").
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var samples []types.Sample
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating samples: %w", err)
		}

		s, err := unmarshalDoc[types.Sample](ctx, doc, "sample")
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// UpsertBinned adds or replaces the record for a 15-minute bin in the
// "bins" collection. The document ID is the RFC3339 bin start so range
// queries can filter on document ID alone.
func (f *FirestoreProvider) UpsertBinned(ctx context.Context, rec types.BinnedRecord) error {
	if rec.BinStart.IsZero() {
		return fmt.Errorf("binned record missing binStart")
	}
	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal binned record: %w", err)
	}

	docID := rec.BinStart.UTC().Format(time.RFC3339)
	_, err = f.collection("bins").Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": rec.BinStart,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert binned record: %w", err)
	}
	return nil
}

// GetBinnedHistory retrieves binned records within [start, end).
// Uses document ID range queries for efficient filtering without reading
// all documents.
func (f *FirestoreProvider) GetBinnedHistory(ctx context.Context, start, end time.Time) ([]types.BinnedRecord, error) {
	coll := f.collection("bins")
	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var recs []types.BinnedRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating binned records: %w", err)
		}

		rec, err := unmarshalDoc[types.BinnedRecord](ctx, doc, "binned record")
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// GetLatestBinTime retrieves the start time of the most recent bin, or the
// zero time when no bins are stored.
func (f *FirestoreProvider) GetLatestBinTime(ctx context.Context) (time.Time, error) {
	iter := f.collection("bins").
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest bin doc: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, doc.Ref.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid bin doc id %s: %w", doc.Ref.ID, err)
	}
	return ts, nil
}

// CountBinned returns the number of stored binned records.
func (f *FirestoreProvider) CountBinned(ctx context.Context) (int, error) {
	results, err := f.collection("bins").NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count binned records: %w", err)
	}
	count, ok := results["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation missing result")
	}
	v, ok := count.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", count)
	}
	return int(v.GetIntegerValue()), nil
}

// GetCurve retrieves the persisted correction curve for a signal. A
// missing document means nothing has been learned yet, which is an
// all-zero curve rather than an error.
func (f *FirestoreProvider) GetCurve(ctx context.Context, signal types.Signal) (types.Curve, error) {
	doc, err := f.collection("curves").Doc(string(signal)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Curve{}, nil
		}
		return types.Curve{}, fmt.Errorf("failed to fetch curve doc for %s: %w", signal, err)
	}

	var curve types.Curve
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "curve doc missing json", slog.String("signal", string(signal)))
		return types.Curve{}, fmt.Errorf("curve document %s missing 'json' field: %w", signal, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "curve doc json not string", slog.String("signal", string(signal)))
		return types.Curve{}, fmt.Errorf("curve document %s 'json' field is not string", signal)
	}
	if err := json.Unmarshal([]byte(jsonStr), &curve); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal curve", slog.String("signal", string(signal)), slog.Any("err", err))
		return types.Curve{}, fmt.Errorf("failed to unmarshal curve %s: %w", signal, err)
	}
	return curve, nil
}

// SetCurve saves the correction curve for a signal.
func (f *FirestoreProvider) SetCurve(ctx context.Context, signal types.Signal, curve types.Curve) error {
	jsonBytes, err := json.Marshal(curve)
	if err != nil {
		return fmt.Errorf("failed to marshal curve %s: %w", signal, err)
	}
	_, err = f.collection("curves").Doc(string(signal)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save curve %s: %w", signal, err)
	}
	return nil
}

// GetMetadata retrieves a metadata value by key. A missing key is "".
func (f *FirestoreProvider) GetMetadata(ctx context.Context, key string) (string, error) {
	doc, err := f.collection("meta").Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch metadata %s: %w", key, err)
	}

	val, err := doc.DataAt("value")
	if err != nil {
		return "", fmt.Errorf("metadata document %s missing 'value' field: %w", key, err)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("metadata document %s 'value' field is not string", key)
	}
	return s, nil
}

// SetMetadata saves a metadata value by key.
func (f *FirestoreProvider) SetMetadata(ctx context.Context, key, value string) error {
	_, err := f.collection("meta").Doc(key).Set(ctx, map[string]interface{}{
		"value":     value,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save metadata %s: %w", key, err)
	}
	return nil
}

// unmarshalDoc decodes the "json" field of a blob-style document.
func unmarshalDoc[T any](ctx context.Context, doc *firestore.DocumentSnapshot, kind string) (T, error) {
	var out T
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, kind+" doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return out, fmt.Errorf("%s document %s missing 'json' field: %w", kind, doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, kind+" doc json not string", slog.String("docID", doc.Ref.ID))
		return out, fmt.Errorf("%s document %s 'json' field is not string", kind, doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal "+kind, slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return out, fmt.Errorf("failed to unmarshal %s (id=%s): %w", kind, doc.Ref.ID, err)
	}
	return out, nil
}
