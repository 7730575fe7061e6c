// Package poll drives the periodic collection loop: read the configured
// Home Assistant entities, store raw samples, fold them into the current
// 15-minute bin, and once per local day fold yesterday's errors into the
// ILC correction curves.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/homewatt/homewatt/pkg/forecast"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/metrics"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// StateFetcher is the part of the Home Assistant client the poller needs.
type StateFetcher interface {
	FetchState(ctx context.Context, entityID string) (*float64, error)
}

// Entities maps each tracked signal to a Home Assistant entity ID. Signals
// with an empty entity ID are not polled.
type Entities map[types.Signal]string

// GridCurrentEntities maps each grid power signal to a current (amps)
// entity used to derive power when no direct power sensor is configured.
type GridCurrentEntities map[types.Signal]string

// Poller runs the collection loop.
type Poller struct {
	db           storage.Database
	ha           StateFetcher
	entities     Entities
	gridCurrents GridCurrentEntities
	gridVoltage  float64
	interval     time.Duration
	location     *time.Location
	policies     map[types.Signal]types.ILCPolicy
	windowDays   int
}

// Configured sets up the poller based on flags. The returned poller still
// needs Run called with the storage and Home Assistant collaborators wired
// in main.
func Configured(db storage.Database, ha StateFetcher) *Poller {
	interval := lflag.Duration("poll-interval", 15*time.Minute, "How often to poll sensors")
	timezone := lflag.String("timezone", "Europe/Stockholm", "IANA timezone for local-day binning")
	gridVoltage := 230.0
	lflag.JSON(&gridVoltage, "grid-voltage", gridVoltage, "Line voltage used to derive grid power from current sensors")
	windowDays := forecast.DefaultWindowDays
	lflag.JSON(&windowDays, "baseline-window-days", windowDays, "Trailing days of history for the baseline")

	entTotal := lflag.String("ha-entity-total", "", "Entity ID for total household power (W)")
	entL1 := lflag.String("ha-entity-l1", "", "Entity ID for phase 1 power (W)")
	entL2 := lflag.String("ha-entity-l2", "", "Entity ID for phase 2 power (W)")
	entL3 := lflag.String("ha-entity-l3", "", "Entity ID for phase 3 power (W)")
	entInverter := lflag.String("ha-entity-inverter", "", "Entity ID for inverter power (W)")
	entSOC := lflag.String("ha-entity-soc", "", "Entity ID for battery state of charge (%)")
	entGridL1 := lflag.String("ha-entity-grid-l1", "", "Entity ID for grid phase 1 power (W)")
	entGridL2 := lflag.String("ha-entity-grid-l2", "", "Entity ID for grid phase 2 power (W)")
	entGridL3 := lflag.String("ha-entity-grid-l3", "", "Entity ID for grid phase 3 power (W)")
	entGridL1Amps := lflag.String("ha-entity-grid-l1-current", "", "Entity ID for grid phase 1 current (A), used when no power entity is set")
	entGridL2Amps := lflag.String("ha-entity-grid-l2-current", "", "Entity ID for grid phase 2 current (A), used when no power entity is set")
	entGridL3Amps := lflag.String("ha-entity-grid-l3-current", "", "Entity ID for grid phase 3 current (A), used when no power entity is set")

	p := &Poller{
		db:       db,
		ha:       ha,
		policies: types.DefaultILCPolicies,
	}

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone %q: %v", *timezone, err))
		}
		p.location = loc
		p.interval = *interval
		p.gridVoltage = gridVoltage
		p.windowDays = windowDays
		p.entities = Entities{
			types.SignalTotal:    *entTotal,
			types.SignalL1:       *entL1,
			types.SignalL2:       *entL2,
			types.SignalL3:       *entL3,
			types.SignalInverter: *entInverter,
			types.SignalSOC:      *entSOC,
			types.SignalGridL1:   *entGridL1,
			types.SignalGridL2:   *entGridL2,
			types.SignalGridL3:   *entGridL3,
		}
		p.gridCurrents = GridCurrentEntities{
			types.SignalGridL1: *entGridL1Amps,
			types.SignalGridL2: *entGridL2Amps,
			types.SignalGridL3: *entGridL3Amps,
		}
	})

	return p
}

// New returns a poller with explicit configuration, for tests and the
// seeder.
func New(db storage.Database, ha StateFetcher, entities Entities, gridCurrents GridCurrentEntities, gridVoltage float64, interval time.Duration, loc *time.Location) *Poller {
	return &Poller{
		db:           db,
		ha:           ha,
		entities:     entities,
		gridCurrents: gridCurrents,
		gridVoltage:  gridVoltage,
		interval:     interval,
		location:     loc,
		policies:     types.DefaultILCPolicies,
		windowDays:   forecast.DefaultWindowDays,
	}
}

// Run polls on the configured interval until the context is canceled. A
// failed cycle is logged and retried on the next tick; it never stops the
// loop.
func (p *Poller) Run(ctx context.Context) {
	// poll immediately on startup so a fresh install doesn't sit idle for
	// a full interval
	if err := p.PollOnce(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "poll failed", slog.Any("err", err))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "poll failed", slog.Any("err", err))
			}
		}
	}
}

// PollOnce runs a single collection cycle: fetch, store samples, upsert
// the current bin, then attempt the daily ILC update.
func (p *Poller) PollOnce(ctx context.Context) error {
	now := time.Now().In(p.location)
	if err := p.collect(ctx, now); err != nil {
		metrics.Polls.WithLabelValues("error").Inc()
		return err
	}
	metrics.Polls.WithLabelValues("ok").Inc()

	if _, err := p.RunILCCycle(ctx, now, false); err != nil {
		// the next poll retries; the collected data is already stored
		return fmt.Errorf("ilc cycle: %w", err)
	}
	return nil
}

// Location returns the configured local timezone.
func (p *Poller) Location() *time.Location {
	return p.location
}

func (p *Poller) collect(ctx context.Context, now time.Time) error {
	values := make(map[types.Signal]*float64)
	var samples []types.Sample
	for sig, entityID := range p.entities {
		if entityID == "" {
			continue
		}
		v, err := p.ha.FetchState(ctx, entityID)
		if err != nil {
			return fmt.Errorf("fetch %s (%s): %w", sig, entityID, err)
		}
		values[sig] = v
		samples = append(samples, types.Sample{
			TSUTC:    now.UTC(),
			EntityID: entityID,
			Value:    v,
		})
	}

	// Grid power falls back to current × configured voltage when only an
	// amp sensor is installed.
	for sig, entityID := range p.gridCurrents {
		if entityID == "" || values[sig] != nil {
			continue
		}
		amps, err := p.ha.FetchState(ctx, entityID)
		if err != nil {
			return fmt.Errorf("fetch %s current (%s): %w", sig, entityID, err)
		}
		samples = append(samples, types.Sample{
			TSUTC:    now.UTC(),
			EntityID: entityID,
			Value:    amps,
		})
		if amps != nil {
			w := *amps * p.gridVoltage
			values[sig] = &w
		}
	}

	if len(samples) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no entities configured, nothing to poll")
		return nil
	}

	if err := p.db.InsertSamples(ctx, samples); err != nil {
		return fmt.Errorf("insert samples: %w", err)
	}
	metrics.SamplesStored.Add(float64(len(samples)))

	rec := types.BinnedRecord{
		BinStart: BinStart(now),
		Values:   values,
	}
	if err := p.db.UpsertBinned(ctx, rec); err != nil {
		return fmt.Errorf("upsert bin: %w", err)
	}

	if err := p.db.SetMetadata(ctx, storage.MetaLastPollUTC, now.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("set last poll metadata: %w", err)
	}

	log.Ctx(ctx).DebugContext(ctx, "poll complete",
		slog.Int("samples", len(samples)),
		slog.Time("binStart", rec.BinStart))
	return nil
}

// RunILCCycle folds yesterday's observed errors into the persisted
// correction curves, at most once per local calendar day unless force is
// set. A day with no binned records is skipped without consuming the day's
// update, so a later poll (or backfill) can still trigger it. Returns
// whether curves were updated.
func (p *Poller) RunILCCycle(ctx context.Context, now time.Time, force bool) (bool, error) {
	if !force {
		lastUpdate, err := p.db.GetMetadata(ctx, storage.MetaLastILCUpdateLocal)
		if err != nil {
			return false, fmt.Errorf("get last update marker: %w", err)
		}
		if !forecast.ShouldUpdate(lastUpdate, now) {
			return false, nil
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.location)
	yesterdayStart := midnight.AddDate(0, 0, -1)

	yesterday, err := p.db.GetBinnedHistory(ctx, yesterdayStart, midnight)
	if err != nil {
		return false, fmt.Errorf("get yesterday history: %w", err)
	}
	if len(yesterday) == 0 {
		log.Ctx(ctx).InfoContext(ctx, "no records for yesterday, skipping ilc update")
		return false, nil
	}

	history, err := p.db.GetBinnedHistory(ctx, midnight.AddDate(0, 0, -p.windowDays), midnight)
	if err != nil {
		return false, fmt.Errorf("get baseline history: %w", err)
	}

	for _, sig := range types.ForecastSignals {
		policy := p.policies[sig]
		baseline := forecast.ComputeBaseline(history, sig, p.windowDays)
		existing, err := p.db.GetCurve(ctx, sig)
		if err != nil {
			return false, fmt.Errorf("get curve %s: %w", sig, err)
		}
		updated := forecast.UpdateCurve(yesterday, sig, baseline, existing, policy.Alpha, policy.CMaxW)
		if err := p.db.SetCurve(ctx, sig, updated); err != nil {
			return false, fmt.Errorf("set curve %s: %w", sig, err)
		}
		metrics.ILCUpdates.WithLabelValues(string(sig)).Inc()
	}

	marker := now.Format(types.DateLayout)
	if err := p.db.SetMetadata(ctx, storage.MetaLastILCUpdateLocal, marker); err != nil {
		return true, fmt.Errorf("set last update marker: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "ilc curves updated", slog.String("date", marker))
	return true, nil
}

// BinStart truncates a timestamp to the start of its 15-minute bin,
// preserving the location.
func BinStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%15, 0, 0, t.Location())
}
