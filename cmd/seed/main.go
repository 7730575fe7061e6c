package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Seeds two weeks of synthetic household load into the Firestore emulator
// so the forecast and ILC endpoints have something to chew on locally.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load location", "error", err)
		os.Exit(1)
	}

	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := midnight.AddDate(0, 0, -14)

	const (
		BaseLoadW     = 250.0  // fridge, router, standby
		MorningPeakW  = 1800.0 // kettle, stove, shower fan
		EveningPeakW  = 2500.0 // cooking, laundry, TV
		InverterIdleW = 40.0
	)

	bins := 0
	for t := start; t.Before(now); t = t.Add(15 * time.Minute) {
		hour := float64(t.Hour()) + float64(t.Minute())/60

		// Morning and evening bumps as bell curves over the base load
		load := BaseLoadW
		load += MorningPeakW * math.Exp(-math.Pow(hour-7.5, 2)/1.5)
		load += EveningPeakW * math.Exp(-math.Pow(hour-19.0, 2)/4.0)
		// Weekends run hotter during the day
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			load += 400 * math.Exp(-math.Pow(hour-13.0, 2)/8.0)
		}
		// Jitter
		load += (rng.Float64() - 0.5) * 120

		// Rough phase split: l1 carries the kitchen, l2/l3 the rest
		l1 := load * 0.5
		l2 := load * 0.3
		l3 := load * 0.2
		inverter := InverterIdleW + load*0.05

		fp := func(v float64) *float64 { return &v }
		rec := types.BinnedRecord{
			BinStart: t,
			Values: map[types.Signal]*float64{
				types.SignalTotal:    fp(load),
				types.SignalL1:       fp(l1),
				types.SignalL2:       fp(l2),
				types.SignalL3:       fp(l3),
				types.SignalInverter: fp(inverter),
			},
		}
		if err := s.UpsertBinned(ctx, rec); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed bin", "error", err)
			os.Exit(1)
		}
		bins++
	}

	fmt.Printf("Seeded %d bins from %s to %s\n", bins, start.Format(time.RFC3339), now.Format(time.RFC3339))

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}
