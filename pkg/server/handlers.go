package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/homewatt/homewatt/pkg/forecast"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/metrics"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
)

// forecastResponse is the /api/forecast payload: parallel arrays of bin
// start times (RFC3339, local) and per-signal watt values.
type forecastResponse struct {
	Mode   string                      `json:"mode"`
	Times  []string                    `json:"times"`
	Values map[types.Signal][]float64 `json:"values"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().In(s.poller.Location())

	// weekday profiles need the longer stratified window
	windowDays := forecast.DefaultWindowDays
	if s.mode == types.LearningModeWeekdayProfile {
		windowDays = forecast.WeekdayWindowDays
	}
	history, err := s.storage.GetBinnedHistory(ctx, now.AddDate(0, 0, -windowDays), now.Add(types.BinDuration))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get history", slog.Any("error", err))
		writeJSONError(w, "failed to get history", http.StatusInternalServerError)
		return
	}

	curves := make(map[types.Signal]types.Curve, len(types.ForecastSignals))
	if s.mode == types.LearningModeILCYesterday {
		for _, sig := range types.ForecastSignals {
			curve, err := s.storage.GetCurve(ctx, sig)
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to get curve", slog.String("signal", string(sig)), slog.Any("error", err))
				writeJSONError(w, "failed to get curve", http.StatusInternalServerError)
				return
			}
			curves[sig] = curve
		}
	}

	times, values := forecast.Build(history, s.horizonHours, curves, s.mode, now, types.ForecastSignals)
	metrics.ForecastsBuilt.Inc()

	resp := forecastResponse{
		Mode:   s.mode.String(),
		Times:  make([]string, len(times)),
		Values: values,
	}
	for i, t := range times {
		resp.Times[i] = t.Format(time.RFC3339)
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hours := 72
	if hStr := r.URL.Query().Get("hours"); hStr != "" {
		h, err := strconv.Atoi(hStr)
		if err != nil || h <= 0 {
			writeJSONError(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = h
	}

	now := time.Now().In(s.poller.Location())
	recs, err := s.storage.GetBinnedHistory(ctx, now.Add(-time.Duration(hours)*time.Hour), now.Add(types.BinDuration))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get history", slog.Any("error", err))
		writeJSONError(w, "failed to get history", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []types.BinnedRecord{}
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, recs)
}

type statusResponse struct {
	Mode              string `json:"mode"`
	HorizonHours      int    `json:"horizonHours"`
	Timezone          string `json:"timezone"`
	BinCount          int    `json:"binCount"`
	LatestBinUTC      string `json:"latestBinUTC"`
	LastPollUTC       string `json:"lastPollUTC"`
	LastILCUpdateDate string `json:"lastILCUpdateDate"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.storage.CountBinned(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to count bins", slog.Any("error", err))
		writeJSONError(w, "failed to count bins", http.StatusInternalServerError)
		return
	}
	lastPoll, err := s.storage.GetMetadata(ctx, storage.MetaLastPollUTC)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get last poll", slog.Any("error", err))
		writeJSONError(w, "failed to get last poll", http.StatusInternalServerError)
		return
	}
	lastILC, err := s.storage.GetMetadata(ctx, storage.MetaLastILCUpdateLocal)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get last ilc update", slog.Any("error", err))
		writeJSONError(w, "failed to get last ilc update", http.StatusInternalServerError)
		return
	}
	latestBin, err := s.storage.GetLatestBinTime(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest bin time", slog.Any("error", err))
		writeJSONError(w, "failed to get latest bin time", http.StatusInternalServerError)
		return
	}
	var latestBinStr string
	if !latestBin.IsZero() {
		latestBinStr = latestBin.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, statusResponse{
		Mode:              s.mode.String(),
		HorizonHours:      s.horizonHours,
		Timezone:          s.poller.Location().String(),
		BinCount:          count,
		LatestBinUTC:      latestBinStr,
		LastPollUTC:       lastPoll,
		LastILCUpdateDate: lastILC,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	samples, err := s.storage.GetLatestSamples(ctx, 32)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest samples", slog.Any("error", err))
		writeJSONError(w, "failed to get latest samples", http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []types.Sample{}
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, samples)
}

func (s *Server) handlePollNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.poller.PollOnce(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "manual poll failed", slog.Any("error", err))
		writeJSONError(w, "poll failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
	}{OK: true})
}

func (s *Server) handleILCUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	force := r.URL.Query().Get("force") == "true"

	now := time.Now().In(s.poller.Location())
	updated, err := s.poller.RunILCCycle(ctx, now, force)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "ilc update failed", slog.Any("error", err))
		writeJSONError(w, "ilc update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Updated bool `json:"updated"`
	}{Updated: updated})
}
