// Package metrics holds the Prometheus instrumentation shared by the
// poller and the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Polls counts poll cycles by result ("ok" or "error").
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homewatt_polls_total",
		Help: "Number of sensor poll cycles.",
	}, []string{"result"})

	// SamplesStored counts raw samples written to storage.
	SamplesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homewatt_samples_stored_total",
		Help: "Number of raw samples written to storage.",
	})

	// ILCUpdates counts daily ILC curve updates by signal.
	ILCUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homewatt_ilc_updates_total",
		Help: "Number of ILC curve updates persisted.",
	}, []string{"signal"})

	// ForecastsBuilt counts forecast assemblies served.
	ForecastsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homewatt_forecasts_built_total",
		Help: "Number of forecasts assembled.",
	})
)
