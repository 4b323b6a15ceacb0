// Package metrics defines the Prometheus instruments of the pipeline and the
// HTTP endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seismon_events_ingested_total",
		Help: "Total number of earthquake events recorded from the feed.",
	})

	FeedPartitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seismon_feed_partitions_total",
		Help: "Feed partitions visited, labelled by outcome.",
	}, []string{"outcome"})

	PredictionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seismon_predictions_total",
		Help: "Total number of predictions written.",
	})

	PredictionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seismon_prediction_failures_total",
		Help: "Total number of (event, detector) pairs whose computation failed.",
	})

	TravelTimeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seismon_traveltime_fallbacks_total",
		Help: "Predictions whose P and S times fell back to the slowest surface wave.",
	})

	DirectoriesPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seismon_feed_directories_purged_total",
		Help: "Feed directories removed by the retention purger.",
	})

	PhaseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seismon_phase_errors_total",
		Help: "Scheduler phases that ended in error, labelled by phase.",
	}, []string{"phase"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seismon_phase_duration_seconds",
		Help:    "Duration of each scheduler phase.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"phase"})

	LastSuccessfulCycle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seismon_last_successful_cycle_timestamp_seconds",
		Help: "Unix time of the last cycle in which every phase succeeded.",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
