package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_query_evaluations_total",
		Help: "Total expression evaluations against the imagery backend",
	}, []string{"kind"})
	QueryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canopy_query_errors_total",
		Help: "Total failed expression evaluations",
	})
	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "canopy_query_duration_seconds",
		Help:    "Expression evaluation duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"service"})
	TrainRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canopy_train_runs_total",
		Help: "Total training runs started",
	})
	TrainErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canopy_train_errors_total",
		Help: "Total training runs that aborted with an error",
	})
	EpochDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "canopy_epoch_duration_seconds",
		Help:    "Training epoch duration seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_command_runs_total",
		Help: "Total CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		QueryEvaluations, QueryErrors, QueryDuration, APIRetries,
		TrainRuns, TrainErrors, EpochDuration, CommandRuns, CommandErrors,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveQueryDuration records one backend evaluation duration.
func ObserveQueryDuration(start time.Time) {
	QueryDuration.Observe(time.Since(start).Seconds())
}

// ObserveEpochDuration records one training epoch duration.
func ObserveEpochDuration(start time.Time) {
	EpochDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for a remote service.
func IncAPIRetry(service string) { APIRetries.WithLabelValues(service).Inc() }

// IncCommandRun increments the run counter for a CLI command.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError increments the error counter for a CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
