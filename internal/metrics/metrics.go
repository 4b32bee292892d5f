package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommentsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deltabot_comments_processed_total",
		Help: "Total comments run through the award lifecycle",
	})
	ProcessErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deltabot_process_errors_total",
		Help: "Total lifecycle passes that failed",
	})
	ProcessDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deltabot_process_duration_seconds",
		Help:    "Lifecycle pass duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	DeltasAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deltabot_deltas_awarded_total",
		Help: "Total deltas awarded",
	})
	DeltasUnawarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deltabot_deltas_unawarded_total",
		Help: "Total deltas reversed",
	})
	ValidationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deltabot_validation_failures_total",
		Help: "Total failed delta validations by reason",
	}, []string{"reason"})
	ReplyActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deltabot_reply_actions_total",
		Help: "Total reply mutations by action",
	}, []string{"action"})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deltabot_queue_depth",
		Help: "Messages currently waiting in the processing queue",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deltabot_api_retries_total",
		Help: "Total forum API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deltabot_command_runs_total",
		Help: "Total CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deltabot_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(CommentsProcessed, ProcessErrors, ProcessDuration,
		DeltasAwarded, DeltasUnawarded, ValidationFailures, ReplyActions,
		QueueDepth, APIRetries, CommandRuns, CommandErrors)
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

// ObserveProcessDuration records one lifecycle pass duration.
func ObserveProcessDuration(start time.Time) {
	ProcessDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }
