package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Executor metrics

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast_bot",
		Name:      "runs_total",
		Help:      "Executions by mode and outcome.",
	}, []string{"mode", "outcome"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forecast_bot",
		Name:      "run_duration_seconds",
		Help:      "Duration of a schedule execution from attempt open to commit.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"mode"})

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "forecast_bot",
		Name:      "runs_in_flight",
		Help:      "Schedule executions currently running.",
	})

	// Upstream metrics

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast_bot",
		Name:      "upstream_requests_total",
		Help:      "Forecast API attempts by result.",
	}, []string{"result"})

	// Dispatch metrics

	MessagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast_bot",
		Name:      "messages_sent_total",
		Help:      "Telegram message chunks delivered.",
	})

	RecipientFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast_bot",
		Name:      "recipient_failures_total",
		Help:      "Recipients that could not be delivered to.",
	})

	FloodWaitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast_bot",
		Name:      "flood_waits_total",
		Help:      "Rate limit responses that paused the dispatcher.",
	})

	// Ledger metrics

	SweptRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast_bot",
		Name:      "swept_runs_total",
		Help:      "Pending runs marked failed at startup.",
	})
)

func Register() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		RunsInFlight,
		UpstreamRequestsTotal,
		MessagesSentTotal,
		RecipientFailuresTotal,
		FloodWaitsTotal,
		SweptRunsTotal,
	)
}

func NewServer(addr string, checker *Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
