package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "review_notifier"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	LedgerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ledger_events_total", Help: "Ledger claims/duplicates/releases."},
		[]string{"ledger", "event"}, // event: claim|duplicate|release
	)
	ReviewsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reviews_fetched_total", Help: "Reviews returned by the stores."},
		[]string{"platform"},
	)
	ReviewsNotified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reviews_notified_total", Help: "Review notifications by outcome."},
		[]string{"platform", "outcome"}, // outcome: sent|failed|duplicate
	)
	PollRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "poll_runs_total", Help: "Poll runs by status."},
		[]string{"platform", "status"},
	)
)

// Serve exposes the default registry on METRICS_ADDR when set.
func Serve(addr string) {
	if addr == "" {
		return // disabled
	}
	reg := InitRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry returns the process-wide registry, creating it on first use.
func InitRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency,
			LedgerEvents, ReviewsFetched, ReviewsNotified, PollRuns)
	})
	return registry
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObserveExternal records one outbound call; status 0 means no response.
func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveLedger(ledger, event string) {
	LedgerEvents.WithLabelValues(ledger, event).Inc()
}

func ObserveFetched(platform string, n int) {
	ReviewsFetched.WithLabelValues(platform).Add(float64(n))
}

func ObserveNotified(platform, outcome string) {
	ReviewsNotified.WithLabelValues(platform, outcome).Inc()
}

func ObservePoll(platform string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	PollRuns.WithLabelValues(platform, status).Inc()
}

// Transport records every round trip as an external request of service.
type Transport struct {
	Service string
	Base    http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	ObserveExternal(t.Service, req.URL.Host, status, time.Since(start))
	return resp, err
}
