// Package metrics exposes the Prometheus collectors of the service: HTTP
// traffic, webhook deliveries, applied checkout sessions, coin movements and
// reconciliation runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reevlo"

// Webhook results.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultFailed    = "failed"
)

var (
	// Registry holds the service collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	webhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stripe",
		Name:      "webhook_events_total",
		Help:      "Webhook events received, by event type and result.",
	}, []string{"type", "result"})

	sessionsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "sessions_applied_total",
		Help:      "Checkout sessions applied, by checkout type and source.",
	}, []string{"type", "source"})

	coinsCredited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "coins_credited_total",
		Help:      "Coins credited to balances, by source.",
	}, []string{"source"})

	payoutsRequested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "payouts_requested_total",
		Help:      "Payout requests accepted.",
	})

	payoutCoins = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "payout_coins_total",
		Help:      "Coins deducted by accepted payout requests.",
	})

	syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "runs_total",
		Help:      "Balance synchronization runs, by trigger and success.",
	}, []string{"trigger", "success"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		webhookEvents,
		sessionsApplied,
		coinsCredited,
		payoutsRequested,
		payoutCoins,
		syncRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler is a chi middleware recording request count and duration
// labelled with the matched route pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordWebhookEvent counts a webhook delivery.
func RecordWebhookEvent(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordSessionApplied counts an applied checkout session and the coins it
// credited, if any.
func RecordSessionApplied(checkoutType, source string, coins int64) {
	sessionsApplied.WithLabelValues(checkoutType, source).Inc()
	if coins > 0 {
		coinsCredited.WithLabelValues(source).Add(float64(coins))
	}
}

// RecordCoinsCredited counts coins credited outside a checkout session.
func RecordCoinsCredited(source string, coins int64) {
	if coins > 0 {
		coinsCredited.WithLabelValues(source).Add(float64(coins))
	}
}

// RecordPayout counts an accepted payout request.
func RecordPayout(coins int64) {
	payoutsRequested.Inc()
	payoutCoins.Add(float64(coins))
}

// RecordSyncRun counts a synchronization run.
func RecordSyncRun(trigger string, success bool) {
	syncRuns.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
