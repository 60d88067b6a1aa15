// Package metrics holds the Prometheus collectors for engine sessions and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

// TurnBuckets covers agent turns from a second to half an hour.
var TurnBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}

var (
	SessionsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpilot_sessions_started_total",
			Help: "Turns started",
		},
		[]string{"engine"},
	)

	SessionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpilot_sessions_completed_total",
			Help: "Turns completed",
		},
		[]string{"engine", "status"},
	)

	ActiveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devpilot_sessions_active",
			Help: "Turns currently streaming",
		},
		[]string{"engine"},
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devpilot_turn_duration_seconds",
			Help:    "Turn duration",
			Buckets: TurnBuckets,
		},
		[]string{"engine"},
	)

	// TokensTotal counts tokens by category (input, output, cache_write, cache_read).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpilot_tokens_total",
			Help: "Token count",
		},
		[]string{"engine", "model", "category"},
	)

	CostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpilot_cost_total",
			Help: "Estimated cost",
		},
		[]string{"engine", "model"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpilot_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStartedTotal,
		SessionsCompletedTotal,
		ActiveSessions,
		TurnDuration,
		TokensTotal,
		CostTotal,
		HTTPRequestsTotal,
	)
}

func TurnStarted(engine string) {
	SessionsStartedTotal.WithLabelValues(engine).Inc()
	ActiveSessions.WithLabelValues(engine).Inc()
}

// TurnFinished records a finished turn with its own usage and cost.
func TurnFinished(engine, model string, success bool, duration time.Duration, usage proto.Usage, cost proto.Cost) {
	status := "success"
	if !success {
		status = "failure"
	}
	if model == "" {
		model = "unknown"
	}

	ActiveSessions.WithLabelValues(engine).Dec()
	SessionsCompletedTotal.WithLabelValues(engine, status).Inc()
	TurnDuration.WithLabelValues(engine).Observe(duration.Seconds())

	for category, n := range map[string]int64{
		"input":       usage.InputTokens,
		"output":      usage.OutputTokens,
		"cache_write": usage.CacheWriteTokens,
		"cache_read":  usage.CacheReadTokens,
	} {
		if n > 0 {
			TokensTotal.WithLabelValues(engine, model, category).Add(float64(n))
		}
	}
	if cost.Total > 0 {
		CostTotal.WithLabelValues(engine, model).Add(cost.Total)
	}
}

// HTTPRequest records a served request. Status is reported by class ("2xx").
func HTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Inc()
}
