// Package metrics exposes the Prometheus collectors of the routine engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionsStarted counts sessions by how their template was chosen ("explicit" or "selected").
var SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kanso",
	Name:      "sessions_started_total",
	Help:      "Total routine sessions started.",
}, []string{"mode"})

// SessionsEnded counts terminal sessions by state.
var SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kanso",
	Name:      "sessions_ended_total",
	Help:      "Total routine sessions that reached a terminal state.",
}, []string{"state"})

// SessionsActive tracks sessions currently held in memory.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "kanso",
	Name:      "sessions_active",
	Help:      "Number of routine sessions in progress.",
})

// SessionDuration tracks how long completed sessions took.
var SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "kanso",
	Name:      "session_duration_seconds",
	Help:      "Duration of completed routine sessions in seconds.",
	Buckets:   []float64{60, 300, 600, 900, 1800, 3600, 7200},
})

// TemplateSelections counts smart selections by outcome ("matched", "default", "none").
var TemplateSelections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kanso",
	Name:      "template_selections_total",
	Help:      "Total context based template selections.",
}, []string{"outcome"})

// Deliveries counts completion deliveries per sink and result ("ok", "retry", "dead").
var Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kanso",
	Name:      "deliveries_total",
	Help:      "Completion record deliveries by sink and result.",
}, []string{"sink", "result"})

// OutboxPending tracks undelivered rows in the offline outbox.
var OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "kanso",
	Name:      "outbox_pending",
	Help:      "Number of completion deliveries waiting for retry.",
})

// AuthRejections counts requests refused by the auth middleware by reason
// ("missing", "malformed", "expired", "invalid").
var AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kanso",
	Name:      "auth_rejections_total",
	Help:      "Requests rejected by bearer token authentication.",
}, []string{"reason"})

// RateLimited counts requests refused with 429 by key scope ("user" or "ip").
var RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kanso",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the rate limiter.",
}, []string{"scope"})
