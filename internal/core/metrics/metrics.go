//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package metrics holds the engine's Prometheus collectors.  They register
// with the default registry and are served by the decision points at
// /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fail-closed stages.
const (
	StageDirectory  = "directory"
	StageSafetyFlag = "safety_flag"
	StageConsent    = "consent"
	StageGrants     = "grants"
)

var (
	decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ace_decisions_total",
			Help: "Access decisions by outcome",
		},
		[]string{"outcome"},
	)

	decisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ace_decision_duration_seconds",
			Help:    "Time spent evaluating access requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	failClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ace_fail_closed_total",
			Help: "Lookups that could not complete and were converted to the restrictive outcome",
		},
		[]string{"stage"},
	)

	grantsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ace_grants_created_total",
			Help: "Access grants authorized through justification",
		},
	)

	grantsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ace_grant_cache_swept_total",
			Help: "Inactive grants evicted from the grant cache",
		},
	)
)

// Decision counts one evaluation.
func Decision(outcome string, elapsed time.Duration) {
	decisions.WithLabelValues(outcome).Inc()
	decisionDuration.Observe(elapsed.Seconds())
}

// FailClosed counts one lookup failure converted at stage.
func FailClosed(stage string) {
	failClosed.WithLabelValues(stage).Inc()
}

// GrantCreated counts one new grant.
func GrantCreated() {
	grantsCreated.Inc()
}

// GrantsSwept adds n evicted cache entries.
func GrantsSwept(n int) {
	grantsSwept.Add(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
