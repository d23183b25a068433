// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthAttempts counts authentication attempts by outcome kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "passgate_auth_attempts_total",
		Help: "Total number of authentication attempts by outcome",
	},
	[]string{"outcome"},
)

// VerifyDuration observes how long credential verification takes.
// Use RegisterMetrics to register this with a Prometheus registry.
var VerifyDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "passgate_auth_verify_duration_seconds",
		Help:    "Credential verification duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
)

// SessionEvents counts session binding changes by event (commit, clear, stale).
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "passgate_session_events_total",
		Help: "Total number of session binding events by type",
	},
	[]string{"event"},
)

// Registrations counts registration attempts by status.
// Use RegisterMetrics to register this with a Prometheus registry.
var Registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "passgate_registrations_total",
		Help: "Total number of registration attempts by status",
	},
	[]string{"status"},
)

// Session event labels.
const (
	SessionEventCommit = "commit"
	SessionEventClear  = "clear"
	SessionEventStale  = "stale"
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthAttempts)
	reg.MustRegister(VerifyDuration)
	reg.MustRegister(SessionEvents)
	reg.MustRegister(Registrations)
}

func observeVerify(start time.Time) {
	VerifyDuration.Observe(time.Since(start).Seconds())
}
