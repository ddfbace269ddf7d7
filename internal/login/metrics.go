// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package login

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Token cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
)

// Attempt outcome labels besides the failure kinds.
const (
	OutcomeSuccess         = "success"
	OutcomeStartupRejected = "startup_rejected"
)

// LoginAttempts counts establishment attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trainerbot_login_attempts_total",
		Help: "Total number of session establishment attempts",
	},
	[]string{"kind"},
)

// LoginDuration is the histogram of establishment duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "trainerbot_login_duration_seconds",
		Help:    "Session establishment duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"success"},
)

// TokenCacheLookups counts token cache lookups by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var TokenCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trainerbot_token_cache_total",
		Help: "Total number of token cache lookups",
	},
	[]string{"result"},
)

// RegisterMetrics registers login metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(LoginDuration)
	reg.MustRegister(TokenCacheLookups)
}

// RecordAttempt records one establishment attempt.
func RecordAttempt(kind string, success bool, duration time.Duration) {
	LoginAttempts.WithLabelValues(kind).Inc()
	label := "false"
	if success {
		label = "true"
	}
	LoginDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordTokenLookup records a token cache lookup (use Cache* constants).
func RecordTokenLookup(result string) {
	TokenCacheLookups.WithLabelValues(result).Inc()
}
