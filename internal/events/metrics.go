// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package events

import "github.com/prometheus/client_golang/prometheus"

// Push event handling results.
const (
	ResultHandled = "handled"
	ResultIgnored = "ignored"
	ResultError   = "error"
)

// PushEvents counts push events handled by the bridge.
// Use RegisterMetrics to register this with a Prometheus registry.
var PushEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trainerbot_push_events_total",
		Help: "Total number of server push events handled",
	},
	[]string{"event", "result"},
)

// RegisterMetrics registers the bridge metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(PushEvents)
}

func recordPushEvent(event, result string) {
	PushEvents.WithLabelValues(event, result).Inc()
}
