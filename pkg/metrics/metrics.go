// Package metrics registers the prometheus instruments for the sync
// engine. Counters are registered on the default registry and exposed by
// the debug listener's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts outbound requests by classification outcome:
	// ok, timeout, unreachable, session_expired, server_error.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gramsync_requests_total",
		Help: "Outbound API requests by outcome.",
	}, []string{"outcome"})

	// PushEventsTotal counts decoded push-channel events by type.
	PushEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gramsync_push_events_total",
		Help: "Push channel events received, by event type.",
	}, []string{"type"})

	// PushReconnectsTotal counts silent reconnect attempts.
	PushReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gramsync_push_reconnects_total",
		Help: "Push channel reconnect attempts.",
	})

	// SessionTransitionsTotal counts session state transitions by target
	// state: authenticated, unauthenticated.
	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gramsync_session_transitions_total",
		Help: "Session state transitions by target state.",
	}, []string{"to"})

	// CacheMergesTotal counts message merges by result: merged, duplicate.
	CacheMergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gramsync_cache_merges_total",
		Help: "Conversation message merges by result.",
	}, []string{"result"})
)
