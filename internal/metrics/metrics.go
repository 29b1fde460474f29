// Package metrics provides Prometheus metrics for the live session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label cardinality is bounded: event types, phases, and reasons are closed
// enums. Never label by session_id or user name.

var (
	// EventsPublishedTotal counts control events published to the channel.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livesession_events_published_total",
		Help: "Total control events published to the broadcast channel, by event type.",
	}, []string{"type"})

	// EventsReceivedTotal counts control events received from the channel.
	EventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livesession_events_received_total",
		Help: "Total control events received from the broadcast channel, by event type.",
	}, []string{"type"})

	// EventsDroppedTotal counts events dropped before delivery.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livesession_events_dropped_total",
		Help: "Total events dropped by the bus, by reason (buffer_full, decode, canceled).",
	}, []string{"reason"})

	// OutOfPhaseTotal counts events discarded by the lifecycle phase guard.
	OutOfPhaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livesession_out_of_phase_events_total",
		Help: "Total events discarded because the lifecycle phase did not expect them, by event type and phase.",
	}, []string{"type", "phase"})

	// TransitionsTotal counts lifecycle phase transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livesession_phase_transitions_total",
		Help: "Total lifecycle phase transitions, by from and to phase.",
	}, []string{"from", "to"})

	// ClockPausesTotal counts session clock pauses.
	ClockPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livesession_clock_pauses_total",
		Help: "Total session clock pauses.",
	})

	// ClockResumesTotal counts session clock resumes.
	ClockResumesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livesession_clock_resumes_total",
		Help: "Total session clock resumes.",
	})

	// ProposalsTotal counts negotiation proposals by kind and outcome.
	ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livesession_proposals_total",
		Help: "Total negotiation proposals, by kind and outcome (opened, accepted, declined, replaced).",
	}, []string{"kind", "outcome"})

	// PresentationRejectionsTotal counts locally rejected presentation starts.
	PresentationRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livesession_presentation_rejections_total",
		Help: "Total presentation start attempts rejected because the other party was presenting.",
	})

	// SessionsAbandonedTotal counts sessions that ended on the abnormal path.
	SessionsAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livesession_sessions_abandoned_total",
		Help: "Total sessions terminated without completing the payment and delivery flow.",
	})
)

// IncDropReason records a bus-level drop.
func IncDropReason(reason string) {
	EventsDroppedTotal.WithLabelValues(reason).Inc()
}
