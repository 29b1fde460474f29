// Package lifecycle defines the session phase state machine as a
// transition table. All phase changes go through DecisionFor so re-delivered
// and out-of-phase events are rejected in one place instead of per handler.
package lifecycle

import "github.com/huddleworks/livesession/internal/session/model"

// Trigger is a domain event that may advance the lifecycle phase.
type Trigger int

const (
	TrUnknown Trigger = iota
	TrEndRequested
	TrContinueSession
	TrAcceptEnd
	TrPaymentCompleted
	TrFileUploaded
	TrFileDownloaded
	TrRatingCompleted
	TrAbandon
)

func (t Trigger) String() string {
	switch t {
	case TrEndRequested:
		return "end_requested"
	case TrContinueSession:
		return "continue_session"
	case TrAcceptEnd:
		return "accept_end"
	case TrPaymentCompleted:
		return "payment_completed"
	case TrFileUploaded:
		return "file_uploaded"
	case TrFileDownloaded:
		return "file_downloaded"
	case TrRatingCompleted:
		return "rating_completed"
	case TrAbandon:
		return "abandon"
	}
	return "unknown"
}

// Transition is a single allowed edge in the phase state machine.
type Transition struct {
	From    model.Phase
	To      model.Phase
	Trigger Trigger
}

// Decision records whether a transition is allowed and why it is forbidden.
type Decision struct {
	Allowed bool
	To      model.Phase
	Reason  string
}

var transitionsTable = []Transition{
	{From: model.PhaseActive, To: model.PhaseEndRequested, Trigger: TrEndRequested},

	// The participant either declines to end (back to Active) or accepts
	// and enters the payment flow.
	{From: model.PhaseEndRequested, To: model.PhaseActive, Trigger: TrContinueSession},
	{From: model.PhaseEndRequested, To: model.PhaseAwaitingPayment, Trigger: TrAcceptEnd},

	// The host has no explicit "participant accepted" signal; its first
	// evidence of acceptance is the payment itself, so payment_completed
	// advances from EndRequested as well.
	{From: model.PhaseEndRequested, To: model.PhaseAwaitingFileUpload, Trigger: TrPaymentCompleted},
	{From: model.PhaseAwaitingPayment, To: model.PhaseAwaitingFileUpload, Trigger: TrPaymentCompleted},

	{From: model.PhaseAwaitingFileUpload, To: model.PhaseAwaitingFileDownload, Trigger: TrFileUploaded},
	{From: model.PhaseAwaitingFileDownload, To: model.PhaseAwaitingRating, Trigger: TrFileDownloaded},
	{From: model.PhaseAwaitingRating, To: model.PhaseCompleted, Trigger: TrRatingCompleted},
}

// TransitionFor returns the allowed transition for a given phase+trigger.
func TransitionFor(from model.Phase, tr Trigger) (Transition, bool) {
	if tr == TrAbandon {
		if from.IsTerminal() {
			return Transition{}, false
		}
		return Transition{From: from, To: model.PhaseAbandoned, Trigger: TrAbandon}, true
	}
	for _, t := range transitionsTable {
		if t.From == from && t.Trigger == tr {
			return t, true
		}
	}
	return Transition{}, false
}

// DecisionFor evaluates a trigger against the current phase. A forbidden
// decision is the normal outcome of duplicate or out-of-phase delivery on
// an unreliable channel: log it, count it, ignore it.
func DecisionFor(from model.Phase, tr Trigger) Decision {
	if t, ok := TransitionFor(from, tr); ok {
		return Decision{Allowed: true, To: t.To}
	}
	if from.IsTerminal() {
		return Decision{Allowed: false, Reason: "session already terminal in phase " + string(from)}
	}
	return Decision{Allowed: false, Reason: "trigger " + tr.String() + " not expected in phase " + string(from)}
}
