package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huddleworks/livesession/internal/session/model"
)

var allPhases = []model.Phase{
	model.PhaseActive,
	model.PhaseEndRequested,
	model.PhaseAwaitingPayment,
	model.PhaseAwaitingFileUpload,
	model.PhaseAwaitingFileDownload,
	model.PhaseAwaitingRating,
	model.PhaseCompleted,
	model.PhaseAbandoned,
}

var allTriggers = []Trigger{
	TrEndRequested,
	TrContinueSession,
	TrAcceptEnd,
	TrPaymentCompleted,
	TrFileUploaded,
	TrFileDownloaded,
	TrRatingCompleted,
	TrAbandon,
}

func TestTransitionTable_Coverage(t *testing.T) {
	allowed := map[model.Phase]map[Trigger]struct{}{}
	for _, tr := range transitionsTable {
		if _, ok := allowed[tr.From]; !ok {
			allowed[tr.From] = map[Trigger]struct{}{}
		}
		if _, exists := allowed[tr.From][tr.Trigger]; exists {
			t.Fatalf("duplicate transition: %s + %v", tr.From, tr.Trigger)
		}
		allowed[tr.From][tr.Trigger] = struct{}{}
	}

	for _, phase := range allPhases {
		for _, trig := range allTriggers {
			decision := DecisionFor(phase, trig)
			if trig == TrAbandon {
				require.Equal(t, !phase.IsTerminal(), decision.Allowed,
					"abandon must be allowed exactly from non-terminal phases (%s)", phase)
				continue
			}
			if _, ok := allowed[phase][trig]; ok {
				require.True(t, decision.Allowed, "allowed transition rejected: %s + %v", phase, trig)
				require.NotEmpty(t, decision.To)
				continue
			}
			require.False(t, decision.Allowed, "forbidden transition accepted: %s + %v", phase, trig)
			require.NotEmpty(t, decision.Reason, "forbidden transition needs a reason: %s + %v", phase, trig)
		}
	}
}

func TestHappyPath(t *testing.T) {
	phase := model.PhaseActive
	for _, trig := range []Trigger{
		TrEndRequested, TrAcceptEnd, TrPaymentCompleted,
		TrFileUploaded, TrFileDownloaded, TrRatingCompleted,
	} {
		d := DecisionFor(phase, trig)
		require.True(t, d.Allowed, "%s + %v", phase, trig)
		phase = d.To
	}
	require.Equal(t, model.PhaseCompleted, phase)
	require.True(t, phase.IsTerminal())
}

func TestDuplicateDeliveryIsRejected(t *testing.T) {
	// Delivering the same lifecycle event twice must not advance twice.
	d := DecisionFor(model.PhaseActive, TrEndRequested)
	require.True(t, d.Allowed)
	again := DecisionFor(d.To, TrEndRequested)
	require.False(t, again.Allowed)

	d = DecisionFor(model.PhaseAwaitingPayment, TrPaymentCompleted)
	require.True(t, d.Allowed)
	require.Equal(t, model.PhaseAwaitingFileUpload, d.To)
	require.False(t, DecisionFor(d.To, TrPaymentCompleted).Allowed)
}

func TestContinueSessionReturnsToActive(t *testing.T) {
	d := DecisionFor(model.PhaseEndRequested, TrContinueSession)
	require.True(t, d.Allowed)
	require.Equal(t, model.PhaseActive, d.To)
}

func TestHostSkipsAwaitingPaymentOnPaymentEvidence(t *testing.T) {
	d := DecisionFor(model.PhaseEndRequested, TrPaymentCompleted)
	require.True(t, d.Allowed)
	require.Equal(t, model.PhaseAwaitingFileUpload, d.To)
}

func TestNoRegressionFromLaterPhases(t *testing.T) {
	// Events from earlier in the flow must never re-enter a later state
	// from an earlier one, or regress the phase.
	require.False(t, DecisionFor(model.PhaseAwaitingRating, TrFileUploaded).Allowed)
	require.False(t, DecisionFor(model.PhaseCompleted, TrRatingCompleted).Allowed)
	require.False(t, DecisionFor(model.PhaseAwaitingFileDownload, TrAcceptEnd).Allowed)
}

func TestAbandonFromEveryNonTerminalPhase(t *testing.T) {
	for _, phase := range allPhases {
		tr, ok := TransitionFor(phase, TrAbandon)
		if phase.IsTerminal() {
			require.False(t, ok, phase)
			continue
		}
		require.True(t, ok, phase)
		require.Equal(t, model.PhaseAbandoned, tr.To)
	}
}
