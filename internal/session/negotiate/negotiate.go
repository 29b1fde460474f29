// Package negotiate mediates changes to the two mutable session
// parameters: the per-minute rate and the format multiplier.
//
// The host may only propose; the participant applies directly or approves
// a host proposal. Only one proposal per kind is live at a time; a newer
// proposal of the same kind silently replaces the pending one.
package negotiate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/metrics"
	"github.com/huddleworks/livesession/internal/session/model"
)

// Kind identifies which parameter a proposal targets.
type Kind string

const (
	KindRate       Kind = "rate"
	KindMultiplier Kind = "multiplier"
)

// Engine holds the participant-side pending proposals.
type Engine struct {
	pending map[Kind]model.Proposal
}

func NewEngine() *Engine {
	return &Engine{pending: make(map[Kind]model.Proposal)}
}

// Receive records a host proposal, replacing any pending one of the same
// kind (last-proposal-wins; no queueing).
func (e *Engine) Receive(kind Kind, p model.Proposal) {
	if _, replaced := e.pending[kind]; replaced {
		metrics.ProposalsTotal.WithLabelValues(string(kind), "replaced").Inc()
	}
	e.pending[kind] = p
	metrics.ProposalsTotal.WithLabelValues(string(kind), "opened").Inc()
}

// Pending returns the live proposal of a kind, if any.
func (e *Engine) Pending(kind Kind) (model.Proposal, bool) {
	p, ok := e.pending[kind]
	return p, ok
}

// Accept resolves the pending proposal of a kind and returns the value to
// apply. The caller publishes the canonical applied event plus the
// approval response.
func (e *Engine) Accept(kind Kind) (model.Proposal, error) {
	p, ok := e.pending[kind]
	if !ok {
		return model.Proposal{}, fmt.Errorf("no pending %s proposal", kind)
	}
	delete(e.pending, kind)
	metrics.ProposalsTotal.WithLabelValues(string(kind), "accepted").Inc()
	return p, nil
}

// Decline resolves the pending proposal of a kind leaving state untouched.
func (e *Engine) Decline(kind Kind) (model.Proposal, error) {
	p, ok := e.pending[kind]
	if !ok {
		return model.Proposal{}, fmt.Errorf("no pending %s proposal", kind)
	}
	delete(e.pending, kind)
	metrics.ProposalsTotal.WithLabelValues(string(kind), "declined").Inc()
	return p, nil
}

// ValidateValue rejects non-positive parameter values. Multipliers must
// additionally be at least 1.
func ValidateValue(kind Kind, v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%s must be positive, got %s", kind, v)
	}
	if kind == KindMultiplier && v.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("multiplier must be >= 1, got %s", v)
	}
	return nil
}
