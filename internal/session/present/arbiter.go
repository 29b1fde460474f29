// Package present enforces single-presenter exclusivity for the screen
// share resource. Exclusion is optimistic: each peer checks its local view
// before acquiring, and a simultaneous double-acquire is resolved on the
// next event round trip with a deterministic host-wins tie-break.
package present

import (
	"fmt"

	"github.com/huddleworks/livesession/internal/metrics"
	"github.com/huddleworks/livesession/internal/session/model"
)

// ErrBusy rejects a local start while the other party presents.
type ErrBusy struct {
	Holder model.Presentation
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("presentation held by %s; ask the other party to stop first", e.Holder)
}

// Arbiter tracks the locally inferred presentation holder for one peer.
// Driven only by the coordinator goroutine.
type Arbiter struct {
	self    model.Presentation
	current model.Presentation
}

func NewArbiter(role model.Role) *Arbiter {
	return &Arbiter{
		self:    model.ByRole(role),
		current: model.PresentationNone,
	}
}

func (a *Arbiter) Current() model.Presentation { return a.current }

func (a *Arbiter) SelfPresenting() bool { return a.current == a.self }

// Start acquires the presentation slot locally. The caller only touches the
// media engine and the clock after Start succeeds, so a rejected or
// permission-denied start leaves both untouched.
func (a *Arbiter) Start() error {
	if a.current != model.PresentationNone {
		metrics.PresentationRejectionsTotal.Inc()
		return &ErrBusy{Holder: a.current}
	}
	a.current = a.self
	return nil
}

// Abort rolls back a local Start that failed at the capture layer.
func (a *Arbiter) Abort() {
	if a.current == a.self {
		a.current = model.PresentationNone
	}
}

// Stop releases a locally held slot. Returns false if we were not the
// presenter (nothing to publish).
func (a *Arbiter) Stop() bool {
	if a.current != a.self {
		return false
	}
	a.current = model.PresentationNone
	return true
}

// ObserveStarted applies a remote screen_share_started event. The returned
// yield flag is true when both peers started near-simultaneously and this
// peer loses the tie-break: the host keeps the slot, the participant stops
// its own share.
func (a *Arbiter) ObserveStarted(who model.Presentation) (yield bool) {
	if who == a.self {
		// Echo of our own start (duplicate delivery); nothing to do.
		return false
	}
	switch a.current {
	case model.PresentationNone:
		a.current = who
	case a.self:
		// Double-acquire race. Host authority wins.
		if who == model.PresentationHost {
			a.current = who
			return true
		}
		// We are the host: keep the slot, the participant yields on its
		// side when it observes our started event.
	}
	return false
}

// ObserveStopped applies a remote screen_share_stopped event.
func (a *Arbiter) ObserveStopped(who model.Presentation) {
	if a.current == who {
		a.current = model.PresentationNone
	}
}

// RemoteTrackEnded clears the remote presenter when its screen track
// disappears. The stop event was already published by the presenter, so
// the observer must not republish it. This is the no-echo path.
func (a *Arbiter) RemoteTrackEnded() (cleared bool) {
	if a.current != model.PresentationNone && a.current != a.self {
		a.current = model.PresentationNone
		return true
	}
	return false
}
