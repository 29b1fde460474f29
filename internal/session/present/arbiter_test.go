package present

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huddleworks/livesession/internal/session/model"
)

func TestStartRejectedWhileRemotePresents(t *testing.T) {
	a := NewArbiter(model.RoleParticipant)

	require.False(t, a.ObserveStarted(model.PresentationHost))
	require.Equal(t, model.PresentationHost, a.Current())

	err := a.Start()
	var busy *ErrBusy
	require.True(t, errors.As(err, &busy))
	require.Equal(t, model.PresentationHost, busy.Holder)
}

func TestStartStopRoundTrip(t *testing.T) {
	a := NewArbiter(model.RoleHost)

	require.NoError(t, a.Start())
	require.True(t, a.SelfPresenting())

	require.True(t, a.Stop())
	require.Equal(t, model.PresentationNone, a.Current())
	require.False(t, a.Stop())
}

func TestAbortRollsBackFailedCapture(t *testing.T) {
	a := NewArbiter(model.RoleHost)
	require.NoError(t, a.Start())

	// Permission denied at the OS layer: state must return to none.
	a.Abort()
	require.Equal(t, model.PresentationNone, a.Current())
}

func TestDuplicateStartedEventIsIdempotent(t *testing.T) {
	a := NewArbiter(model.RoleParticipant)

	a.ObserveStarted(model.PresentationHost)
	a.ObserveStarted(model.PresentationHost)
	require.Equal(t, model.PresentationHost, a.Current())

	a.ObserveStopped(model.PresentationHost)
	require.Equal(t, model.PresentationNone, a.Current())
}

func TestOwnEchoIsIgnored(t *testing.T) {
	a := NewArbiter(model.RoleHost)
	require.NoError(t, a.Start())

	require.False(t, a.ObserveStarted(model.PresentationHost))
	require.True(t, a.SelfPresenting())
}

func TestDoubleAcquireTieBreak(t *testing.T) {
	host := NewArbiter(model.RoleHost)
	part := NewArbiter(model.RoleParticipant)

	// Both start before either sees the other's event.
	require.NoError(t, host.Start())
	require.NoError(t, part.Start())

	// Events cross: one round trip later both converge on the host.
	yield := part.ObserveStarted(model.PresentationHost)
	require.True(t, yield)

	hostYield := host.ObserveStarted(model.PresentationParticipant)
	require.False(t, hostYield)

	// The yielding participant publishes its stop; the host observes it.
	require.False(t, part.Stop()) // slot already ceded to the host
	host.ObserveStopped(model.PresentationParticipant)

	require.Equal(t, model.PresentationHost, host.Current())
	require.Equal(t, model.PresentationHost, part.Current())
}

func TestRemoteTrackEndedClearsWithoutEcho(t *testing.T) {
	a := NewArbiter(model.RoleParticipant)
	a.ObserveStarted(model.PresentationHost)

	require.True(t, a.RemoteTrackEnded())
	require.Equal(t, model.PresentationNone, a.Current())

	// Not cleared again, and never cleared while we present ourselves.
	require.False(t, a.RemoteTrackEnded())
	require.NoError(t, a.Start())
	require.False(t, a.RemoteTrackEnded())
	require.True(t, a.SelfPresenting())
}

// Exclusivity invariant: for all interleavings of start/stop on both
// peers, the two local views never hold two different non-none presenters
// for longer than one event round trip.
func TestExclusivityUnderInterleavings(t *testing.T) {
	type step struct {
		name  string
		apply func(host, part *Arbiter)
	}
	steps := []step{
		{"host starts, part observes", func(h, p *Arbiter) {
			if h.Start() == nil {
				p.ObserveStarted(model.PresentationHost)
			}
		}},
		{"part starts, host observes", func(h, p *Arbiter) {
			if p.Start() == nil {
				h.ObserveStarted(model.PresentationParticipant)
			}
		}},
		{"host stops, part observes", func(h, p *Arbiter) {
			if h.Stop() {
				p.ObserveStopped(model.PresentationHost)
			}
		}},
		{"part stops, host observes", func(h, p *Arbiter) {
			if p.Stop() {
				h.ObserveStopped(model.PresentationParticipant)
			}
		}},
	}

	// Exhaustive sequences of length 4.
	var run func(h, p *Arbiter, depth int, trace string)
	run = func(h, p *Arbiter, depth int, trace string) {
		if h.Current() != p.Current() &&
			h.Current() != model.PresentationNone &&
			p.Current() != model.PresentationNone {
			t.Fatalf("diverged views after %s: host=%s part=%s", trace, h.Current(), p.Current())
		}
		if depth == 0 {
			return
		}
		for _, s := range steps {
			hc, pc := *h, *p
			s.apply(&hc, &pc)
			run(&hc, &pc, depth-1, trace+" -> "+s.name)
		}
	}
	run(NewArbiter(model.RoleHost), NewArbiter(model.RoleParticipant), 4, "start")
}
