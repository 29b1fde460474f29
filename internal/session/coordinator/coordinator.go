// Package coordinator runs one peer of the live session protocol: a single
// event loop reacting to broadcast channel messages, media engine signals,
// the 1-second billing tick and local user intents. Both peers run the
// same loop; the role decides which authority each exercises.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/bus"
	"github.com/huddleworks/livesession/internal/log"
	"github.com/huddleworks/livesession/internal/metrics"
	"github.com/huddleworks/livesession/internal/session/clock"
	"github.com/huddleworks/livesession/internal/session/lifecycle"
	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/negotiate"
	"github.com/huddleworks/livesession/internal/session/ports"
	"github.com/huddleworks/livesession/internal/session/present"
	"github.com/huddleworks/livesession/internal/session/store"
)

// ErrSessionClosed is returned by intent methods after the loop has exited.
var ErrSessionClosed = errors.New("session closed")

// Config wires one coordinator instance.
type Config struct {
	SessionID string
	Role      model.Role
	SelfName  string
	PeerName  string

	HostID        string
	ParticipantID string

	TaxRate decimal.Decimal

	// TickInterval defaults to one second; tests shorten it.
	TickInterval time.Duration
}

// Coordinator drives one peer's session state machine.
type Coordinator struct {
	cfg Config

	bus       bus.Bus
	media     ports.MediaEngine
	payments  ports.PaymentExecutor
	files     ports.FileStore
	profiles  ports.ProfileLookup
	approvals store.ApprovalStore

	clock   *clock.Clock
	engine  *negotiate.Engine
	arbiter *present.Arbiter

	mu    sync.Mutex
	state *model.SessionState

	cmds    chan command
	results chan opResult
	done    chan struct{}

	inflight map[string]bool

	logger zerolog.Logger
}

// Deps collects the external collaborators.
type Deps struct {
	Bus       bus.Bus
	Media     ports.MediaEngine
	Payments  ports.PaymentExecutor
	Files     ports.FileStore
	Profiles  ports.ProfileLookup
	Approvals store.ApprovalStore
	Durations ports.DurationCache
}

func New(cfg Config, deps Deps) (*Coordinator, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("coordinator: SessionID must be set")
	}
	if cfg.Role != model.RoleHost && cfg.Role != model.RoleParticipant {
		return nil, fmt.Errorf("coordinator: invalid role %q", cfg.Role)
	}
	if cfg.SelfName == "" {
		return nil, errors.New("coordinator: SelfName must be set")
	}
	if deps.Bus == nil || deps.Media == nil || deps.Approvals == nil {
		return nil, errors.New("coordinator: Bus, Media and Approvals are required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	logger := log.WithSession("coordinator", cfg.SessionID, string(cfg.Role))

	return &Coordinator{
		cfg:       cfg,
		bus:       deps.Bus,
		media:     deps.Media,
		payments:  deps.Payments,
		files:     deps.Files,
		profiles:  deps.Profiles,
		approvals: deps.Approvals,
		clock:     clock.New(cfg.SessionID, cfg.Role, deps.Durations, logger),
		engine:    negotiate.NewEngine(),
		arbiter:   present.NewArbiter(cfg.Role),
		state:     model.NewSessionState(cfg.SessionID, cfg.Role, cfg.SelfName, cfg.PeerName),
		cmds:      make(chan command),
		results:   make(chan opResult),
		done:      make(chan struct{}),
		inflight:  make(map[string]bool),
		logger:    logger,
	}, nil
}

// Snapshot returns a copy of the current session view.
func (c *Coordinator) Snapshot() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// Run joins the session and processes events until the lifecycle reaches a
// terminal phase or ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	sub, err := c.bus.Subscribe(ctx, bus.ControlTopic(c.cfg.SessionID))
	if err != nil {
		return fmt.Errorf("subscribe control topic: %w", err)
	}
	defer func() { _ = sub.Close() }()

	if err := c.media.Join(ctx, c.cfg.SessionID, c.cfg.SelfName); err != nil {
		return fmt.Errorf("join media session: %w", err)
	}
	defer func() { _ = c.media.Leave(context.Background()) }()

	if err := c.bootstrap(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	var ticks <-chan time.Time
	if c.cfg.Role == model.RoleHost {
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.abandon(context.Background(), "context canceled")
			c.mu.Unlock()
			return ctx.Err()

		case msg, ok := <-sub.C():
			if !ok {
				c.mu.Lock()
				c.abandon(ctx, "control channel closed")
				c.mu.Unlock()
				return nil
			}
			c.mu.Lock()
			c.handleMessage(ctx, msg)
			c.mu.Unlock()

		case ev, ok := <-c.media.Events():
			if !ok {
				c.mu.Lock()
				c.abandon(ctx, "media engine closed")
				c.mu.Unlock()
				return nil
			}
			c.mu.Lock()
			c.handleMedia(ctx, ev)
			c.mu.Unlock()

		case <-ticks:
			c.mu.Lock()
			c.handleTick(ctx)
			c.mu.Unlock()

		case cmd := <-c.cmds:
			c.mu.Lock()
			c.handleCommand(ctx, cmd)
			c.mu.Unlock()

		case res := <-c.results:
			c.mu.Lock()
			c.finishOp(ctx, res)
			c.mu.Unlock()
		}

		c.mu.Lock()
		terminal := c.state.Phase.IsTerminal()
		c.mu.Unlock()
		if terminal {
			return nil
		}
	}
}

// bootstrap publishes the role's join-time events and seeds defaults.
func (c *Coordinator) bootstrap(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Role == model.RoleHost {
		if c.profiles != nil {
			rate, err := c.profiles.DefaultRate(ctx, c.cfg.HostID)
			if err != nil {
				return fmt.Errorf("default rate lookup: %w", err)
			}
			c.state.RatePerMinute = rate
		}
		// A restarted host resumes the authoritative clock from the cache;
		// starting over at zero would under-bill the elapsed session.
		c.state.DurationSeconds = c.clock.Restore()
		c.publish(ctx, &model.SessionStart{StartedAt: time.Now().Unix()})
		return nil
	}

	// A reloaded participant paints the cached duration immediately, then
	// asks the host for authoritative values.
	c.state.DurationSeconds = c.clock.Restore()
	c.publish(ctx, &model.RequestCurrentValues{RequestedBy: c.cfg.SelfName})
	return nil
}

// handleTick advances the host clock and mirrors it to the participant.
func (c *Coordinator) handleTick(ctx context.Context) {
	d, applied := c.clock.Tick()
	if !applied {
		return
	}
	c.state.DurationSeconds = d
	c.publish(ctx, &model.TimerSync{Duration: d})
}

// applyTransition runs the phase guard and applies the transition if
// allowed. Forbidden decisions are the normal fate of duplicate or
// out-of-phase events: counted, logged at debug, ignored.
func (c *Coordinator) applyTransition(tr lifecycle.Trigger, cause string) bool {
	decision := lifecycle.DecisionFor(c.state.Phase, tr)
	if !decision.Allowed {
		metrics.OutOfPhaseTotal.WithLabelValues(cause, string(c.state.Phase)).Inc()
		c.logger.Debug().
			Str("cause", cause).
			Str("phase", string(c.state.Phase)).
			Str("reason", decision.Reason).
			Msg("ignoring out-of-phase event")
		return false
	}
	metrics.TransitionsTotal.WithLabelValues(string(c.state.Phase), string(decision.To)).Inc()
	c.logger.Info().
		Str("from", string(c.state.Phase)).
		Str("to", string(decision.To)).
		Str("cause", cause).
		Msg("phase transition")
	c.state.Phase = decision.To
	return true
}

// abandon is the abnormal termination path: release media, broadcast a
// best-effort teardown, mark the session abandoned.
func (c *Coordinator) abandon(ctx context.Context, reason string) {
	if !c.applyTransition(lifecycle.TrAbandon, "abandon:"+reason) {
		return
	}
	metrics.SessionsAbandonedTotal.Inc()
	c.logger.Warn().Str("reason", reason).Msg("session abandoned")

	if c.arbiter.SelfPresenting() {
		_ = c.media.UnpublishTrack(ctx, ports.TrackScreen)
		c.arbiter.Stop()
		c.state.Presentation = c.arbiter.Current()
	}
	// Best-effort: the peer may already be gone.
	c.publish(ctx, &model.SessionEnd{})
}

// publish encodes and sends one event. Failures are logged, not raised;
// the channel offers no delivery guarantee anyway.
func (c *Coordinator) publish(ctx context.Context, ev model.Event) {
	msg, err := model.Encode(ev, c.cfg.Role)
	if err != nil {
		c.logger.Error().Err(err).Str("type", ev.EventType()).Msg("encode failed")
		return
	}
	if err := c.bus.Publish(ctx, bus.ControlTopic(c.cfg.SessionID), msg); err != nil {
		c.logger.Warn().Err(err).Str("type", ev.EventType()).Msg("publish failed")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.EventType()).Inc()
}

// syncClockView mirrors the clock into the snapshot state.
func (c *Coordinator) syncClockView() {
	c.state.DurationSeconds = c.clock.Duration()
	c.state.ClockState = c.clock.State()
}
