// Package clock implements the session billing clock: one authoritative
// elapsed-seconds counter on the host, mirrored to the participant through
// timer sync events, cached locally for reload resilience.
package clock

import (
	"github.com/rs/zerolog"

	"github.com/huddleworks/livesession/internal/metrics"
	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/ports"
)

// Clock tracks elapsed session seconds for one peer. It is driven entirely
// by the coordinator goroutine and is not safe for concurrent use.
type Clock struct {
	sessionID string
	role      model.Role
	cache     ports.DurationCache
	logger    zerolog.Logger

	duration int64
	state    model.ClockState
	frozen   bool
}

func New(sessionID string, role model.Role, cache ports.DurationCache, logger zerolog.Logger) *Clock {
	return &Clock{
		sessionID: sessionID,
		role:      role,
		cache:     cache,
		logger:    logger,
		state:     model.ClockRunning,
	}
}

// Restore loads the last locally cached duration so a reloaded peer can
// paint a plausible value before the first timer sync overwrites it.
func (c *Clock) Restore() int64 {
	if c.cache == nil {
		return c.duration
	}
	cached, ok, err := c.cache.Get(c.sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("duration cache read failed")
		return c.duration
	}
	if ok && cached > c.duration {
		c.duration = cached
	}
	return c.duration
}

// Tick advances the host clock by one second. It returns the new duration
// and whether the tick was applied; a paused or frozen clock ignores ticks.
func (c *Clock) Tick() (int64, bool) {
	if c.role != model.RoleHost || c.state != model.ClockRunning || c.frozen {
		return c.duration, false
	}
	c.duration++
	c.persist()
	return c.duration, true
}

// Observe applies a timer sync value on the participant. Last-write-wins
// over a monotonic source; a stale re-ordered sync never moves the value
// backwards.
func (c *Clock) Observe(duration int64) {
	if c.role == model.RoleHost {
		return
	}
	if duration < c.duration {
		c.logger.Debug().
			Int64("received", duration).
			Int64("current", c.duration).
			Msg("ignoring stale timer sync")
		return
	}
	c.duration = duration
	c.persist()
}

// Pause stops the clock (presentation in progress or approval pending).
func (c *Clock) Pause() {
	if c.state == model.ClockPaused {
		return
	}
	c.state = model.ClockPaused
	metrics.ClockPausesTotal.Inc()
}

// Resume restarts the clock and lifts a billing freeze.
func (c *Clock) Resume() {
	c.frozen = false
	if c.state == model.ClockRunning {
		return
	}
	c.state = model.ClockRunning
	metrics.ClockResumesTotal.Inc()
}

// Freeze captures the billing duration at end-request time. Until Resume,
// ticks are ignored so a concurrent sync cycle cannot mutate the amount
// being approved.
func (c *Clock) Freeze() int64 {
	c.frozen = true
	c.Pause()
	return c.duration
}

func (c *Clock) Duration() int64 { return c.duration }

func (c *Clock) State() model.ClockState { return c.state }

func (c *Clock) persist() {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(c.sessionID, c.duration); err != nil {
		c.logger.Warn().Err(err).Msg("duration cache write failed")
	}
}
