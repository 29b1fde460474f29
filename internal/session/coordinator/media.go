package coordinator

import (
	"context"

	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/ports"
)

// handleMedia reacts to media engine signals. Connection loss on either
// side abandons the session; remote screen track loss is the silent
// stop-detection path and must not be re-broadcast.
func (c *Coordinator) handleMedia(ctx context.Context, ev ports.MediaEvent) {
	switch ev.Kind {
	case ports.RemoteLeft:
		c.abandon(ctx, "peer connection lost")

	case ports.LocalLeft:
		c.abandon(ctx, "local connection lost")

	case ports.RemoteTrackEnded:
		if ev.Track != ports.TrackScreen {
			return
		}
		if c.arbiter.RemoteTrackEnded() {
			c.logger.Info().Str("user", ev.User).Msg("remote presentation track ended")
			c.state.Presentation = c.arbiter.Current()
			c.resumeAfterPresentation(ctx)
		}

	case ports.ScreenShareEnded:
		// The OS/browser layer stopped the local capture outside the
		// protocol. Treat it exactly like a local stop.
		if !c.arbiter.SelfPresenting() {
			return
		}
		if c.arbiter.Stop() {
			_ = c.media.UnpublishTrack(ctx, ports.TrackScreen)
			_ = c.media.PublishTrack(ctx, ports.TrackCamera)
			c.state.Presentation = c.arbiter.Current()
			c.publish(ctx, &model.ScreenShareStopped{UserName: c.cfg.SelfName})
			c.resumeAfterPresentation(ctx)
		}

	case ports.RemoteTrackAdded:
		c.logger.Debug().Str("user", ev.User).Str("track", string(ev.Track)).Msg("remote track added")
	}
}
