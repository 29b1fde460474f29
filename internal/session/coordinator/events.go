package coordinator

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/bus"
	"github.com/huddleworks/livesession/internal/metrics"
	"github.com/huddleworks/livesession/internal/session/lifecycle"
	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/negotiate"
	"github.com/huddleworks/livesession/internal/session/ports"
)

// handleMessage decodes one broadcast message and dispatches it. The
// channel echoes our own publishes back; those are skipped by sender.
// Unknown or undecodable messages are counted and dropped.
func (c *Coordinator) handleMessage(ctx context.Context, msg bus.Message) {
	if msg.Sender == string(c.cfg.Role) {
		return
	}

	ev, err := model.Decode(msg)
	if err != nil {
		var unknown *model.ErrUnknownEventType
		if errors.As(err, &unknown) {
			metrics.IncDropReason("unknown_type")
		} else {
			metrics.IncDropReason("decode_error")
		}
		c.logger.Warn().Err(err).Str("type", msg.Type).Msg("dropping message")
		return
	}
	metrics.EventsReceivedTotal.WithLabelValues(msg.Type).Inc()

	switch ev := ev.(type) {
	case *model.SessionStart:
		c.onSessionStart(ev)
	case *model.SessionPause:
		c.clock.Pause()
		c.syncClockView()
	case *model.SessionResume:
		c.onSessionResume(ctx)
	case *model.TimerSync:
		c.clock.Observe(ev.Duration)
		c.syncClockView()
	case *model.RateChangeRequest:
		c.onProposal(negotiate.KindRate, model.Proposal{Value: ev.NewValue, ProposedBy: ev.RequestedBy})
	case *model.MultiplierChangeRequest:
		c.onProposal(negotiate.KindMultiplier, model.Proposal{Value: ev.NewValue, ProposedBy: ev.RequestedBy, FileFormat: ev.FileFormat})
	case *model.PricingChange:
		c.onAppliedValue(negotiate.KindRate, ev.NewValue, "", ev.ChangedBy)
	case *model.MultiplierChange:
		c.onAppliedValue(negotiate.KindMultiplier, ev.NewValue, ev.FileFormat, ev.ChangedBy)
	case *model.RateChangeResponse:
		c.onProposalResponse(negotiate.KindRate, ev.Approved, ev.RespondedBy)
	case *model.MultiplierChangeResponse:
		c.onProposalResponse(negotiate.KindMultiplier, ev.Approved, ev.RespondedBy)
	case *model.RequestCurrentValues:
		c.onResyncRequest(ctx, ev)
	case *model.ScreenShareStarted:
		c.onScreenShareStarted(ctx, msg.Sender)
	case *model.ScreenShareStopped:
		c.onScreenShareStopped(ctx, msg.Sender)
	case *model.ScreenShareRequest:
		c.logger.Info().Str("from", ev.UserName).Msg("peer asked to present")
	case *model.SessionApprovalRequest:
		c.onApprovalRequest(ctx, ev)
	case *model.PaymentCompleted:
		c.onPaymentCompleted(ctx, ev)
	case *model.FileUploaded:
		c.onFileUploaded(ctx, ev)
	case *model.FileDownloaded:
		c.onFileDownloaded(ctx, ev)
	case *model.SessionCompleteShowReview:
		c.onCompleteShowReview(ev)
	case *model.RatingCompleted:
		c.onRatingCompleted(ctx, ev)
	case *model.SessionEnd:
		c.abandon(ctx, "peer ended session")
	case *model.SessionEnded:
		c.onSessionEnded(ctx, ev)
	default:
		metrics.IncDropReason("unhandled_type")
		c.logger.Warn().Str("type", msg.Type).Msg("no handler for event")
	}
}

func (c *Coordinator) onSessionStart(ev *model.SessionStart) {
	c.logger.Info().Int64("started_at", ev.StartedAt).Msg("session started by host")
}

// onSessionResume covers two host-bound meanings: the participant
// declining an end request, and the generic clock resume. The phase guard
// separates them.
func (c *Coordinator) onSessionResume(ctx context.Context) {
	if c.cfg.Role == model.RoleHost && c.state.Phase == model.PhaseEndRequested {
		if c.applyTransition(lifecycle.TrContinueSession, "session_resume") {
			c.clock.Resume()
			c.syncClockView()
			// Push an immediate sync so the participant repaints at once.
			c.publish(ctx, &model.TimerSync{Duration: c.clock.Duration()})
			return
		}
	}
	// Past the end request the freeze must hold; a stale resume replay
	// must not restart billing.
	if c.state.Phase != model.PhaseActive {
		metrics.OutOfPhaseTotal.WithLabelValues(model.TypeSessionResume, string(c.state.Phase)).Inc()
		return
	}
	c.clock.Resume()
	c.syncClockView()
}

func (c *Coordinator) onProposal(kind negotiate.Kind, p model.Proposal) {
	if c.cfg.Role != model.RoleParticipant {
		metrics.IncDropReason("proposal_wrong_role")
		return
	}
	if err := negotiate.ValidateValue(kind, p.Value); err != nil {
		metrics.IncDropReason("proposal_invalid")
		c.logger.Warn().Err(err).Msg("rejecting invalid proposal")
		return
	}
	c.engine.Receive(kind, p)
	prop := p
	switch kind {
	case negotiate.KindRate:
		c.state.PendingRate = &prop
	case negotiate.KindMultiplier:
		c.state.PendingMultiplier = &prop
	}
	c.logger.Info().
		Str("kind", string(kind)).
		Str("value", p.Value.String()).
		Str("by", p.ProposedBy).
		Msg("proposal received")
}

// onAppliedValue adopts the canonical applied value. This is both the
// host seeing a participant-side change land and the participant taking
// a resync answer.
func (c *Coordinator) onAppliedValue(kind negotiate.Kind, v decimal.Decimal, fileFormat, changedBy string) {
	if err := negotiate.ValidateValue(kind, v); err != nil {
		metrics.IncDropReason("applied_invalid")
		c.logger.Warn().Err(err).Msg("rejecting invalid applied value")
		return
	}
	c.applyValue(kind, v, fileFormat)
	c.logger.Info().
		Str("kind", string(kind)).
		Str("value", v.String()).
		Str("by", changedBy).
		Msg("applied value adopted")
}

func (c *Coordinator) onProposalResponse(kind negotiate.Kind, approved bool, by string) {
	outcome := "peer_declined"
	if approved {
		outcome = "peer_accepted"
	}
	metrics.ProposalsTotal.WithLabelValues(string(kind), outcome).Inc()
	c.logger.Info().Str("kind", string(kind)).Bool("approved", approved).Str("by", by).Msg("proposal response")
}

// onResyncRequest answers with the full authoritative snapshot. Host only;
// the participant has nothing authoritative to offer.
func (c *Coordinator) onResyncRequest(ctx context.Context, ev *model.RequestCurrentValues) {
	if c.cfg.Role != model.RoleHost {
		return
	}
	c.logger.Info().Str("by", ev.RequestedBy).Msg("resync requested")
	c.publish(ctx, &model.PricingChange{NewValue: c.state.RatePerMinute, ChangedBy: c.cfg.SelfName})
	c.publish(ctx, &model.MultiplierChange{
		NewValue:   c.state.FormatMultiplier,
		ChangedBy:  c.cfg.SelfName,
		FileFormat: c.state.FileFormat,
	})
	c.publish(ctx, &model.TimerSync{Duration: c.clock.Duration()})
}

func (c *Coordinator) onScreenShareStarted(ctx context.Context, sender string) {
	who := model.ByRole(model.Role(sender))
	yield := c.arbiter.ObserveStarted(who)
	c.clock.Pause()
	c.syncClockView()

	if yield {
		// Simultaneous acquisition: the host slot wins, we back off.
		c.logger.Info().Msg("yielding presentation to host")
		_ = c.media.UnpublishTrack(ctx, ports.TrackScreen)
		_ = c.media.PublishTrack(ctx, ports.TrackCamera)
		c.publish(ctx, &model.ScreenShareStopped{UserName: c.cfg.SelfName})
	}
	c.state.Presentation = c.arbiter.Current()
}

func (c *Coordinator) onScreenShareStopped(ctx context.Context, sender string) {
	c.arbiter.ObserveStopped(model.ByRole(model.Role(sender)))
	c.state.Presentation = c.arbiter.Current()
	c.resumeAfterPresentation(ctx)
}

func (c *Coordinator) onApprovalRequest(ctx context.Context, ev *model.SessionApprovalRequest) {
	if c.cfg.Role != model.RoleParticipant {
		metrics.IncDropReason("approval_wrong_role")
		return
	}
	if !c.applyTransition(lifecycle.TrEndRequested, model.TypeSessionApprovalRequest) {
		return
	}
	c.clock.Pause()
	c.syncClockView()

	// Mirror the host's record so the local store can track the same
	// workflow by the same id.
	rec := model.ApprovalRecord{
		ApprovalID:  ev.ApprovalRequestID,
		SessionID:   c.cfg.SessionID,
		TotalAmount: ev.TotalAmount,
		Status:      model.ApprovalPending,
	}
	if _, err := c.approvals.Create(ctx, rec); err != nil {
		c.logger.Error().Err(err).Msg("mirroring approval record failed")
	}

	c.state.FrozenDuration = ev.Duration
	c.state.TotalAmount = ev.TotalAmount
	c.state.ApprovalID = ev.ApprovalRequestID
	c.logger.Info().
		Str("approval_id", ev.ApprovalRequestID).
		Str("total", ev.TotalAmount.String()).
		Int64("duration_s", ev.Duration).
		Str("host", ev.DesignerName).
		Msg("end of session requested by host")
}

// onPaymentCompleted is the host's only signal that the participant
// accepted the end request, so the transition may come straight from
// EndRequested.
func (c *Coordinator) onPaymentCompleted(ctx context.Context, ev *model.PaymentCompleted) {
	if c.cfg.Role != model.RoleHost {
		metrics.IncDropReason("payment_wrong_role")
		return
	}
	if !c.applyTransition(lifecycle.TrPaymentCompleted, model.TypePaymentCompleted) {
		return
	}
	if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalPaymentCompleted); err != nil {
		c.logger.Error().Err(err).Msg("advancing approval after payment failed")
	}
	c.logger.Info().
		Str("by", ev.CustomerName).
		Str("amount", ev.Amount.String()).
		Msg("payment received, deliverable upload due")
}

func (c *Coordinator) onFileUploaded(ctx context.Context, ev *model.FileUploaded) {
	if c.cfg.Role != model.RoleParticipant {
		metrics.IncDropReason("upload_wrong_role")
		return
	}
	if !c.applyTransition(lifecycle.TrFileUploaded, model.TypeFileUploaded) {
		return
	}
	c.state.File = &model.DeliveredFile{URL: ev.FileURL, Name: ev.FileName}
	if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalFileUploaded); err != nil {
		c.logger.Error().Err(err).Msg("advancing approval after upload failed")
	}
	c.logger.Info().Str("file", ev.FileName).Msg("deliverable available for download")
}

func (c *Coordinator) onFileDownloaded(ctx context.Context, ev *model.FileDownloaded) {
	if c.cfg.Role != model.RoleHost {
		metrics.IncDropReason("download_wrong_role")
		return
	}
	if !c.applyTransition(lifecycle.TrFileDownloaded, model.TypeFileDownloaded) {
		return
	}
	if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalFileDownloaded); err != nil {
		c.logger.Error().Err(err).Msg("advancing approval after download failed")
	}

	// Release the escrowed amount to the host. Fire-and-forget: the
	// outcome is logged from the result loop, the flow moves on.
	if c.payments != nil && !c.inflight["settle"] {
		c.inflight["settle"] = true
		amount := c.state.TotalAmount
		payee := c.cfg.HostID
		go func() {
			err := c.payments.Settle(ctx, amount, payee)
			c.deliverResult(opResult{op: "settle", err: err})
		}()
	}

	c.publish(ctx, &model.SessionCompleteShowReview{
		DesignerName: c.cfg.SelfName,
		DesignerID:   c.cfg.HostID,
		SessionID:    c.cfg.SessionID,
	})
	c.logger.Info().Str("by", ev.CustomerName).Msg("deliverable downloaded, awaiting rating")
}

func (c *Coordinator) onCompleteShowReview(ev *model.SessionCompleteShowReview) {
	if c.cfg.Role != model.RoleParticipant {
		return
	}
	if c.state.Phase != model.PhaseAwaitingRating {
		metrics.OutOfPhaseTotal.WithLabelValues(model.TypeSessionCompleteShowReview, string(c.state.Phase)).Inc()
		return
	}
	c.logger.Info().Str("host", ev.DesignerName).Msg("rating step open")
}

func (c *Coordinator) onRatingCompleted(ctx context.Context, ev *model.RatingCompleted) {
	if c.cfg.Role != model.RoleHost {
		metrics.IncDropReason("rating_wrong_role")
		return
	}
	if !c.applyTransition(lifecycle.TrRatingCompleted, model.TypeRatingCompleted) {
		return
	}
	if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalCompleted); err != nil {
		c.logger.Error().Err(err).Msg("advancing approval to completed failed")
	}
	c.publish(ctx, &model.SessionEnded{Message: "session completed"})
	c.logger.Info().Str("by", ev.CustomerName).Msg("session completed")
}

func (c *Coordinator) onSessionEnded(ctx context.Context, ev *model.SessionEnded) {
	if c.state.Phase.IsTerminal() {
		return
	}
	c.logger.Info().Str("message", ev.Message).Msg("host closed the session")
	c.abandon(ctx, "host closed session")
}
