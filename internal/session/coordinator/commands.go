package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/billing"
	"github.com/huddleworks/livesession/internal/metrics"
	"github.com/huddleworks/livesession/internal/session/lifecycle"
	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/negotiate"
	"github.com/huddleworks/livesession/internal/session/ports"
	"github.com/huddleworks/livesession/internal/session/present"
)

type cmdKind int

const (
	cmdRequestEnd cmdKind = iota
	cmdContinue
	cmdAcceptEnd
	cmdPay
	cmdUpload
	cmdDownload
	cmdSubmitRating
	cmdPropose
	cmdAcceptProposal
	cmdDeclineProposal
	cmdSetValue
	cmdStartPresent
	cmdStopPresent
	cmdResync
	cmdLeave
)

// command carries one local user intent into the loop. reply receives the
// final outcome; for operations with an external leg that happens after
// the collaborator call completes.
type command struct {
	kind cmdKind

	propKind   negotiate.Kind
	value      decimal.Decimal
	fileFormat string

	fileName string
	reader   io.Reader
	writer   io.Writer

	reply chan error
}

// Intent errors for invalid local actions.
var (
	ErrWrongRole     = errors.New("action not available for this role")
	ErrNotPresenting = errors.New("not currently presenting")
	ErrNoDeliverable = errors.New("no deliverable available yet")
	ErrOpInFlight    = errors.New("operation already in progress")
)

// PhaseError reports a local action rejected by the current lifecycle
// phase. Callers can retry once the session advances.
type PhaseError struct {
	Phase  model.Phase
	Reason string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("not allowed in phase %s: %s", e.Phase, e.Reason)
}

func phaseErr(phase model.Phase, reason string) error {
	return &PhaseError{Phase: phase, Reason: reason}
}

func (c *Coordinator) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestEndSession freezes the clock, computes the invoice and sends the
// approval request to the participant. Host only.
func (c *Coordinator) RequestEndSession(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdRequestEnd})
}

// ContinueSession declines a pending end request and resumes the session.
// Participant only.
func (c *Coordinator) ContinueSession(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdContinue})
}

// AcceptEnd accepts the pending end request and moves into the payment
// step. Participant only.
func (c *Coordinator) AcceptEnd(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdAcceptEnd})
}

// Pay executes the external payment for the approved total and announces
// completion. Participant only.
func (c *Coordinator) Pay(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdPay})
}

// UploadDeliverable uploads the session deliverable and announces it.
// Host only.
func (c *Coordinator) UploadDeliverable(ctx context.Context, name string, r io.Reader) error {
	return c.do(ctx, command{kind: cmdUpload, fileName: name, reader: r})
}

// DownloadDeliverable fetches the deliverable into w and announces the
// download. Participant only.
func (c *Coordinator) DownloadDeliverable(ctx context.Context, w io.Writer) error {
	return c.do(ctx, command{kind: cmdDownload, writer: w})
}

// SubmitRating records the participant's rating and completes the session.
func (c *Coordinator) SubmitRating(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdSubmitRating})
}

// ProposeRate sends a rate proposal to the participant. Host only.
func (c *Coordinator) ProposeRate(ctx context.Context, v decimal.Decimal) error {
	return c.do(ctx, command{kind: cmdPropose, propKind: negotiate.KindRate, value: v})
}

// ProposeMultiplier sends a format multiplier proposal. Host only.
func (c *Coordinator) ProposeMultiplier(ctx context.Context, v decimal.Decimal, fileFormat string) error {
	return c.do(ctx, command{kind: cmdPropose, propKind: negotiate.KindMultiplier, value: v, fileFormat: fileFormat})
}

// AcceptProposal applies the pending proposal of the given kind and
// broadcasts the change. Participant only.
func (c *Coordinator) AcceptProposal(ctx context.Context, kind negotiate.Kind) error {
	return c.do(ctx, command{kind: cmdAcceptProposal, propKind: kind})
}

// DeclineProposal discards the pending proposal of the given kind.
// Participant only.
func (c *Coordinator) DeclineProposal(ctx context.Context, kind negotiate.Kind) error {
	return c.do(ctx, command{kind: cmdDeclineProposal, propKind: kind})
}

// SetRate applies a new rate directly and broadcasts it. Participant only;
// the host path goes through ProposeRate.
func (c *Coordinator) SetRate(ctx context.Context, v decimal.Decimal) error {
	return c.do(ctx, command{kind: cmdSetValue, propKind: negotiate.KindRate, value: v})
}

// SetMultiplier applies a new format multiplier directly and broadcasts
// it. Participant only.
func (c *Coordinator) SetMultiplier(ctx context.Context, v decimal.Decimal, fileFormat string) error {
	return c.do(ctx, command{kind: cmdSetValue, propKind: negotiate.KindMultiplier, value: v, fileFormat: fileFormat})
}

// StartPresenting attempts to take the presentation slot and publish the
// local screen track.
func (c *Coordinator) StartPresenting(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdStartPresent})
}

// StopPresenting releases the presentation slot and restores the camera.
func (c *Coordinator) StopPresenting(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdStopPresent})
}

// RequestCurrentValues asks the host to rebroadcast rate, multiplier and
// clock. Participant only.
func (c *Coordinator) RequestCurrentValues(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdResync})
}

// Leave abandons the session from the local side.
func (c *Coordinator) Leave(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdLeave})
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdRequestEnd:
		cmd.reply <- c.cmdRequestEnd(ctx)
	case cmdContinue:
		cmd.reply <- c.cmdContinue(ctx)
	case cmdAcceptEnd:
		cmd.reply <- c.cmdAcceptEnd(ctx)
	case cmdPay:
		c.cmdPay(ctx, cmd)
	case cmdUpload:
		c.cmdUpload(ctx, cmd)
	case cmdDownload:
		c.cmdDownload(ctx, cmd)
	case cmdSubmitRating:
		cmd.reply <- c.cmdSubmitRating(ctx)
	case cmdPropose:
		cmd.reply <- c.cmdPropose(ctx, cmd)
	case cmdAcceptProposal:
		cmd.reply <- c.cmdAcceptProposal(ctx, cmd.propKind)
	case cmdDeclineProposal:
		cmd.reply <- c.cmdDeclineProposal(ctx, cmd.propKind)
	case cmdSetValue:
		cmd.reply <- c.cmdSetValue(ctx, cmd)
	case cmdStartPresent:
		cmd.reply <- c.cmdStartPresent(ctx)
	case cmdStopPresent:
		cmd.reply <- c.cmdStopPresent(ctx)
	case cmdResync:
		cmd.reply <- c.cmdResync(ctx)
	case cmdLeave:
		c.abandon(ctx, "local leave")
		cmd.reply <- nil
	default:
		cmd.reply <- fmt.Errorf("unknown command kind %d", cmd.kind)
	}
}

func (c *Coordinator) cmdRequestEnd(ctx context.Context) error {
	if c.cfg.Role != model.RoleHost {
		return ErrWrongRole
	}
	decision := lifecycle.DecisionFor(c.state.Phase, lifecycle.TrEndRequested)
	if !decision.Allowed {
		return phaseErr(c.state.Phase, decision.Reason)
	}

	frozen := c.clock.Freeze()
	c.syncClockView()
	inv := billing.Invoice(frozen, c.state.RatePerMinute, c.state.FormatMultiplier, c.cfg.TaxRate)

	rec, err := c.approvals.Create(ctx, model.NewApprovalRecord(c.cfg.SessionID, inv.Total))
	if err != nil {
		return fmt.Errorf("create approval record: %w", err)
	}

	c.state.FrozenDuration = frozen
	c.state.TotalAmount = rec.TotalAmount
	c.state.ApprovalID = rec.ApprovalID
	c.state.Phase = decision.To
	metrics.TransitionsTotal.WithLabelValues(string(model.PhaseActive), string(decision.To)).Inc()

	c.publish(ctx, &model.SessionPause{})
	c.publish(ctx, &model.SessionApprovalRequest{
		SessionID:         c.cfg.SessionID,
		DesignerName:      c.cfg.SelfName,
		TotalAmount:       rec.TotalAmount,
		Duration:          frozen,
		ApprovalRequestID: rec.ApprovalID,
	})
	c.logger.Info().
		Str("approval_id", rec.ApprovalID).
		Int64("duration_s", frozen).
		Str("total", rec.TotalAmount.String()).
		Msg("end of session requested")
	return nil
}

func (c *Coordinator) cmdContinue(ctx context.Context) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	if !c.applyTransition(lifecycle.TrContinueSession, "continue_session") {
		return phaseErr(c.state.Phase, "no end request pending")
	}
	c.clock.Resume()
	c.syncClockView()
	c.publish(ctx, &model.SessionResume{})
	return nil
}

func (c *Coordinator) cmdAcceptEnd(_ context.Context) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	if !c.applyTransition(lifecycle.TrAcceptEnd, "accept_end") {
		return phaseErr(c.state.Phase, "no end request pending")
	}
	return nil
}

func (c *Coordinator) cmdPay(ctx context.Context, cmd command) {
	if c.cfg.Role != model.RoleParticipant {
		cmd.reply <- ErrWrongRole
		return
	}
	if c.state.Phase != model.PhaseAwaitingPayment {
		cmd.reply <- phaseErr(c.state.Phase, "payment not due")
		return
	}
	if c.inflight["payment"] {
		cmd.reply <- ErrOpInFlight
		return
	}
	if c.payments == nil {
		cmd.reply <- errors.New("no payment executor configured")
		return
	}

	c.inflight["payment"] = true
	amount := c.state.TotalAmount
	payer, payee := c.cfg.ParticipantID, c.cfg.HostID
	go func() {
		err := c.payments.Charge(ctx, amount, payer, payee)
		c.deliverResult(opResult{op: "payment", err: err, reply: cmd.reply})
	}()
}

func (c *Coordinator) cmdUpload(ctx context.Context, cmd command) {
	if c.cfg.Role != model.RoleHost {
		cmd.reply <- ErrWrongRole
		return
	}
	if c.state.Phase != model.PhaseAwaitingFileUpload {
		cmd.reply <- phaseErr(c.state.Phase, "upload not due")
		return
	}
	if c.inflight["upload"] {
		cmd.reply <- ErrOpInFlight
		return
	}
	if c.files == nil {
		cmd.reply <- errors.New("no file store configured")
		return
	}

	c.inflight["upload"] = true
	go func() {
		file, err := c.files.Upload(ctx, cmd.fileName, cmd.reader)
		c.deliverResult(opResult{op: "upload", err: err, file: file, reply: cmd.reply})
	}()
}

func (c *Coordinator) cmdDownload(ctx context.Context, cmd command) {
	if c.cfg.Role != model.RoleParticipant {
		cmd.reply <- ErrWrongRole
		return
	}
	if c.state.Phase != model.PhaseAwaitingFileDownload {
		cmd.reply <- phaseErr(c.state.Phase, "download not due")
		return
	}
	if c.state.File == nil {
		cmd.reply <- ErrNoDeliverable
		return
	}
	if c.inflight["download"] {
		cmd.reply <- ErrOpInFlight
		return
	}
	if c.files == nil {
		cmd.reply <- errors.New("no file store configured")
		return
	}

	c.inflight["download"] = true
	file := *c.state.File
	go func() {
		rc, err := c.files.Download(ctx, file)
		if err == nil {
			if cmd.writer != nil {
				_, err = io.Copy(cmd.writer, rc)
			}
			if cerr := rc.Close(); err == nil {
				err = cerr
			}
		}
		c.deliverResult(opResult{op: "download", err: err, file: file, reply: cmd.reply})
	}()
}

func (c *Coordinator) cmdSubmitRating(ctx context.Context) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	if !c.applyTransition(lifecycle.TrRatingCompleted, "submit_rating") {
		return phaseErr(c.state.Phase, "rating not due")
	}
	c.state.RatedByUs = true
	if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalCompleted); err != nil {
		c.logger.Error().Err(err).Msg("advancing approval to completed failed")
	}
	c.publish(ctx, &model.RatingCompleted{CustomerName: c.cfg.SelfName})
	return nil
}

func (c *Coordinator) cmdPropose(ctx context.Context, cmd command) error {
	if c.cfg.Role != model.RoleHost {
		return ErrWrongRole
	}
	if c.state.Phase != model.PhaseActive {
		return phaseErr(c.state.Phase, "negotiation only while active")
	}
	if err := negotiate.ValidateValue(cmd.propKind, cmd.value); err != nil {
		return err
	}

	switch cmd.propKind {
	case negotiate.KindRate:
		c.publish(ctx, &model.RateChangeRequest{NewValue: cmd.value, RequestedBy: c.cfg.SelfName})
	case negotiate.KindMultiplier:
		c.publish(ctx, &model.MultiplierChangeRequest{
			NewValue:    cmd.value,
			RequestedBy: c.cfg.SelfName,
			FileFormat:  cmd.fileFormat,
		})
	default:
		return fmt.Errorf("unknown proposal kind %q", cmd.propKind)
	}
	metrics.ProposalsTotal.WithLabelValues(string(cmd.propKind), "proposed").Inc()
	return nil
}

func (c *Coordinator) cmdAcceptProposal(ctx context.Context, kind negotiate.Kind) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	p, err := c.engine.Accept(kind)
	if err != nil {
		return err
	}
	c.applyValue(kind, p.Value, p.FileFormat)
	c.clearPending(kind)

	switch kind {
	case negotiate.KindRate:
		c.publish(ctx, &model.PricingChange{NewValue: p.Value, ChangedBy: c.cfg.SelfName})
		c.publish(ctx, &model.RateChangeResponse{Approved: true, RespondedBy: c.cfg.SelfName})
	case negotiate.KindMultiplier:
		c.publish(ctx, &model.MultiplierChange{NewValue: p.Value, ChangedBy: c.cfg.SelfName, FileFormat: p.FileFormat})
		c.publish(ctx, &model.MultiplierChangeResponse{Approved: true, RespondedBy: c.cfg.SelfName})
	}
	metrics.ProposalsTotal.WithLabelValues(string(kind), "accepted").Inc()
	return nil
}

func (c *Coordinator) cmdDeclineProposal(ctx context.Context, kind negotiate.Kind) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	if _, err := c.engine.Decline(kind); err != nil {
		return err
	}
	c.clearPending(kind)

	switch kind {
	case negotiate.KindRate:
		c.publish(ctx, &model.RateChangeResponse{Approved: false, RespondedBy: c.cfg.SelfName})
	case negotiate.KindMultiplier:
		c.publish(ctx, &model.MultiplierChangeResponse{Approved: false, RespondedBy: c.cfg.SelfName})
	}
	metrics.ProposalsTotal.WithLabelValues(string(kind), "declined").Inc()
	return nil
}

func (c *Coordinator) cmdSetValue(ctx context.Context, cmd command) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	if c.state.Phase != model.PhaseActive {
		return phaseErr(c.state.Phase, "negotiation only while active")
	}
	if err := negotiate.ValidateValue(cmd.propKind, cmd.value); err != nil {
		return err
	}

	c.applyValue(cmd.propKind, cmd.value, cmd.fileFormat)
	switch cmd.propKind {
	case negotiate.KindRate:
		c.publish(ctx, &model.PricingChange{NewValue: cmd.value, ChangedBy: c.cfg.SelfName})
	case negotiate.KindMultiplier:
		c.publish(ctx, &model.MultiplierChange{NewValue: cmd.value, ChangedBy: c.cfg.SelfName, FileFormat: cmd.fileFormat})
	}
	metrics.ProposalsTotal.WithLabelValues(string(cmd.propKind), "direct").Inc()
	return nil
}

func (c *Coordinator) cmdStartPresent(ctx context.Context) error {
	if c.state.Phase != model.PhaseActive {
		return phaseErr(c.state.Phase, "presentation only while active")
	}
	if err := c.arbiter.Start(); err != nil {
		var busy *present.ErrBusy
		if errors.As(err, &busy) {
			c.publish(ctx, &model.ScreenShareRequest{
				UserName:      c.cfg.SelfName,
				OtherUserName: c.cfg.PeerName,
				Message:       c.cfg.SelfName + " would like to present",
			})
		}
		return err
	}

	if err := c.media.PublishTrack(ctx, ports.TrackScreen); err != nil {
		c.arbiter.Abort()
		return fmt.Errorf("%w: %v", ports.ErrPermissionDenied, err)
	}
	_ = c.media.UnpublishTrack(ctx, ports.TrackCamera)

	c.state.Presentation = c.arbiter.Current()
	c.clock.Pause()
	c.syncClockView()
	c.publish(ctx, &model.ScreenShareStarted{UserName: c.cfg.SelfName})
	if c.cfg.Role == model.RoleHost {
		c.publish(ctx, &model.SessionPause{})
	}
	return nil
}

func (c *Coordinator) cmdStopPresent(ctx context.Context) error {
	if !c.arbiter.Stop() {
		return ErrNotPresenting
	}
	_ = c.media.UnpublishTrack(ctx, ports.TrackScreen)
	_ = c.media.PublishTrack(ctx, ports.TrackCamera)

	c.state.Presentation = c.arbiter.Current()
	c.publish(ctx, &model.ScreenShareStopped{UserName: c.cfg.SelfName})
	c.resumeAfterPresentation(ctx)
	return nil
}

func (c *Coordinator) cmdResync(ctx context.Context) error {
	if c.cfg.Role != model.RoleParticipant {
		return ErrWrongRole
	}
	c.publish(ctx, &model.RequestCurrentValues{RequestedBy: c.cfg.SelfName})
	return nil
}

// resumeAfterPresentation restarts the clock once no one presents. Only
// the host's resume is authoritative on the wire; the participant waits
// for session_resume.
func (c *Coordinator) resumeAfterPresentation(ctx context.Context) {
	if c.arbiter.Current() != model.PresentationNone {
		return
	}
	if c.cfg.Role == model.RoleHost {
		c.clock.Resume()
		c.syncClockView()
		c.publish(ctx, &model.SessionResume{})
		c.publish(ctx, &model.TimerSync{Duration: c.clock.Duration()})
	}
}

func (c *Coordinator) applyValue(kind negotiate.Kind, v decimal.Decimal, fileFormat string) {
	switch kind {
	case negotiate.KindRate:
		c.state.RatePerMinute = v
	case negotiate.KindMultiplier:
		c.state.FormatMultiplier = v
		if fileFormat != "" {
			c.state.FileFormat = fileFormat
		}
	}
}

func (c *Coordinator) clearPending(kind negotiate.Kind) {
	switch kind {
	case negotiate.KindRate:
		c.state.PendingRate = nil
	case negotiate.KindMultiplier:
		c.state.PendingMultiplier = nil
	}
}

// opResult reports an async collaborator call back into the loop.
type opResult struct {
	op    string
	err   error
	file  model.DeliveredFile
	reply chan error
}

// deliverResult hands an async result to the loop, or drops it if the
// loop already exited.
func (c *Coordinator) deliverResult(res opResult) {
	select {
	case c.results <- res:
	case <-c.done:
	}
}

// finishOp completes the state mutation half of an async operation.
func (c *Coordinator) finishOp(ctx context.Context, res opResult) {
	delete(c.inflight, res.op)

	switch res.op {
	case "payment":
		if res.err != nil {
			c.logger.Warn().Err(res.err).Msg("payment failed")
			res.reply <- fmt.Errorf("%w: %v", ports.ErrPaymentDeclined, res.err)
			return
		}
		if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalPaymentCompleted); err != nil {
			c.logger.Error().Err(err).Msg("advancing approval after payment failed")
		}
		c.publish(ctx, &model.PaymentCompleted{CustomerName: c.cfg.SelfName, Amount: c.state.TotalAmount})
		c.applyTransition(lifecycle.TrPaymentCompleted, "payment")
		res.reply <- nil

	case "upload":
		if res.err != nil {
			c.logger.Warn().Err(res.err).Msg("deliverable upload failed")
			res.reply <- fmt.Errorf("%w: %v", ports.ErrUploadFailed, res.err)
			return
		}
		f := res.file
		c.state.File = &f
		if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalFileUploaded); err != nil {
			c.logger.Error().Err(err).Msg("advancing approval after upload failed")
		}
		c.publish(ctx, &model.FileUploaded{FileURL: f.URL, FileName: f.Name})
		c.applyTransition(lifecycle.TrFileUploaded, "upload")
		res.reply <- nil

	case "download":
		if res.err != nil {
			c.logger.Warn().Err(res.err).Msg("deliverable download failed")
			res.reply <- fmt.Errorf("%w: %v", ports.ErrDownloadFailed, res.err)
			return
		}
		if _, err := c.approvals.AdvanceStatus(ctx, c.cfg.SessionID, model.ApprovalFileDownloaded); err != nil {
			c.logger.Error().Err(err).Msg("advancing approval after download failed")
		}
		c.publish(ctx, &model.FileDownloaded{
			CustomerName: c.cfg.SelfName,
			FileName:     res.file.Name,
			DownloadTime: time.Now().Unix(),
		})
		c.applyTransition(lifecycle.TrFileDownloaded, "download")
		res.reply <- nil

	case "settle":
		if res.err != nil {
			c.logger.Error().Err(res.err).Msg("settlement failed, operator attention required")
		} else {
			c.logger.Info().Msg("settlement released")
		}

	default:
		c.logger.Error().Str("op", res.op).Msg("unknown async result")
	}
}
