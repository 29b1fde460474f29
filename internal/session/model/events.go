package model

import "github.com/shopspring/decimal"

// Wire event names. These are the channel contract; keep them stable.
const (
	TypeSessionStart              = "session_start"
	TypeSessionPause              = "session_pause"
	TypeSessionResume             = "session_resume"
	TypeTimerSync                 = "timer_sync"
	TypeRateChangeRequest         = "rate_change_request"
	TypeMultiplierChangeRequest   = "multiplier_change_request"
	TypePricingChange             = "pricing_change"
	TypeMultiplierChange          = "multiplier_change"
	TypeRateChangeResponse        = "rate_change_response"
	TypeMultiplierChangeResponse  = "multiplier_change_response"
	TypeRequestCurrentValues      = "request_current_values"
	TypeScreenShareStarted        = "screen_share_started"
	TypeScreenShareStopped        = "screen_share_stopped"
	TypeScreenShareRequest        = "screen_share_request"
	TypeSessionApprovalRequest    = "session_approval_request"
	TypePaymentCompleted          = "payment_completed"
	TypeFileUploaded              = "file_uploaded"
	TypeFileDownloaded            = "file_downloaded"
	TypeSessionCompleteShowReview = "session_complete_show_review"
	TypeRatingCompleted           = "rating_completed"
	TypeSessionEnd                = "session_end"
	TypeSessionEnded              = "session_ended"
)

// Event is one control event in the session protocol. The concrete types
// below form a closed tagged union; Decode and the coordinator dispatch
// switch over them exhaustively.
type Event interface {
	EventType() string
}

// SessionStart announces that the active phase begins.
type SessionStart struct {
	StartedAt int64 `json:"startedAt"`
}

// SessionPause pauses the billing clock on the receiver.
type SessionPause struct{}

// SessionResume resumes the billing clock. Authoritative from the host;
// also published by a participant declining to end the session.
type SessionResume struct{}

// TimerSync mirrors the host's clock to the participant.
type TimerSync struct {
	Duration int64 `json:"duration"`
}

// RateChangeRequest is a host proposal for a new per-minute rate.
type RateChangeRequest struct {
	NewValue    decimal.Decimal `json:"newValue"`
	RequestedBy string          `json:"requestedBy"`
}

// MultiplierChangeRequest is a host proposal for a new format multiplier.
type MultiplierChangeRequest struct {
	NewValue    decimal.Decimal `json:"newValue"`
	RequestedBy string          `json:"requestedBy"`
	FileFormat  string          `json:"fileFormat,omitempty"`
}

// PricingChange is the canonical applied-rate broadcast.
type PricingChange struct {
	NewValue  decimal.Decimal `json:"newValue"`
	ChangedBy string          `json:"changedBy"`
}

// MultiplierChange is the canonical applied-multiplier broadcast.
type MultiplierChange struct {
	NewValue   decimal.Decimal `json:"newValue"`
	ChangedBy  string          `json:"changedBy"`
	FileFormat string          `json:"fileFormat,omitempty"`
}

// RateChangeResponse echoes the participant's decision on a rate proposal.
type RateChangeResponse struct {
	Approved    bool   `json:"approved"`
	RespondedBy string `json:"respondedBy"`
}

// MultiplierChangeResponse echoes the participant's decision on a
// multiplier proposal.
type MultiplierChangeResponse struct {
	Approved    bool   `json:"approved"`
	RespondedBy string `json:"respondedBy"`
}

// RequestCurrentValues is the resync pull: the host answers with the
// current rate, multiplier and an immediate timer sync.
type RequestCurrentValues struct {
	RequestedBy string `json:"requestedBy"`
}

// ScreenShareStarted announces that userName now presents.
type ScreenShareStarted struct {
	UserName string `json:"userName"`
}

// ScreenShareStopped announces that userName stopped presenting.
type ScreenShareStopped struct {
	UserName string `json:"userName"`
}

// ScreenShareRequest is the contention notice sent to the current
// presenter when the other party also wants to present.
type ScreenShareRequest struct {
	UserName      string `json:"userName"`
	OtherUserName string `json:"otherUserName"`
	Message       string `json:"message"`
}

// SessionApprovalRequest carries the host's end-of-session bill.
type SessionApprovalRequest struct {
	SessionID         string          `json:"sessionId"`
	DesignerName      string          `json:"designerName"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	Duration          int64           `json:"duration"`
	ApprovalRequestID string          `json:"approvalRequestId"`
}

// PaymentCompleted reports a successful external payment execution.
type PaymentCompleted struct {
	CustomerName string          `json:"customerName"`
	Amount       decimal.Decimal `json:"amount"`
}

// FileUploaded carries the deliverable handle.
type FileUploaded struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

// FileDownloaded confirms the participant downloaded the deliverable.
type FileDownloaded struct {
	CustomerName string `json:"customerName"`
	FileName     string `json:"fileName"`
	DownloadTime int64  `json:"downloadTime"`
}

// SessionCompleteShowReview directs the participant into the rating step.
type SessionCompleteShowReview struct {
	DesignerName string `json:"designerName"`
	DesignerID   string `json:"designerId"`
	SessionID    string `json:"sessionId"`
}

// RatingCompleted reports that the participant submitted a rating.
type RatingCompleted struct {
	CustomerName string `json:"customerName"`
}

// SessionEnd is the best-effort teardown broadcast on the abnormal path.
type SessionEnd struct{}

// SessionEnded is the host's final session notice.
type SessionEnded struct {
	Message string `json:"message,omitempty"`
}

func (SessionStart) EventType() string              { return TypeSessionStart }
func (SessionPause) EventType() string              { return TypeSessionPause }
func (SessionResume) EventType() string             { return TypeSessionResume }
func (TimerSync) EventType() string                 { return TypeTimerSync }
func (RateChangeRequest) EventType() string         { return TypeRateChangeRequest }
func (MultiplierChangeRequest) EventType() string   { return TypeMultiplierChangeRequest }
func (PricingChange) EventType() string             { return TypePricingChange }
func (MultiplierChange) EventType() string          { return TypeMultiplierChange }
func (RateChangeResponse) EventType() string        { return TypeRateChangeResponse }
func (MultiplierChangeResponse) EventType() string  { return TypeMultiplierChangeResponse }
func (RequestCurrentValues) EventType() string      { return TypeRequestCurrentValues }
func (ScreenShareStarted) EventType() string        { return TypeScreenShareStarted }
func (ScreenShareStopped) EventType() string        { return TypeScreenShareStopped }
func (ScreenShareRequest) EventType() string        { return TypeScreenShareRequest }
func (SessionApprovalRequest) EventType() string    { return TypeSessionApprovalRequest }
func (PaymentCompleted) EventType() string          { return TypePaymentCompleted }
func (FileUploaded) EventType() string              { return TypeFileUploaded }
func (FileDownloaded) EventType() string            { return TypeFileDownloaded }
func (SessionCompleteShowReview) EventType() string { return TypeSessionCompleteShowReview }
func (RatingCompleted) EventType() string           { return TypeRatingCompleted }
func (SessionEnd) EventType() string                { return TypeSessionEnd }
func (SessionEnded) EventType() string              { return TypeSessionEnded }
