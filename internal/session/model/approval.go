package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalRecord is the durable record of the end-of-session billing,
// payment and delivery workflow. Created by the host when the session end
// is requested, then jointly referenced by both peers.
type ApprovalRecord struct {
	ApprovalID  string          `json:"approvalId"`
	SessionID   string          `json:"sessionId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      ApprovalStatus  `json:"status"`
	CreatedAtMs int64           `json:"createdAtMs"`
	UpdatedAtMs int64           `json:"updatedAtMs"`
}

// NewApprovalRecord builds a pending record for a session total.
func NewApprovalRecord(sessionID string, total decimal.Decimal) ApprovalRecord {
	now := time.Now().UnixMilli()
	return ApprovalRecord{
		ApprovalID:  uuid.NewString(),
		SessionID:   sessionID,
		TotalAmount: total,
		Status:      ApprovalPending,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
}

// DeliveredFile is the opaque handle to the session deliverable. Created by
// the host after upload, consumed by the participant for download. The
// session core never interprets file contents.
type DeliveredFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}
