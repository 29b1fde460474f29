// Package store persists approval records for the end-of-session workflow.
package store

import (
	"context"
	"errors"

	"github.com/huddleworks/livesession/internal/session/model"
)

// ErrNotFound is returned when no approval record exists for a session.
var ErrNotFound = errors.New("approval record not found")

// ApprovalStore is the durable record of the billing/approval/delivery
// workflow. Create is idempotent per session and AdvanceStatus is
// monotonic, so duplicate event delivery can never double-create a record
// or regress its status.
type ApprovalStore interface {
	// Create stores a pending record for the session. A record whose
	// status is still pending is rebilled with the new amount and id (the
	// session continued past an earlier end request); a record that
	// already advanced is returned unchanged.
	Create(ctx context.Context, rec model.ApprovalRecord) (model.ApprovalRecord, error)

	// AdvanceStatus moves the record's status forward. A target status at
	// or below the current one is a no-op returning the stored record.
	AdvanceStatus(ctx context.Context, sessionID string, to model.ApprovalStatus) (model.ApprovalRecord, error)

	// Get returns the record for a session or ErrNotFound.
	Get(ctx context.Context, sessionID string) (model.ApprovalRecord, error)
}
