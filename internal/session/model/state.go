package model

import "github.com/shopspring/decimal"

// SessionState is the per-peer mutable view of one session. It is owned by
// a single coordinator goroutine; Snapshot copies it out for UIs and tests.
type SessionState struct {
	SessionID string
	Role      Role

	SelfName string
	PeerName string

	// DurationSeconds is owned by the host and mirrored by the participant.
	DurationSeconds int64
	ClockState      ClockState

	RatePerMinute    decimal.Decimal
	FormatMultiplier decimal.Decimal
	FileFormat       string

	Presentation Presentation
	Phase        Phase

	// FrozenDuration is the billing duration captured at end-request time.
	// Zero until the lifecycle reaches EndRequested.
	FrozenDuration int64
	TotalAmount    decimal.Decimal
	ApprovalID     string

	// PendingRate / PendingMultiplier hold the live host proposal of each
	// kind on the participant side (last-proposal-wins).
	PendingRate       *Proposal
	PendingMultiplier *Proposal

	File      *DeliveredFile
	RatedByUs bool
}

// Proposal is an ephemeral parameter-change proposal. Exactly one proposal
// per kind may be outstanding; a newer one overwrites the older.
type Proposal struct {
	Value      decimal.Decimal
	ProposedBy string
	FileFormat string // only set for multiplier proposals
}

// NewSessionState seeds a session view for one peer.
func NewSessionState(sessionID string, role Role, selfName, peerName string) *SessionState {
	return &SessionState{
		SessionID:        sessionID,
		Role:             role,
		SelfName:         selfName,
		PeerName:         peerName,
		ClockState:       ClockRunning,
		FormatMultiplier: decimal.NewFromInt(1),
		Presentation:     PresentationNone,
		Phase:            PhaseActive,
	}
}

// Snapshot returns a copy safe to read outside the coordinator goroutine.
// Pointer fields are deep-copied.
func (s *SessionState) Snapshot() SessionState {
	out := *s
	if s.PendingRate != nil {
		p := *s.PendingRate
		out.PendingRate = &p
	}
	if s.PendingMultiplier != nil {
		p := *s.PendingMultiplier
		out.PendingMultiplier = &p
	}
	if s.File != nil {
		f := *s.File
		out.File = &f
	}
	return out
}
