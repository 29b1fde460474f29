package model

// Role identifies which party a client instance plays. It is fixed for the
// lifetime of the instance and never renegotiated.
type Role string

const (
	RoleHost        Role = "host"        // designer: clock + default-parameter authority
	RoleParticipant Role = "participant" // customer: final financial-commitment authority
)

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleHost {
		return RoleParticipant
	}
	return RoleHost
}

// ClockState is the billing clock state. Paused while either side presents
// or while an end-of-session approval is pending.
type ClockState string

const (
	ClockRunning ClockState = "RUNNING"
	ClockPaused  ClockState = "PAUSED"
)

// Presentation is the exclusive screen-share holder. At most one non-none
// value system-wide per session.
type Presentation string

const (
	PresentationNone        Presentation = "NONE"
	PresentationHost        Presentation = "HOST"
	PresentationParticipant Presentation = "PARTICIPANT"
)

// ByRole maps a role to its presentation value.
func ByRole(r Role) Presentation {
	if r == RoleHost {
		return PresentationHost
	}
	return PresentationParticipant
}

// Phase is the client-visible lifecycle phase of a session.
type Phase string

const (
	PhaseActive               Phase = "ACTIVE"
	PhaseEndRequested         Phase = "END_REQUESTED"
	PhaseAwaitingPayment      Phase = "AWAITING_PAYMENT"
	PhaseAwaitingFileUpload   Phase = "AWAITING_FILE_UPLOAD"
	PhaseAwaitingFileDownload Phase = "AWAITING_FILE_DOWNLOAD"
	PhaseAwaitingRating       Phase = "AWAITING_RATING"
	PhaseCompleted            Phase = "COMPLETED"
	PhaseAbandoned            Phase = "ABANDONED"
)

// IsTerminal returns true if the phase is a final state.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseAbandoned:
		return true
	}
	return false
}

// ApprovalStatus is the durable end-of-session workflow status.
// Transitions are monotonic: a status never regresses.
type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "PENDING"
	ApprovalPaymentCompleted ApprovalStatus = "PAYMENT_COMPLETED"
	ApprovalFileUploaded     ApprovalStatus = "FILE_UPLOADED"
	ApprovalFileDownloaded   ApprovalStatus = "FILE_DOWNLOADED"
	ApprovalCompleted        ApprovalStatus = "COMPLETED"
)

// Rank orders approval statuses for the monotonicity guard.
func (s ApprovalStatus) Rank() int {
	switch s {
	case ApprovalPending:
		return 0
	case ApprovalPaymentCompleted:
		return 1
	case ApprovalFileUploaded:
		return 2
	case ApprovalFileDownloaded:
		return 3
	case ApprovalCompleted:
		return 4
	}
	return -1
}
