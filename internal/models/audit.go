package models

import "time"

// AuditAction names what an audit entry records.
type AuditAction string

const (
	AuditActionCreated           AuditAction = "CREATED"
	AuditActionApproved          AuditAction = "APPROVED"
	AuditActionRejected          AuditAction = "REJECTED"
	AuditActionRevisionRequested AuditAction = "REVISION_REQUESTED"
	AuditActionWithdrawn         AuditAction = "WITHDRAWN"
	AuditActionResubmitted       AuditAction = "RESUBMITTED"
	AuditActionAssigned          AuditAction = "ASSIGNED"
	AuditActionReleased          AuditAction = "RELEASED"
	AuditActionReprioritized     AuditAction = "REPRIORITIZED"
	AuditActionNote              AuditAction = "NOTE"
)

// AuditEntry is an immutable record of a transition or annotation.
// FromState is nil only for the CREATED entry.
type AuditEntry struct {
	ID           int64            `db:"id" json:"id"`
	SubmissionID string           `db:"submission_id" json:"submissionId"`
	ActorUserID  string           `db:"actor_user_id" json:"actorUserId"`
	Action       AuditAction      `db:"action" json:"action"`
	FromState    *SubmissionState `db:"from_state" json:"fromState,omitempty"`
	ToState      SubmissionState  `db:"to_state" json:"toState"`
	Note         *string          `db:"note" json:"note,omitempty"`
	OccurredAt   time.Time        `db:"occurred_at" json:"occurredAt"`
}

// IsTransition reports whether the entry changed the submission state.
func (e AuditEntry) IsTransition() bool {
	return e.FromState == nil || *e.FromState != e.ToState
}

// NoteText returns the note or an empty string.
func (e AuditEntry) NoteText() string {
	if e.Note == nil {
		return ""
	}
	return *e.Note
}
