package models

import "time"

// OutboxStatus tracks side-effect processing for a committed audit entry.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusDone    OutboxStatus = "DONE"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// OutboxEntry is written in the same transaction as its audit entry.
type OutboxEntry struct {
	AuditEntryID int64        `db:"audit_entry_id" json:"auditEntryId"`
	SubmissionID string       `db:"submission_id" json:"submissionId"`
	Status       OutboxStatus `db:"status" json:"status"`
	Attempts     int          `db:"attempts" json:"attempts"`
	LastError    *string      `db:"last_error" json:"lastError,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	ProcessedAt  *time.Time   `db:"processed_at" json:"processedAt,omitempty"`
}

// DomainWatch subscribes a reviewer to resubmissions within a domain.
type DomainWatch struct {
	UserID    string    `db:"user_id" json:"userId"`
	Domain    string    `db:"domain" json:"domain"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
