package models

import (
	"strings"
	"time"
)

// NotificationKind classifies notification events; mute preferences are per kind.
type NotificationKind string

const (
	NotificationPublicationApproved   NotificationKind = "PUBLICATION_APPROVED"
	NotificationPublicationRejected   NotificationKind = "PUBLICATION_REJECTED"
	NotificationRevisionRequested     NotificationKind = "REVISION_REQUESTED"
	NotificationSubmissionResubmitted NotificationKind = "SUBMISSION_RESUBMITTED"
)

// ParseNotificationKind normalises raw into a known kind.
func ParseNotificationKind(raw string) (NotificationKind, bool) {
	kind := NotificationKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case NotificationPublicationApproved, NotificationPublicationRejected,
		NotificationRevisionRequested, NotificationSubmissionResubmitted:
		return kind, true
	default:
		return kind, false
	}
}

// NotificationKindFor maps an audit action to the notification it produces.
func NotificationKindFor(action AuditAction) (NotificationKind, bool) {
	switch action {
	case AuditActionApproved:
		return NotificationPublicationApproved, true
	case AuditActionRejected:
		return NotificationPublicationRejected, true
	case AuditActionRevisionRequested:
		return NotificationRevisionRequested, true
	case AuditActionResubmitted:
		return NotificationSubmissionResubmitted, true
	default:
		return "", false
	}
}

// NotificationEvent is delivered at most once per (audit entry, recipient).
type NotificationEvent struct {
	ID                  string           `db:"id" json:"id"`
	RecipientUserID     string           `db:"recipient_user_id" json:"recipientUserId"`
	Kind                NotificationKind `db:"kind" json:"kind"`
	SubjectSubmissionID string           `db:"subject_submission_id" json:"subjectSubmissionId"`
	AuditEntryID        int64            `db:"audit_entry_id" json:"auditEntryId"`
	Message             *string          `db:"message" json:"message,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"createdAt"`
	Read                bool             `db:"read" json:"read"`
	ReadAt              *time.Time       `db:"read_at" json:"readAt,omitempty"`
}

// NotificationPreference records whether a user muted a kind.
type NotificationPreference struct {
	UserID    string           `db:"user_id" json:"userId"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Muted     bool             `db:"muted" json:"muted"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`
}

// NotificationFilter constrains inbox listings.
type NotificationFilter struct {
	RecipientUserID string
	UnreadOnly      bool
	Limit           int
	Offset          int
}
