package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// SubmissionState is the lifecycle state of a submission.
type SubmissionState string

const (
	StatePending       SubmissionState = "PENDING"
	StateApproved      SubmissionState = "APPROVED"
	StateRejected      SubmissionState = "REJECTED"
	StateNeedsRevision SubmissionState = "NEEDS_REVISION"
	StateWithdrawn     SubmissionState = "WITHDRAWN"
)

// Valid reports whether s is a known state.
func (s SubmissionState) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateNeedsRevision, StateWithdrawn:
		return true
	default:
		return false
	}
}

// Queued reports whether submissions in this state appear in the moderation queue.
func (s SubmissionState) Queued() bool {
	return s == StatePending
}

// TransitionAction names a state-machine edge a caller can request.
type TransitionAction string

const (
	ActionApprove         TransitionAction = "APPROVE"
	ActionReject          TransitionAction = "REJECT"
	ActionRequestRevision TransitionAction = "REQUEST_REVISION"
	ActionWithdraw        TransitionAction = "WITHDRAW"
	ActionResubmit        TransitionAction = "RESUBMIT"
)

// ParseAction normalises raw into a known action.
func ParseAction(raw string) (TransitionAction, bool) {
	action := TransitionAction(strings.ToUpper(strings.TrimSpace(raw)))
	switch action {
	case ActionApprove, ActionReject, ActionRequestRevision, ActionWithdraw, ActionResubmit:
		return action, true
	default:
		return action, false
	}
}

// Priority orders the moderation queue.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank returns a comparable weight; higher is served first. Unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority normalises raw into a known priority.
func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	return p, p.Rank() > 0
}

// Submission is a user-authored article moving through moderation.
// It is never deleted; withdrawal is a terminal state.
type Submission struct {
	ID                 string          `db:"id" json:"id"`
	OwnerUserID        string          `db:"owner_user_id" json:"ownerUserId"`
	Title              string          `db:"title" json:"title"`
	Abstract           string          `db:"abstract" json:"abstract"`
	Authors            pq.StringArray  `db:"authors" json:"authors"`
	Domain             string          `db:"domain" json:"domain"`
	Keywords           pq.StringArray  `db:"keywords" json:"keywords"`
	DocumentRef        string          `db:"document_ref" json:"documentRef"`
	State              SubmissionState `db:"state" json:"state"`
	Priority           Priority        `db:"priority" json:"priority"`
	AssignedReviewerID *string         `db:"assigned_reviewer_id" json:"assignedReviewerId,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	EnqueuedAt         time.Time       `db:"enqueued_at" json:"enqueuedAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
	Version            int64           `db:"version" json:"version"`
}

// IsOwnedBy reports whether userID authored the submission.
func (s *Submission) IsOwnedBy(userID string) bool {
	return s != nil && userID != "" && s.OwnerUserID == userID
}

// AssignedTo reports whether the submission is currently claimed by userID.
func (s *Submission) AssignedTo(userID string) bool {
	return s != nil && s.AssignedReviewerID != nil && *s.AssignedReviewerID == userID
}

// SubmissionRevision carries payload changes supplied on resubmission.
type SubmissionRevision struct {
	Title       *string
	Abstract    *string
	Authors     []string
	Keywords    []string
	DocumentRef *string
}

// Empty reports whether the revision changes nothing.
func (r *SubmissionRevision) Empty() bool {
	return r == nil || (r.Title == nil && r.Abstract == nil && r.Authors == nil && r.Keywords == nil && r.DocumentRef == nil)
}

// QueueEntry is the moderation queue projection of a PENDING submission.
type QueueEntry struct {
	SubmissionID       string    `db:"id" json:"submissionId"`
	Title              string    `db:"title" json:"title"`
	Domain             string    `db:"domain" json:"domain"`
	OwnerUserID        string    `db:"owner_user_id" json:"ownerUserId"`
	Priority           Priority  `db:"priority" json:"priority"`
	EnqueuedAt         time.Time `db:"enqueued_at" json:"enqueuedAt"`
	AssignedReviewerID *string   `db:"assigned_reviewer_id" json:"assignedReviewerId,omitempty"`
}

// QueueFilter constrains moderation queue listings.
type QueueFilter struct {
	Priority   *Priority
	AssignedTo string
	Unassigned bool
	Domain     string
	Limit      int
	Offset     int
}

// SubmissionFilter constrains owner listings.
type SubmissionFilter struct {
	OwnerUserID string
	States      []SubmissionState
	Limit       int
	Offset      int
}
