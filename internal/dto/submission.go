package dto

import (
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

// CreateSubmissionRequest payload for submitting a new article.
type CreateSubmissionRequest struct {
	Title       string   `json:"title" validate:"required,max=300"`
	Abstract    string   `json:"abstract" validate:"required,max=5000"`
	Authors     []string `json:"authors" validate:"required,min=1,max=50,dive,required,max=200"`
	Domain      string   `json:"domain" validate:"required,max=100"`
	Keywords    []string `json:"keywords" validate:"omitempty,max=20,dive,required,max=60"`
	DocumentRef string   `json:"documentRef" validate:"required,max=500"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT low normal high urgent"`
}

// RevisionPayload carries optional updates supplied with a resubmission.
type RevisionPayload struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=300"`
	Abstract    *string  `json:"abstract" validate:"omitempty,min=1,max=5000"`
	Authors     []string `json:"authors" validate:"omitempty,min=1,max=50,dive,required,max=200"`
	Keywords    []string `json:"keywords" validate:"omitempty,max=20,dive,required,max=60"`
	DocumentRef *string  `json:"documentRef" validate:"omitempty,min=1,max=500"`
}

// TransitionRequest asks the state machine to follow one edge.
type TransitionRequest struct {
	Action   models.TransitionAction `json:"action" validate:"required"`
	Note     string                  `json:"note" validate:"max=4000"`
	Revision *RevisionPayload        `json:"revision" validate:"omitempty"`
}

// ReprioritizeRequest changes a queued submission's priority.
type ReprioritizeRequest struct {
	Priority models.Priority `json:"priority" validate:"required"`
}

// NoteRequest appends a free-form reviewer note.
type NoteRequest struct {
	Note string `json:"note" validate:"required,max=4000"`
}

// QueueQuery mirrors supported queue filters.
type QueueQuery struct {
	Priority   string
	AssignedTo string
	Unassigned bool
	Domain     string
	Limit      int
	Offset     int
}

// TransitionResponse reports the committed submission and its audit entry.
type TransitionResponse struct {
	Submission  *models.Submission  `json:"submission"`
	Audit       *models.AuditEntry  `json:"audit"`
	Publication *models.Publication `json:"publication,omitempty"`
}

// AuditExport is a rendered audit trail download.
type AuditExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// AuditConsistency compares a submission's state with its replayed audit trail.
type AuditConsistency struct {
	SubmissionID  string                 `json:"submissionId"`
	CurrentState  models.SubmissionState `json:"currentState"`
	ReplayedState models.SubmissionState `json:"replayedState,omitempty"`
	Entries       int                    `json:"entries"`
	Consistent    bool                   `json:"consistent"`
	Problem       string                 `json:"problem,omitempty"`
}
