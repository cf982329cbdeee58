package models

import (
	"time"

	"github.com/lib/pq"
)

// Publication is the read-only artifact materialised from an approved submission.
type Publication struct {
	ID                 string         `db:"id" json:"id"`
	SourceSubmissionID string         `db:"source_submission_id" json:"sourceSubmissionId"`
	Title              string         `db:"title" json:"title"`
	Abstract           string         `db:"abstract" json:"abstract"`
	Authors            pq.StringArray `db:"authors" json:"authors"`
	Domain             string         `db:"domain" json:"domain"`
	Keywords           pq.StringArray `db:"keywords" json:"keywords"`
	ContentRef         string         `db:"content_ref" json:"contentRef"`
	ApprovedBy         string         `db:"approved_by" json:"approvedBy"`
	PublishedAt        time.Time      `db:"published_at" json:"publishedAt"`
}

// PublicationFilter constrains public listings.
type PublicationFilter struct {
	Domain string
	Limit  int
	Offset int
}
