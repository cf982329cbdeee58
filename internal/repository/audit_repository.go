package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

const auditColumns = `id, submission_id, actor_user_id, action, from_state, to_state, note, occurred_at`

// AuditRepository reads and appends the audit trail. Entries are never updated or deleted.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes an annotation outside of a submission transaction.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	return appendAudit(ctx, r.db, entry)
}

// GetByID fetches a single entry.
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id = $1`
	var entry models.AuditEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return &entry, nil
}

// ListBySubmission returns a submission's trail ordered by occurrence then id.
func (r *AuditRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE submission_id = $1 ORDER BY occurred_at ASC, id ASC`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, submissionID); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// appendAudit stamps occurred_at with the database clock. Transition entries
// are written while the submission row is locked, so id and occurred_at both
// follow commit order regardless of which replica wrote them.
func appendAudit(ctx context.Context, q sqlx.QueryerContext, entry *models.AuditEntry) error {
	const query = `INSERT INTO audit_entries (submission_id, actor_user_id, action, from_state, to_state, note, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp()) RETURNING id, occurred_at`
	row := q.QueryRowxContext(ctx, query,
		entry.SubmissionID,
		entry.ActorUserID,
		entry.Action,
		entry.FromState,
		entry.ToState,
		entry.Note,
	)
	if err := row.Scan(&entry.ID, &entry.OccurredAt); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
