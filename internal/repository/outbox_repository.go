package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

const outboxColumns = `audit_entry_id, submission_id, status, attempts, last_error, created_at, processed_at`

// OutboxRepository tracks notification side effects for committed transitions.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs the repository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// ListPending returns rows awaiting dispatch, oldest first.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox WHERE status = $1 ORDER BY created_at ASC, audit_entry_id ASC LIMIT $2`
	var entries []models.OutboxEntry
	if err := r.db.SelectContext(ctx, &entries, query, models.OutboxStatusPending, limit); err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	return entries, nil
}

// MarkDone records a successful dispatch. Repeated calls are harmless.
func (r *OutboxRepository) MarkDone(ctx context.Context, auditEntryID int64, at time.Time) error {
	const query = `UPDATE notification_outbox SET status = $2, processed_at = $3, last_error = NULL WHERE audit_entry_id = $1`
	res, err := r.db.ExecContext(ctx, query, auditEntryID, models.OutboxStatusDone, at)
	if err != nil {
		return fmt.Errorf("mark outbox done: %w", err)
	}
	return ensureAffected(res)
}

// MarkFailed bumps the attempt counter. Terminal failures leave the PENDING set.
func (r *OutboxRepository) MarkFailed(ctx context.Context, auditEntryID int64, cause string, terminal bool) error {
	status := models.OutboxStatusPending
	if terminal {
		status = models.OutboxStatusFailed
	}
	const query = `UPDATE notification_outbox SET status = $2, attempts = attempts + 1, last_error = $3 WHERE audit_entry_id = $1`
	res, err := r.db.ExecContext(ctx, query, auditEntryID, status, cause)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return ensureAffected(res)
}

func enqueueOutbox(ctx context.Context, exec sqlx.ExecerContext, entry *models.AuditEntry) error {
	const query = `INSERT INTO notification_outbox (audit_entry_id, submission_id, status, attempts, created_at)
	VALUES ($1, $2, $3, 0, $4)`
	if _, err := exec.ExecContext(ctx, query, entry.ID, entry.SubmissionID, models.OutboxStatusPending, entry.OccurredAt); err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

func ensureAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
