package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

const notificationColumns = `id, recipient_user_id, kind, subject_submission_id, audit_entry_id, message, created_at, read, read_at`

// NotificationRepository persists notification events and mute preferences.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateIfAbsent inserts event unless one already exists for the same audit
// entry and recipient. The stored row is returned with inserted=false on replay.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, event *models.NotificationEvent) (*models.NotificationEvent, bool, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, recipient_user_id, kind, subject_submission_id, audit_entry_id, message, created_at, read)
	VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	ON CONFLICT (audit_entry_id, recipient_user_id) DO NOTHING
	RETURNING id`
	var id string
	err := r.db.QueryRowxContext(ctx, query,
		event.ID,
		event.RecipientUserID,
		event.Kind,
		event.SubjectSubmissionID,
		event.AuditEntryID,
		event.Message,
		event.CreatedAt,
	).Scan(&id)
	switch {
	case err == nil:
		event.Read = false
		event.ReadAt = nil
		return event, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, getErr := r.GetByKey(ctx, event.AuditEntryID, event.RecipientUserID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("insert notification: %w", err)
	}
}

// GetByKey fetches the event for an (audit entry, recipient) pair.
func (r *NotificationRepository) GetByKey(ctx context.Context, auditEntryID int64, recipientID string) (*models.NotificationEvent, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE audit_entry_id = $1 AND recipient_user_id = $2`
	var event models.NotificationEvent
	if err := r.db.GetContext(ctx, &event, query, auditEntryID, recipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &event, nil
}

// ListByRecipient returns a user's inbox, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationEvent, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_user_id = $1`)
	if filter.UnreadOnly {
		builder.WriteString(" AND read = FALSE")
	}
	builder.WriteString(" ORDER BY created_at DESC, id ASC")
	limit, offset := clampPage(filter.Limit, filter.Offset, 50, 200)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var events []models.NotificationEvent
	if err := r.db.SelectContext(ctx, &events, builder.String(), filter.RecipientUserID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return events, nil
}

// MarkRead flags an event as read for its recipient. The first read time is kept.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	const query = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND recipient_user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, recipientID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return ensureAffected(res)
}

// IsMuted reports whether userID muted kind. Missing rows mean unmuted.
func (r *NotificationRepository) IsMuted(ctx context.Context, userID string, kind models.NotificationKind) (bool, error) {
	const query = `SELECT muted FROM notification_preferences WHERE user_id = $1 AND kind = $2`
	var muted bool
	if err := r.db.GetContext(ctx, &muted, query, userID, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get notification preference: %w", err)
	}
	return muted, nil
}

// UpsertPreference stores a mute preference.
func (r *NotificationRepository) UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error {
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_preferences (user_id, kind, muted, updated_at)
	VALUES (:user_id, :kind, :muted, :updated_at)
	ON CONFLICT (user_id, kind) DO UPDATE SET muted = EXCLUDED.muted, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("upsert notification preference: %w", ErrUnknownUser)
		}
		return fmt.Errorf("upsert notification preference: %w", err)
	}
	return nil
}
