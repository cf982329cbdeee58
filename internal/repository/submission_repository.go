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
	"github.com/lib/pq"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

const submissionColumns = `id, owner_user_id, title, abstract, authors, domain, keywords, document_ref,
       state, priority, assigned_reviewer_id, created_at, enqueued_at, updated_at, version`

// priorityOrder mirrors models.Priority.Rank for SQL ordering.
const priorityOrder = `CASE priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'NORMAL' THEN 2 WHEN 'LOW' THEN 1 ELSE 0 END`

// TxFunc runs inside a submission transaction after the guarded update and
// its audit entry are written. Returning an error rolls everything back.
type TxFunc func(ctx context.Context, tx *sqlx.Tx, submission *models.Submission, entry *models.AuditEntry) error

// SubmissionRepository is the source of truth for submission state. Every
// state or assignment change is written together with its audit entry.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// TransitionParams describes one optimistic state-machine step.
type TransitionParams struct {
	SubmissionID  string
	ExpectedState models.SubmissionState
	NewState      models.SubmissionState
	ActorID       string
	Action        models.AuditAction
	Note          *string
	// EnforceAssignee only matches rows that are unassigned or assigned to ActorID.
	EnforceAssignee bool
	// Requeue resets enqueued_at and clears the assignment.
	Requeue  bool
	Revision *models.SubmissionRevision
	// Notify writes an outbox row for the notification dispatcher.
	Notify bool
	At     time.Time
}

// AssignParams describes an assignment compare-and-swap.
type AssignParams struct {
	SubmissionID string
	ReviewerID   string
	// Override skips the "unassigned or self" guard.
	Override bool
	Note     *string
	At       time.Time
}

// ReleaseParams clears an assignment held by ExpectedReviewerID.
type ReleaseParams struct {
	SubmissionID       string
	ExpectedReviewerID string
	ActorID            string
	At                 time.Time
}

// ReprioritizeParams swaps priority when the row still has ExpectedPriority.
type ReprioritizeParams struct {
	SubmissionID     string
	ExpectedPriority models.Priority
	NewPriority      models.Priority
	ActorID          string
	At               time.Time
}

// TransitionResult is the committed row and its audit entry.
type TransitionResult struct {
	Submission *models.Submission
	Audit      *models.AuditEntry
}

// Create inserts a submission together with its CREATED audit entry.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission, entry *models.AuditEntry) error {
	now := time.Now().UTC()
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.State == "" {
		submission.State = models.StatePending
	}
	if submission.Priority == "" {
		submission.Priority = models.PriorityNormal
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	if submission.EnqueuedAt.IsZero() {
		submission.EnqueuedAt = submission.CreatedAt
	}
	submission.UpdatedAt = submission.CreatedAt
	submission.Version = 1
	if submission.Authors == nil {
		submission.Authors = pq.StringArray{}
	}
	if submission.Keywords == nil {
		submission.Keywords = pq.StringArray{}
	}

	entry.SubmissionID = submission.ID
	entry.FromState = nil
	entry.ToState = submission.State

	const query = `INSERT INTO submissions
	(id, owner_user_id, title, abstract, authors, domain, keywords, document_ref, state, priority,
	 assigned_reviewer_id, created_at, enqueued_at, updated_at, version)
	VALUES (:id, :owner_user_id, :title, :abstract, :authors, :domain, :keywords, :document_ref, :state, :priority,
	 :assigned_reviewer_id, :created_at, :enqueued_at, :updated_at, :version)`

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, submission); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("create submission: %w", ErrUnknownUser)
			}
			return fmt.Errorf("create submission: %w", err)
		}
		return appendAudit(ctx, tx, entry)
	})
}

// GetByID fetches a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &submission, nil
}

// ListByOwner returns an owner's submissions, newest first.
func (r *SubmissionRepository) ListByOwner(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.OwnerUserID}
	builder.WriteString(`SELECT ` + submissionColumns + ` FROM submissions WHERE owner_user_id = $1`)
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND state IN (%s)", strings.Join(placeholders, ",")))
	}
	builder.WriteString(" ORDER BY created_at DESC, id ASC")
	limit, offset := clampPage(filter.Limit, filter.Offset, 50, 200)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list submissions by owner: %w", err)
	}
	return submissions, nil
}

// ListQueue projects PENDING submissions into queue entries, highest priority
// first and oldest first within a priority.
func (r *SubmissionRepository) ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntry, error) {
	builder := strings.Builder{}
	args := []interface{}{models.StatePending}
	builder.WriteString(`SELECT id, title, domain, owner_user_id, priority, enqueued_at, assigned_reviewer_id
	FROM submissions WHERE state = $1`)
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		builder.WriteString(fmt.Sprintf(" AND priority = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		builder.WriteString(fmt.Sprintf(" AND assigned_reviewer_id = $%d", len(args)))
	} else if filter.Unassigned {
		builder.WriteString(" AND assigned_reviewer_id IS NULL")
	}
	if filter.Domain != "" {
		args = append(args, filter.Domain)
		builder.WriteString(fmt.Sprintf(" AND domain = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY " + priorityOrder + " DESC, enqueued_at ASC, id ASC")
	limit, offset := clampPage(filter.Limit, filter.Offset, 100, 500)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.QueueEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list moderation queue: %w", err)
	}
	return entries, nil
}

// ApplyTransition performs the guarded state change, appends the audit entry,
// optionally writes the outbox row, then runs hooks, all in one transaction.
// A guard miss returns sql.ErrNoRows; the caller re-reads to classify it.
func (r *SubmissionRepository) ApplyTransition(ctx context.Context, params TransitionParams, hooks ...TxFunc) (*TransitionResult, error) {
	at := nowOr(params.At)
	b := &updateBuilder{}
	b.set("state = $%d", params.NewState)
	b.set("updated_at = $%d", at)
	b.setRaw("version = version + 1")
	if params.Requeue {
		b.set("enqueued_at = $%d", at)
		b.setRaw("assigned_reviewer_id = NULL")
	}
	if rev := params.Revision; !rev.Empty() {
		if rev.Title != nil {
			b.set("title = $%d", *rev.Title)
		}
		if rev.Abstract != nil {
			b.set("abstract = $%d", *rev.Abstract)
		}
		if rev.Authors != nil {
			b.set("authors = $%d", pq.StringArray(rev.Authors))
		}
		if rev.Keywords != nil {
			b.set("keywords = $%d", pq.StringArray(rev.Keywords))
		}
		if rev.DocumentRef != nil {
			b.set("document_ref = $%d", *rev.DocumentRef)
		}
	}
	b.where("id = $%d", params.SubmissionID)
	b.where("state = $%d", params.ExpectedState)
	if params.EnforceAssignee {
		b.where("(assigned_reviewer_id IS NULL OR assigned_reviewer_id = $%d)", params.ActorID)
	}

	from := params.ExpectedState
	entry := &models.AuditEntry{
		SubmissionID: params.SubmissionID,
		ActorUserID:  params.ActorID,
		Action:       params.Action,
		FromState:    &from,
		ToState:      params.NewState,
		Note:         params.Note,
	}
	return r.guardedUpdate(ctx, b, entry, params.Notify, hooks...)
}

// Assign sets the reviewer with compare-and-swap semantics.
func (r *SubmissionRepository) Assign(ctx context.Context, params AssignParams) (*TransitionResult, error) {
	at := nowOr(params.At)
	b := &updateBuilder{}
	b.set("assigned_reviewer_id = $%d", params.ReviewerID)
	b.set("updated_at = $%d", at)
	b.setRaw("version = version + 1")
	b.where("id = $%d", params.SubmissionID)
	b.where("state = $%d", models.StatePending)
	if !params.Override {
		b.where("(assigned_reviewer_id IS NULL OR assigned_reviewer_id = $%d)", params.ReviewerID)
	}
	state := models.StatePending
	entry := &models.AuditEntry{
		SubmissionID: params.SubmissionID,
		ActorUserID:  params.ReviewerID,
		Action:       models.AuditActionAssigned,
		FromState:    &state,
		ToState:      state,
		Note:         params.Note,
	}
	return r.guardedUpdate(ctx, b, entry, false)
}

// Release clears the assignment if it is still held by ExpectedReviewerID.
func (r *SubmissionRepository) Release(ctx context.Context, params ReleaseParams) (*TransitionResult, error) {
	at := nowOr(params.At)
	b := &updateBuilder{}
	b.setRaw("assigned_reviewer_id = NULL")
	b.set("updated_at = $%d", at)
	b.setRaw("version = version + 1")
	b.where("id = $%d", params.SubmissionID)
	b.where("state = $%d", models.StatePending)
	b.where("assigned_reviewer_id = $%d", params.ExpectedReviewerID)
	state := models.StatePending
	note := "released " + params.ExpectedReviewerID
	entry := &models.AuditEntry{
		SubmissionID: params.SubmissionID,
		ActorUserID:  params.ActorID,
		Action:       models.AuditActionReleased,
		FromState:    &state,
		ToState:      state,
		Note:         &note,
	}
	return r.guardedUpdate(ctx, b, entry, false)
}

// Reprioritize swaps priority on a queued submission.
func (r *SubmissionRepository) Reprioritize(ctx context.Context, params ReprioritizeParams) (*TransitionResult, error) {
	at := nowOr(params.At)
	b := &updateBuilder{}
	b.set("priority = $%d", params.NewPriority)
	b.set("updated_at = $%d", at)
	b.setRaw("version = version + 1")
	b.where("id = $%d", params.SubmissionID)
	b.where("state = $%d", models.StatePending)
	b.where("priority = $%d", params.ExpectedPriority)
	state := models.StatePending
	note := fmt.Sprintf("%s -> %s", params.ExpectedPriority, params.NewPriority)
	entry := &models.AuditEntry{
		SubmissionID: params.SubmissionID,
		ActorUserID:  params.ActorID,
		Action:       models.AuditActionReprioritized,
		FromState:    &state,
		ToState:      state,
		Note:         &note,
	}
	return r.guardedUpdate(ctx, b, entry, false)
}

func (r *SubmissionRepository) guardedUpdate(ctx context.Context, b *updateBuilder, entry *models.AuditEntry, notify bool, hooks ...TxFunc) (*TransitionResult, error) {
	var result *TransitionResult
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var submission models.Submission
		if err := tx.QueryRowxContext(ctx, b.query(), b.args...).StructScan(&submission); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("update submission: %w", err)
		}
		if err := appendAudit(ctx, tx, entry); err != nil {
			return err
		}
		if notify {
			if err := enqueueOutbox(ctx, tx, entry); err != nil {
				return err
			}
		}
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			if err := hook(ctx, tx, &submission, entry); err != nil {
				return err
			}
		}
		result = &TransitionResult{Submission: &submission, Audit: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SubmissionRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission tx: %w", err)
	}
	return nil
}

// updateBuilder assembles a guarded UPDATE ... RETURNING on submissions with
// positional placeholders.
type updateBuilder struct {
	sets  []string
	conds []string
	args  []interface{}
}

func (b *updateBuilder) set(expr string, value interface{}) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf(expr, len(b.args)))
}

func (b *updateBuilder) setRaw(expr string) {
	b.sets = append(b.sets, expr)
}

func (b *updateBuilder) where(expr string, value interface{}) {
	b.args = append(b.args, value)
	b.conds = append(b.conds, fmt.Sprintf(expr, len(b.args)))
}

func (b *updateBuilder) query() string {
	return fmt.Sprintf("UPDATE submissions SET %s WHERE %s RETURNING %s",
		strings.Join(b.sets, ", "),
		strings.Join(b.conds, " AND "),
		submissionColumns,
	)
}

func nowOr(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

func clampPage(limit, offset, def, max int) (int, int) {
	if limit <= 0 || limit > max {
		limit = def
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
