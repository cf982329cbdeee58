package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/internal/repository"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/logger"
)

type submissionStore interface {
	Create(ctx context.Context, submission *models.Submission, entry *models.AuditEntry) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	ListByOwner(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams, hooks ...repository.TxFunc) (*repository.TransitionResult, error)
}

type publicationPromoter interface {
	Promote(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission, approval *models.AuditEntry) (*models.Publication, error)
}

// OutboxPublisher hands committed audit entries to the notification pipeline.
type OutboxPublisher interface {
	Publish(entry *models.AuditEntry)
}

// SubmissionService owns intake and the submission state machine.
type SubmissionService struct {
	store     submissionStore
	promoter  publicationPromoter
	outbox    OutboxPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// SubmissionServiceOption configures the service.
type SubmissionServiceOption func(*SubmissionService)

// WithSubmissionMetrics attaches transition counters.
func WithSubmissionMetrics(metrics *MetricsService) SubmissionServiceOption {
	return func(s *SubmissionService) {
		s.metrics = metrics
	}
}

// WithSubmissionClock overrides the time source.
func WithSubmissionClock(now func() time.Time) SubmissionServiceOption {
	return func(s *SubmissionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSubmissionService constructs the service.
func NewSubmissionService(store submissionStore, promoter publicationPromoter, outbox OutboxPublisher, validate *validator.Validate, logger *zap.Logger, opts ...SubmissionServiceOption) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &SubmissionService{
		store:     store,
		promoter:  promoter,
		outbox:    outbox,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create stores a new PENDING submission owned by the caller.
func (s *SubmissionService) Create(ctx context.Context, session *models.Session, req dto.CreateSubmissionRequest) (*models.Submission, error) {
	if err := requireMutation(session, CapSubmissionCreate); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	priority := models.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		parsed, ok := models.ParsePriority(req.Priority)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority")
		}
		if parsed != models.PriorityNormal && !Authorize(session.Role, CapQueueReprioritize) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only reviewers may set an initial priority")
		}
		priority = parsed
	}

	title := strings.TrimSpace(req.Title)
	domain := strings.TrimSpace(req.Domain)
	documentRef := strings.TrimSpace(req.DocumentRef)
	authors := cleanList(req.Authors)
	if title == "" || domain == "" || documentRef == "" || len(authors) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title, domain, documentRef and at least one author are required")
	}

	now := s.now().UTC()
	submission := &models.Submission{
		OwnerUserID: session.UserID,
		Title:       title,
		Abstract:    strings.TrimSpace(req.Abstract),
		Authors:     pq.StringArray(authors),
		Domain:      domain,
		Keywords:    pq.StringArray(cleanList(req.Keywords)),
		DocumentRef: documentRef,
		State:       models.StatePending,
		Priority:    priority,
		CreatedAt:   now,
		EnqueuedAt:  now,
	}
	entry := &models.AuditEntry{ActorUserID: session.UserID, Action: models.AuditActionCreated}
	if err := s.store.Create(ctx, submission, entry); err != nil {
		return nil, callerWriteError(err, "failed to create submission")
	}

	logger.WithRequest(ctx, s.logger).Info("submission created",
		zap.String("submission_id", submission.ID),
		zap.String("owner_id", submission.OwnerUserID),
		zap.String("priority", string(submission.Priority)),
	)
	return submission, nil
}

// ListMine returns the caller's own submissions.
func (s *SubmissionService) ListMine(ctx context.Context, session *models.Session, states []string, limit, offset int) ([]models.Submission, error) {
	if err := requireMutation(session, CapSubmissionManageOwn); err != nil {
		return nil, err
	}
	filter := models.SubmissionFilter{OwnerUserID: session.UserID, Limit: limit, Offset: offset}
	for _, raw := range states {
		state := models.SubmissionState(strings.ToUpper(strings.TrimSpace(raw)))
		if state == "" {
			continue
		}
		if !state.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown state "+raw)
		}
		filter.States = append(filter.States, state)
	}
	submissions, err := s.store.ListByOwner(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Get returns a submission the caller may see: owners and reviewers.
func (s *SubmissionService) Get(ctx context.Context, session *models.Session, id string) (*models.Submission, error) {
	session = sessionOrAnonymous(session)
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(session, submission) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return submission, nil
}

// Transition applies one state-machine edge under optimistic concurrency.
func (s *SubmissionService) Transition(ctx context.Context, session *models.Session, id string, req dto.TransitionRequest) (*dto.TransitionResponse, error) {
	resp, err := s.transition(ctx, session, id, req)
	label := "UNKNOWN"
	if action, ok := models.ParseAction(string(req.Action)); ok {
		label = string(action)
	}
	s.metrics.RecordTransition(label, outcomeFor(err))
	return resp, err
}

func (s *SubmissionService) transition(ctx context.Context, session *models.Session, id string, req dto.TransitionRequest) (*dto.TransitionResponse, error) {
	if !session.Authenticated() {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}
	action, ok := models.ParseAction(string(req.Action))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown action "+string(req.Action))
	}
	req.Action = action
	edge, _ := EdgeFor(action)
	if err := requireCapability(session, edge.Capability); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}

	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(session, submission) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	if edge.OwnerOnly && !submission.IsOwnedBy(session.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner may "+strings.ToLower(string(action)))
	}

	note := strings.TrimSpace(req.Note)
	if edge.NoteRequired && note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a note is required to "+strings.ToLower(string(action)))
	}
	if req.Revision != nil && action != models.ActionResubmit {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a revision may only accompany a resubmission")
	}
	revision, err := revisionFrom(req.Revision)
	if err != nil {
		return nil, err
	}

	if submission.State != edge.From {
		return nil, conflictFor(submission, edge)
	}
	enforceAssignee := edge.Reviewer && !Authorize(session.Role, CapQueueOverride)
	if enforceAssignee && submission.AssignedReviewerID != nil && !submission.AssignedTo(session.UserID) {
		return nil, appErrors.Clone(appErrors.ErrAlreadyAssigned, "submission is assigned to another reviewer")
	}

	params := repository.TransitionParams{
		SubmissionID:    submission.ID,
		ExpectedState:   edge.From,
		NewState:        edge.To,
		ActorID:         session.UserID,
		Action:          edge.Audit,
		Note:            optionalString(note),
		EnforceAssignee: enforceAssignee,
		Requeue:         edge.Requeue,
		Revision:        revision,
		Notify:          edge.Notify,
		At:              s.now().UTC(),
	}

	var publication *models.Publication
	var hooks []repository.TxFunc
	if edge.Promote {
		hooks = append(hooks, func(ctx context.Context, tx *sqlx.Tx, committed *models.Submission, entry *models.AuditEntry) error {
			var exec sqlx.ExtContext
			if tx != nil {
				exec = tx
			}
			pub, err := s.promoter.Promote(ctx, exec, committed, entry)
			if err != nil {
				return err
			}
			publication = pub
			return nil
		})
	}

	result, err := s.store.ApplyTransition(ctx, params, hooks...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMiss(ctx, session, submission.ID, edge, enforceAssignee)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}

	if edge.Notify && s.outbox != nil {
		s.outbox.Publish(result.Audit)
	}

	logger.WithRequest(ctx, s.logger).Info("submission transitioned",
		zap.String("submission_id", submission.ID),
		zap.String("action", string(action)),
		zap.String("from", string(edge.From)),
		zap.String("to", string(edge.To)),
		zap.String("actor_id", session.UserID),
		zap.Int64("audit_id", result.Audit.ID),
	)
	return &dto.TransitionResponse{Submission: result.Submission, Audit: result.Audit, Publication: publication}, nil
}

// classifyMiss re-reads after a guarded update matched no row.
func (s *SubmissionService) classifyMiss(ctx context.Context, session *models.Session, id string, edge Edge, enforceAssignee bool) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if current.State != edge.From {
		return conflictFor(current, edge)
	}
	if enforceAssignee && current.AssignedReviewerID != nil && !current.AssignedTo(session.UserID) {
		return appErrors.Clone(appErrors.ErrAlreadyAssigned, "submission is assigned to another reviewer")
	}
	return appErrors.Clone(appErrors.ErrConflict, "submission changed concurrently; re-read and retry")
}

func (s *SubmissionService) load(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func canView(session *models.Session, submission *models.Submission) bool {
	return submission.IsOwnedBy(session.UserID) || Permits(session, CapSubmissionReadAny)
}

// callerWriteError classifies a failed write keyed on the caller's user id.
func callerWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrUnknownUser) {
		return appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "caller is not registered in the user directory")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func conflictFor(submission *models.Submission, edge Edge) error {
	return appErrors.Clone(appErrors.ErrConflict,
		"submission is "+string(submission.State)+", "+string(edge.Action)+" requires "+string(edge.From))
}

// revisionFrom normalises a resubmission payload. A field that is present
// must still hold a value after trimming, matching what intake requires.
func revisionFrom(payload *dto.RevisionPayload) (*models.SubmissionRevision, error) {
	if payload == nil {
		return nil, nil
	}
	rev := &models.SubmissionRevision{}
	var blank []string
	for _, field := range []struct {
		name string
		in   *string
		out  **string
	}{
		{"title", payload.Title, &rev.Title},
		{"abstract", payload.Abstract, &rev.Abstract},
		{"documentRef", payload.DocumentRef, &rev.DocumentRef},
	} {
		if field.in == nil {
			continue
		}
		if *field.out = trimmedPtr(field.in); *field.out == nil {
			blank = append(blank, field.name)
		}
	}
	if payload.Authors != nil {
		if rev.Authors = cleanList(payload.Authors); len(rev.Authors) == 0 {
			blank = append(blank, "authors")
		}
	}
	if payload.Keywords != nil {
		rev.Keywords = cleanList(payload.Keywords)
	}
	if len(blank) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revision fields may not be blank: "+strings.Join(blank, ", "))
	}
	if rev.Empty() {
		return nil, nil
	}
	return rev, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
