package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/internal/repository"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/logger"
)

type queueStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntry, error)
	Assign(ctx context.Context, params repository.AssignParams) (*repository.TransitionResult, error)
	Release(ctx context.Context, params repository.ReleaseParams) (*repository.TransitionResult, error)
	Reprioritize(ctx context.Context, params repository.ReprioritizeParams) (*repository.TransitionResult, error)
}

// QueueService exposes the moderation queue, a projection of PENDING submissions.
type QueueService struct {
	store     queueStore
	pageLimit int
	logger    *zap.Logger
	now       func() time.Time
}

// NewQueueService constructs the service. pageLimit caps list sizes.
func NewQueueService(store queueStore, pageLimit int, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &QueueService{store: store, pageLimit: pageLimit, logger: logger, now: time.Now}
}

// List returns queue entries ordered by priority then age.
func (s *QueueService) List(ctx context.Context, session *models.Session, query dto.QueueQuery) ([]models.QueueEntry, error) {
	session = sessionOrAnonymous(session)
	if err := requireCapability(session, CapQueueRead); err != nil {
		return nil, err
	}

	filter := models.QueueFilter{
		Domain:     strings.TrimSpace(query.Domain),
		Unassigned: query.Unassigned,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	if raw := strings.TrimSpace(query.Priority); raw != "" {
		priority, ok := models.ParsePriority(raw)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority "+raw)
		}
		filter.Priority = &priority
	}
	switch assignee := strings.TrimSpace(query.AssignedTo); {
	case strings.EqualFold(assignee, "me"):
		filter.AssignedTo = session.UserID
	case assignee != "":
		filter.AssignedTo = assignee
	}
	if filter.Limit <= 0 || filter.Limit > s.pageLimit {
		filter.Limit = s.pageLimit
	}

	entries, err := s.store.ListQueue(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list moderation queue")
	}
	SortQueue(entries)
	return entries, nil
}

// SortQueue orders entries by priority descending, then enqueue time
// ascending, then submission id.
func SortQueue(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.SubmissionID < b.SubmissionID
	})
}

// Assign claims a queued submission for the caller. Claiming an item the
// caller already holds changes nothing. Only override holders may take an
// item from another reviewer.
func (s *QueueService) Assign(ctx context.Context, session *models.Session, id string) (*models.Submission, error) {
	if err := requireMutation(session, CapQueueAssign); err != nil {
		return nil, err
	}
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.State != models.StatePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission is "+string(submission.State)+", not in the queue")
	}
	if submission.AssignedTo(session.UserID) {
		return submission, nil
	}

	params := repository.AssignParams{SubmissionID: submission.ID, ReviewerID: session.UserID, At: s.now().UTC()}
	if previous := submission.AssignedReviewerID; previous != nil {
		if !Authorize(session.Role, CapQueueOverride) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyAssigned, "submission is assigned to another reviewer")
		}
		note := "override of " + *previous
		params.Override = true
		params.Note = &note
	}

	result, err := s.store.Assign(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyAssignMiss(ctx, session, submission.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign submission")
	}
	logger.WithRequest(ctx, s.logger).Info("submission assigned",
		zap.String("submission_id", submission.ID),
		zap.String("reviewer_id", session.UserID),
		zap.Bool("override", params.Override),
	)
	return result.Submission, nil
}

// Release clears the caller's assignment; override holders may release anyone's.
func (s *QueueService) Release(ctx context.Context, session *models.Session, id string) (*models.Submission, error) {
	if err := requireMutation(session, CapQueueAssign); err != nil {
		return nil, err
	}
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.State != models.StatePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission is "+string(submission.State)+", not in the queue")
	}
	if submission.AssignedReviewerID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission is not assigned")
	}
	if !submission.AssignedTo(session.UserID) && !Authorize(session.Role, CapQueueOverride) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assignee may release this submission")
	}

	result, err := s.store.Release(ctx, repository.ReleaseParams{
		SubmissionID:       submission.ID,
		ExpectedReviewerID: *submission.AssignedReviewerID,
		ActorID:            session.UserID,
		At:                 s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment changed concurrently; re-read and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release submission")
	}
	return result.Submission, nil
}

// Reprioritize changes a queued submission's priority. It writes an audit
// entry but never notifies.
func (s *QueueService) Reprioritize(ctx context.Context, session *models.Session, id string, req dto.ReprioritizeRequest) (*models.Submission, error) {
	if err := requireMutation(session, CapQueueReprioritize); err != nil {
		return nil, err
	}
	priority, ok := models.ParsePriority(string(req.Priority))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority "+string(req.Priority))
	}
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.State != models.StatePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission is "+string(submission.State)+", not in the queue")
	}
	if submission.Priority == priority {
		return submission, nil
	}

	result, err := s.store.Reprioritize(ctx, repository.ReprioritizeParams{
		SubmissionID:     submission.ID,
		ExpectedPriority: submission.Priority,
		NewPriority:      priority,
		ActorID:          session.UserID,
		At:               s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission changed concurrently; re-read and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reprioritize submission")
	}
	logger.WithRequest(ctx, s.logger).Info("submission reprioritized",
		zap.String("submission_id", submission.ID),
		zap.String("from", string(submission.Priority)),
		zap.String("to", string(priority)),
	)
	return result.Submission, nil
}

func (s *QueueService) classifyAssignMiss(ctx context.Context, session *models.Session, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if current.State != models.StatePending {
		return appErrors.Clone(appErrors.ErrConflict, "submission is "+string(current.State)+", not in the queue")
	}
	if current.AssignedReviewerID != nil && !current.AssignedTo(session.UserID) {
		return appErrors.Clone(appErrors.ErrAlreadyAssigned, "submission is assigned to another reviewer")
	}
	return appErrors.Clone(appErrors.ErrConflict, "submission changed concurrently; re-read and retry")
}

func (s *QueueService) load(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}
