package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
)

type publicationStore interface {
	CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, pub *models.Publication) (*models.Publication, error)
	GetByID(ctx context.Context, id string) (*models.Publication, error)
	List(ctx context.Context, filter models.PublicationFilter) ([]models.Publication, error)
}

// PublicationService promotes approved submissions and serves the public reader.
type PublicationService struct {
	repo   publicationStore
	logger *zap.Logger
}

// NewPublicationService constructs the service.
func NewPublicationService(repo publicationStore, logger *zap.Logger) *PublicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicationService{repo: repo, logger: logger}
}

// Promote materialises the publication for an approved submission through
// exec, normally the approving transaction. Repeated calls for the same
// submission return the original publication.
func (s *PublicationService) Promote(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission, approval *models.AuditEntry) (*models.Publication, error) {
	if submission == nil || approval == nil {
		return nil, fmt.Errorf("promote: submission and approval entry are required")
	}
	if submission.State != models.StateApproved {
		return nil, fmt.Errorf("promote submission %s: state is %s", submission.ID, submission.State)
	}
	pub := &models.Publication{
		SourceSubmissionID: submission.ID,
		Title:              submission.Title,
		Abstract:           submission.Abstract,
		Authors:            submission.Authors,
		Domain:             submission.Domain,
		Keywords:           submission.Keywords,
		ContentRef:         submission.DocumentRef,
		ApprovedBy:         approval.ActorUserID,
		PublishedAt:        approval.OccurredAt,
	}
	stored, err := s.repo.CreateIfAbsent(ctx, exec, pub)
	if err != nil {
		return nil, fmt.Errorf("promote submission %s: %w", submission.ID, err)
	}
	s.logger.Info("publication promoted",
		zap.String("submission_id", submission.ID),
		zap.String("publication_id", stored.ID),
	)
	return stored, nil
}

// List returns publications visible to session.
func (s *PublicationService) List(ctx context.Context, session *models.Session, filter models.PublicationFilter) ([]models.Publication, error) {
	if err := requireCapability(session, CapPublicationRead); err != nil {
		return nil, err
	}
	pubs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list publications")
	}
	return pubs, nil
}

// Get fetches a publication.
func (s *PublicationService) Get(ctx context.Context, session *models.Session, id string) (*models.Publication, error) {
	if err := requireCapability(session, CapPublicationRead); err != nil {
		return nil, err
	}
	pub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "publication not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load publication")
	}
	return pub, nil
}
