package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/export"
)

type auditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListBySubmission(ctx context.Context, submissionID string) ([]models.AuditEntry, error)
}

type submissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

// AuditRenderer renders a dataset into a downloadable document.
type AuditRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
	Extension() string
}

var auditHeaders = []string{"id", "occurred_at", "actor", "action", "from", "to", "note"}

// AuditService serves the audit trail and reviewer annotations.
type AuditService struct {
	audit       auditStore
	submissions submissionReader
	renderers   map[string]AuditRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuditService constructs the service with CSV and PDF renderers.
func NewAuditService(audit auditStore, submissions submissionReader, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuditService{
		audit:       audit,
		submissions: submissions,
		renderers: map[string]AuditRenderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(map[string]float64{"note": 3, "occurred_at": 1.6, "actor": 1.6}),
		},
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// ListAudit returns the trail to the owner or an audit reader. Everyone else
// gets NotFound so the submission's existence is not revealed.
func (s *AuditService) ListAudit(ctx context.Context, session *models.Session, submissionID string) ([]models.AuditEntry, error) {
	if _, err := s.visibleSubmission(ctx, session, submissionID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	return entries, nil
}

// AddNote appends a reviewer annotation that does not change state.
func (s *AuditService) AddNote(ctx context.Context, session *models.Session, submissionID string, req dto.NoteRequest) (*models.AuditEntry, error) {
	if err := requireMutation(session, CapAuditAnnotate); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note payload")
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "note must not be blank")
	}
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	state := submission.State
	entry := &models.AuditEntry{
		SubmissionID: submission.ID,
		ActorUserID:  session.UserID,
		Action:       models.AuditActionNote,
		FromState:    &state,
		ToState:      state,
		Note:         &note,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append note")
	}
	return entry, nil
}

// VerifyConsistency replays the trail and compares it with the stored state.
func (s *AuditService) VerifyConsistency(ctx context.Context, session *models.Session, submissionID string) (*dto.AuditConsistency, error) {
	if err := requireMutation(session, CapAuditReadAny); err != nil {
		return nil, err
	}
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.audit.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}

	report := &dto.AuditConsistency{
		SubmissionID: submission.ID,
		CurrentState: submission.State,
		Entries:      len(entries),
	}
	replayed, err := ReplayState(entries)
	if err != nil {
		report.Problem = err.Error()
	} else {
		report.ReplayedState = replayed
		report.Consistent = replayed == submission.State
		if !report.Consistent {
			report.Problem = fmt.Sprintf("trail replays to %s", replayed)
		}
	}
	if !report.Consistent {
		s.logger.Warn("audit trail inconsistent",
			zap.String("submission_id", submission.ID),
			zap.String("problem", report.Problem),
		)
	}
	return report, nil
}

// ExportAudit renders the trail as csv or pdf.
func (s *AuditService) ExportAudit(ctx context.Context, session *models.Session, submissionID, format string) (*dto.AuditExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+format)
	}
	submission, err := s.visibleSubmission(ctx, session, submissionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.audit.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}

	dataset := export.Dataset{Headers: auditHeaders, Rows: make([]map[string]string, 0, len(entries))}
	for _, entry := range entries {
		from := ""
		if entry.FromState != nil {
			from = string(*entry.FromState)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":          strconv.FormatInt(entry.ID, 10),
			"occurred_at": entry.OccurredAt.UTC().Format(time.RFC3339),
			"actor":       entry.ActorUserID,
			"action":      string(entry.Action),
			"from":        from,
			"to":          string(entry.ToState),
			"note":        entry.NoteText(),
		})
	}
	body, err := renderer.Render(dataset, "Audit trail: "+submission.Title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	return &dto.AuditExport{
		Filename:    fmt.Sprintf("audit-%s.%s", submission.ID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func (s *AuditService) visibleSubmission(ctx context.Context, session *models.Session, submissionID string) (*models.Submission, error) {
	session = sessionOrAnonymous(session)
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if !submission.IsOwnedBy(session.UserID) && !Authorize(session.Role, CapAuditReadAny) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return submission, nil
}

func (s *AuditService) load(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}
