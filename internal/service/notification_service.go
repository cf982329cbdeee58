package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"gitlab.com/golang-commonmark/markdown"
	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/mailer"
)

type notificationStore interface {
	CreateIfAbsent(ctx context.Context, event *models.NotificationEvent) (*models.NotificationEvent, bool, error)
	ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationEvent, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	IsMuted(ctx context.Context, userID string, kind models.NotificationKind) (bool, error)
	UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
	ListDomainWatchers(ctx context.Context, domain string, roles []models.UserRole) ([]models.User, error)
	WatchDomain(ctx context.Context, userID, domain string, at time.Time) error
	UnwatchDomain(ctx context.Context, userID, domain string) error
}

type notificationMailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// DispatchResult summarises one fan-out.
type DispatchResult struct {
	AuditEntryID int64
	Kind         models.NotificationKind
	Delivered    []models.NotificationEvent
	// Duplicates counts recipients that already held an event for this entry.
	Duplicates int
	// Suppressed lists recipients who muted the kind; no event exists for them.
	Suppressed []string
}

// NotificationService fans committed audit entries out to recipients.
type NotificationService struct {
	store       notificationStore
	directory   recipientDirectory
	submissions submissionReader
	mailer      notificationMailer
	notifyRoles []models.UserRole
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NotificationServiceOption configures the service.
type NotificationServiceOption func(*NotificationService)

// WithNotificationMailer enables the email channel.
func WithNotificationMailer(m notificationMailer) NotificationServiceOption {
	return func(s *NotificationService) {
		s.mailer = m
	}
}

// WithNotificationMetrics attaches dispatch counters.
func WithNotificationMetrics(metrics *MetricsService) NotificationServiceOption {
	return func(s *NotificationService) {
		s.metrics = metrics
	}
}

// WithNotifyRoles sets the fallback resubmission audience.
func WithNotifyRoles(roles []string) NotificationServiceOption {
	return func(s *NotificationService) {
		var parsed []models.UserRole
		for _, raw := range roles {
			if role, ok := models.ParseRole(raw); ok && role.IsReviewer() {
				parsed = append(parsed, role)
			}
		}
		if len(parsed) > 0 {
			s.notifyRoles = parsed
		}
	}
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(store notificationStore, directory recipientDirectory, submissions submissionReader, logger *zap.Logger, opts ...NotificationServiceOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		store:       store,
		directory:   directory,
		submissions: submissions,
		notifyRoles: []models.UserRole{models.RoleAdmin},
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Dispatch delivers the notifications implied by entry. Re-dispatching the
// same entry never creates a second event for a recipient.
func (s *NotificationService) Dispatch(ctx context.Context, entry *models.AuditEntry) (*DispatchResult, error) {
	result := &DispatchResult{AuditEntryID: entry.ID}
	kind, ok := models.NotificationKindFor(entry.Action)
	if !ok {
		return result, nil
	}
	result.Kind = kind

	submission, err := s.submissions.GetByID(ctx, entry.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission %s: %w", entry.SubmissionID, err)
	}
	recipients, err := s.recipients(ctx, kind, entry, submission)
	if err != nil {
		return nil, err
	}

	for _, recipient := range recipients {
		muted, err := s.store.IsMuted(ctx, recipient.ID, kind)
		if err != nil {
			return nil, err
		}
		if muted {
			result.Suppressed = append(result.Suppressed, recipient.ID)
			s.metrics.RecordDispatch(string(kind), outcomeSuppressed)
			continue
		}

		event, inserted, err := s.store.CreateIfAbsent(ctx, &models.NotificationEvent{
			RecipientUserID:     recipient.ID,
			Kind:                kind,
			SubjectSubmissionID: submission.ID,
			AuditEntryID:        entry.ID,
			Message:             entry.Note,
			CreatedAt:           s.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		if !inserted {
			result.Duplicates++
			s.metrics.RecordDispatch(string(kind), outcomeDuplicate)
			continue
		}
		result.Delivered = append(result.Delivered, *event)
		s.metrics.RecordDispatch(string(kind), outcomeDelivered)
		s.email(ctx, recipient, event, submission)
	}

	s.logger.Debug("notifications dispatched",
		zap.Int64("audit_id", entry.ID),
		zap.String("kind", string(kind)),
		zap.Int("delivered", len(result.Delivered)),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("suppressed", len(result.Suppressed)),
	)
	return result, nil
}

func (s *NotificationService) recipients(ctx context.Context, kind models.NotificationKind, entry *models.AuditEntry, submission *models.Submission) ([]models.User, error) {
	var candidates []models.User
	switch kind {
	case models.NotificationSubmissionResubmitted:
		watchers, err := s.directory.ListDomainWatchers(ctx, submission.Domain, []models.UserRole{models.RoleStaff, models.RoleAdmin})
		if err != nil {
			return nil, err
		}
		candidates = watchers
		if len(candidates) == 0 {
			fallback, err := s.directory.ListByRoles(ctx, s.notifyRoles)
			if err != nil {
				return nil, err
			}
			candidates = fallback
		}
	default:
		owner, err := s.directory.FindByID(ctx, submission.OwnerUserID)
		if err != nil {
			return nil, fmt.Errorf("load submission owner %s: %w", submission.OwnerUserID, err)
		}
		candidates = []models.User{*owner}
	}

	// A reviewer resubmitting into a domain they watch is not told about it.
	// Decisions always reach the owner, including one made on their own work.
	skip := ""
	if kind == models.NotificationSubmissionResubmitted {
		skip = entry.ActorUserID
	}
	out := make([]models.User, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, user := range candidates {
		if user.ID == "" || user.ID == skip {
			continue
		}
		if _, dup := seen[user.ID]; dup {
			continue
		}
		seen[user.ID] = struct{}{}
		out = append(out, user)
	}
	return out, nil
}

func (s *NotificationService) email(ctx context.Context, recipient models.User, event *models.NotificationEvent, submission *models.Submission) {
	if s.mailer == nil || recipient.Email == "" {
		return
	}
	msg := mailer.Message{
		To:      []string{recipient.Email},
		Subject: emailSubject(event.Kind, submission.Title),
		HTML:    emailBody(event, submission),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("notification email failed",
			zap.String("notification_id", event.ID),
			zap.String("recipient_id", recipient.ID),
			zap.Error(err),
		)
	}
}

func emailSubject(kind models.NotificationKind, title string) string {
	switch kind {
	case models.NotificationPublicationApproved:
		return "Published: " + title
	case models.NotificationPublicationRejected:
		return "Not accepted: " + title
	case models.NotificationRevisionRequested:
		return "Revision requested: " + title
	default:
		return "Resubmitted for review: " + title
	}
}

// Reviewer notes are CommonMark; raw HTML in them is escaped.
var noteRenderer = markdown.New(markdown.HTML(false), markdown.Linkify(true), markdown.Typographer(true), markdown.MaxNesting(10))

func emailBody(event *models.NotificationEvent, submission *models.Submission) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(emailSubject(event.Kind, submission.Title)))
	b.WriteString("</p>")
	if event.Message != nil && *event.Message != "" {
		b.WriteString("<blockquote>")
		b.WriteString(noteRenderer.RenderToString([]byte(*event.Message)))
		b.WriteString("</blockquote>")
	}
	b.WriteString("<p>Submission ")
	b.WriteString(html.EscapeString(submission.ID))
	b.WriteString("</p>")
	return b.String()
}

// ListMine returns the caller's inbox.
func (s *NotificationService) ListMine(ctx context.Context, session *models.Session, query dto.NotificationQuery) ([]models.NotificationEvent, error) {
	if err := requireMutation(session, CapNotificationManage); err != nil {
		return nil, err
	}
	events, err := s.store.ListByRecipient(ctx, models.NotificationFilter{
		RecipientUserID: session.UserID,
		UnreadOnly:      query.UnreadOnly,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return events, nil
}

// MarkRead marks one of the caller's notifications as read. Foreign ids are NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, session *models.Session, id string) error {
	if err := requireMutation(session, CapNotificationManage); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, id, session.UserID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// SetMutePreference mutes or unmutes a notification kind for the caller.
func (s *NotificationService) SetMutePreference(ctx context.Context, session *models.Session, rawKind string, req dto.MutePreferenceRequest) (*models.NotificationPreference, error) {
	if err := requireMutation(session, CapNotificationManage); err != nil {
		return nil, err
	}
	kind, ok := models.ParseNotificationKind(rawKind)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification kind "+rawKind)
	}
	pref := &models.NotificationPreference{UserID: session.UserID, Kind: kind, Muted: req.Muted, UpdatedAt: s.now().UTC()}
	if err := s.store.UpsertPreference(ctx, pref); err != nil {
		return nil, callerWriteError(err, "failed to store preference")
	}
	return pref, nil
}

// SetDomainWatch subscribes a reviewer to resubmissions in domain.
func (s *NotificationService) SetDomainWatch(ctx context.Context, session *models.Session, domain string, req dto.DomainWatchRequest) error {
	if err := requireMutation(session, CapDomainWatch); err != nil {
		return err
	}
	domain = strings.TrimSpace(domain)
	if domain == "" || len(domain) > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "domain must be 1-100 characters")
	}
	var err error
	if req.Watching {
		err = s.directory.WatchDomain(ctx, session.UserID, domain, s.now().UTC())
	} else {
		err = s.directory.UnwatchDomain(ctx, session.UserID, domain)
	}
	if err != nil {
		return callerWriteError(err, "failed to update domain watch")
	}
	return nil
}
