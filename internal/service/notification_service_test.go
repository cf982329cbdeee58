package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/internal/repository"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/mailer"
)

type notificationRepoStub struct {
	mu     sync.Mutex
	events map[string]*models.NotificationEvent
	muted  map[string]bool
	seq    int
	err    error
}

func newNotificationRepoStub() *notificationRepoStub {
	return &notificationRepoStub{events: make(map[string]*models.NotificationEvent), muted: make(map[string]bool)}
}

func eventKey(auditID int64, recipient string) string {
	return fmt.Sprintf("%d|%s", auditID, recipient)
}

func (n *notificationRepoStub) CreateIfAbsent(ctx context.Context, event *models.NotificationEvent) (*models.NotificationEvent, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, false, n.err
	}
	key := eventKey(event.AuditEntryID, event.RecipientUserID)
	if existing, ok := n.events[key]; ok {
		dup := *existing
		return &dup, false, nil
	}
	n.seq++
	stored := *event
	stored.ID = fmt.Sprintf("n-%d", n.seq)
	n.events[key] = &stored
	dup := stored
	return &dup, true, nil
}

func (n *notificationRepoStub) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.NotificationEvent
	for _, event := range n.events {
		if event.RecipientUserID != filter.RecipientUserID {
			continue
		}
		if filter.UnreadOnly && event.Read {
			continue
		}
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (n *notificationRepoStub) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, event := range n.events {
		if event.ID == id && event.RecipientUserID == recipientID {
			event.Read = true
			if event.ReadAt == nil {
				event.ReadAt = &at
			}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (n *notificationRepoStub) IsMuted(ctx context.Context, userID string, kind models.NotificationKind) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.muted[userID+"|"+string(kind)], nil
}

func (n *notificationRepoStub) UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.muted[pref.UserID+"|"+string(pref.Kind)] = pref.Muted
	return nil
}

func (n *notificationRepoStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type directoryStub struct {
	mu      sync.Mutex
	users   map[string]models.User
	watches map[string]map[string]bool
}

func newDirectoryStub(users ...models.User) *directoryStub {
	d := &directoryStub{users: make(map[string]models.User), watches: make(map[string]map[string]bool)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *directoryStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (d *directoryStub) ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.User
	for _, user := range d.users {
		for _, role := range roles {
			if user.Role == role {
				out = append(out, user)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *directoryStub) ListDomainWatchers(ctx context.Context, domain string, roles []models.UserRole) ([]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.User
	for userID := range d.watches[domain] {
		user := d.users[userID]
		for _, role := range roles {
			if user.Role == role {
				out = append(out, user)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *directoryStub) WatchDomain(ctx context.Context, userID, domain string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return fmt.Errorf("watch domain: %w", repository.ErrUnknownUser)
	}
	if d.watches[domain] == nil {
		d.watches[domain] = make(map[string]bool)
	}
	d.watches[domain][userID] = true
	return nil
}

func (d *directoryStub) UnwatchDomain(ctx context.Context, userID, domain string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.watches[domain], userID)
	return nil
}

type mailerStub struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *mailerStub) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func defaultUsers() []models.User {
	return []models.User{
		{ID: "student-1", Email: "student@example.com", Role: models.RoleStudent},
		{ID: "student-2", Email: "other@example.com", Role: models.RoleStudent},
		{ID: "staff-1", Email: "r1@example.com", Role: models.RoleStaff},
		{ID: "staff-2", Email: "r2@example.com", Role: models.RoleStaff},
		{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin},
		{ID: "viewer-1", Role: models.RoleViewer},
	}
}

type notificationFixture struct {
	subs   *submissionRepoStub
	store  *notificationRepoStub
	dir    *directoryStub
	mail   *mailerStub
	svc    *NotificationService
	sub    *models.Submission
	create *models.AuditEntry
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	f := &notificationFixture{
		subs:  newSubmissionRepoStub(),
		store: newNotificationRepoStub(),
		dir:   newDirectoryStub(defaultUsers()...),
		mail:  &mailerStub{},
	}
	f.svc = NewNotificationService(f.store, f.dir, f.subs, nil,
		WithNotificationMailer(f.mail),
		WithNotifyRoles([]string{"admin"}),
	)
	f.sub = &models.Submission{OwnerUserID: "student-1", Title: "Dark matter", Domain: "physics", State: models.StatePending, Priority: models.PriorityNormal}
	f.create = &models.AuditEntry{ActorUserID: "student-1", Action: models.AuditActionCreated}
	require.NoError(t, f.subs.Create(context.Background(), f.sub, f.create))
	return f
}

func (f *notificationFixture) entry(action models.AuditAction, actor, note string) *models.AuditEntry {
	entry := &models.AuditEntry{
		SubmissionID: f.sub.ID,
		ActorUserID:  actor,
		Action:       action,
		FromState:    statePtr(models.StatePending),
		ToState:      models.StateRejected,
		Note:         optionalString(note),
		OccurredAt:   time.Now().UTC(),
	}
	_ = f.subs.Append(context.Background(), entry)
	return entry
}

func TestDispatchTwiceProducesOneEvent(t *testing.T) {
	f := newNotificationFixture(t)
	entry := f.entry(models.AuditActionRejected, "staff-1", "insufficient data")

	first, err := f.svc.Dispatch(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, first.Delivered, 1)
	assert.Equal(t, "student-1", first.Delivered[0].RecipientUserID)
	assert.Equal(t, models.NotificationPublicationRejected, first.Delivered[0].Kind)
	require.NotNil(t, first.Delivered[0].Message)
	assert.Equal(t, "insufficient data", *first.Delivered[0].Message)

	second, err := f.svc.Dispatch(context.Background(), entry)
	require.NoError(t, err)
	assert.Empty(t, second.Delivered)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, 1, f.store.count())
	assert.Len(t, f.mail.sent, 1, "email is not re-sent on replay")
}

func TestDispatchCreatedNotifiesNobody(t *testing.T) {
	f := newNotificationFixture(t)
	result, err := f.svc.Dispatch(context.Background(), f.create)
	require.NoError(t, err)
	assert.Empty(t, result.Delivered)
	assert.Equal(t, 0, f.store.count())
}

func TestDispatchMutedRecipientIsSuppressed(t *testing.T) {
	f := newNotificationFixture(t)
	_, err := f.svc.SetMutePreference(context.Background(), sessionFor("student-1", models.RoleStudent), "publication_rejected", dto.MutePreferenceRequest{Muted: true})
	require.NoError(t, err)

	result, err := f.svc.Dispatch(context.Background(), f.entry(models.AuditActionRejected, "staff-1", "no"))
	require.NoError(t, err)
	assert.Empty(t, result.Delivered)
	assert.Equal(t, []string{"student-1"}, result.Suppressed)
	assert.Equal(t, 0, f.store.count(), "suppressed recipients get no event at all")
	assert.Empty(t, f.mail.sent)
}

func TestDispatchResubmissionFansOutToWatchers(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetDomainWatch(ctx, sessionFor("staff-1", models.RoleStaff), "physics", dto.DomainWatchRequest{Watching: true}))
	require.NoError(t, f.svc.SetDomainWatch(ctx, sessionFor("staff-2", models.RoleStaff), "physics", dto.DomainWatchRequest{Watching: true}))

	result, err := f.svc.Dispatch(ctx, f.entry(models.AuditActionResubmitted, "student-1", ""))
	require.NoError(t, err)
	require.Len(t, result.Delivered, 2)
	assert.Equal(t, "staff-1", result.Delivered[0].RecipientUserID)
	assert.Equal(t, "staff-2", result.Delivered[1].RecipientUserID)
	assert.Equal(t, models.NotificationSubmissionResubmitted, result.Kind)
}

func TestDispatchResubmissionFallsBackToNotifyRoles(t *testing.T) {
	f := newNotificationFixture(t)
	result, err := f.svc.Dispatch(context.Background(), f.entry(models.AuditActionResubmitted, "student-1", ""))
	require.NoError(t, err)
	require.Len(t, result.Delivered, 1)
	assert.Equal(t, "admin-1", result.Delivered[0].RecipientUserID)
}

func TestDispatchSkipsResubmitterAmongWatchers(t *testing.T) {
	f := newNotificationFixture(t)
	require.NoError(t, f.svc.SetDomainWatch(context.Background(), sessionFor("admin-1", models.RoleAdmin), "physics", dto.DomainWatchRequest{Watching: true}))

	result, err := f.svc.Dispatch(context.Background(), &models.AuditEntry{
		ID: 99, SubmissionID: f.sub.ID, ActorUserID: "admin-1", Action: models.AuditActionResubmitted,
		FromState: statePtr(models.StateNeedsRevision), ToState: models.StatePending,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Delivered)
}

func TestDispatchNotifiesOwnerOfDecisionOnOwnSubmission(t *testing.T) {
	f := newNotificationFixture(t)
	f.sub = &models.Submission{OwnerUserID: "admin-1", Title: "Tides", Domain: "physics", State: models.StatePending, Priority: models.PriorityNormal}
	require.NoError(t, f.subs.Create(context.Background(), f.sub, &models.AuditEntry{ActorUserID: "admin-1", Action: models.AuditActionCreated}))

	result, err := f.svc.Dispatch(context.Background(), f.entry(models.AuditActionApproved, "admin-1", ""))
	require.NoError(t, err)
	require.Len(t, result.Delivered, 1)
	assert.Equal(t, "admin-1", result.Delivered[0].RecipientUserID)
	assert.Equal(t, models.NotificationPublicationApproved, result.Delivered[0].Kind)
}

func TestDispatchEmailFailureDoesNotFail(t *testing.T) {
	f := newNotificationFixture(t)
	f.mail.err = errors.New("smtp down")
	result, err := f.svc.Dispatch(context.Background(), f.entry(models.AuditActionApproved, "staff-1", ""))
	require.NoError(t, err)
	assert.Len(t, result.Delivered, 1)
}

func TestDispatchStoreFailureIsReturned(t *testing.T) {
	f := newNotificationFixture(t)
	f.store.err = errors.New("db down")
	_, err := f.svc.Dispatch(context.Background(), f.entry(models.AuditActionApproved, "staff-1", ""))
	require.Error(t, err)
}

func TestMarkReadForeignNotificationIsNotFound(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	result, err := f.svc.Dispatch(ctx, f.entry(models.AuditActionApproved, "staff-1", ""))
	require.NoError(t, err)
	id := result.Delivered[0].ID

	err = f.svc.MarkRead(ctx, sessionFor("student-2", models.RoleStudent), id)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound))

	require.NoError(t, f.svc.MarkRead(ctx, sessionFor("student-1", models.RoleStudent), id))
	unread, err := f.svc.ListMine(ctx, sessionFor("student-1", models.RoleStudent), dto.NotificationQuery{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestNotificationPathsRequireIdentity(t *testing.T) {
	f := newNotificationFixture(t)
	_, err := f.svc.ListMine(context.Background(), models.AnonymousSession(), dto.NotificationQuery{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthenticated))

	err = f.svc.SetDomainWatch(context.Background(), sessionFor("student-1", models.RoleStudent), "physics", dto.DomainWatchRequest{Watching: true})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))

	_, err = f.svc.SetMutePreference(context.Background(), sessionFor("student-1", models.RoleStudent), "BOGUS", dto.MutePreferenceRequest{Muted: true})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation))
}

func TestPreferenceWritesRejectUnregisteredCallers(t *testing.T) {
	f := newNotificationFixture(t)
	err := f.svc.SetDomainWatch(context.Background(), sessionFor("staff-unknown", models.RoleStaff), "physics", dto.DomainWatchRequest{Watching: true})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthenticated))

	f.store.err = fmt.Errorf("upsert notification preference: %w", repository.ErrUnknownUser)
	_, err = f.svc.SetMutePreference(context.Background(), sessionFor("student-unknown", models.RoleStudent), string(models.NotificationPublicationApproved), dto.MutePreferenceRequest{Muted: true})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthenticated))
}

func TestEmailBodyRendersNoteMarkdown(t *testing.T) {
	note := "Please tighten **section 2**. <script>alert(1)</script>"
	body := emailBody(
		&models.NotificationEvent{Kind: models.NotificationRevisionRequested, Message: &note},
		&models.Submission{ID: "sub-1", Title: "Tides & Moons"},
	)

	assert.Contains(t, body, "Revision requested: Tides &amp; Moons")
	assert.Contains(t, body, "<strong>section 2</strong>")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "sub-1")
}
