package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/internal/repository"
)

// submissionRepoStub keeps submissions, audit entries and outbox ids in
// memory and applies guarded updates atomically under one mutex.
type submissionRepoStub struct {
	mu        sync.Mutex
	subs      map[string]*models.Submission
	audit     []models.AuditEntry
	outbox    []int64
	nextSub   int
	nextAudit int64
	createErr error
}

func newSubmissionRepoStub() *submissionRepoStub {
	return &submissionRepoStub{subs: make(map[string]*models.Submission)}
}

func (m *submissionRepoStub) Create(ctx context.Context, submission *models.Submission, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if submission.ID == "" {
		m.nextSub++
		submission.ID = fmt.Sprintf("sub-%d", m.nextSub)
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	if submission.EnqueuedAt.IsZero() {
		submission.EnqueuedAt = submission.CreatedAt
	}
	submission.UpdatedAt = submission.CreatedAt
	submission.Version = 1
	stored := *submission
	m.subs[submission.ID] = &stored

	entry.SubmissionID = submission.ID
	entry.ToState = submission.State
	entry.OccurredAt = submission.CreatedAt
	m.appendLocked(entry)
	return nil
}

func (m *submissionRepoStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	dup := *sub
	return &dup, nil
}

func (m *submissionRepoStub) ListByOwner(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Submission
	for _, sub := range m.subs {
		if sub.OwnerUserID == filter.OwnerUserID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

// ListQueue returns entries in map order so callers must sort.
func (m *submissionRepoStub) ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QueueEntry
	for _, sub := range m.subs {
		if sub.State != models.StatePending {
			continue
		}
		if filter.Priority != nil && sub.Priority != *filter.Priority {
			continue
		}
		if filter.AssignedTo != "" && !sub.AssignedTo(filter.AssignedTo) {
			continue
		}
		if filter.Unassigned && sub.AssignedReviewerID != nil {
			continue
		}
		if filter.Domain != "" && sub.Domain != filter.Domain {
			continue
		}
		out = append(out, models.QueueEntry{
			SubmissionID:       sub.ID,
			Title:              sub.Title,
			Domain:             sub.Domain,
			OwnerUserID:        sub.OwnerUserID,
			Priority:           sub.Priority,
			EnqueuedAt:         sub.EnqueuedAt,
			AssignedReviewerID: sub.AssignedReviewerID,
		})
	}
	return out, nil
}

func (m *submissionRepoStub) ApplyTransition(ctx context.Context, params repository.TransitionParams, hooks ...repository.TxFunc) (*repository.TransitionResult, error) {
	return m.guarded(ctx, params.SubmissionID, func(sub *models.Submission) bool {
		if sub.State != params.ExpectedState {
			return false
		}
		if params.EnforceAssignee && sub.AssignedReviewerID != nil && *sub.AssignedReviewerID != params.ActorID {
			return false
		}
		sub.State = params.NewState
		if params.Requeue {
			sub.EnqueuedAt = params.At
			sub.AssignedReviewerID = nil
		}
		if rev := params.Revision; !rev.Empty() {
			if rev.Title != nil {
				sub.Title = *rev.Title
			}
			if rev.Abstract != nil {
				sub.Abstract = *rev.Abstract
			}
			if rev.Authors != nil {
				sub.Authors = rev.Authors
			}
			if rev.Keywords != nil {
				sub.Keywords = rev.Keywords
			}
			if rev.DocumentRef != nil {
				sub.DocumentRef = *rev.DocumentRef
			}
		}
		return true
	}, models.AuditEntry{
		ActorUserID: params.ActorID,
		Action:      params.Action,
		FromState:   statePtr(params.ExpectedState),
		ToState:     params.NewState,
		Note:        params.Note,
		OccurredAt:  params.At,
	}, params.Notify, hooks...)
}

func (m *submissionRepoStub) Assign(ctx context.Context, params repository.AssignParams) (*repository.TransitionResult, error) {
	return m.guarded(ctx, params.SubmissionID, func(sub *models.Submission) bool {
		if sub.State != models.StatePending {
			return false
		}
		if !params.Override && sub.AssignedReviewerID != nil && *sub.AssignedReviewerID != params.ReviewerID {
			return false
		}
		reviewer := params.ReviewerID
		sub.AssignedReviewerID = &reviewer
		return true
	}, models.AuditEntry{
		ActorUserID: params.ReviewerID,
		Action:      models.AuditActionAssigned,
		FromState:   statePtr(models.StatePending),
		ToState:     models.StatePending,
		Note:        params.Note,
		OccurredAt:  params.At,
	}, false)
}

func (m *submissionRepoStub) Release(ctx context.Context, params repository.ReleaseParams) (*repository.TransitionResult, error) {
	return m.guarded(ctx, params.SubmissionID, func(sub *models.Submission) bool {
		if sub.State != models.StatePending || !sub.AssignedTo(params.ExpectedReviewerID) {
			return false
		}
		sub.AssignedReviewerID = nil
		return true
	}, models.AuditEntry{
		ActorUserID: params.ActorID,
		Action:      models.AuditActionReleased,
		FromState:   statePtr(models.StatePending),
		ToState:     models.StatePending,
		OccurredAt:  params.At,
	}, false)
}

func (m *submissionRepoStub) Reprioritize(ctx context.Context, params repository.ReprioritizeParams) (*repository.TransitionResult, error) {
	note := fmt.Sprintf("%s -> %s", params.ExpectedPriority, params.NewPriority)
	return m.guarded(ctx, params.SubmissionID, func(sub *models.Submission) bool {
		if sub.State != models.StatePending || sub.Priority != params.ExpectedPriority {
			return false
		}
		sub.Priority = params.NewPriority
		return true
	}, models.AuditEntry{
		ActorUserID: params.ActorID,
		Action:      models.AuditActionReprioritized,
		FromState:   statePtr(models.StatePending),
		ToState:     models.StatePending,
		Note:        &note,
		OccurredAt:  params.At,
	}, false)
}

func (m *submissionRepoStub) guarded(ctx context.Context, id string, mutate func(*models.Submission) bool, entry models.AuditEntry, notify bool, hooks ...repository.TxFunc) (*repository.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := *current
	if !mutate(&working) {
		return nil, sql.ErrNoRows
	}
	working.Version++
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	working.UpdatedAt = entry.OccurredAt
	entry.SubmissionID = id
	entry.ID = m.nextAudit + 1
	for _, hook := range hooks {
		if err := hook(ctx, (*sqlx.Tx)(nil), &working, &entry); err != nil {
			return nil, err
		}
	}
	m.subs[id] = &working
	m.appendLocked(&entry)
	if notify {
		m.outbox = append(m.outbox, entry.ID)
	}
	committed := working
	return &repository.TransitionResult{Submission: &committed, Audit: &entry}, nil
}

func (m *submissionRepoStub) appendLocked(entry *models.AuditEntry) {
	m.nextAudit++
	entry.ID = m.nextAudit
	m.audit = append(m.audit, *entry)
}

// Append and ListBySubmission satisfy auditStore.
func (m *submissionRepoStub) Append(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(entry)
	return nil
}

func (m *submissionRepoStub) ListBySubmission(ctx context.Context, submissionID string) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEntry
	for _, entry := range m.audit {
		if entry.SubmissionID == submissionID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *submissionRepoStub) auditCount(submissionID string) int {
	entries, _ := m.ListBySubmission(context.Background(), submissionID)
	return len(entries)
}

// auditByID exposes the stub as an auditLoader.
type auditByID struct {
	*submissionRepoStub
}

func (a auditByID) GetByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, entry := range a.audit {
		if entry.ID == id {
			found := entry
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

type publicationRepoStub struct {
	mu       sync.Mutex
	bySource map[string]*models.Publication
	inserts  int
	err      error
}

func newPublicationRepoStub() *publicationRepoStub {
	return &publicationRepoStub{bySource: make(map[string]*models.Publication)}
}

func (p *publicationRepoStub) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, pub *models.Publication) (*models.Publication, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if existing, ok := p.bySource[pub.SourceSubmissionID]; ok {
		dup := *existing
		return &dup, nil
	}
	p.inserts++
	stored := *pub
	if stored.ID == "" {
		stored.ID = "pub-" + pub.SourceSubmissionID
	}
	p.bySource[pub.SourceSubmissionID] = &stored
	dup := stored
	return &dup, nil
}

func (p *publicationRepoStub) GetByID(ctx context.Context, id string) (*models.Publication, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pub := range p.bySource {
		if pub.ID == id {
			dup := *pub
			return &dup, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (p *publicationRepoStub) List(ctx context.Context, filter models.PublicationFilter) ([]models.Publication, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Publication
	for _, pub := range p.bySource {
		if filter.Domain == "" || pub.Domain == filter.Domain {
			out = append(out, *pub)
		}
	}
	return out, nil
}

// outboxRecorder captures published entries instead of queueing them.
type outboxRecorder struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (o *outboxRecorder) Publish(entry *models.AuditEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entry)
}

func (o *outboxRecorder) published() []*models.AuditEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.AuditEntry(nil), o.entries...)
}

func statePtr(s models.SubmissionState) *models.SubmissionState {
	return &s
}

func sessionFor(id string, role models.UserRole) *models.Session {
	return &models.Session{UserID: id, Role: role}
}
