package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/jobs"
)

// JobTypeOutboxDispatch tags notification dispatch jobs.
const JobTypeOutboxDispatch = "notification.dispatch"

type outboxStore interface {
	ListPending(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkDone(ctx context.Context, auditEntryID int64, at time.Time) error
	MarkFailed(ctx context.Context, auditEntryID int64, cause string, terminal bool) error
}

type auditLoader interface {
	GetByID(ctx context.Context, id int64) (*models.AuditEntry, error)
}

type notificationDispatcher interface {
	Dispatch(ctx context.Context, entry *models.AuditEntry) (*DispatchResult, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

// OutboxWorker bridges outbox jobs to the notification dispatcher.
type OutboxWorker struct {
	outbox     outboxStore
	audit      auditLoader
	dispatcher notificationDispatcher
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewOutboxWorker constructs a worker.
func NewOutboxWorker(outbox outboxStore, audit auditLoader, dispatcher notificationDispatcher, metrics *MetricsService, logger *zap.Logger) *OutboxWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxWorker{
		outbox:     outbox,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle processes a queue job. A returned error asks the queue to retry.
func (w *OutboxWorker) Handle(ctx context.Context, job jobs.Job) error {
	auditID, err := auditIDFromJob(job)
	if err != nil {
		w.logger.Sugar().Errorw("discarding malformed outbox job", "job_id", job.ID, "error", err)
		return nil
	}

	entry, err := w.audit.GetByID(ctx, auditID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.metrics.RecordOutboxJob(outcomeFailed)
			if markErr := w.outbox.MarkFailed(ctx, auditID, "audit entry missing", true); markErr != nil {
				w.logger.Sugar().Warnw("failed to mark outbox failed", "audit_id", auditID, "error", markErr)
			}
			return nil
		}
		return err
	}

	if _, err := w.dispatcher.Dispatch(ctx, entry); err != nil {
		w.metrics.RecordOutboxJob("retry")
		if markErr := w.outbox.MarkFailed(ctx, auditID, err.Error(), false); markErr != nil {
			w.logger.Sugar().Warnw("failed to record outbox attempt", "audit_id", auditID, "error", markErr)
		}
		return err
	}

	if err := w.outbox.MarkDone(ctx, auditID, w.now().UTC()); err != nil {
		w.logger.Sugar().Warnw("failed to mark outbox done", "audit_id", auditID, "error", err)
		return err
	}
	w.metrics.RecordOutboxJob("done")
	return nil
}

// Exhausted parks a job that used up its retries. The row leaves the pending
// set so the sweeper stops picking it up.
func (w *OutboxWorker) Exhausted(job jobs.Job, cause error) {
	auditID, err := auditIDFromJob(job)
	if err != nil {
		return
	}
	w.metrics.RecordOutboxJob(outcomeFailed)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.outbox.MarkFailed(ctx, auditID, cause.Error(), true); err != nil {
		w.logger.Sugar().Errorw("failed to park outbox job", "audit_id", auditID, "error", err)
	}
}

// OutboxRelay moves committed outbox rows onto the in-memory job queue.
type OutboxRelay struct {
	outbox   outboxStore
	queue    jobDispatcher
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

// NewOutboxRelay constructs a relay. interval <= 0 disables the sweeper.
func NewOutboxRelay(outbox outboxStore, queue jobDispatcher, interval time.Duration, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{outbox: outbox, queue: queue, interval: interval, batch: 100, logger: logger}
}

// Publish enqueues entry without blocking the caller. A full or stopped
// queue leaves the row PENDING for the sweeper.
func (r *OutboxRelay) Publish(entry *models.AuditEntry) {
	if entry == nil {
		return
	}
	if err := r.queue.TryEnqueue(outboxJob(entry.ID)); err != nil {
		r.logger.Sugar().Warnw("outbox enqueue deferred to sweeper", "audit_id", entry.ID, "error", err)
	}
}

// RecoverPending replays PENDING rows, e.g. after a restart.
func (r *OutboxRelay) RecoverPending(ctx context.Context) int {
	pending, err := r.outbox.ListPending(ctx, r.batch)
	if err != nil {
		r.logger.Sugar().Warnw("failed to list pending outbox rows", "error", err)
		return 0
	}
	enqueued := 0
	for _, row := range pending {
		if err := r.queue.TryEnqueue(outboxJob(row.AuditEntryID)); err != nil {
			r.logger.Sugar().Warnw("failed to requeue outbox row", "audit_id", row.AuditEntryID, "error", err)
			break
		}
		enqueued++
	}
	return enqueued
}

// StartSweeper periodically re-enqueues PENDING rows until ctx is done.
func (r *OutboxRelay) StartSweeper(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RecoverPending(ctx)
			}
		}
	}()
}

func outboxJob(auditID int64) jobs.Job {
	return jobs.Job{ID: strconv.FormatInt(auditID, 10), Type: JobTypeOutboxDispatch, Payload: auditID}
}

func auditIDFromJob(job jobs.Job) (int64, error) {
	if id, ok := job.Payload.(int64); ok {
		return id, nil
	}
	id, err := strconv.ParseInt(job.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("outbox job id %q: %w", job.ID, err)
	}
	return id, nil
}
