// Package jobqueue implements the Job Adapter (spec §4.L): a
// badgerhold-persisted queue of CrawlJobs supporting enqueue, waitForJob,
// removeJob, and cancel, with cancellation propagated to the in-flight
// coordinator goroutine via a registered context.CancelFunc.
//
// Grounded on the teacher's internal/queue/badger_manager.go (FIFO
// timestamp+uuid IDs, Upsert/Find-based persistence) and
// internal/storage/badger/job_storage.go (badgerhold query idioms),
// generalized from a generic message queue to the CrawlJob lifecycle this
// module actually needs.
package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/crawl"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

var _ crawl.JobStore = (*Manager)(nil)

// EnqueueOptions carries §4.L's enqueue(kind, payload, opts{priority,
// idempotencyKey}) parameters.
type EnqueueOptions struct {
	Priority       int
	IdempotencyKey string
}

// record is the badgerhold-persisted row: the queue bookkeeping plus the
// live, evolving CrawlJob it tracks.
type record struct {
	ID             string    `badgerhold:"key"`
	Kind           string    `badgerhold:"index"`
	IdempotencyKey string    `badgerhold:"index"`
	Priority       int
	CreatedAt      time.Time `badgerhold:"index"`
	Job            models.CrawlJob
}

// Manager is the Job Adapter: CrawlJob persistence plus the
// enqueue/wait/remove/cancel lifecycle operations.
type Manager struct {
	store     *badgerhold.Store
	logger    arbor.ILogger
	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	resultSeq map[string]int
}

// NewManager builds a Manager over an already-open badgerhold store.
func NewManager(store *badgerhold.Store, logger arbor.ILogger) *Manager {
	return &Manager{
		store:     store,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
		resultSeq: make(map[string]int),
	}
}

// Enqueue persists job under a new or idempotency-matched ID and returns
// it. If opts.IdempotencyKey matches a non-terminal existing job, that
// job's ID is returned instead of creating a duplicate.
func (m *Manager) Enqueue(ctx context.Context, kind string, job *models.CrawlJob, opts EnqueueOptions) (string, error) {
	if opts.IdempotencyKey != "" {
		var existing []record
		err := m.store.Find(&existing, badgerhold.Where("IdempotencyKey").Eq(opts.IdempotencyKey).Limit(1))
		if err != nil {
			return "", fmt.Errorf("jobqueue: check idempotency key: %w", err)
		}
		if len(existing) > 0 && !existing[0].Job.State.IsTerminal() {
			return existing[0].ID, nil
		}
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	rec := record{
		ID:             job.ID,
		Kind:           kind,
		IdempotencyKey: opts.IdempotencyKey,
		Priority:       opts.Priority,
		CreatedAt:      job.CreatedAt,
		Job:            *job,
	}
	if err := m.store.Insert(rec.ID, &rec); err != nil {
		return "", fmt.Errorf("jobqueue: enqueue: %w", err)
	}
	m.logger.Info().Str("job_id", rec.ID).Str("kind", kind).Msg("jobqueue: enqueued")
	return rec.ID, nil
}

// Save implements crawl.JobStore: it persists job's current state so
// concurrent GET /v1/crawl/{id} calls observe live progress.
func (m *Manager) Save(ctx context.Context, job *models.CrawlJob) error {
	var rec record
	if err := m.store.Get(job.ID, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			rec = record{ID: job.ID, CreatedAt: job.CreatedAt}
		} else {
			return fmt.Errorf("jobqueue: save: %w", err)
		}
	}
	rec.Job = *job
	if err := m.store.Upsert(job.ID, &rec); err != nil {
		return fmt.Errorf("jobqueue: save: %w", err)
	}
	return nil
}

// Get returns the current CrawlJob state for jobID.
func (m *Manager) Get(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	var rec record
	if err := m.store.Get(jobID, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "job not found: "+jobID)
		}
		return nil, fmt.Errorf("jobqueue: get: %w", err)
	}
	job := rec.Job
	return &job, nil
}

// WaitForJob polls until jobID reaches a terminal state, timeout elapses
// (returning KindJobWaitTimeout), or ctx is cancelled.
func (m *Manager) WaitForJob(ctx context.Context, jobID string, timeout time.Duration) (*models.CrawlJob, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := m.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return nil, apperr.New(apperr.KindJobWaitTimeout, "timed out waiting for job "+jobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RemoveJob deletes jobID's record entirely.
func (m *Manager) RemoveJob(ctx context.Context, jobID string) error {
	if err := m.store.Delete(jobID, &record{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return apperr.New(apperr.KindNotFound, "job not found: "+jobID)
		}
		return fmt.Errorf("jobqueue: remove: %w", err)
	}
	m.mu.Lock()
	delete(m.cancels, jobID)
	m.mu.Unlock()
	return nil
}

// RegisterCancel associates jobID with the context.CancelFunc the worker
// running its Coordinator will honor. Call this immediately before
// starting the coordinator goroutine.
func (m *Manager) RegisterCancel(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[jobID] = cancel
}

// Cancel invokes jobID's registered cancel func, propagating cancellation
// to the in-flight coordinator (§4.L "propagate to in-flight workers").
// If no worker has registered yet (or it already finished), this is a
// harmless no-op; the job's own terminal state already reflects reality.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if ok {
		cancel()
		m.logger.Info().Str("job_id", jobID).Msg("jobqueue: cancelled")
	} else {
		m.logger.Debug().Str("job_id", jobID).Msg("jobqueue: cancel requested but no worker registered")
	}
	return nil
}
