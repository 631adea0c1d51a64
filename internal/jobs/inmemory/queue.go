package inmemory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/logger"
	"github.com/dvloznov/openfinance-sync/internal/metrics"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Enqueue persists the initial processing record; after that the worker
// running a job is the only writer of its state.
type Queue struct {
	jobChan   chan jobs.SyncRequest
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     *jobs.Store
	workers   int
	closed    bool
	inFlight  atomic.Int32
	now       func() time.Time
}

// enqueueRetry is how often Enqueue retries a full buffer.
const enqueueRetry = 10 * time.Millisecond

// Stats is a snapshot of queue occupancy.
type Stats struct {
	Queued   int `json:"queued"`
	InFlight int `json:"inFlight"`
	Workers  int `json:"workers"`
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before Enqueue blocks.
func NewQueue(bufferSize, workers int, store *jobs.Store) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan jobs.SyncRequest, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		now:       time.Now,
	}
}

// Enqueue implements the Publisher interface.
func (q *Queue) Enqueue(ctx context.Context, userID, itemID string) (*jobs.SyncJob, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, domain.ErrQueueClosed
	}

	now := q.now()
	job := &jobs.SyncJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		ItemID:    itemID,
		Status:    jobs.JobStatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	req := jobs.SyncRequest{JobID: job.ID, UserID: userID, ItemID: itemID}

	// Sends happen under the read lock after a closed check, so Stop's drain
	// sees every request that made it into the buffer. A full buffer is
	// retried without the lock so it never blocks Stop.
	for {
		q.mu.RLock()
		if q.closed {
			q.mu.RUnlock()
			q.abandon(req, domain.ErrQueueClosed)
			return nil, domain.ErrQueueClosed
		}
		select {
		case q.jobChan <- req:
			q.mu.RUnlock()
			metrics.QueueDepth.Inc()
			return job, nil
		default:
		}
		q.mu.RUnlock()

		select {
		case <-ctx.Done():
			q.abandon(req, ctx.Err())
			return nil, ctx.Err()
		case <-q.closeChan:
		case <-time.After(enqueueRetry):
		}
	}
}

// abandon marks a persisted job that never reached a worker as failed.
func (q *Queue) abandon(req jobs.SyncRequest, cause error) {
	now := q.now()
	u := jobs.Update{
		Status:      jobs.JobStatusFailed,
		Outcome:     jobs.OutcomeFailed,
		Error:       "not queued: " + cause.Error(),
		UpdatedAt:   now,
		CompletedAt: &now,
	}
	// The caller's context may already be done.
	_ = q.store.UpdateJob(context.Background(), req.UserID, req.JobID, u)
}

// Start implements the Consumer interface.
// It starts the configured number of workers, each running handler for one
// job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return domain.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case req := <-q.jobChan:
			metrics.QueueDepth.Dec()
			q.processJob(ctx, req, handler)
		}
	}
}

// processJob executes a single job. Jobs are not retried: a failed sync is
// re-triggered by the client, and upserts make the rerun idempotent.
func (q *Queue) processJob(ctx context.Context, req jobs.SyncRequest, handler jobs.Handler) {
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	log := logger.FromContext(ctx).With().Str("job_id", req.JobID).Str("item_id", req.ItemID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sync job panicked")
			now := q.now()
			_ = q.store.UpdateJob(context.Background(), req.UserID, req.JobID, jobs.Update{
				Status:      jobs.JobStatusFailed,
				Outcome:     jobs.OutcomeFailed,
				Error:       fmt.Sprintf("internal error: %v", r),
				UpdatedAt:   now,
				CompletedAt: &now,
			})
		}
	}()

	if err := handler(ctx, req); err != nil {
		log.Error().Err(err).Msg("Sync job failed")
	}
}

// Stats returns the current queue occupancy.
func (q *Queue) Stats() Stats {
	return Stats{
		Queued:   len(q.jobChan),
		InFlight: int(q.inFlight.Load()),
		Workers:  q.workers,
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Jobs still buffered never started; fail them so pollers stop waiting.
	for {
		select {
		case req := <-q.jobChan:
			metrics.QueueDepth.Dec()
			q.abandon(req, domain.ErrQueueClosed)
		default:
			return nil
		}
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
