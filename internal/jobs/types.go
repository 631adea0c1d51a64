package jobs

import (
	"context"
	"time"
)

// JobStatus is the coarse state pollers watch.
type JobStatus string

const (
	// JobStatusProcessing indicates the job is queued or running.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates the pipeline ran to the end.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a fatal error stopped the pipeline.
	JobStatusFailed JobStatus = "failed"
)

// Outcome distinguishes full from partial success of a completed job.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailed         Outcome = "failed"
)

// AccountError records a non-fatal failure scoped to one account or phase.
type AccountError struct {
	// AccountID is empty when a whole write phase failed.
	AccountID string `json:"accountId,omitempty"`

	// Stage is accounts, transactions or bills.
	Stage string `json:"stage"`

	Error string `json:"error"`
}

// SyncJob is the stored state of one sync invocation, kept at
// users/{uid}/sync_jobs/{id}.
type SyncJob struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`

	// UserID owns the job and the synced data.
	UserID string `json:"userId"`

	// ItemID is the aggregator connection being synced.
	ItemID string `json:"itemId"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Progress goes from 0 to 100.
	Progress int `json:"progress"`

	// Step is a human-readable description of the running phase.
	Step string `json:"step,omitempty"`

	// Message summarizes a completed job.
	Message string `json:"message,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Outcome is set once the job reaches a terminal status.
	Outcome Outcome `json:"outcome,omitempty"`

	// AccountErrors lists the accounts or phases that were skipped.
	AccountErrors []AccountError `json:"accountErrors,omitempty"`

	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the time of the last transition or progress update.
	UpdatedAt time.Time `json:"updatedAt"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job reached completed or failed.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// SyncRequest is the queued unit of work handed to a worker.
type SyncRequest struct {
	JobID  string
	UserID string
	ItemID string
}

// Update is a partial job change applied as a merge. Zero fields are left
// untouched.
type Update struct {
	Status        JobStatus      `json:"status,omitempty"`
	Progress      int            `json:"progress,omitempty"`
	Step          string         `json:"step,omitempty"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	AccountErrors []AccountError `json:"accountErrors,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// Handler processes one sync request. The handler owns every job
// transition after the initial processing record.
type Handler func(ctx context.Context, req SyncRequest) error

// Publisher enqueues sync jobs.
type Publisher interface {
	// Enqueue persists a processing job record and queues it.
	Enqueue(ctx context.Context, userID, itemID string) (*SyncJob, error)

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}
