package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// Store keeps sync jobs in the document store under each user's
// sync_jobs collection. Jobs are never deleted here.
type Store struct {
	docs docstore.Store
}

// NewStore creates a job store over docs.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

func collection(userID string) string {
	return docstore.UserCollection(userID, domain.CollectionSyncJobs)
}

// SaveJob writes the whole job record.
func (s *Store) SaveJob(ctx context.Context, job *SyncJob) error {
	if job.ID == "" || job.UserID == "" {
		return fmt.Errorf("save job: job ID and user ID are required")
	}

	batch := s.docs.NewBatch()
	if err := batch.Set(collection(job.UserID), job.ID, job, false); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob merges u into the stored job.
func (s *Store) UpdateJob(ctx context.Context, userID, jobID string, u Update) error {
	batch := s.docs.NewBatch()
	if err := batch.Set(collection(userID), jobID, u, true); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

// GetJob retrieves a job by ID. A missing job wraps domain.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, userID, jobID string) (*SyncJob, error) {
	snap, err := s.docs.Get(ctx, collection(userID), jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	var job SyncJob
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobs returns the user's jobs, newest first. A positive limit caps the result.
func (s *Store) ListJobs(ctx context.Context, userID string, limit int) ([]*SyncJob, error) {
	snaps, err := s.docs.List(ctx, collection(userID))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	result := make([]*SyncJob, 0, len(snaps))
	for _, snap := range snaps {
		var job SyncJob
		if err := snap.DataTo(&job); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		result = append(result, &job)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}
