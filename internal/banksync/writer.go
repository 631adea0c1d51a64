package banksync

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/metrics"
)

// DefaultBatchCeiling keeps commits clear of docstore.MaxBatchWrites.
const DefaultBatchCeiling = 450

// WriterStats counts a writer's activity.
type WriterStats struct {
	Staged    int
	Committed int
	Commits   int
}

// Writer stages upserts into store batches and commits each batch as soon
// as it holds ceiling operations. A commit failure is sticky: the writer
// refuses further work so the phase using it stops. Safe for concurrent use.
type Writer struct {
	store   docstore.Store
	ceiling int

	mu        sync.Mutex
	batch     docstore.Batch
	err       error
	stats     WriterStats
	pending   map[string]int
	committed map[string]int
}

// NewWriter creates a writer. Ceilings outside 1..docstore.MaxBatchWrites
// fall back to DefaultBatchCeiling.
func NewWriter(store docstore.Store, ceiling int) *Writer {
	if ceiling < 1 || ceiling > docstore.MaxBatchWrites {
		ceiling = DefaultBatchCeiling
	}
	return &Writer{
		store:     store,
		ceiling:   ceiling,
		batch:     store.NewBatch(),
		pending:   map[string]int{},
		committed: map[string]int{},
	}
}

// Stage adds an upsert. When the batch reaches the ceiling it is committed
// before Stage returns.
func (w *Writer) Stage(ctx context.Context, collection, id string, doc any, merge bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.batch.Set(collection, id, doc, merge); err != nil {
		return err
	}
	w.stats.Staged++
	w.pending[collection]++

	if w.batch.Len() >= w.ceiling {
		return w.commitLocked(ctx)
	}
	return nil
}

// StageDelete adds a delete, committing at the ceiling like Stage.
func (w *Writer) StageDelete(ctx context.Context, collection, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	w.batch.Delete(collection, id)
	w.stats.Staged++
	w.pending[collection]++

	if w.batch.Len() >= w.ceiling {
		return w.commitLocked(ctx)
	}
	return nil
}

// Flush commits the partial batch.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	return w.commitLocked(ctx)
}

// Err returns the sticky commit error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// CommittedIn returns how many operations on collection have been committed.
func (w *Writer) CommittedIn(collection string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed[collection]
}

// Stats returns a snapshot of the counters.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Writer) commitLocked(ctx context.Context) error {
	n := w.batch.Len()
	if n == 0 {
		return nil
	}

	err := w.batch.Commit(ctx)
	w.batch = w.store.NewBatch()
	pending := w.pending
	w.pending = map[string]int{}
	if err != nil {
		metrics.BatchCommits.WithLabelValues("error").Inc()
		w.err = fmt.Errorf("%w: %d operations: %w", domain.ErrBatchCommit, n, err)
		return w.err
	}

	metrics.BatchCommits.WithLabelValues("ok").Inc()
	metrics.BatchSize.Observe(float64(n))
	w.stats.Committed += n
	w.stats.Commits++
	for c, k := range pending {
		w.committed[c] += k
	}
	return nil
}
