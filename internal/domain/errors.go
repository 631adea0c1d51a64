package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Match with errors.Is; callers wrap with fmt.Errorf("...: %w", err).

var (
	// Fatal to a sync job
	ErrAuth        = errors.New("aggregator authentication failed")
	ErrAccountList = errors.New("listing aggregator accounts failed")

	// Scoped to one account or one phase; logged and skipped
	ErrAccountSync = errors.New("account transaction sync failed")
	ErrBillFetch   = errors.New("credit card bill fetch failed")
	ErrBatchCommit = errors.New("batch commit failed")

	// Store and queue
	ErrNotFound    = errors.New("document not found")
	ErrQueueClosed = errors.New("queue is closed")
)
