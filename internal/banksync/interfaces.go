package banksync

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// Aggregator is the part of the aggregator API a sync needs.
// *pluggy.Client implements it.
type Aggregator interface {
	BillSource

	// ListAccounts returns every account of an item.
	ListAccounts(ctx context.Context, itemID string) ([]pluggy.Account, error)

	// ListTransactions returns the account's transactions dated on or after from.
	ListTransactions(ctx context.Context, accountID string, from civil.Date) ([]pluggy.Transaction, error)
}

// JobRecorder persists job transitions.
type JobRecorder interface {
	UpdateJob(ctx context.Context, userID, jobID string, u jobs.Update) error
}

// Sink receives committed transactions for downstream analytics.
type Sink interface {
	ExportTransactions(ctx context.Context, userID string, docs []domain.TransactionDoc) error
}

// Archiver stores raw aggregator payloads for audit.
type Archiver interface {
	Archive(ctx context.Context, userID, itemID, jobID, name string, payload any) error
}

// Categorizer proposes categories for transactions, keyed by transaction id.
type Categorizer interface {
	Categorize(ctx context.Context, docs []domain.TransactionDoc) (map[string]string, error)
}

var _ Aggregator = (*pluggy.Client)(nil)
var _ JobRecorder = (*jobs.Store)(nil)
