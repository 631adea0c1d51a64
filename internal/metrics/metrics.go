// Package metrics holds the Prometheus metrics of the sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sync Jobs ──────────────────────────────────────────────────────────────

// SyncJobs counts finished sync jobs by outcome.
var SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "sync",
	Name:      "jobs_total",
	Help:      "Finished sync jobs by outcome (success, partial_failure, failed).",
}, []string{"outcome"})

// SyncJobDuration tracks wall-clock time of one sync job.
var SyncJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "openfinance",
	Subsystem: "sync",
	Name:      "job_duration_seconds",
	Help:      "Duration of a sync job from start to terminal state.",
	Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
})

// SyncAccounts counts synced accounts by bucket.
var SyncAccounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "sync",
	Name:      "accounts_total",
	Help:      "Accounts upserted by bucket (checking, savings, credit).",
}, []string{"bucket"})

// SyncAccountFailures counts per-account failures by stage.
var SyncAccountFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "sync",
	Name:      "account_failures_total",
	Help:      "Per-account failures by stage (transactions, bills).",
}, []string{"stage"})

// SyncTransactions counts staged transaction documents by collection.
var SyncTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "sync",
	Name:      "transactions_total",
	Help:      "Transaction documents staged by target collection.",
}, []string{"collection"})

// QueueDepth tracks jobs waiting for a worker.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "openfinance",
	Subsystem: "sync",
	Name:      "queue_depth",
	Help:      "Sync jobs enqueued and not yet picked up by a worker.",
})

// ─── Batched Writes ─────────────────────────────────────────────────────────

// BatchCommits counts batch commits by result.
var BatchCommits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "store",
	Name:      "batch_commits_total",
	Help:      "Document store batch commits by result (ok, error).",
}, []string{"result"})

// BatchSize tracks operations per committed batch.
var BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "openfinance",
	Subsystem: "store",
	Name:      "batch_operations",
	Help:      "Operations per committed batch.",
	Buckets:   []float64{1, 10, 50, 100, 200, 300, 400, 450, 500},
})

// ─── Aggregator ─────────────────────────────────────────────────────────────

// AggregatorRequests counts aggregator HTTP calls by endpoint and status code.
var AggregatorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "aggregator",
	Name:      "requests_total",
	Help:      "Aggregator API requests by endpoint and HTTP status (0 for transport errors).",
}, []string{"endpoint", "code"})

// AggregatorRetries counts retried aggregator calls.
var AggregatorRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "aggregator",
	Name:      "retries_total",
	Help:      "Aggregator API retries by endpoint.",
}, []string{"endpoint"})

// CredentialRefreshes counts credential fetches by result.
var CredentialRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openfinance",
	Subsystem: "aggregator",
	Name:      "credential_refreshes_total",
	Help:      "Aggregator credential refreshes by result (ok, error).",
}, []string{"result"})
