package banksync

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/logger"
)

// DefaultLookbackDays bounds the first fetch of an account with no watermark.
const DefaultLookbackDays = 90

// Planner picks the lower date bound of each account's transaction fetch.
type Planner struct {
	store        docstore.Store
	lookbackDays int
	now          func() time.Time
}

// NewPlanner creates a planner reading watermarks from store.
func NewPlanner(store docstore.Store, lookbackDays int) *Planner {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &Planner{store: store, lookbackDays: lookbackDays, now: time.Now}
}

// watermark holds the stored timestamps as strings so that a garbled value
// falls back to the lookback instead of failing the decode.
type watermark struct {
	TransactionsSyncedAt string `json:"transactionsSyncedAt"`
	UpdatedAt            string `json:"updatedAt"`

	// Bucket is written by every account upsert of this service. Its
	// presence means updatedAt only records the account phase, which runs
	// before any transaction was fetched.
	Bucket string `json:"bucket"`
}

// PlanFromDate returns the day of the account's last transaction sync, or
// today minus the lookback when there is none. The watermark day itself is
// fetched again; upserts by id make the overlap harmless.
func (p *Planner) PlanFromDate(ctx context.Context, userID, accountID string) civil.Date {
	fallback := civil.DateOf(p.now()).AddDays(-p.lookbackDays)

	snap, err := p.store.Get(ctx, docstore.UserCollection(userID, domain.CollectionAccounts), accountID)
	if err != nil {
		return fallback
	}

	var wm watermark
	if err := snap.DataTo(&wm); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("account_id", accountID).Msg("Unreadable account watermark, using lookback")
		return fallback
	}

	candidates := []string{wm.TransactionsSyncedAt}
	if wm.Bucket == "" {
		// Account written before transactionsSyncedAt existed.
		candidates = append(candidates, wm.UpdatedAt)
	}
	for _, v := range candidates {
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil || t.IsZero() {
			continue
		}
		return civil.DateOf(t)
	}
	return fallback
}
