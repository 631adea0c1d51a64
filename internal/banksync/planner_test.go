package banksync

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/docstore/inmemory"
	"github.com/dvloznov/openfinance-sync/internal/domain"
)

func TestPlanner_PlanFromDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		doc  map[string]any
		want civil.Date
	}{
		{"no stored account", nil, civil.Date{Year: 2023, Month: 12, Day: 16}},
		{"legacy updatedAt watermark", map[string]any{"updatedAt": "2024-03-10T22:15:00Z"}, civil.Date{Year: 2024, Month: 3, Day: 10}},
		{"account phase updatedAt ignored", map[string]any{"bucket": "checking", "updatedAt": "2024-03-10T22:15:00Z"}, civil.Date{Year: 2023, Month: 12, Day: 16}},
		{"synced account", map[string]any{"bucket": "credit", "updatedAt": "2024-03-14T08:00:00Z", "transactionsSyncedAt": "2024-03-12T09:00:00Z"}, civil.Date{Year: 2024, Month: 3, Day: 12}},
		{"transactions watermark preferred", map[string]any{"updatedAt": "2024-03-14T08:00:00Z", "transactionsSyncedAt": "2024-03-01T09:00:00Z"}, civil.Date{Year: 2024, Month: 3, Day: 1}},
		{"invalid watermark", map[string]any{"updatedAt": "yesterday"}, civil.Date{Year: 2023, Month: 12, Day: 16}},
		{"invalid transactions watermark falls back to updatedAt", map[string]any{"transactionsSyncedAt": "garbage", "updatedAt": "2024-03-02T00:00:00Z"}, civil.Date{Year: 2024, Month: 3, Day: 2}},
		{"non-string watermark", map[string]any{"updatedAt": 12345}, civil.Date{Year: 2023, Month: 12, Day: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := inmemory.NewStore()
			if tt.doc != nil {
				b := store.NewBatch()
				if err := b.Set(docstore.UserCollection("user-1", domain.CollectionAccounts), "acc-1", tt.doc, false); err != nil {
					t.Fatal(err)
				}
				if err := b.Commit(ctx); err != nil {
					t.Fatal(err)
				}
			}

			p := NewPlanner(store, 90)
			p.now = func() time.Time { return now }

			if got := p.PlanFromDate(ctx, "user-1", "acc-1"); got != tt.want {
				t.Errorf("PlanFromDate() = %s, want %s", got, tt.want)
			}
		})
	}
}
