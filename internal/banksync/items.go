package banksync

import (
	"context"
	"fmt"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// RemoveItem deletes the user's item record and every account document that
// belongs to the item. Transactions are kept. It returns the number of
// accounts removed.
func RemoveItem(ctx context.Context, store docstore.Store, userID, itemID string) (int, error) {
	accounts := docstore.UserCollection(userID, domain.CollectionAccounts)
	snaps, err := store.List(ctx, accounts)
	if err != nil {
		return 0, fmt.Errorf("remove item %s: list accounts: %w", itemID, err)
	}

	w := NewWriter(store, DefaultBatchCeiling)
	removed := 0
	for _, s := range snaps {
		var acc struct {
			ItemID string `json:"itemId"`
		}
		if err := s.DataTo(&acc); err != nil || acc.ItemID != itemID {
			continue
		}
		if err := w.StageDelete(ctx, accounts, s.ID); err != nil {
			return 0, err
		}
		removed++
	}
	if err := w.StageDelete(ctx, docstore.UserCollection(userID, domain.CollectionItems), itemID); err != nil {
		return 0, err
	}
	if err := w.Flush(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}
