package banksync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// fakeAggregator is a hand-written Aggregator returning canned data.
type fakeAggregator struct {
	mu sync.Mutex

	accounts    []pluggy.Account
	accountsErr error

	transactions map[string][]pluggy.Transaction
	txErr        map[string]error
	fromSeen     map[string]civil.Date

	bills   map[string][]pluggy.Bill
	billErr map[string]error
}

func (f *fakeAggregator) ListAccounts(ctx context.Context, itemID string) ([]pluggy.Account, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

func (f *fakeAggregator) ListTransactions(ctx context.Context, accountID string, from civil.Date) ([]pluggy.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fromSeen == nil {
		f.fromSeen = make(map[string]civil.Date)
	}
	f.fromSeen[accountID] = from
	if err := f.txErr[accountID]; err != nil {
		return nil, err
	}
	return f.transactions[accountID], nil
}

func (f *fakeAggregator) ListBills(ctx context.Context, accountID string) ([]pluggy.Bill, error) {
	if err := f.billErr[accountID]; err != nil {
		return nil, err
	}
	return f.bills[accountID], nil
}

func (f *fakeAggregator) from(accountID string) civil.Date {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fromSeen[accountID]
}

// rawTx builds an aggregator transaction with its raw JSON filled in, as
// the client would deliver it.
func rawTx(t *testing.T, id, desc string, amount float64, date time.Time) pluggy.Transaction {
	t.Helper()
	b, err := json.Marshal(map[string]any{"id": id, "description": desc, "amount": amount, "date": date})
	if err != nil {
		t.Fatal(err)
	}
	var tx pluggy.Transaction
	if err := json.Unmarshal(b, &tx); err != nil {
		t.Fatal(err)
	}
	return tx
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func getAccount(t *testing.T, store docstore.Store, userID, id string) domain.Account {
	t.Helper()
	snap, err := store.Get(context.Background(), docstore.UserCollection(userID, domain.CollectionAccounts), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	var acc domain.Account
	if err := snap.DataTo(&acc); err != nil {
		t.Fatal(err)
	}
	return acc
}

func listTransactions(t *testing.T, store docstore.Store, userID, collection string) []domain.TransactionDoc {
	t.Helper()
	snaps, err := store.List(context.Background(), docstore.UserCollection(userID, collection))
	if err != nil {
		t.Fatal(err)
	}
	docs := make([]domain.TransactionDoc, len(snaps))
	for i, s := range snaps {
		if err := s.DataTo(&docs[i]); err != nil {
			t.Fatal(err)
		}
	}
	return docs
}
