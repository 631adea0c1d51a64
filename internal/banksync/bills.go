package banksync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// BillSource lists the bills of a credit account.
type BillSource interface {
	ListBills(ctx context.Context, accountID string) ([]pluggy.Bill, error)
}

// BillAggregator embeds the latest statements into credit account documents.
type BillAggregator struct {
	source BillSource
	now    func() time.Time
}

// NewBillAggregator creates an aggregator fetching from source.
func NewBillAggregator(source BillSource) *BillAggregator {
	return &BillAggregator{source: source, now: time.Now}
}

// billPatch is merged into the account. PreviousBill is written even when
// nil so a stale previous bill is removed.
type billPatch struct {
	CurrentBill    *domain.Bill         `json:"currentBill"`
	PreviousBill   *domain.Bill         `json:"previousBill"`
	Bills          []domain.BillSummary `json:"bills"`
	BillsUpdatedAt time.Time            `json:"billsUpdatedAt"`
}

// UpdateBills fetches the account's bills and stages the bill fields on its
// document. No bills is a no-op. Fetch failures wrap domain.ErrBillFetch and
// leave the stored bill fields unchanged.
func (b *BillAggregator) UpdateBills(ctx context.Context, w *Writer, userID string, account pluggy.Account) error {
	raw, err := b.source.ListBills(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("%w: account %s: %w", domain.ErrBillFetch, account.ID, err)
	}
	if len(raw) == 0 {
		return nil
	}

	current, previous, history := SummarizeBills(raw)
	patch := billPatch{
		CurrentBill:    current,
		PreviousBill:   previous,
		Bills:          history,
		BillsUpdatedAt: b.now(),
	}
	return w.Stage(ctx, docstore.UserCollection(userID, domain.CollectionAccounts), account.ID, patch, true)
}

// SummarizeBills orders bills by due date, newest first, and returns the
// current bill, the previous bill (nil with a single bill) and the capped history.
func SummarizeBills(raw []pluggy.Bill) (current, previous *domain.Bill, history []domain.BillSummary) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	bills := make([]domain.Bill, len(raw))
	for i, r := range raw {
		bills[i] = toBill(r)
	}
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[j].DueDate.Before(bills[i].DueDate)
	})

	current = &bills[0]
	if len(bills) > 1 {
		previous = &bills[1]
	}

	n := min(len(bills), domain.BillHistoryLimit)
	history = make([]domain.BillSummary, n)
	for i := range n {
		history[i] = bills[i].Summary()
	}
	return current, previous, history
}

func toBill(r pluggy.Bill) domain.Bill {
	bill := domain.Bill{
		ID:                   r.ID,
		DueDate:              civil.DateOf(r.DueDate),
		TotalAmount:          r.TotalAmount,
		MinimumPaymentAmount: r.MinimumPaymentAmount,
		Status:               r.Status,
	}
	if r.CloseDate != nil {
		d := civil.DateOf(*r.CloseDate)
		bill.CloseDate = &d
	}
	return bill
}
