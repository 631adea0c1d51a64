package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/openfinance-sync/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestNewTransactionRow(t *testing.T) {
	synced := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	date := civil.Date{Year: 2024, Month: 3, Day: 14}

	tests := []struct {
		name       string
		doc        domain.TransactionDoc
		wantAmount string
		wantKind   string
		wantAcct   string
	}{
		{
			name: "checking expense is negative",
			doc: domain.TransactionDoc{
				ID: "tx-1", AccountID: "acc-1", Amount: decimal.RequireFromString("50.25"),
				Type: domain.TransactionExpense, Date: date, SyncedAt: synced,
			},
			wantAmount: "-50.25",
			wantKind:   KindChecking,
			wantAcct:   "acc-1",
		},
		{
			name: "card income keeps sign",
			doc: domain.TransactionDoc{
				ID: "tx-2", CardID: "card-1", Amount: decimal.NewFromInt(200),
				Type: domain.TransactionIncome, Date: date, SyncedAt: synced,
			},
			wantAmount: "200",
			wantKind:   KindCreditCard,
			wantAcct:   "card-1",
		},
		{
			name: "investment",
			doc: domain.TransactionDoc{
				ID: "tx-3", AccountID: "sav-1", IsInvestment: true, Amount: decimal.NewFromInt(10),
				Type: domain.TransactionIncome, Date: date, SyncedAt: synced,
			},
			wantAmount: "10",
			wantKind:   KindInvestment,
			wantAcct:   "sav-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NewTransactionRow("user-1", tt.doc)

			want, _ := new(big.Rat).SetString(tt.wantAmount)
			if row.Amount.Cmp(want) != 0 {
				t.Errorf("Amount = %s, want %s", row.Amount.FloatString(2), tt.wantAmount)
			}
			if row.AccountKind != tt.wantKind || row.AccountID != tt.wantAcct {
				t.Errorf("kind/account = %s/%s, want %s/%s", row.AccountKind, row.AccountID, tt.wantKind, tt.wantAcct)
			}
			if row.TransactionDate != date || row.UserID != "user-1" {
				t.Errorf("row = %+v", row)
			}
		})
	}
}

func TestNewTransactionRow_Installments(t *testing.T) {
	row := NewTransactionRow("user-1", domain.TransactionDoc{
		ID: "tx-1", CardID: "card-1", Amount: decimal.NewFromInt(100), Type: domain.TransactionExpense,
		InstallmentNumber: intPtr(2), TotalInstallments: intPtr(10),
	})
	if !row.InstallmentNumber.Valid || row.InstallmentNumber.Int64 != 2 || row.TotalInstallments.Int64 != 10 {
		t.Errorf("installments = %v/%v", row.InstallmentNumber, row.TotalInstallments)
	}

	plain := NewTransactionRow("user-1", domain.TransactionDoc{ID: "tx-2", Amount: decimal.NewFromInt(1)})
	if plain.InstallmentNumber.Valid {
		t.Error("installment number should be NULL")
	}
}

func TestSaverInsertID(t *testing.T) {
	row := NewTransactionRow("user-1", domain.TransactionDoc{ID: "tx-9", Amount: decimal.NewFromInt(1)})
	if got := row.saver().InsertID; got != "user-1/tx-9" {
		t.Errorf("InsertID = %q", got)
	}
}
