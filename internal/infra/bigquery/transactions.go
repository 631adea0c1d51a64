package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// Account kinds exported with each row.
const (
	KindChecking   = "checking"
	KindCreditCard = "credit_card"
	KindInvestment = "investment"
)

// TransactionRow is one synced transaction in the warehouse.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED, provider id
	UserID        string `bigquery:"user_id"`        // REQUIRED
	ItemID        string `bigquery:"item_id"`        // REQUIRED
	AccountID     string `bigquery:"account_id"`     // REQUIRED, card id for credit cards
	AccountKind   string `bigquery:"account_kind"`   // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	// Amount is signed: negative for expenses.
	Amount    *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency  string   `bigquery:"currency"` // REQUIRED
	Direction string   `bigquery:"direction"`

	Description string `bigquery:"description"`
	Category    string `bigquery:"category"`
	Status      string `bigquery:"status"`

	InstallmentNumber bigquery.NullInt64 `bigquery:"installment_number"`
	TotalInstallments bigquery.NullInt64 `bigquery:"total_installments"`

	Source   string    `bigquery:"source"`
	SyncedTS time.Time `bigquery:"synced_ts"` // REQUIRED
}

// NewTransactionRow converts a stored transaction document.
func NewTransactionRow(userID string, d domain.TransactionDoc) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   d.ID,
		UserID:          userID,
		ItemID:          d.ItemID,
		AccountID:       d.AccountID,
		AccountKind:     KindChecking,
		TransactionDate: d.Date,
		Amount:          d.Amount.Abs().Rat(),
		Currency:        d.CurrencyCode,
		Direction:       string(d.Type),
		Description:     d.Description,
		Category:        d.Category,
		Status:          d.Status,
		Source:          d.Source,
		SyncedTS:        d.SyncedAt,
	}

	switch {
	case d.CardID != "":
		row.AccountID = d.CardID
		row.AccountKind = KindCreditCard
	case d.IsInvestment:
		row.AccountKind = KindInvestment
	}
	if d.Type == domain.TransactionExpense {
		row.Amount.Neg(row.Amount)
	}
	if d.InstallmentNumber != nil {
		row.InstallmentNumber = bigquery.NullInt64{Int64: int64(*d.InstallmentNumber), Valid: true}
	}
	if d.TotalInstallments != nil {
		row.TotalInstallments = bigquery.NullInt64{Int64: int64(*d.TotalInstallments), Valid: true}
	}
	return row
}

// saver attaches the provider id as insert id so retried exports dedupe.
func (r *TransactionRow) saver() *bigquery.StructSaver {
	return &bigquery.StructSaver{Struct: r, InsertID: r.UserID + "/" + r.TransactionID}
}

// SummaryRow is one month/category bucket of the warehouse report.
type SummaryRow struct {
	Month     string   `bigquery:"month"` // YYYY-MM
	Category  string   `bigquery:"category"`
	Direction string   `bigquery:"direction"`
	Total     *big.Rat `bigquery:"total"`
	Count     int64    `bigquery:"count"`
}
