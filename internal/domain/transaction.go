package domain

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType carries the sign of a transaction; amounts are stored unsigned.
type TransactionType string

const (
	TransactionExpense TransactionType = "expense"
	TransactionIncome  TransactionType = "income"
)

// DefaultCategory is used when the aggregator does not categorize a transaction.
const DefaultCategory = "Uncategorized"

// Collection names under users/{uid}.
const (
	CollectionAccounts               = "accounts"
	CollectionTransactions           = "transactions"
	CollectionCreditCardTransactions = "creditCardTransactions"
	CollectionInvestments            = "investments"
	CollectionSyncJobs               = "sync_jobs"
	CollectionItems                  = "items"
)

// TransactionDoc is the stored shape shared by ordinary, credit card and
// investment-marked transactions. ID is the provider transaction id.
type TransactionDoc struct {
	ID           string          `json:"id"`
	ProviderID   string          `json:"providerId"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Type         TransactionType `json:"type"`
	Date         civil.Date      `json:"date"`
	Category     string          `json:"category"`
	Status       string          `json:"status"`
	CurrencyCode string          `json:"currencyCode"`
	ItemID       string          `json:"itemId"`

	// Exactly one of AccountID / CardID is set, depending on the target collection.
	AccountID string `json:"accountId,omitempty"`
	CardID    string `json:"cardId,omitempty"`

	IsInvestment bool `json:"isInvestment,omitempty"`

	InstallmentNumber *int `json:"installmentNumber,omitempty"`
	TotalInstallments *int `json:"totalInstallments,omitempty"`

	Source   string          `json:"source"`
	Raw      json.RawMessage `json:"raw,omitempty"`
	SyncedAt time.Time       `json:"syncedAt"`
}
