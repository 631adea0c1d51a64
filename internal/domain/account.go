package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket is the domain classification of an aggregator account.
type Bucket string

const (
	BucketChecking Bucket = "checking"
	BucketSavings  Bucket = "savings"
	BucketCredit   Bucket = "credit"
)

// Account is the per-user account document, keyed by the aggregator account id.
// Bill fields are written separately by the bill aggregator and are omitted when
// empty so that a plain account upsert merges without clearing them.
type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Number       string          `json:"number,omitempty"`
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	Bucket       Bucket          `json:"bucket"`
	Balance      decimal.Decimal `json:"balance"`
	CurrencyCode string          `json:"currencyCode"`
	ItemID       string          `json:"itemId"`

	*CreditFields

	CurrentBill    *Bill         `json:"currentBill,omitempty"`
	PreviousBill   *Bill         `json:"previousBill,omitempty"`
	Bills          []BillSummary `json:"bills,omitempty"`
	BillsUpdatedAt *time.Time    `json:"billsUpdatedAt,omitempty"`

	// TransactionsSyncedAt is advanced only after the account's transactions
	// were staged; it is the preferred incremental-fetch watermark.
	TransactionsSyncedAt *time.Time `json:"transactionsSyncedAt,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// CreditFields are present only on accounts classified as credit.
type CreditFields struct {
	CreditLimit          decimal.Decimal  `json:"creditLimit"`
	AvailableCreditLimit decimal.Decimal  `json:"availableCreditLimit"`
	UsedCreditLimit      decimal.Decimal  `json:"usedCreditLimit"`
	MinimumPayment       *decimal.Decimal `json:"minimumPayment,omitempty"`
	Brand                string           `json:"brand,omitempty"`
	Level                string           `json:"level,omitempty"`
	BalanceCloseDate     string           `json:"balanceCloseDate,omitempty"`
	BalanceDueDate       string           `json:"balanceDueDate,omitempty"`
}

// NewCreditFields derives the used limit from the limit and the available limit.
func NewCreditFields(limit, available decimal.Decimal) *CreditFields {
	return &CreditFields{
		CreditLimit:          limit,
		AvailableCreditLimit: available,
		UsedCreditLimit:      limit.Sub(available),
	}
}

// Item records one aggregator connection owned by a user.
type Item struct {
	ID            string    `json:"id"`
	LastSyncJobID string    `json:"lastSyncJobId"`
	LastSyncedAt  time.Time `json:"lastSyncedAt"`
	AccountCount  int       `json:"accountCount"`
}
