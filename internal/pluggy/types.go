// Package pluggy is a client for the Pluggy Open-Finance aggregator API.
package pluggy

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Credential is an aggregator API key with its local expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be used at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// Account is an aggregator account record.
type Account struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Subtype       string          `json:"subtype"`
	Name          string          `json:"name"`
	MarketingName string          `json:"marketingName,omitempty"`
	Number        string          `json:"number"`
	Balance       decimal.Decimal `json:"balance"`
	CurrencyCode  string          `json:"currencyCode"`
	ItemID        string          `json:"itemId"`
	CreditData    *CreditData     `json:"creditData,omitempty"`
}

// CreditData is present on credit card accounts.
type CreditData struct {
	Level                string           `json:"level"`
	Brand                string           `json:"brand"`
	BalanceCloseDate     string           `json:"balanceCloseDate"`
	BalanceDueDate       string           `json:"balanceDueDate"`
	AvailableCreditLimit decimal.Decimal  `json:"availableCreditLimit"`
	CreditLimit          decimal.Decimal  `json:"creditLimit"`
	MinimumPayment       *decimal.Decimal `json:"minimumPayment"`
}

// Transaction is an aggregator transaction. Amount is signed: negative
// amounts are debits.
type Transaction struct {
	ID                 string              `json:"id"`
	AccountID          string              `json:"accountId"`
	Description        string              `json:"description"`
	Amount             decimal.Decimal     `json:"amount"`
	Date               time.Time           `json:"date"`
	Category           string              `json:"category"`
	Status             string              `json:"status"`
	CurrencyCode       string              `json:"currencyCode"`
	CreditCardMetadata *CreditCardMetadata `json:"creditCardMetadata,omitempty"`

	// Raw is the record exactly as received.
	Raw json.RawMessage `json:"-"`
}

// CreditCardMetadata carries installment details of card purchases.
type CreditCardMetadata struct {
	InstallmentNumber *int `json:"installmentNumber"`
	TotalInstallments *int `json:"totalInstallments"`
}

// UnmarshalJSON decodes the transaction and keeps a copy of the input in Raw.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	type plain Transaction
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*t = Transaction(p)
	t.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Bill is a credit card statement.
type Bill struct {
	ID                   string           `json:"id"`
	DueDate              time.Time        `json:"dueDate"`
	TotalAmount          decimal.Decimal  `json:"totalAmount"`
	TotalAmountCurrency  string           `json:"totalAmountCurrencyCode"`
	MinimumPaymentAmount *decimal.Decimal `json:"minimumPaymentAmount"`
	Status               string           `json:"status,omitempty"`
	CloseDate            *time.Time       `json:"closeDate,omitempty"`
}

// Item is one end-user bank connection.
type Item struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	ExecutionStatus string     `json:"executionStatus"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastUpdatedAt   *time.Time `json:"lastUpdatedAt,omitempty"`
	Connector       Connector  `json:"connector"`

	// ClientUserID is the user id passed when the connect token was created.
	ClientUserID string `json:"clientUserId"`
}

// Connector identifies the institution behind an item.
type Connector struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ConnectToken is a short-lived token for the frontend connect widget.
type ConnectToken struct {
	AccessToken string `json:"accessToken"`
}

// page is the paginated list envelope of the aggregator.
type page[T any] struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	Results    []T `json:"results"`
}
