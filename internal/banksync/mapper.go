package banksync

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// Source tags documents written by this engine.
const Source = "pluggy"

// DefaultStatus is used when the aggregator omits a transaction status.
const DefaultStatus = "POSTED"

// MappedDocument is a transaction ready to be staged.
type MappedDocument struct {
	Collection string
	ID         string
	Doc        domain.TransactionDoc
}

// TargetCollection selects the per-user collection for an account's transactions.
func TargetCollection(c Classification) string {
	switch {
	case c.IsCredit:
		return domain.CollectionCreditCardTransactions
	case c.IsSavings:
		return domain.CollectionInvestments
	default:
		return domain.CollectionTransactions
	}
}

// MapTransaction converts an aggregator transaction into its stored document.
// The amount is stored unsigned and its sign moves into Type.
func MapTransaction(raw pluggy.Transaction, account pluggy.Account, c Classification) MappedDocument {
	txType := domain.TransactionIncome
	if raw.Amount.IsNegative() {
		txType = domain.TransactionExpense
	}

	category := raw.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	status := raw.Status
	if status == "" {
		status = DefaultStatus
	}
	currency := raw.CurrencyCode
	if currency == "" {
		currency = account.CurrencyCode
	}

	doc := domain.TransactionDoc{
		ID:           raw.ID,
		ProviderID:   raw.ID,
		Description:  raw.Description,
		Amount:       raw.Amount.Abs(),
		Type:         txType,
		Date:         civil.DateOf(raw.Date),
		Category:     category,
		Status:       status,
		CurrencyCode: domain.NormalizeCurrency(currency),
		ItemID:       account.ItemID,
		Source:       Source,
		Raw:          raw.Raw,
	}

	if c.IsCredit {
		doc.CardID = account.ID
		if md := raw.CreditCardMetadata; md != nil {
			doc.InstallmentNumber = md.InstallmentNumber
			doc.TotalInstallments = md.TotalInstallments
		}
	} else {
		doc.AccountID = account.ID
		doc.IsInvestment = c.IsSavings
	}

	return MappedDocument{Collection: TargetCollection(c), ID: raw.ID, Doc: doc}
}

// MapAccount builds the account document staged on every sync. Credit
// fields are only set for credit accounts.
func MapAccount(raw pluggy.Account, c Classification, now time.Time) domain.Account {
	name := raw.Name
	if name == "" {
		name = raw.MarketingName
	}

	acc := domain.Account{
		ID:           raw.ID,
		Name:         name,
		Number:       raw.Number,
		Type:         raw.Type,
		Subtype:      raw.Subtype,
		Bucket:       c.Bucket(),
		Balance:      raw.Balance,
		CurrencyCode: domain.NormalizeCurrency(raw.CurrencyCode),
		ItemID:       raw.ItemID,
		UpdatedAt:    now,
	}

	if c.IsCredit && raw.CreditData != nil {
		cd := raw.CreditData
		acc.CreditFields = domain.NewCreditFields(cd.CreditLimit, cd.AvailableCreditLimit)
		acc.MinimumPayment = cd.MinimumPayment
		acc.Brand = cd.Brand
		acc.Level = cd.Level
		acc.BalanceCloseDate = cd.BalanceCloseDate
		acc.BalanceDueDate = cd.BalanceDueDate
	}
	return acc
}
