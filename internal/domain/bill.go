package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// BillHistoryLimit caps the bill history embedded in a credit account.
const BillHistoryLimit = 6

// Bill is one credit card billing-cycle statement. Bills are never stored on
// their own; they are embedded into the owning account. Optional fields
// encode as null so a merge clears values left by an older bill.
type Bill struct {
	ID                   string           `json:"id"`
	DueDate              civil.Date       `json:"dueDate"`
	TotalAmount          decimal.Decimal  `json:"totalAmount"`
	MinimumPaymentAmount *decimal.Decimal `json:"minimumPaymentAmount"`
	Status               string           `json:"status"`
	CloseDate            *civil.Date      `json:"closeDate"`
}

// BillSummary is the stripped form kept in the account's bill history.
type BillSummary struct {
	ID                   string           `json:"id"`
	DueDate              civil.Date       `json:"dueDate"`
	TotalAmount          decimal.Decimal  `json:"totalAmount"`
	MinimumPaymentAmount *decimal.Decimal `json:"minimumPaymentAmount"`
	Status               string           `json:"status,omitempty"`
}

// Summary strips a bill down to its history fields.
func (b Bill) Summary() BillSummary {
	return BillSummary{
		ID:                   b.ID,
		DueDate:              b.DueDate,
		TotalAmount:          b.TotalAmount,
		MinimumPaymentAmount: b.MinimumPaymentAmount,
		Status:               b.Status,
	}
}
