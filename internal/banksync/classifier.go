package banksync

import (
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// Classification is the bucket decision for one account. At most one flag is set.
type Classification struct {
	IsCredit  bool
	IsSavings bool
}

// Classify maps an aggregator account onto a bucket. Credit wins over
// savings; anything unrecognized is an ordinary checking account.
func Classify(raw pluggy.Account) Classification {
	if raw.Type == "CREDIT" || raw.Subtype == "CREDIT_CARD" {
		return Classification{IsCredit: true}
	}
	switch raw.Subtype {
	case "SAVINGS", "SAVINGS_ACCOUNT":
		return Classification{IsSavings: true}
	}
	return Classification{}
}

// Bucket returns the single bucket of the classification.
func (c Classification) Bucket() domain.Bucket {
	switch {
	case c.IsCredit:
		return domain.BucketCredit
	case c.IsSavings:
		return domain.BucketSavings
	default:
		return domain.BucketChecking
	}
}
