package banksync

import (
	"testing"

	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		subtype string
		want    domain.Bucket
	}{
		{"checking account", "BANK", "CHECKING_ACCOUNT", domain.BucketChecking},
		{"credit by type", "CREDIT", "", domain.BucketCredit},
		{"credit by subtype", "BANK", "CREDIT_CARD", domain.BucketCredit},
		{"savings", "BANK", "SAVINGS_ACCOUNT", domain.BucketSavings},
		{"savings short subtype", "BANK", "SAVINGS", domain.BucketSavings},
		{"credit beats savings", "CREDIT", "SAVINGS_ACCOUNT", domain.BucketCredit},
		{"unknown type", "LOAN", "MORTGAGE", domain.BucketChecking},
		{"empty record", "", "", domain.BucketChecking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(pluggy.Account{Type: tt.typ, Subtype: tt.subtype})
			if got := c.Bucket(); got != tt.want {
				t.Errorf("Classify(%q, %q).Bucket() = %s, want %s", tt.typ, tt.subtype, got, tt.want)
			}
		})
	}
}

func TestClassify_Exclusive(t *testing.T) {
	types := []string{"", "BANK", "CREDIT", "INVESTMENT", "LOAN"}
	subtypes := []string{"", "CHECKING_ACCOUNT", "SAVINGS", "SAVINGS_ACCOUNT", "CREDIT_CARD", "OTHER"}

	for _, typ := range types {
		for _, sub := range subtypes {
			c := Classify(pluggy.Account{Type: typ, Subtype: sub})
			if c.IsCredit && c.IsSavings {
				t.Errorf("Classify(%q, %q) selected both credit and savings", typ, sub)
			}
		}
	}
}
