package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when the aggregator omits or garbles a currency code.
const DefaultCurrency = "BRL"

// NormalizeCurrency returns an upper-case ISO 4217 code known to go-money,
// or DefaultCurrency.
func NormalizeCurrency(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" || money.GetCurrency(c) == nil {
		return DefaultCurrency
	}
	return c
}

// FormatAmount renders an amount with the currency's symbol and separators.
func FormatAmount(amount decimal.Decimal, code string) string {
	code = NormalizeCurrency(code)
	cur := money.GetCurrency(code)
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}
