package models

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// KnownCurrency reports whether code is an ISO-4217 currency.
func KnownCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// NormalizeCurrency upper-cases a known code and falls back to the default
// currency for anything unknown or empty.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !KnownCurrency(code) {
		return DefaultCurrency
	}
	return code
}

// FormatAmount renders amount with the currency's symbol and minor units,
// e.g. "R$1.234,50" for BRL.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.String() + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
