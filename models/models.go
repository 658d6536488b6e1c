// Package models holds the persisted entities and their JSON shape.
package models

import "github.com/shopspring/decimal"

func init() {
	// Amounts and balances are sent to clients as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}
