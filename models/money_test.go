package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrencies(t *testing.T) {
	assert.True(t, KnownCurrency("brl"))
	assert.False(t, KnownCurrency("REAIS"))
	assert.Equal(t, "USD", NormalizeCurrency(" usd "))
	assert.Equal(t, DefaultCurrency, NormalizeCurrency(""))
	assert.Equal(t, DefaultCurrency, NormalizeCurrency("???"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$12.50", FormatAmount(decimal.RequireFromString("12.5"), "USD"))
	assert.Equal(t, "1.5 XXX1", FormatAmount(decimal.RequireFromString("1.5"), "XXX1"))
}

func TestTransactionJSON_AmountIsNumber(t *testing.T) {
	raw, err := json.Marshal(Transaction{Amount: decimal.RequireFromString("42.5"), OwnerID: "secret"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 42.5, decoded["amount"])
	assert.NotContains(t, decoded, "ownerId")
	assert.NotContains(t, decoded, "OwnerID")
}
