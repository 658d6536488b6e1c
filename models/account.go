package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderManual = "manual"
	ProviderPluggy = "pluggy"

	DefaultAccountName = "Manual Account"
	DefaultCurrency    = "BRL"
)

// Account is either app-owned (manual) or mirrored from the aggregator.
// A manual account's Balance only moves through atomic deltas; a provider
// account's Balance is replaced on every sync.
type Account struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"-"`
	Provider       string          `json:"provider"`
	ExternalItemID *string         `json:"externalItemId"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	Mask           *string         `json:"mask"`
	Type           *string         `json:"type,omitempty"` // manual only, kept inside RawPayload
	RawPayload     *string         `json:"-"`              // encrypted
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (a *Account) IsManual() bool { return a.Provider == ProviderManual }

type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"-"`
	AccountID   string          `json:"accountId"` // empty once the account is deleted
	Description string          `json:"description"`
	Category    *string         `json:"category"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	IsRecurring bool            `json:"isRecurring"`
	RawPayload  *string         `json:"-"` // encrypted
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Item is a linked aggregator connection. One item owns many provider accounts.
type Item struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"-"`
	Provider     string    `json:"provider"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	AccountID string
}
