// Package store persists accounts, transactions, linked items and planning
// records. Postgres is the production backend; Memory backs local runs and
// tests with the same semantics.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-api/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrForeignOwner is returned when a keyed row already belongs to
	// another owner.
	ErrForeignOwner = errors.New("store: row belongs to another owner")
)

// UpsertResult tells what an idempotent upsert did with its row.
type UpsertResult int

const (
	UpsertWritten UpsertResult = iota
	UpsertUnchanged
	// UpsertSkipped means the key is held by a different owner or by a
	// manual row, and nothing was written.
	UpsertSkipped
)

type Queries interface {
	GetAccount(ctx context.Context, ownerID, id string) (*models.Account, error)
	// OldestManualAccount returns the owner's first manual account by
	// creation time, id as tiebreaker.
	OldestManualAccount(ctx context.Context, ownerID string) (*models.Account, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	// UpdateAccount writes name, mask and raw payload of a manual account.
	UpdateAccount(ctx context.Context, a *models.Account) error
	DeleteAccount(ctx context.Context, ownerID, id string) error
	// IncrementBalance adds delta to a manual account's balance in a single
	// atomic statement.
	IncrementBalance(ctx context.Context, ownerID, accountID string, delta decimal.Decimal) error
	ListAccounts(ctx context.Context, ownerID string, limit, offset int) ([]models.Account, error)
	CountAccounts(ctx context.Context, ownerID string) (int, error)
	ListAllAccounts(ctx context.Context, ownerID string) ([]models.Account, error)
	UpsertProviderAccount(ctx context.Context, a *models.Account) (UpsertResult, error)

	GetTransaction(ctx context.Context, ownerID, id string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error
	ListTransactions(ctx context.Context, ownerID string, f models.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	CountTransactions(ctx context.Context, ownerID string, f models.TransactionFilter) (int, error)
	// RecentTransactions returns up to limit transactions, newest date first.
	RecentTransactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error)
	// UpsertProviderTransaction inserts t or refreshes its provider fields.
	// The account of an existing row is never changed.
	UpsertProviderTransaction(ctx context.Context, t *models.Transaction) (UpsertResult, error)

	// UpsertItem records a linked item or refreshes its sync time. It fails
	// with ErrForeignOwner if the item is linked to someone else.
	UpsertItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)

	Loans() Records[models.Loan]
	Subscriptions() Records[models.Subscription]
	Budgets() Records[models.Budget]
	Goals() Records[models.Goal]
}

// Records is owner-scoped CRUD for the planning tables.
type Records[T any] interface {
	// Key exposes the id, owner and timestamps of rec for the caller to set.
	Key(rec *T) RecordKey
	Get(ctx context.Context, ownerID, id string) (*T, error)
	Insert(ctx context.Context, rec *T) error
	Update(ctx context.Context, rec *T) error
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string, limit, offset int) ([]T, error)
	Count(ctx context.Context, ownerID string) (int, error)
}

// Store is Queries plus a unit of work. Writes made through the Queries
// passed to fn commit together or not at all.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
