package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/logger"
	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/pagination"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/store"
	"github.com/LovationAdmin/finance-api/utils"
)

// Realtime events published after a commit.
const (
	EventTransactionsChanged = "transactions.changed"
	EventAccountsChanged     = "accounts.changed"
	EventSyncCompleted       = "sync.completed"
)

// Notifier pushes a change signal to the owner's open sessions. Delivery is
// best effort.
type Notifier interface {
	Notify(ownerID, event string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// notFound turns a store miss into the caller-facing error for entity.
func notFound(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity)
	}
	return err
}

// TransactionService keeps manual balances equal to their opening value plus
// the amounts of the transactions attached to them.
type TransactionService struct {
	store    store.Store
	notifier Notifier
	now      func() time.Time
}

func NewTransactionService(s store.Store, n Notifier) *TransactionService {
	return &TransactionService{store: s, notifier: notifierOrNop(n), now: time.Now}
}

// ResolveAccount returns the account a transaction should live on. An explicit
// id must belong to the owner. Without one, the owner's oldest manual account
// is used, and a default manual account is created if there is none.
func (s *TransactionService) ResolveAccount(ctx context.Context, q store.Queries, ownerID string, accountID *string) (*models.Account, error) {
	if accountID != nil {
		acc, err := q.GetAccount(ctx, ownerID, *accountID)
		if err != nil {
			return nil, notFound(err, "account")
		}
		return acc, nil
	}

	acc, err := q.OldestManualAccount(ctx, ownerID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	acc = &models.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Provider:  models.ProviderManual,
		Name:      models.DefaultAccountName,
		Currency:  models.DefaultCurrency,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create default account: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("owner", utils.MaskID(ownerID)).Str("account", utils.MaskID(acc.ID)).Msg("created default manual account")
	return acc, nil
}

// adjust applies delta to acc when it is a manual account.
func adjust(ctx context.Context, q store.Queries, acc *models.Account, delta decimal.Decimal) error {
	if acc == nil || !acc.IsManual() || delta.IsZero() {
		return nil
	}
	if err := q.IncrementBalance(ctx, acc.OwnerID, acc.ID, delta); err != nil {
		return notFound(err, "account")
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("account", utils.MaskID(acc.ID)).
		Str("delta", utils.MaskAmount(delta)).
		Msg("balance adjusted")
	return nil
}

// Attach inserts tx on acc and applies its amount to a manual balance.
// It must run inside a unit of work.
func (s *TransactionService) Attach(ctx context.Context, q store.Queries, acc *models.Account, tx *models.Transaction) error {
	tx.AccountID = acc.ID
	tx.Currency = acc.Currency
	if err := q.InsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return adjust(ctx, q, acc, tx.Amount)
}

func (s *TransactionService) Create(ctx context.Context, ownerID string, in sanitize.TransactionInput) (*models.Transaction, error) {
	now := s.now().UTC()
	tx := &models.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Description: in.Description,
		Category:    in.Category,
		Amount:      in.Amount,
		Date:        in.Date,
		IsRecurring: in.IsRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.WithTx(ctx, func(q store.Queries) error {
		acc, err := s.ResolveAccount(ctx, q, ownerID, in.AccountID)
		if err != nil {
			return err
		}
		return s.Attach(ctx, q, acc, tx)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ownerID, EventTransactionsChanged)
	return tx, nil
}

// loadWithAccount reads a transaction and, if it still has one, its account.
// The read happens outside the unit of work that follows it.
func (s *TransactionService) loadWithAccount(ctx context.Context, ownerID, txID string) (*models.Transaction, *models.Account, error) {
	tx, err := s.store.GetTransaction(ctx, ownerID, txID)
	if err != nil {
		return nil, nil, notFound(err, "transaction")
	}
	if tx.AccountID == "" {
		return tx, nil, nil
	}

	acc, err := s.store.GetAccount(ctx, ownerID, tx.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return tx, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return tx, acc, nil
}

func (s *TransactionService) Update(ctx context.Context, ownerID, txID string, in sanitize.TransactionInput) (*models.Transaction, error) {
	prev, current, err := s.loadWithAccount(ctx, ownerID, txID)
	if err != nil {
		return nil, err
	}

	next := *prev
	next.Description = in.Description
	next.Category = in.Category
	next.Amount = in.Amount
	next.Date = in.Date
	next.IsRecurring = in.IsRecurring
	next.UpdatedAt = s.now().UTC()

	err = s.store.WithTx(ctx, func(q store.Queries) error {
		target := current
		if in.AccountID != nil || current == nil {
			resolved, err := s.ResolveAccount(ctx, q, ownerID, in.AccountID)
			if err != nil {
				return err
			}
			target = resolved
		}

		next.AccountID = target.ID
		next.Currency = target.Currency
		if err := q.UpdateTransaction(ctx, &next); err != nil {
			return notFound(err, "transaction")
		}

		if current != nil && current.ID == target.ID {
			return adjust(ctx, q, target, next.Amount.Sub(prev.Amount))
		}
		if err := adjust(ctx, q, current, prev.Amount.Neg()); err != nil {
			return err
		}
		return adjust(ctx, q, target, next.Amount)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ownerID, EventTransactionsChanged)
	return &next, nil
}

// Delete reverses the transaction's effect on a manual balance and removes
// it. A second delete of the same id is a not-found error.
func (s *TransactionService) Delete(ctx context.Context, ownerID, txID string) error {
	tx, acc, err := s.loadWithAccount(ctx, ownerID, txID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.DeleteTransaction(ctx, ownerID, tx.ID); err != nil {
			return notFound(err, "transaction")
		}
		return adjust(ctx, q, acc, tx.Amount.Neg())
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ownerID, EventTransactionsChanged)
	return nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, txID string) (*models.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, ownerID, txID)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return tx, nil
}

func (s *TransactionService) List(ctx context.Context, ownerID string, p pagination.Params, f models.TransactionFilter) (pagination.Page[models.Transaction], error) {
	total, err := s.store.CountTransactions(ctx, ownerID, f)
	if err != nil {
		return pagination.Page[models.Transaction]{}, err
	}

	rows, err := s.store.ListTransactions(ctx, ownerID, f, p.PageSize, p.Skip())
	if err != nil {
		return pagination.Page[models.Transaction]{}, err
	}
	return pagination.New(rows, p, total), nil
}
