package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LovationAdmin/finance-api/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func manualAccount(owner string, created time.Time, balance int64) *models.Account {
	return &models.Account{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Provider:  models.ProviderManual,
		Name:      "Wallet",
		Currency:  "BRL",
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func transaction(owner, accountID string, amount int64, date time.Time) *models.Transaction {
	return &models.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		AccountID:   accountID,
		Description: "coffee",
		Currency:    "BRL",
		Amount:      decimal.NewFromInt(amount),
		Date:        date,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

// runStoreContract checks the behaviour both backends must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("oldest manual account", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()

		_, err := s.OldestManualAccount(ctx, owner)
		require.ErrorIs(t, err, ErrNotFound)

		later := manualAccount(owner, base.Add(time.Hour), 0)
		first := manualAccount(owner, base, 0)
		provider := manualAccount(owner, base.Add(-time.Hour), 0)
		provider.Provider = models.ProviderPluggy
		for _, a := range []*models.Account{later, first} {
			require.NoError(t, s.CreateAccount(ctx, a))
		}
		_, err = s.UpsertProviderAccount(ctx, provider)
		require.NoError(t, err)

		got, err := s.OldestManualAccount(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("increment balance is manual only and owner scoped", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()
		a := manualAccount(owner, base, 100)
		require.NoError(t, s.CreateAccount(ctx, a))

		require.NoError(t, s.IncrementBalance(ctx, owner, a.ID, decimal.RequireFromString("-50.25")))
		require.ErrorIs(t, s.IncrementBalance(ctx, "someone-else", a.ID, decimal.NewFromInt(1)), ErrNotFound)

		got, err := s.GetAccount(ctx, owner, a.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("49.75").Equal(got.Balance), got.Balance.String())

		p := manualAccount(owner, base, 10)
		p.Provider = models.ProviderPluggy
		_, err = s.UpsertProviderAccount(ctx, p)
		require.NoError(t, err)
		require.ErrorIs(t, s.IncrementBalance(ctx, owner, p.ID, decimal.NewFromInt(1)), ErrNotFound)
	})

	t.Run("unit of work rolls back", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()
		a := manualAccount(owner, base, 100)
		require.NoError(t, s.CreateAccount(ctx, a))

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(q Queries) error {
			require.NoError(t, q.InsertTransaction(ctx, transaction(owner, a.ID, -30, base)))
			require.NoError(t, q.IncrementBalance(ctx, owner, a.ID, decimal.NewFromInt(-30)))
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.GetAccount(ctx, owner, a.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(got.Balance))

		n, err := s.CountTransactions(ctx, owner, models.TransactionFilter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("deleting an account orphans its transactions", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()
		a := manualAccount(owner, base, 0)
		require.NoError(t, s.CreateAccount(ctx, a))
		tx := transaction(owner, a.ID, 5, base)
		require.NoError(t, s.InsertTransaction(ctx, tx))

		require.NoError(t, s.DeleteAccount(ctx, owner, a.ID))
		require.ErrorIs(t, s.DeleteAccount(ctx, owner, a.ID), ErrNotFound)

		got, err := s.GetTransaction(ctx, owner, tx.ID)
		require.NoError(t, err)
		assert.Empty(t, got.AccountID)
	})

	t.Run("transactions list newest first with filter", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()
		a := manualAccount(owner, base, 0)
		b := manualAccount(owner, base.Add(time.Second), 0)
		require.NoError(t, s.CreateAccount(ctx, a))
		require.NoError(t, s.CreateAccount(ctx, b))

		oldest := transaction(owner, a.ID, 1, base)
		newest := transaction(owner, b.ID, 2, base.Add(48*time.Hour))
		middle := transaction(owner, a.ID, 3, base.Add(24*time.Hour))
		for _, tx := range []*models.Transaction{oldest, newest, middle} {
			require.NoError(t, s.InsertTransaction(ctx, tx))
		}
		require.NoError(t, s.InsertTransaction(ctx, transaction(uuid.NewString(), a.ID, 9, base)))

		all, err := s.ListTransactions(ctx, owner, models.TransactionFilter{}, 2, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, newest.ID, all[0].ID)
		assert.Equal(t, middle.ID, all[1].ID)

		rest, err := s.ListTransactions(ctx, owner, models.TransactionFilter{}, 2, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, oldest.ID, rest[0].ID)

		filtered, err := s.ListTransactions(ctx, owner, models.TransactionFilter{AccountID: a.ID}, 10, 0)
		require.NoError(t, err)
		assert.Len(t, filtered, 2)

		n, err := s.CountTransactions(ctx, owner, models.TransactionFilter{AccountID: b.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("provider upsert is idempotent and owner guarded", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()
		acc := &models.Account{
			ID:             "pluggy-acc-" + uuid.NewString(),
			OwnerID:        owner,
			Provider:       models.ProviderPluggy,
			ExternalItemID: ptr("item-1"),
			Name:           "Conta Corrente",
			Currency:       "BRL",
			Balance:        decimal.RequireFromString("1500.10"),
			Mask:           ptr("1234"),
			RawPayload:     ptr("cipher-1"),
			UpdatedAt:      base,
		}

		res, err := s.UpsertProviderAccount(ctx, acc)
		require.NoError(t, err)
		assert.Equal(t, UpsertWritten, res)

		again := *acc
		again.UpdatedAt = base.Add(time.Hour)
		res, err = s.UpsertProviderAccount(ctx, &again)
		require.NoError(t, err)
		assert.Equal(t, UpsertUnchanged, res)

		got, err := s.GetAccount(ctx, owner, acc.ID)
		require.NoError(t, err)
		assert.True(t, base.Equal(got.UpdatedAt), "unchanged upsert must not touch the row")

		thief := *acc
		thief.OwnerID = "attacker"
		thief.Balance = decimal.Zero
		res, err = s.UpsertProviderAccount(ctx, &thief)
		require.NoError(t, err)
		assert.Equal(t, UpsertSkipped, res)

		got, err = s.GetAccount(ctx, owner, acc.ID)
		require.NoError(t, err)
		assert.True(t, acc.Balance.Equal(got.Balance))

		changed := *acc
		changed.Balance = decimal.NewFromInt(10)
		changed.UpdatedAt = base.Add(2 * time.Hour)
		res, err = s.UpsertProviderAccount(ctx, &changed)
		require.NoError(t, err)
		assert.Equal(t, UpsertWritten, res)

		tx := transaction(owner, acc.ID, -20, base)
		tx.ID = "pluggy-tx-" + uuid.NewString()
		res, err = s.UpsertProviderTransaction(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, UpsertWritten, res)
		res, err = s.UpsertProviderTransaction(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, UpsertUnchanged, res)

		wallet := manualAccount(owner, base, 0)
		require.NoError(t, s.CreateAccount(ctx, wallet))
		moved := *tx
		moved.AccountID = wallet.ID
		require.NoError(t, s.UpdateTransaction(ctx, &moved))

		res, err = s.UpsertProviderTransaction(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, UpsertUnchanged, res)
		got2, err := s.GetTransaction(ctx, owner, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, wallet.ID, got2.AccountID, "sync never reattaches a transaction")
	})

	t.Run("items are owner guarded", func(t *testing.T) {
		s := newStore(t)
		itemID := "item-" + uuid.NewString()
		item := &models.Item{ID: itemID, OwnerID: "alice", Provider: models.ProviderPluggy, LastSyncedAt: base, CreatedAt: base}

		require.NoError(t, s.UpsertItem(ctx, item))
		item.LastSyncedAt = base.Add(time.Hour)
		require.NoError(t, s.UpsertItem(ctx, item))

		foreign := *item
		foreign.OwnerID = "mallory"
		require.ErrorIs(t, s.UpsertItem(ctx, &foreign), ErrForeignOwner)

		got, err := s.GetItem(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
		assert.True(t, base.Add(time.Hour).Equal(got.LastSyncedAt))

		_, err = s.GetItem(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("planning records", func(t *testing.T) {
		s := newStore(t)
		owner := uuid.NewString()
		loans := s.Loans()

		loan := &models.Loan{
			ID:           uuid.NewString(),
			OwnerID:      owner,
			Name:         "Car",
			Amount:       decimal.NewFromInt(12000),
			InterestRate: ptr(decimal.RequireFromString("1.99")),
			CreatedAt:    base,
			UpdatedAt:    base,
		}
		require.NoError(t, loans.Insert(ctx, loan))

		got, err := loans.Get(ctx, owner, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, "Car", got.Name)
		key := loans.Key(got)
		assert.Equal(t, loan.ID, *key.ID)
		assert.Equal(t, owner, *key.OwnerID)
		assert.True(t, base.Equal(*key.CreatedAt))
		require.NotNil(t, got.InterestRate)
		assert.True(t, decimal.RequireFromString("1.99").Equal(*got.InterestRate))
		assert.Nil(t, got.PaidAt)

		paidAt := base.Add(time.Hour)
		got.IsPaid = true
		got.PaidAt = &paidAt
		got.UpdatedAt = paidAt
		require.NoError(t, loans.Update(ctx, got))

		_, err = loans.Get(ctx, "other", loan.ID)
		require.ErrorIs(t, err, ErrNotFound)

		list, err := loans.List(ctx, owner, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].IsPaid)
		assert.True(t, paidAt.Equal(*list[0].PaidAt))
		assert.True(t, base.Equal(list[0].CreatedAt))

		n, err := loans.Count(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, loans.Delete(ctx, owner, loan.ID))
		require.ErrorIs(t, loans.Delete(ctx, owner, loan.ID), ErrNotFound)

		goal := &models.Goal{ID: uuid.NewString(), OwnerID: owner, Name: "Trip",
			TargetAmount: decimal.NewFromInt(5000), CurrentAmount: decimal.Zero, CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.Goals().Insert(ctx, goal))
		goals, err := s.Goals().List(ctx, owner, 10, 0)
		require.NoError(t, err)
		assert.Len(t, goals, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := manualAccount("owner", base, 0)
	require.NoError(t, s.CreateAccount(ctx, a))

	done := make(chan struct{})
	for range 50 {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = s.WithTx(ctx, func(q Queries) error {
				return q.IncrementBalance(ctx, "owner", a.ID, decimal.NewFromInt(2))
			})
		}()
	}
	for range 50 {
		<-done
	}

	got, err := s.GetAccount(ctx, "owner", a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Balance))
}
