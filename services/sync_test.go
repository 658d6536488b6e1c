package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/store"
)

type fakeAggregator struct {
	accounts []ProviderAccount
	txs      []ProviderTransaction
	err      error
	calls    int
}

func (f *fakeAggregator) ListAccounts(context.Context, string) ([]ProviderAccount, error) {
	f.calls++
	return f.accounts, f.err
}

func (f *fakeAggregator) ListTransactions(context.Context, []ProviderAccount) ([]ProviderTransaction, error) {
	return f.txs, f.err
}

func sampleAggregator() *fakeAggregator {
	return &fakeAggregator{
		accounts: []ProviderAccount{{
			ID:       "acc-1",
			ItemID:   "item-1",
			Name:     "Conta Corrente",
			Currency: "BRL",
			Balance:  dec("1520.33"),
			Mask:     ptr("4321"),
			Raw:      json.RawMessage(`{"id":"acc-1","balance":1520.33,"number":"0001/12344321"}`),
		}},
		txs: []ProviderTransaction{
			{
				ID:          "tx-1",
				AccountID:   "acc-1",
				Description: "PIX RECEBIDO",
				Currency:    "BRL",
				Amount:      dec("200"),
				Date:        clock.Add(-24 * time.Hour),
				Raw:         json.RawMessage(`{"id":"tx-1","amount":200}`),
			},
			{
				ID:          "tx-2",
				AccountID:   "acc-1",
				Description: "MERCADO",
				Category:    ptr("Groceries"),
				Currency:    "BRL",
				Amount:      dec("-87.10"),
				Date:        clock,
				Raw:         json.RawMessage(`{"id":"tx-2","amount":-87.10}`),
			},
		},
	}
}

func newSync(t *testing.T, agg Aggregator) (*SyncService, *store.Memory, *recordingNotifier) {
	t.Helper()
	s := store.NewMemory()
	n := &recordingNotifier{}
	svc := NewSyncService(s, agg, testEncryptor(t), n)
	svc.now = func() time.Time { return clock }
	return svc, s, n
}

func snapshot(t *testing.T, s store.Store, ownerID string) ([]models.Account, []models.Transaction) {
	t.Helper()
	ctx := context.Background()
	accounts, err := s.ListAllAccounts(ctx, ownerID)
	require.NoError(t, err)
	txs, err := s.RecentTransactions(ctx, ownerID, 100)
	require.NoError(t, err)
	return accounts, txs
}

func TestSyncService_ImportItem(t *testing.T) {
	svc, s, n := newSync(t, sampleAggregator())
	ctx := context.Background()

	summary, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Accounts: 1, Transactions: 2}, summary)

	acc, err := s.GetAccount(ctx, owner, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPluggy, acc.Provider)
	assert.Equal(t, "item-1", *acc.ExternalItemID)
	assert.True(t, dec("1520.33").Equal(acc.Balance))
	require.NotNil(t, acc.RawPayload)
	assert.NotContains(t, *acc.RawPayload, "1520.33", "raw payload is stored encrypted")

	item, err := s.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, owner, item.OwnerID)

	assert.Equal(t, []string{owner + ":" + EventSyncCompleted}, n.Events())
}

func TestSyncService_ImportIsIdempotent(t *testing.T) {
	svc, s, _ := newSync(t, sampleAggregator())
	ctx := context.Background()

	_, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)
	accountsBefore, txsBefore := snapshot(t, s, owner)

	svc.now = func() time.Time { return clock.Add(time.Hour) }
	summary, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)

	assert.Equal(t, ImportSummary{Unchanged: 3}, summary)
	accountsAfter, txsAfter := snapshot(t, s, owner)
	assert.Equal(t, accountsBefore, accountsAfter)
	assert.Equal(t, txsBefore, txsAfter)
}

func TestSyncService_ImportRewritesChangedRows(t *testing.T) {
	agg := sampleAggregator()
	svc, s, _ := newSync(t, agg)
	ctx := context.Background()

	_, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)

	agg.accounts[0].Balance = dec("1000")
	agg.accounts[0].Raw = json.RawMessage(`{"id":"acc-1","balance":1000}`)
	summary, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Accounts: 1, Unchanged: 2}, summary)

	acc, err := s.GetAccount(ctx, owner, "acc-1")
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(acc.Balance))
}

func TestSyncService_NeverTouchesManualBalances(t *testing.T) {
	svc, s, _ := newSync(t, sampleAggregator())
	ctx := context.Background()

	manual := &models.Account{
		ID: "manual-1", OwnerID: owner, Provider: models.ProviderManual,
		Name: "Wallet", Currency: "BRL", Balance: dec("42"), CreatedAt: clock, UpdatedAt: clock,
	}
	require.NoError(t, s.CreateAccount(ctx, manual))

	_, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, owner, manual.ID)
	require.NoError(t, err)
	assert.True(t, dec("42").Equal(got.Balance))
}

func TestSyncService_ResyncKeepsOwnerMovedTransactions(t *testing.T) {
	f := newLedger(t)
	agg := sampleAggregator()
	svc := NewSyncService(f.store, agg, testEncryptor(t), f.notifier)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)

	wallet := f.openAccount(t, "Wallet", "100")
	_, err = f.txs.Update(ctx, owner, "tx-1", sanitize.TransactionInput{
		Description: "PIX RECEBIDO",
		Amount:      dec("200"),
		Date:        clock.Add(-24 * time.Hour),
		AccountID:   &wallet.ID,
	})
	require.NoError(t, err)
	require.True(t, dec("300").Equal(f.balance(t, wallet.ID)))

	summary, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Unchanged: 2, Skipped: 1}, summary)

	// A later amount change upstream must not leak into the manual balance either.
	agg.txs[0].Amount = dec("250")
	_, err = svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)

	tx, err := f.store.GetTransaction(ctx, owner, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, tx.AccountID)
	assert.True(t, dec("200").Equal(tx.Amount))
	assert.True(t, dec("300").Equal(f.balance(t, wallet.ID)))
	f.assertLedger(t, map[string]decimal.Decimal{wallet.ID: dec("100")})
}

func TestSyncService_ForeignItemAndAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("item linked to another owner", func(t *testing.T) {
		svc, s, _ := newSync(t, sampleAggregator())
		_, err := svc.ImportItem(ctx, "first-owner", "item-1")
		require.NoError(t, err)

		_, err = svc.ImportItem(ctx, owner, "item-1")
		require.Error(t, err)
		assert.True(t, apperr.IsNotFound(err))

		_, err = s.GetAccount(ctx, owner, "acc-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("account id held by another owner", func(t *testing.T) {
		agg := sampleAggregator()
		svc, s, _ := newSync(t, agg)
		_, err := svc.ImportItem(ctx, "first-owner", "item-1")
		require.NoError(t, err)

		summary, err := svc.ImportItem(ctx, owner, "item-2")
		require.NoError(t, err)
		assert.Equal(t, ImportSummary{Skipped: 3}, summary)

		acc, err := s.GetAccount(ctx, "first-owner", "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "item-1", *acc.ExternalItemID)
	})
}

func TestSyncService_AggregatorErrors(t *testing.T) {
	ctx := context.Background()

	svc, _, n := newSync(t, &fakeAggregator{err: &APIError{Status: 404, Body: "not found"}})
	_, err := svc.ImportItem(ctx, owner, "item-x")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, n.Events())

	boom := errors.New("connection reset")
	svc, _, _ = newSync(t, &fakeAggregator{err: boom})
	_, err = svc.ImportItem(ctx, owner, "item-x")
	assert.ErrorIs(t, err, boom)
}

func TestSyncService_ListForOwner(t *testing.T) {
	svc, s, _ := newSync(t, sampleAggregator())
	ctx := context.Background()

	_, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)

	// An undecryptable payload is reported as null, not as a failure.
	garbage := "not-a-ciphertext"
	_, err = s.UpsertProviderTransaction(ctx, &models.Transaction{
		ID: "tx-bad", OwnerID: owner, AccountID: "acc-1", Description: "broken",
		Currency: "BRL", Amount: dec("1"), Date: clock.Add(-48 * time.Hour), RawPayload: &garbage, UpdatedAt: clock,
	})
	require.NoError(t, err)

	data, err := svc.ListForOwner(ctx, owner)
	require.NoError(t, err)

	require.Len(t, data.Accounts, 1)
	assert.JSONEq(t, `{"id":"acc-1","balance":1520.33,"number":"0001/12344321"}`, string(data.Accounts[0].Data))

	require.Len(t, data.Transactions, 3)
	byID := map[string]SyncedTransaction{}
	for _, tx := range data.Transactions {
		byID[tx.ID] = tx
	}
	assert.JSONEq(t, `{"id":"tx-2","amount":-87.10}`, string(byID["tx-2"].Raw))
	assert.Nil(t, byID["tx-bad"].Raw)

	out, err := json.Marshal(byID["tx-bad"])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"raw":null`)
	assert.NotContains(t, string(out), "ownerId")
}

func TestSyncService_HandleWebhook(t *testing.T) {
	ctx := context.Background()
	agg := sampleAggregator()
	svc, _, _ := newSync(t, agg)

	_, err := svc.ImportItem(ctx, owner, "item-1")
	require.NoError(t, err)
	calls := agg.calls

	tests := []struct {
		name      string
		event     WebhookEvent
		handled   bool
		wantErr   func(error) bool
		wantCalls int
	}{
		{name: "item updated", event: WebhookEvent{Event: WebhookItemUpdated, ItemID: "item-1"}, handled: true, wantCalls: 1},
		{name: "other event ignored", event: WebhookEvent{Event: "connector/status_updated", ItemID: "item-1"}},
		{name: "unknown item", event: WebhookEvent{Event: WebhookItemCreated, ItemID: "item-404"}, wantErr: apperr.IsNotFound},
		{name: "missing item id", event: WebhookEvent{Event: WebhookItemUpdated}, wantErr: apperr.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled, err := svc.HandleWebhook(ctx, tt.event)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.handled, handled)
			assert.Equal(t, calls+tt.wantCalls, agg.calls)
			calls = agg.calls
		})
	}
}
