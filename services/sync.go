package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/logger"
	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/store"
	"github.com/LovationAdmin/finance-api/utils"
)

const recentTransactionsLimit = 200

// Pluggy webhook events that trigger a re-import.
const (
	WebhookItemCreated = "item/created"
	WebhookItemUpdated = "item/updated"
)

// SyncService mirrors aggregator data into provider accounts and their
// transactions. Each row is upserted on its own, so a failed import leaves
// earlier rows in place and can simply be run again.
type SyncService struct {
	store      store.Store
	aggregator Aggregator
	enc        utils.Encryptor
	notifier   Notifier
	now        func() time.Time
}

func NewSyncService(s store.Store, agg Aggregator, enc utils.Encryptor, n Notifier) *SyncService {
	return &SyncService{store: s, aggregator: agg, enc: enc, notifier: notifierOrNop(n), now: time.Now}
}

// ImportSummary counts what one import did.
type ImportSummary struct {
	Accounts     int `json:"accounts"`
	Transactions int `json:"transactions"`
	Unchanged    int `json:"unchanged"`
	Skipped      int `json:"skipped"`
}

func aggregatorError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return apperr.NotFound("item")
	}
	return err
}

func sameJSON(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// seal encrypts raw unless stored already decrypts to the same document.
// Ciphertexts differ on every call, so reusing the stored one is what keeps
// a replayed import from rewriting the row.
func (s *SyncService) seal(ctx context.Context, stored *string, raw json.RawMessage) (*string, error) {
	if stored != nil {
		prev, err := utils.DecryptJSON(s.enc, *stored)
		if err == nil && sameJSON(prev, raw) {
			return stored, nil
		}
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("stored raw payload is undecryptable, replacing it")
		}
	}

	sealed, err := s.enc.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("encrypt raw payload: %w", err)
	}
	return &sealed, nil
}

func (s *SyncService) ImportItem(ctx context.Context, ownerID, itemID string) (ImportSummary, error) {
	var summary ImportSummary
	if s.aggregator == nil {
		return summary, errors.New("aggregator is not configured")
	}
	log := logger.FromContext(ctx).With().Str("owner", utils.MaskID(ownerID)).Str("item", utils.MaskID(itemID)).Logger()

	accounts, err := s.aggregator.ListAccounts(ctx, itemID)
	if err != nil {
		return summary, aggregatorError(err)
	}
	txs, err := s.aggregator.ListTransactions(ctx, accounts)
	if err != nil {
		return summary, aggregatorError(err)
	}

	now := s.now().UTC()
	item := &models.Item{ID: itemID, OwnerID: ownerID, Provider: models.ProviderPluggy, LastSyncedAt: now, CreatedAt: now}
	if err := s.store.UpsertItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrForeignOwner) {
			return summary, apperr.NotFound("item")
		}
		return summary, err
	}

	owned := make(map[string]bool, len(accounts))
	for _, pa := range accounts {
		var stored *string
		if existing, err := s.store.GetAccount(ctx, ownerID, pa.ID); err == nil {
			stored = existing.RawPayload
		} else if !errors.Is(err, store.ErrNotFound) {
			return summary, err
		}

		raw, err := s.seal(ctx, stored, pa.Raw)
		if err != nil {
			return summary, err
		}

		res, err := s.store.UpsertProviderAccount(ctx, &models.Account{
			ID:             pa.ID,
			OwnerID:        ownerID,
			Provider:       models.ProviderPluggy,
			ExternalItemID: &pa.ItemID,
			Name:           pa.Name,
			Currency:       pa.Currency,
			Balance:        pa.Balance,
			Mask:           pa.Mask,
			RawPayload:     raw,
			UpdatedAt:      now,
		})
		if err != nil {
			return summary, fmt.Errorf("upsert account: %w", err)
		}

		switch res {
		case store.UpsertWritten:
			summary.Accounts++
		case store.UpsertUnchanged:
			summary.Unchanged++
		case store.UpsertSkipped:
			summary.Skipped++
			log.Warn().Str("account", utils.MaskID(pa.ID)).Msg("account id held by another owner, skipped")
			continue
		}
		owned[pa.ID] = true
	}

	for _, pt := range txs {
		if !owned[pt.AccountID] {
			summary.Skipped++
			continue
		}

		var stored *string
		if existing, err := s.store.GetTransaction(ctx, ownerID, pt.ID); err == nil {
			// Moved by the owner: the row now counts towards a manual balance.
			if existing.AccountID != pt.AccountID {
				summary.Skipped++
				continue
			}
			stored = existing.RawPayload
		} else if !errors.Is(err, store.ErrNotFound) {
			return summary, err
		}

		raw, err := s.seal(ctx, stored, pt.Raw)
		if err != nil {
			return summary, err
		}

		res, err := s.store.UpsertProviderTransaction(ctx, &models.Transaction{
			ID:          pt.ID,
			OwnerID:     ownerID,
			AccountID:   pt.AccountID,
			Description: pt.Description,
			Category:    pt.Category,
			Currency:    pt.Currency,
			Amount:      pt.Amount,
			Date:        pt.Date,
			RawPayload:  raw,
			UpdatedAt:   now,
		})
		if err != nil {
			return summary, fmt.Errorf("upsert transaction: %w", err)
		}

		switch res {
		case store.UpsertWritten:
			summary.Transactions++
		case store.UpsertUnchanged:
			summary.Unchanged++
		case store.UpsertSkipped:
			summary.Skipped++
		}
	}

	log.Info().
		Int("accounts", summary.Accounts).
		Int("transactions", summary.Transactions).
		Int("unchanged", summary.Unchanged).
		Int("skipped", summary.Skipped).
		Msg("item imported")

	s.notifier.Notify(ownerID, EventSyncCompleted)
	return summary, nil
}

// SyncedAccount is an account with its decrypted raw record under data.
type SyncedAccount struct {
	models.Account
	Data json.RawMessage `json:"data"`
}

// SyncedTransaction is a transaction with its decrypted raw record under raw.
type SyncedTransaction struct {
	models.Transaction
	Raw json.RawMessage `json:"raw"`
}

type OwnerData struct {
	Accounts     []SyncedAccount     `json:"accounts"`
	Transactions []SyncedTransaction `json:"transactions"`
}

func (s *SyncService) open(ctx context.Context, id string, sealed *string) json.RawMessage {
	if sealed == nil {
		return nil
	}
	raw, err := utils.DecryptJSON(s.enc, *sealed)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("id", utils.MaskID(id)).Msg("undecryptable raw payload")
		return nil
	}
	return raw
}

// ListForOwner returns every account and the most recent transactions, each
// with its raw payload decrypted.
func (s *SyncService) ListForOwner(ctx context.Context, ownerID string) (*OwnerData, error) {
	accounts, err := s.store.ListAllAccounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.RecentTransactions(ctx, ownerID, recentTransactionsLimit)
	if err != nil {
		return nil, err
	}

	out := &OwnerData{
		Accounts:     make([]SyncedAccount, 0, len(accounts)),
		Transactions: make([]SyncedTransaction, 0, len(txs)),
	}
	for _, a := range accounts {
		out.Accounts = append(out.Accounts, SyncedAccount{Account: a, Data: s.open(ctx, a.ID, a.RawPayload)})
	}
	for _, t := range txs {
		out.Transactions = append(out.Transactions, SyncedTransaction{Transaction: t, Raw: s.open(ctx, t.ID, t.RawPayload)})
	}
	return out, nil
}

// WebhookEvent is the body Pluggy posts to the webhook endpoint.
type WebhookEvent struct {
	Event  string `json:"event"`
	ItemID string `json:"itemId"`
}

// HandleWebhook re-imports the item named by an item event. Other events are
// acknowledged and ignored; handled reports which case applied.
func (s *SyncService) HandleWebhook(ctx context.Context, ev WebhookEvent) (handled bool, err error) {
	if ev.Event != WebhookItemCreated && ev.Event != WebhookItemUpdated {
		return false, nil
	}
	if ev.ItemID == "" {
		return false, apperr.Validation("itemId", "itemId is required")
	}

	item, err := s.store.GetItem(ctx, ev.ItemID)
	if err != nil {
		return false, notFound(err, "item")
	}

	if _, err := s.ImportItem(ctx, item.OwnerID, item.ID); err != nil {
		return false, err
	}
	return true, nil
}
