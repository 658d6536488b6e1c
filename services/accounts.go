package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/logger"
	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/pagination"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/store"
	"github.com/LovationAdmin/finance-api/utils"
)

type AccountService struct {
	store    store.Store
	enc      utils.Encryptor
	notifier Notifier
	now      func() time.Time
}

func NewAccountService(s store.Store, enc utils.Encryptor, n Notifier) *AccountService {
	return &AccountService{store: s, enc: enc, notifier: notifierOrNop(n), now: time.Now}
}

type accountMeta struct {
	Type string `json:"type"`
}

func (s *AccountService) sealType(kind *string) (*string, error) {
	if kind == nil {
		return nil, nil
	}
	sealed, err := utils.EncryptJSON(s.enc, accountMeta{Type: *kind})
	if err != nil {
		return nil, fmt.Errorf("encrypt account metadata: %w", err)
	}
	return &sealed, nil
}

// withType exposes the type of a manual account kept in its raw payload.
func (s *AccountService) withType(ctx context.Context, a *models.Account) {
	if !a.IsManual() || a.RawPayload == nil {
		return
	}
	raw, err := utils.DecryptJSON(s.enc, *a.RawPayload)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("account", utils.MaskID(a.ID)).Msg("undecryptable account metadata")
		return
	}
	var meta accountMeta
	if json.Unmarshal(raw, &meta) == nil && meta.Type != "" {
		a.Type = &meta.Type
	}
}

// Create opens a manual account. Its opening balance is the only balance a
// client can ever set directly.
func (s *AccountService) Create(ctx context.Context, ownerID string, in sanitize.AccountInput) (*models.Account, error) {
	if !models.KnownCurrency(in.Currency) {
		return nil, apperr.Validation("currency", "invalid currency")
	}

	raw, err := s.sealType(in.Type)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	acc := &models.Account{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Provider:   models.ProviderManual,
		Name:       in.Name,
		Currency:   in.Currency,
		Balance:    in.Balance,
		Mask:       in.Mask,
		Type:       in.Type,
		RawPayload: raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.notifier.Notify(ownerID, EventAccountsChanged)
	return acc, nil
}

func (s *AccountService) manual(ctx context.Context, ownerID, id string) (*models.Account, error) {
	acc, err := s.store.GetAccount(ctx, ownerID, id)
	if err != nil {
		return nil, notFound(err, "account")
	}
	if !acc.IsManual() {
		return nil, apperr.Validation("provider", "provider accounts are read-only")
	}
	return acc, nil
}

func (s *AccountService) Update(ctx context.Context, ownerID, id string, in sanitize.AccountPatch) (*models.Account, error) {
	acc, err := s.manual(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.withType(ctx, acc)

	if in.Name.Value != nil {
		acc.Name = *in.Name.Value
	}
	if in.Mask.Set {
		acc.Mask = in.Mask.Value
	}
	if in.Type.Set {
		if acc.RawPayload, err = s.sealType(in.Type.Value); err != nil {
			return nil, err
		}
		acc.Type = in.Type.Value
	}
	acc.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, notFound(err, "account")
	}

	s.notifier.Notify(ownerID, EventAccountsChanged)
	return acc, nil
}

// Delete removes a manual account. Its transactions stay, detached.
func (s *AccountService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.manual(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, ownerID, id); err != nil {
		return notFound(err, "account")
	}

	s.notifier.Notify(ownerID, EventAccountsChanged)
	return nil
}

func (s *AccountService) Get(ctx context.Context, ownerID, id string) (*models.Account, error) {
	acc, err := s.store.GetAccount(ctx, ownerID, id)
	if err != nil {
		return nil, notFound(err, "account")
	}
	s.withType(ctx, acc)
	return acc, nil
}

func (s *AccountService) List(ctx context.Context, ownerID string, p pagination.Params) (pagination.Page[models.Account], error) {
	total, err := s.store.CountAccounts(ctx, ownerID)
	if err != nil {
		return pagination.Page[models.Account]{}, err
	}

	rows, err := s.store.ListAccounts(ctx, ownerID, p.PageSize, p.Skip())
	if err != nil {
		return pagination.Page[models.Account]{}, err
	}
	for i := range rows {
		s.withType(ctx, &rows[i])
	}
	return pagination.New(rows, p, total), nil
}
