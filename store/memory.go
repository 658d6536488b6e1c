package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-api/models"
)

type memState struct {
	accounts      map[string]models.Account
	transactions  map[string]models.Transaction
	items         map[string]models.Item
	loans         map[string]models.Loan
	subscriptions map[string]models.Subscription
	budgets       map[string]models.Budget
	goals         map[string]models.Goal
}

func newMemState() *memState {
	return &memState{
		accounts:      map[string]models.Account{},
		transactions:  map[string]models.Transaction{},
		items:         map[string]models.Item{},
		loans:         map[string]models.Loan{},
		subscriptions: map[string]models.Subscription{},
		budgets:       map[string]models.Budget{},
		goals:         map[string]models.Goal{},
	}
}

// clone copies every table. Rows are values and their pointer fields are
// never mutated in place, so a shallow copy is a full snapshot.
func (s *memState) clone() *memState {
	return &memState{
		accounts:      maps.Clone(s.accounts),
		transactions:  maps.Clone(s.transactions),
		items:         maps.Clone(s.items),
		loans:         maps.Clone(s.loans),
		subscriptions: maps.Clone(s.subscriptions),
		budgets:       maps.Clone(s.budgets),
		goals:         maps.Clone(s.goals),
	}
}

// Memory is an in-process Store. A unit of work holds the store lock for
// its whole duration and restores a snapshot when it fails.
type Memory struct {
	*memQueries
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	m := &Memory{state: newMemState()}
	m.memQueries = &memQueries{m: m}
	return m
}

func (m *Memory) WithTx(ctx context.Context, fn func(q Queries) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	defer func() {
		if p := recover(); p != nil {
			m.state = snapshot
			panic(p)
		}
		if err != nil {
			m.state = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memQueries{m: m, inTx: true})
}

func (m *Memory) Close() error { return nil }

type memQueries struct {
	m    *Memory
	inTx bool
}

// lock takes the store lock unless the caller already holds it through WithTx.
func (q *memQueries) lock() func() {
	if q.inTx {
		return func() {}
	}
	q.m.mu.Lock()
	return q.m.mu.Unlock
}

func touch() time.Time { return time.Now().UTC() }

func page[T any](rows []T, limit, offset int) []T {
	if offset < 0 || offset >= len(rows) {
		return nil
	}
	end := len(rows)
	if limit < end-offset {
		end = offset + limit
	}
	return rows[offset:end]
}

func (q *memQueries) GetAccount(_ context.Context, ownerID, id string) (*models.Account, error) {
	defer q.lock()()

	a, ok := q.m.state.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (q *memQueries) ownerAccounts(ownerID string) []models.Account {
	var out []models.Account
	for _, a := range q.m.state.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(x, y models.Account) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out
}

func (q *memQueries) OldestManualAccount(_ context.Context, ownerID string) (*models.Account, error) {
	defer q.lock()()

	for _, a := range q.ownerAccounts(ownerID) {
		if a.IsManual() {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (q *memQueries) CreateAccount(_ context.Context, a *models.Account) error {
	defer q.lock()()

	if _, exists := q.m.state.accounts[a.ID]; exists {
		return ErrForeignOwner
	}
	q.m.state.accounts[a.ID] = *a
	return nil
}

func (q *memQueries) UpdateAccount(_ context.Context, a *models.Account) error {
	defer q.lock()()

	cur, ok := q.m.state.accounts[a.ID]
	if !ok || cur.OwnerID != a.OwnerID || !cur.IsManual() {
		return ErrNotFound
	}
	cur.Name, cur.Mask, cur.RawPayload, cur.UpdatedAt = a.Name, a.Mask, a.RawPayload, a.UpdatedAt
	q.m.state.accounts[a.ID] = cur
	return nil
}

func (q *memQueries) DeleteAccount(_ context.Context, ownerID, id string) error {
	defer q.lock()()

	a, ok := q.m.state.accounts[id]
	if !ok || a.OwnerID != ownerID || !a.IsManual() {
		return ErrNotFound
	}
	delete(q.m.state.accounts, id)

	for txID, t := range q.m.state.transactions {
		if t.AccountID == id {
			t.AccountID = ""
			q.m.state.transactions[txID] = t
		}
	}
	return nil
}

func (q *memQueries) IncrementBalance(_ context.Context, ownerID, accountID string, delta decimal.Decimal) error {
	defer q.lock()()

	a, ok := q.m.state.accounts[accountID]
	if !ok || a.OwnerID != ownerID || !a.IsManual() {
		return ErrNotFound
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = touch()
	q.m.state.accounts[accountID] = a
	return nil
}

func (q *memQueries) ListAccounts(_ context.Context, ownerID string, limit, offset int) ([]models.Account, error) {
	defer q.lock()()
	return page(q.ownerAccounts(ownerID), limit, offset), nil
}

func (q *memQueries) CountAccounts(_ context.Context, ownerID string) (int, error) {
	defer q.lock()()
	return len(q.ownerAccounts(ownerID)), nil
}

func (q *memQueries) ListAllAccounts(_ context.Context, ownerID string) ([]models.Account, error) {
	defer q.lock()()
	return q.ownerAccounts(ownerID), nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (q *memQueries) UpsertProviderAccount(_ context.Context, a *models.Account) (UpsertResult, error) {
	defer q.lock()()

	cur, exists := q.m.state.accounts[a.ID]
	if !exists {
		row := *a
		row.CreatedAt = a.UpdatedAt
		q.m.state.accounts[a.ID] = row
		return UpsertWritten, nil
	}
	if cur.OwnerID != a.OwnerID || cur.Provider != a.Provider {
		return UpsertSkipped, nil
	}
	if sameString(cur.ExternalItemID, a.ExternalItemID) && cur.Name == a.Name && cur.Currency == a.Currency &&
		cur.Balance.Equal(a.Balance) && sameString(cur.Mask, a.Mask) && sameString(cur.RawPayload, a.RawPayload) {
		return UpsertUnchanged, nil
	}

	cur.ExternalItemID, cur.Name, cur.Currency = a.ExternalItemID, a.Name, a.Currency
	cur.Balance, cur.Mask, cur.RawPayload, cur.UpdatedAt = a.Balance, a.Mask, a.RawPayload, a.UpdatedAt
	q.m.state.accounts[a.ID] = cur
	return UpsertWritten, nil
}

func (q *memQueries) GetTransaction(_ context.Context, ownerID, id string) (*models.Transaction, error) {
	defer q.lock()()

	t, ok := q.m.state.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (q *memQueries) InsertTransaction(_ context.Context, t *models.Transaction) error {
	defer q.lock()()

	if _, exists := q.m.state.transactions[t.ID]; exists {
		return ErrForeignOwner
	}
	q.m.state.transactions[t.ID] = *t
	return nil
}

func (q *memQueries) UpdateTransaction(_ context.Context, t *models.Transaction) error {
	defer q.lock()()

	cur, ok := q.m.state.transactions[t.ID]
	if !ok || cur.OwnerID != t.OwnerID {
		return ErrNotFound
	}
	cur.AccountID, cur.Description, cur.Category, cur.Currency = t.AccountID, t.Description, t.Category, t.Currency
	cur.Amount, cur.Date, cur.IsRecurring, cur.UpdatedAt = t.Amount, t.Date, t.IsRecurring, t.UpdatedAt
	q.m.state.transactions[t.ID] = cur
	return nil
}

func (q *memQueries) DeleteTransaction(_ context.Context, ownerID, id string) error {
	defer q.lock()()

	t, ok := q.m.state.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(q.m.state.transactions, id)
	return nil
}

func (q *memQueries) ownerTransactions(ownerID string, f models.TransactionFilter) []models.Transaction {
	var out []models.Transaction
	for _, t := range q.m.state.transactions {
		if t.OwnerID != ownerID || (f.AccountID != "" && t.AccountID != f.AccountID) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(x, y models.Transaction) int {
		if c := y.Date.Compare(x.Date); c != 0 {
			return c
		}
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out
}

func (q *memQueries) ListTransactions(_ context.Context, ownerID string, f models.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	defer q.lock()()
	return page(q.ownerTransactions(ownerID, f), limit, offset), nil
}

func (q *memQueries) CountTransactions(_ context.Context, ownerID string, f models.TransactionFilter) (int, error) {
	defer q.lock()()
	return len(q.ownerTransactions(ownerID, f)), nil
}

func (q *memQueries) RecentTransactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error) {
	return q.ListTransactions(ctx, ownerID, models.TransactionFilter{}, limit, 0)
}

func (q *memQueries) UpsertProviderTransaction(_ context.Context, t *models.Transaction) (UpsertResult, error) {
	defer q.lock()()

	cur, exists := q.m.state.transactions[t.ID]
	if !exists {
		row := *t
		row.IsRecurring = false
		row.CreatedAt = t.UpdatedAt
		q.m.state.transactions[t.ID] = row
		return UpsertWritten, nil
	}
	if cur.OwnerID != t.OwnerID {
		return UpsertSkipped, nil
	}
	if cur.Description == t.Description && sameString(cur.Category, t.Category) &&
		cur.Currency == t.Currency && cur.Amount.Equal(t.Amount) && cur.Date.Equal(t.Date) &&
		sameString(cur.RawPayload, t.RawPayload) {
		return UpsertUnchanged, nil
	}

	cur.Description, cur.Category, cur.Currency = t.Description, t.Category, t.Currency
	cur.Amount, cur.Date, cur.RawPayload, cur.UpdatedAt = t.Amount, t.Date, t.RawPayload, t.UpdatedAt
	q.m.state.transactions[t.ID] = cur
	return UpsertWritten, nil
}

func (q *memQueries) UpsertItem(_ context.Context, item *models.Item) error {
	defer q.lock()()

	cur, exists := q.m.state.items[item.ID]
	if !exists {
		q.m.state.items[item.ID] = *item
		return nil
	}
	if cur.OwnerID != item.OwnerID {
		return ErrForeignOwner
	}
	cur.LastSyncedAt = item.LastSyncedAt
	q.m.state.items[item.ID] = cur
	return nil
}

func (q *memQueries) GetItem(_ context.Context, id string) (*models.Item, error) {
	defer q.lock()()

	item, ok := q.m.state.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (q *memQueries) Loans() Records[models.Loan] {
	return &memRecords[models.Loan]{q: q, def: loanDef, table: func(s *memState) map[string]models.Loan { return s.loans }}
}

func (q *memQueries) Subscriptions() Records[models.Subscription] {
	return &memRecords[models.Subscription]{q: q, def: subscriptionDef, table: func(s *memState) map[string]models.Subscription { return s.subscriptions }}
}

func (q *memQueries) Budgets() Records[models.Budget] {
	return &memRecords[models.Budget]{q: q, def: budgetDef, table: func(s *memState) map[string]models.Budget { return s.budgets }}
}

func (q *memQueries) Goals() Records[models.Goal] {
	return &memRecords[models.Goal]{q: q, def: goalDef, table: func(s *memState) map[string]models.Goal { return s.goals }}
}

type memRecords[T any] struct {
	q     *memQueries
	def   recordDef[T]
	table func(*memState) map[string]T
}

func (r *memRecords[T]) Key(rec *T) RecordKey { return r.def.key(rec) }

func (r *memRecords[T]) find(ownerID, id string) (T, bool) {
	rec, ok := r.table(r.q.m.state)[id]
	if !ok || *r.def.key(&rec).OwnerID != ownerID {
		var zero T
		return zero, false
	}
	return rec, true
}

func (r *memRecords[T]) Get(_ context.Context, ownerID, id string) (*T, error) {
	defer r.q.lock()()

	rec, ok := r.find(ownerID, id)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *memRecords[T]) Insert(_ context.Context, rec *T) error {
	defer r.q.lock()()

	id := *r.def.key(rec).ID
	if _, exists := r.table(r.q.m.state)[id]; exists {
		return ErrForeignOwner
	}
	r.table(r.q.m.state)[id] = *rec
	return nil
}

func (r *memRecords[T]) Update(_ context.Context, rec *T) error {
	defer r.q.lock()()

	k := r.def.key(rec)
	cur, ok := r.find(*k.OwnerID, *k.ID)
	if !ok {
		return ErrNotFound
	}

	next := *rec
	nk := r.def.key(&next)
	*nk.CreatedAt = *r.def.key(&cur).CreatedAt
	r.table(r.q.m.state)[*k.ID] = next
	return nil
}

func (r *memRecords[T]) Delete(_ context.Context, ownerID, id string) error {
	defer r.q.lock()()

	if _, ok := r.find(ownerID, id); !ok {
		return ErrNotFound
	}
	delete(r.table(r.q.m.state), id)
	return nil
}

func (r *memRecords[T]) owned(ownerID string) []T {
	var out []T
	for _, rec := range r.table(r.q.m.state) {
		if *r.def.key(&rec).OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(x, y T) int {
		kx, ky := r.def.key(&x), r.def.key(&y)
		if c := ky.CreatedAt.Compare(*kx.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(*kx.ID, *ky.ID)
	})
	return out
}

func (r *memRecords[T]) List(_ context.Context, ownerID string, limit, offset int) ([]T, error) {
	defer r.q.lock()()
	return page(r.owned(ownerID), limit, offset), nil
}

func (r *memRecords[T]) Count(_ context.Context, ownerID string) (int, error) {
	defer r.q.lock()()
	return len(r.owned(ownerID)), nil
}

var _ Store = (*Memory)(nil)
