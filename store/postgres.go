package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/utils"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Postgres struct {
	*pgQueries
	db *sql.DB
}

// insertErr reports a taken primary key as ErrForeignOwner, like Memory does.
func insertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrForeignOwner
	}
	return err
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{pgQueries: &pgQueries{db: db}, db: db}
}

func (s *Postgres) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&pgQueries{db: tx})
	})
}

func (s *Postgres) Close() error { return s.db.Close() }

type pgQueries struct {
	db DBTX
}

const accountColumns = `id, owner_id, provider, external_item_id, name, currency, balance, mask, raw_payload, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Provider, &a.ExternalItemID, &a.Name, &a.Currency,
		&a.Balance, &a.Mask, &a.RawPayload, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]models.Account, error) {
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) GetAccount(ctx context.Context, ownerID, id string) (*models.Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND owner_id = $2`, id, ownerID))
}

func (q *pgQueries) OldestManualAccount(ctx context.Context, ownerID string) (*models.Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE owner_id = $1 AND provider = 'manual'
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`, ownerID))
}

func (q *pgQueries) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.OwnerID, a.Provider, a.ExternalItemID, a.Name, a.Currency,
		a.Balance, a.Mask, a.RawPayload, a.CreatedAt, a.UpdatedAt)
	return insertErr(err)
}

func (q *pgQueries) UpdateAccount(ctx context.Context, a *models.Account) error {
	return affected(q.db.ExecContext(ctx,
		`UPDATE accounts SET name = $1, mask = $2, raw_payload = $3, updated_at = $4
		 WHERE id = $5 AND owner_id = $6 AND provider = 'manual'`,
		a.Name, a.Mask, a.RawPayload, a.UpdatedAt, a.ID, a.OwnerID))
}

func (q *pgQueries) DeleteAccount(ctx context.Context, ownerID, id string) error {
	return affected(q.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = $1 AND owner_id = $2 AND provider = 'manual'`, id, ownerID))
}

func (q *pgQueries) IncrementBalance(ctx context.Context, ownerID, accountID string, delta decimal.Decimal) error {
	return affected(q.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		 WHERE id = $2 AND owner_id = $3 AND provider = 'manual'`,
		delta, accountID, ownerID))
}

func (q *pgQueries) ListAccounts(ctx context.Context, ownerID string, limit, offset int) ([]models.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE owner_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (q *pgQueries) CountAccounts(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE owner_id = $1`, ownerID).Scan(&n)
	return n, err
}

func (q *pgQueries) ListAllAccounts(ctx context.Context, ownerID string) ([]models.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// UpsertProviderAccount only updates a row that already belongs to the same
// owner and provider, and only when a synced column actually changed, so
// replaying identical data leaves the row untouched.
func (q *pgQueries) UpsertProviderAccount(ctx context.Context, a *models.Account) (UpsertResult, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 ON CONFLICT (id) DO UPDATE SET
			external_item_id = EXCLUDED.external_item_id,
			name = EXCLUDED.name,
			currency = EXCLUDED.currency,
			balance = EXCLUDED.balance,
			mask = EXCLUDED.mask,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = EXCLUDED.updated_at
		 WHERE accounts.owner_id = EXCLUDED.owner_id
		   AND accounts.provider = EXCLUDED.provider
		   AND (accounts.external_item_id, accounts.name, accounts.currency, accounts.balance, accounts.mask, accounts.raw_payload)
		       IS DISTINCT FROM
		       (EXCLUDED.external_item_id, EXCLUDED.name, EXCLUDED.currency, EXCLUDED.balance, EXCLUDED.mask, EXCLUDED.raw_payload)`,
		a.ID, a.OwnerID, a.Provider, a.ExternalItemID, a.Name, a.Currency,
		a.Balance, a.Mask, a.RawPayload, a.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return q.upsertOutcome(ctx, res,
		`SELECT owner_id = $2 AND provider = $3 FROM accounts WHERE id = $1`, a.ID, a.OwnerID, a.Provider)
}

// upsertOutcome tells an unchanged row from one the guard refused to touch.
func (q *pgQueries) upsertOutcome(ctx context.Context, res sql.Result, ownedQuery string, args ...any) (UpsertResult, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return UpsertWritten, nil
	}

	var owned bool
	if err := q.db.QueryRowContext(ctx, ownedQuery, args...).Scan(&owned); err != nil {
		return 0, err
	}
	if owned {
		return UpsertUnchanged, nil
	}
	return UpsertSkipped, nil
}

const transactionColumns = `id, owner_id, account_id, description, category, currency, amount, date, is_recurring, raw_payload, created_at, updated_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t         models.Transaction
		accountID sql.NullString
	)
	err := row.Scan(&t.ID, &t.OwnerID, &accountID, &t.Description, &t.Category, &t.Currency,
		&t.Amount, &t.Date, &t.IsRecurring, &t.RawPayload, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.AccountID = accountID.String
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func nullableID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func (q *pgQueries) GetTransaction(ctx context.Context, ownerID, id string) (*models.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND owner_id = $2`, id, ownerID))
}

func (q *pgQueries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.OwnerID, nullableID(t.AccountID), t.Description, t.Category, t.Currency,
		t.Amount, t.Date, t.IsRecurring, t.RawPayload, t.CreatedAt, t.UpdatedAt)
	return insertErr(err)
}

func (q *pgQueries) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	return affected(q.db.ExecContext(ctx,
		`UPDATE transactions SET
			account_id = $1, description = $2, category = $3, currency = $4,
			amount = $5, date = $6, is_recurring = $7, updated_at = $8
		 WHERE id = $9 AND owner_id = $10`,
		nullableID(t.AccountID), t.Description, t.Category, t.Currency,
		t.Amount, t.Date, t.IsRecurring, t.UpdatedAt, t.ID, t.OwnerID))
}

func (q *pgQueries) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	return affected(q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND owner_id = $2`, id, ownerID))
}

func transactionWhere(ownerID string, f models.TransactionFilter) (string, []any) {
	where := `WHERE owner_id = $1`
	args := []any{ownerID}
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		where += fmt.Sprintf(` AND account_id = $%d`, len(args))
	}
	return where, args
}

func (q *pgQueries) ListTransactions(ctx context.Context, ownerID string, f models.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	where, args := transactionWhere(ownerID, f)
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM transactions %s
		 ORDER BY date DESC, created_at DESC, id ASC
		 LIMIT $%d OFFSET $%d`, transactionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *pgQueries) CountTransactions(ctx context.Context, ownerID string, f models.TransactionFilter) (int, error) {
	where, args := transactionWhere(ownerID, f)

	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions `+where, args...).Scan(&n)
	return n, err
}

func (q *pgQueries) RecentTransactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error) {
	return q.ListTransactions(ctx, ownerID, models.TransactionFilter{}, limit, 0)
}

func (q *pgQueries) UpsertProviderTransaction(ctx context.Context, t *models.Transaction) (UpsertResult, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $10, $10)
		 ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			currency = EXCLUDED.currency,
			amount = EXCLUDED.amount,
			date = EXCLUDED.date,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = EXCLUDED.updated_at
		 WHERE transactions.owner_id = EXCLUDED.owner_id
		   AND (transactions.description, transactions.category, transactions.currency,
		        transactions.amount, transactions.date, transactions.raw_payload)
		       IS DISTINCT FROM
		       (EXCLUDED.description, EXCLUDED.category, EXCLUDED.currency,
		        EXCLUDED.amount, EXCLUDED.date, EXCLUDED.raw_payload)`,
		t.ID, t.OwnerID, nullableID(t.AccountID), t.Description, t.Category, t.Currency,
		t.Amount, t.Date, t.RawPayload, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return q.upsertOutcome(ctx, res,
		`SELECT owner_id = $2 FROM transactions WHERE id = $1`, t.ID, t.OwnerID)
}

func (q *pgQueries) UpsertItem(ctx context.Context, item *models.Item) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO provider_items (id, owner_id, provider, last_synced_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at
		 WHERE provider_items.owner_id = EXCLUDED.owner_id`,
		item.ID, item.OwnerID, item.Provider, item.LastSyncedAt, item.CreatedAt)
	if err := affected(res, err); errors.Is(err, ErrNotFound) {
		return ErrForeignOwner
	} else if err != nil {
		return err
	}
	return nil
}

func (q *pgQueries) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := q.db.QueryRowContext(ctx,
		`SELECT id, owner_id, provider, last_synced_at, created_at FROM provider_items WHERE id = $1`, id).
		Scan(&item.ID, &item.OwnerID, &item.Provider, &item.LastSyncedAt, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (q *pgQueries) Loans() Records[models.Loan] {
	return &pgRecords[models.Loan]{db: q.db, def: loanDef}
}

func (q *pgQueries) Subscriptions() Records[models.Subscription] {
	return &pgRecords[models.Subscription]{db: q.db, def: subscriptionDef}
}

func (q *pgQueries) Budgets() Records[models.Budget] {
	return &pgRecords[models.Budget]{db: q.db, def: budgetDef}
}

func (q *pgQueries) Goals() Records[models.Goal] {
	return &pgRecords[models.Goal]{db: q.db, def: goalDef}
}

// pgRecords builds its statements from a recordDef.
type pgRecords[T any] struct {
	db  DBTX
	def recordDef[T]
}

func (r *pgRecords[T]) Key(rec *T) RecordKey { return r.def.key(rec) }

func (r *pgRecords[T]) selectList() string {
	return "id, owner_id, " + strings.Join(r.def.columns, ", ") + ", created_at, updated_at"
}

func (r *pgRecords[T]) scan(row rowScanner) (*T, error) {
	rec := new(T)
	k := r.def.key(rec)

	dest := append([]any{k.ID, k.OwnerID}, r.def.fields(rec)...)
	dest = append(dest, k.CreatedAt, k.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *pgRecords[T]) Get(ctx context.Context, ownerID, id string) (*T, error) {
	return r.scan(r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 AND owner_id = $2`, r.selectList(), r.def.table), id, ownerID))
}

func (r *pgRecords[T]) Insert(ctx context.Context, rec *T) error {
	k := r.def.key(rec)
	args := append([]any{*k.ID, *k.OwnerID}, values(r.def.fields(rec))...)
	args = append(args, *k.CreatedAt, *k.UpdatedAt)

	placeholders := make([]string, len(args))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.def.table, r.selectList(), strings.Join(placeholders, ", ")), args...)
	return insertErr(err)
}

func (r *pgRecords[T]) Update(ctx context.Context, rec *T) error {
	k := r.def.key(rec)
	args := values(r.def.fields(rec))

	sets := make([]string, 0, len(r.def.columns)+1)
	for i, col := range r.def.columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	args = append(args, *k.UpdatedAt)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, *k.ID, *k.OwnerID)

	return affected(r.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND owner_id = $%d`,
		r.def.table, strings.Join(sets, ", "), len(args)-1, len(args)), args...))
}

func (r *pgRecords[T]) Delete(ctx context.Context, ownerID, id string) error {
	return affected(r.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND owner_id = $2`, r.def.table), id, ownerID))
}

func (r *pgRecords[T]) List(ctx context.Context, ownerID string, limit, offset int) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`,
		r.selectList(), r.def.table), ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *pgRecords[T]) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE owner_id = $1`, r.def.table), ownerID).Scan(&n)
	return n, err
}

// values dereferences field pointers into query arguments.
func values(ptrs []any) []any {
	out := make([]any, len(ptrs))
	for i, p := range ptrs {
		out[i] = reflect.ValueOf(p).Elem().Interface()
	}
	return out
}

var _ Store = (*Postgres)(nil)
