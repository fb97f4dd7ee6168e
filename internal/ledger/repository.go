package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance float64) error
	InsertEntry(ctx context.Context, entry JournalEntry) error
	GetClosedThrough(ctx context.Context) (time.Time, error)
	SetClosedThrough(ctx context.Context, through time.Time) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListAccounts loads the whole chart of accounts.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, type, parent_id, balance
		FROM ledger_accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var (
			acc Account
			typ string
		)
		if err := rows.Scan(&acc.ID, &acc.Code, &acc.Name, &typ, &acc.ParentID, &acc.Balance); err != nil {
			return nil, err
		}
		acc.Type = AccountType(typ)
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// ListEntries lists journal entries most recent first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, description, debit_account_id, credit_account_id, amount, reference_type, reference_id, created_by, created_at
		FROM journal_entries ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Description, &e.DebitAccountID, &e.CreditAccountID, &e.Amount, &e.ReferenceType, &e.ReferenceID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEntriesByAccount aggregates full journal history per account.
func (r *Repository) SumEntriesByAccount(ctx context.Context) (map[int64]Sums, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_id, SUM(debits), SUM(credits) FROM (
			SELECT debit_account_id AS account_id, amount AS debits, 0 AS credits FROM journal_entries
			UNION ALL
			SELECT credit_account_id AS account_id, 0 AS debits, amount AS credits FROM journal_entries
		) t GROUP BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[int64]Sums)
	for rows.Next() {
		var (
			id int64
			s  Sums
		)
		if err := rows.Scan(&id, &s.Debits, &s.Credits); err != nil {
			return nil, err
		}
		sums[id] = s
	}
	return sums, rows.Err()
}

func (r *txRepo) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	var (
		acc Account
		typ string
	)
	err := r.tx.QueryRow(ctx, `
		SELECT id, code, name, type, parent_id, balance
		FROM ledger_accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&acc.ID, &acc.Code, &acc.Name, &typ, &acc.ParentID, &acc.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	acc.Type = AccountType(typ)
	return acc, err
}

func (r *txRepo) UpdateAccountBalance(ctx context.Context, id int64, balance float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE ledger_accounts SET balance = $2 WHERE id = $1`, id, balance)
	return err
}

func (r *txRepo) InsertEntry(ctx context.Context, entry JournalEntry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO journal_entries (id, date, description, debit_account_id, credit_account_id, amount, reference_type, reference_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.Date, entry.Description, entry.DebitAccountID, entry.CreditAccountID,
		entry.Amount, entry.ReferenceType, entry.ReferenceID, entry.CreatedBy, entry.CreatedAt)
	return err
}

func (r *txRepo) GetClosedThrough(ctx context.Context) (time.Time, error) {
	var through *time.Time
	err := r.tx.QueryRow(ctx, `SELECT closed_through FROM ledger_close LIMIT 1`).Scan(&through)
	if errors.Is(err, pgx.ErrNoRows) || through == nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return *through, nil
}

func (r *txRepo) SetClosedThrough(ctx context.Context, through time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE ledger_close SET closed_through = $1`, through)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, err = r.tx.Exec(ctx, `INSERT INTO ledger_close (closed_through) VALUES ($1)`, through)
	}
	return err
}
