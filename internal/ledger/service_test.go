package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	accounts      map[int64]Account
	entries       []JournalEntry
	closedThrough time.Time
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(accounts ...Account) *memoryRepo {
	repo := &memoryRepo{accounts: make(map[int64]Account)}
	for _, acc := range accounts {
		repo.accounts[acc.ID] = acc
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(r.accounts))
	for i := int64(1); i <= int64(len(r.accounts))+10; i++ {
		if acc, ok := r.accounts[i]; ok {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *memoryRepo) SumEntriesByAccount(ctx context.Context) (map[int64]Sums, error) {
	sums := make(map[int64]Sums)
	for _, e := range r.entries {
		d := sums[e.DebitAccountID]
		d.Debits += e.Amount
		sums[e.DebitAccountID] = d
		c := sums[e.CreditAccountID]
		c.Credits += e.Amount
		sums[e.CreditAccountID] = c
	}
	return sums, nil
}

func (tx *memoryTx) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	acc, ok := tx.repo.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (tx *memoryTx) UpdateAccountBalance(ctx context.Context, id int64, balance float64) error {
	acc := tx.repo.accounts[id]
	acc.Balance = balance
	tx.repo.accounts[id] = acc
	return nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry JournalEntry) error {
	tx.repo.entries = append(tx.repo.entries, entry)
	return nil
}

func (tx *memoryTx) GetClosedThrough(ctx context.Context) (time.Time, error) {
	return tx.repo.closedThrough, nil
}

func (tx *memoryTx) SetClosedThrough(ctx context.Context, through time.Time) error {
	tx.repo.closedThrough = through
	return nil
}

func chart() *memoryRepo {
	parent := int64(1)
	return newMemoryRepo(
		Account{ID: 1, Code: "1000", Name: "Assets", Type: AccountAsset},
		Account{ID: 2, Code: "1100", Name: "Cash", Type: AccountAsset, ParentID: &parent},
		Account{ID: 3, Code: "1200", Name: "Inventory", Type: AccountAsset, ParentID: &parent},
		Account{ID: 4, Code: "4000", Name: "Revenue", Type: AccountRevenue},
		Account{ID: 5, Code: "5000", Name: "COGS", Type: AccountExpense},
	)
}

func TestPostAdjustsOnlyTargetedAccounts(t *testing.T) {
	repo := chart()
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, EntryInput{Description: "sale", DebitAccountID: 2, CreditAccountID: 4, Amount: 100, ActorID: 7})
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", entry.ID.String())
	require.Equal(t, int64(7), entry.CreatedBy)
	require.InDelta(t, 100, repo.accounts[2].Balance, 0.001)
	require.InDelta(t, -100, repo.accounts[4].Balance, 0.001)
	// Parent rollup node untouched.
	require.InDelta(t, 0, repo.accounts[1].Balance, 0.001)
}

func TestTrialBalanceIdentity(t *testing.T) {
	repo := chart()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, EntryInput{Description: "a", DebitAccountID: 2, CreditAccountID: 4, Amount: 100})
	require.NoError(t, err)
	_, err = svc.Post(ctx, EntryInput{Description: "b", DebitAccountID: 4, CreditAccountID: 2, Amount: 50})
	require.NoError(t, err)

	tb, err := svc.TrialBalance(ctx)
	require.NoError(t, err)
	require.InDelta(t, tb.TotalDebits, tb.TotalCredits, 0.001)

	// Net balances match the worked example: A=50, B=-50.
	require.InDelta(t, 50, repo.accounts[2].Balance, 0.001)
	require.InDelta(t, -50, repo.accounts[4].Balance, 0.001)
}

func TestTrialBalanceSubtreeRollup(t *testing.T) {
	repo := chart()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, EntryInput{Description: "cash in", DebitAccountID: 2, CreditAccountID: 4, Amount: 80})
	require.NoError(t, err)
	_, err = svc.Post(ctx, EntryInput{Description: "stock buy", DebitAccountID: 3, CreditAccountID: 2, Amount: 30})
	require.NoError(t, err)

	tb, err := svc.TrialBalance(ctx)
	require.NoError(t, err)
	var assetsRollup float64
	for _, row := range tb.Rows {
		if row.Account.ID == 1 {
			assetsRollup = row.Rollup
		}
	}
	// Assets subtree = cash (80-30) + inventory (30).
	require.InDelta(t, 80, assetsRollup, 0.001)
}

func TestPostValidation(t *testing.T) {
	svc := NewService(chart(), nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, EntryInput{DebitAccountID: 2, CreditAccountID: 4, Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Post(ctx, EntryInput{DebitAccountID: 2, CreditAccountID: 2, Amount: 10})
	require.ErrorIs(t, err, ErrSameAccount)

	_, err = svc.Post(ctx, EntryInput{DebitAccountID: 99, CreditAccountID: 4, Amount: 10})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClosePeriodBlocksBackdatedPostings(t *testing.T) {
	repo := chart()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.ClosePeriod(ctx, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), "month end"))

	_, err := svc.Post(ctx, EntryInput{
		Description:    "late",
		DebitAccountID: 2, CreditAccountID: 4, Amount: 10,
		Date: time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrPeriodClosed)

	_, err = svc.Post(ctx, EntryInput{
		Description:    "current",
		DebitAccountID: 2, CreditAccountID: 4, Amount: 10,
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}
