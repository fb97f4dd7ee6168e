package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/savor-erp/savor-erp/internal/audit"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAccounts(ctx context.Context) ([]Account, error)
	ListEntries(ctx context.Context, limit int) ([]JournalEntry, error)
	SumEntriesByAccount(ctx context.Context) (map[int64]Sums, error)
}

// AuditPort records privileged ledger mutations.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// Sums aggregates debit and credit totals for an account.
type Sums struct {
	Debits  float64
	Credits float64
}

// Service coordinates journal postings and reconciliation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, auditor AuditPort) *Service {
	return &Service{repo: repo, audit: auditor, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and appends one journal entry, adjusting only the two
// targeted account balances.
func (s *Service) Post(ctx context.Context, input EntryInput) (JournalEntry, error) {
	if input.Amount <= 0 {
		return JournalEntry{}, ErrInvalidAmount
	}
	if input.DebitAccountID == 0 || input.CreditAccountID == 0 {
		return JournalEntry{}, fmt.Errorf("ledger: debit and credit accounts required")
	}
	if input.DebitAccountID == input.CreditAccountID {
		return JournalEntry{}, ErrSameAccount
	}
	date := input.Date
	if date.IsZero() {
		date = s.now().UTC()
	}
	entry := JournalEntry{
		ID:              uuid.New(),
		Date:            date,
		Description:     input.Description,
		DebitAccountID:  input.DebitAccountID,
		CreditAccountID: input.CreditAccountID,
		Amount:          input.Amount,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		CreatedBy:       input.ActorID,
		CreatedAt:       s.now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		closedThrough, err := tx.GetClosedThrough(ctx)
		if err != nil {
			return err
		}
		if !closedThrough.IsZero() && !entry.Date.After(closedThrough) {
			return fmt.Errorf("%w: entries through %s are locked", ErrPeriodClosed, closedThrough.Format("2006-01-02"))
		}
		debit, err := tx.GetAccountForUpdate(ctx, entry.DebitAccountID)
		if err != nil {
			return err
		}
		credit, err := tx.GetAccountForUpdate(ctx, entry.CreditAccountID)
		if err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, debit.ID, debit.Balance+entry.Amount); err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, credit.ID, credit.Balance-entry.Amount)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventLedgerPosting, audit.Payload{
			After: audit.Marshal(entry),
		}, map[string]any{
			"entry_id":  entry.ID.String(),
			"amount":    entry.Amount,
			"reference": entry.ReferenceID,
		})
	}
	return entry, nil
}

// Entries lists recent journal entries, most recent first.
func (s *Service) Entries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListEntries(ctx, limit)
}

// TrialBalance reconciles the chart of accounts against the journal. Each
// row carries the account's own debit/credit totals plus a subtree rollup
// computed here on read.
func (s *Service) TrialBalance(ctx context.Context) (TrialBalance, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	sums, err := s.repo.SumEntriesByAccount(ctx)
	if err != nil {
		return TrialBalance{}, err
	}

	children := make(map[int64][]int64)
	byID := make(map[int64]Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
		if acc.ParentID != nil {
			children[*acc.ParentID] = append(children[*acc.ParentID], acc.ID)
		}
	}

	var rollup func(id int64) float64
	rollup = func(id int64) float64 {
		total := byID[id].Balance
		for _, child := range children[id] {
			total += rollup(child)
		}
		return total
	}

	tb := TrialBalance{Rows: make([]TrialBalanceRow, 0, len(accounts))}
	for _, acc := range accounts {
		row := TrialBalanceRow{
			Account: acc,
			Debits:  sums[acc.ID].Debits,
			Credits: sums[acc.ID].Credits,
			Rollup:  rollup(acc.ID),
		}
		tb.TotalDebits += row.Debits
		tb.TotalCredits += row.Credits
		tb.Rows = append(tb.Rows, row)
	}
	return tb, nil
}

// ClosePeriod locks postings dated on or before the given day.
func (s *Service) ClosePeriod(ctx context.Context, through time.Time, reason string) error {
	if through.IsZero() {
		return fmt.Errorf("ledger: close date required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetClosedThrough(ctx)
		if err != nil {
			return err
		}
		if !current.IsZero() && !through.After(current) {
			return fmt.Errorf("ledger: already closed through %s", current.Format("2006-01-02"))
		}
		return tx.SetClosedThrough(ctx, through)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventPeriodClose, audit.Payload{
			After:  audit.Marshal(map[string]string{"closed_through": through.Format("2006-01-02")}),
			Reason: reason,
		}, nil)
	}
	return nil
}
