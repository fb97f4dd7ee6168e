package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates chart-of-accounts classifications.
type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountEquity    AccountType = "EQUITY"
	AccountRevenue   AccountType = "REVENUE"
	AccountExpense   AccountType = "EXPENSE"
)

// Account is a node in the hierarchical chart of accounts. Balance reflects
// only entries that explicitly targeted this node; subtree rollups are
// computed on read, never stored.
type Account struct {
	ID       int64
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
	Balance  float64
}

// JournalEntry is an immutable double-entry record. By convention the debit
// account's balance increases and the credit account's decreases by Amount.
type JournalEntry struct {
	ID              uuid.UUID
	Date            time.Time
	Description     string
	DebitAccountID  int64
	CreditAccountID int64
	Amount          float64
	ReferenceType   string
	ReferenceID     string
	CreatedBy       int64
	CreatedAt       time.Time
}

// EntryInput describes a posting request.
type EntryInput struct {
	Date            time.Time
	Description     string
	DebitAccountID  int64
	CreditAccountID int64
	Amount          float64
	ReferenceType   string
	ReferenceID     string
	ActorID         int64
}

// TrialBalanceRow reports one account with its own balance and the rollup of
// its subtree.
type TrialBalanceRow struct {
	Account Account
	Debits  float64
	Credits float64
	Rollup  float64
}

// TrialBalance is the reconciliation view over the whole tree.
type TrialBalance struct {
	Rows         []TrialBalanceRow
	TotalDebits  float64
	TotalCredits float64
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInvalidAmount indicates a non-positive posting amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrSameAccount indicates debit and credit referencing one account.
	ErrSameAccount = errors.New("ledger: debit and credit accounts must differ")
	// ErrPeriodClosed indicates a posting dated inside a closed period.
	ErrPeriodClosed = errors.New("ledger: period closed for posting")
)
