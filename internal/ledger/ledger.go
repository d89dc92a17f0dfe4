package ledger

import (
	"context"
	"strconv"

	"cloud.google.com/go/civil"
)

// Milliunits is a ledger amount in thousandths of a currency unit.
type Milliunits int64

func (m Milliunits) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Account is an account in the target ledger. Note is free text the user
// annotates with the canonical account id to link the two.
type Account struct {
	ID      string
	Name    string
	Note    string
	Deleted bool
}

// ImportRecord is one transaction ready for the ledger's bulk create call.
type ImportRecord struct {
	AccountID string
	Date      civil.Date
	Amount    Milliunits
	PayeeName string
	Cleared   bool
	// ImportID lets the ledger drop records it has already imported.
	ImportID string
}

// CreateResult reports what the ledger did with a batch.
type CreateResult struct {
	TransactionIDs     []string
	DuplicateImportIDs []string
}

// Ledger is the target budgeting ledger, already scoped to one budget.
//
//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks -source=ledger.go Ledger
type Ledger interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	CreateTransactions(ctx context.Context, records []ImportRecord) (*CreateResult, error)
}
