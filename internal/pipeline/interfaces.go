package pipeline

import (
	"context"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ledger"
)

// AccountFetcher runs one adapter to completion. bank.Runner implements it.
type AccountFetcher interface {
	Run(ctx context.Context, a bank.Adapter) *bank.Result
}

// TransactionImporter pushes canonical accounts into the target ledger.
// ledger.Importer implements it.
type TransactionImporter interface {
	Import(ctx context.Context, accounts []domain.Account) (*ledger.Summary, error)
}
