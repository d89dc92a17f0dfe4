package pipeline

import (
	"time"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ledger"
)

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Adapter   bank.Adapter
	StartedAt time.Time
	RunID     string
	Result    *bank.Result
	Summary   *ledger.Summary
}

// TransactionCount is the number of transactions across fetched accounts.
func (s *PipelineState) TransactionCount() int {
	if s.Result == nil {
		return 0
	}
	return domain.TransactionCount(s.Result.Accounts)
}
