package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/runlog"
)

// PipelineStep represents a single step in the sync pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// Step 1: StartRunStep records the run as RUNNING.
type StartRunStep struct {
	Recorder runlog.Recorder
	Now      func() time.Time
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	state.StartedAt = now()

	runID, err := s.Recorder.Start(ctx, state.Adapter.Source(), state.StartedAt)
	if err != nil {
		return fmt.Errorf("StartRunStep: %w", err)
	}
	state.RunID = runID
	return nil
}

// Step 2: FetchAccountsStep runs the adapter. An empty account set is a
// failure whether or not the adapter reported an error.
type FetchAccountsStep struct {
	Fetcher  AccountFetcher
	Recorder runlog.Recorder
}

func (s *FetchAccountsStep) Execute(ctx context.Context, state *PipelineState) error {
	res := s.Fetcher.Run(ctx, state.Adapter)
	state.Result = res

	if len(res.Accounts) > 0 {
		log := logger.FromContext(ctx)
		log.Info().
			Int("accounts", len(res.Accounts)).
			Int("transactions", state.TransactionCount()).
			Msg("fetched accounts")
		return nil
	}

	err := fmt.Errorf("FetchAccountsStep: %s: %w", state.Adapter.Source(), domain.ErrNoAccountsFetched)
	if res.Err != nil {
		err = fmt.Errorf("FetchAccountsStep: %s: %w: %w", state.Adapter.Source(), domain.ErrNoAccountsFetched, res.Err)
	}
	markFailed(ctx, s.Recorder, state, err)
	return err
}

// Step 3: ImportStep hands the accounts to the ledger importer.
type ImportStep struct {
	Importer TransactionImporter
	Recorder runlog.Recorder
}

func (s *ImportStep) Execute(ctx context.Context, state *PipelineState) error {
	summary, err := s.Importer.Import(ctx, state.Result.Accounts)
	if err != nil {
		err = fmt.Errorf("ImportStep: %w", err)
		markFailed(ctx, s.Recorder, state, err)
		return err
	}
	state.Summary = summary
	return nil
}

// Step 4: MarkSuccessStep records the run as SUCCESS. The ledger write has
// already happened, so a failure here is only logged.
type MarkSuccessStep struct {
	Recorder runlog.Recorder
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	outcome := runlog.Outcome{AccountsFetched: len(state.Result.Accounts)}
	if state.Summary != nil {
		outcome.TransactionsImported = state.Summary.Created
	}
	if err := s.Recorder.Finish(ctx, state.RunID, outcome); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("run_id", state.RunID).
			Msg("could not record successful run")
	}
	return nil
}

// markFailed records the failure. The run history is best effort, so an
// error here is only logged.
func markFailed(ctx context.Context, r runlog.Recorder, state *PipelineState, cause error) {
	outcome := runlog.Outcome{Err: cause}
	if state.Result != nil {
		outcome.AccountsFetched = len(state.Result.Accounts)
		outcome.TracePath = state.Result.TracePath
	}
	if err := r.Finish(ctx, state.RunID, outcome); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("run_id", state.RunID).
			Msg("could not record failed run")
	}
}
