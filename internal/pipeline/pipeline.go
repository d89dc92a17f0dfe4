// Package pipeline wires one source run end to end: run history, fetch,
// ledger import.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/runlog"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewSyncPipeline creates the standard four-step pipeline for one source.
func NewSyncPipeline(recorder runlog.Recorder, fetcher AccountFetcher, importer TransactionImporter) *Pipeline {
	return NewPipeline(
		&StartRunStep{Recorder: recorder},
		&FetchAccountsStep{Fetcher: fetcher, Recorder: recorder},
		&ImportStep{Importer: importer, Recorder: recorder},
		&MarkSuccessStep{Recorder: recorder},
	)
}

// Sync runs adapter through the standard pipeline and returns the final state.
// The state is returned even on failure so callers can report the trace path.
func Sync(ctx context.Context, recorder runlog.Recorder, fetcher AccountFetcher, importer TransactionImporter, adapter bank.Adapter) (*PipelineState, error) {
	state := &PipelineState{Adapter: adapter}

	err := NewSyncPipeline(recorder, fetcher, importer).Execute(ctx, state)
	return state, err
}
