// Package runlog records one row per sync run.
package runlog

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Recorder stores the history of sync runs.
type Recorder interface {
	// Start records a RUNNING row and returns its run id.
	Start(ctx context.Context, source string, startedAt time.Time) (string, error)
	// Finish marks the run SUCCESS, or FAILED when outcome.Err is set.
	Finish(ctx context.Context, runID string, outcome Outcome) error
	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*SyncRunRow, error)
}

// Nop is the Recorder used when no history store is configured.
type Nop struct{}

func (Nop) Start(context.Context, string, time.Time) (string, error) {
	return uuid.NewString(), nil
}

func (Nop) Finish(context.Context, string, Outcome) error {
	return nil
}

func (Nop) ListRecent(context.Context, int) ([]*SyncRunRow, error) {
	return nil, nil
}

const maxErrorLen = 2000

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorLen {
		return msg
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
