package runlog

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// SyncRunRow is one row of the sync_runs table.
type SyncRunRow struct {
	RunID  string `bigquery:"run_id"` // REQUIRED
	Source string `bigquery:"source"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       bigquery.NullString `bigquery:"status"`        // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
	TracePath    bigquery.NullString `bigquery:"trace_path"`    // NULLABLE

	AccountsFetched      bigquery.NullInt64 `bigquery:"accounts_fetched"`      // NULLABLE
	TransactionsImported bigquery.NullInt64 `bigquery:"transactions_imported"` // NULLABLE
}

// Outcome is what a finished run reports.
type Outcome struct {
	AccountsFetched      int
	TransactionsImported int
	Err                  error
	TracePath            string
}
