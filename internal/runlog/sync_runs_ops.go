package runlog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-sync/internal/logger"
)

const syncRunsTable = "sync_runs"

// BigQueryRecorder keeps run history in <project>.<dataset>.sync_runs.
type BigQueryRecorder struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryRecorder opens a BigQuery client for projectID.
func NewBigQueryRecorder(ctx context.Context, projectID, datasetID string) (*BigQueryRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRecorder: bigquery client: %w", err)
	}
	return &BigQueryRecorder{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close releases the BigQuery client.
func (r *BigQueryRecorder) Close() error {
	return r.client.Close()
}

func (r *BigQueryRecorder) table() string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, syncRunsTable)
}

// createTableDDL is run by EnsureTable; the columns mirror SyncRunRow.
const createTableDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		run_id                STRING NOT NULL,
		source                STRING NOT NULL,
		started_ts            TIMESTAMP NOT NULL,
		finished_ts           TIMESTAMP,
		status                STRING,
		error_message         STRING,
		trace_path            STRING,
		accounts_fetched      INT64,
		transactions_imported INT64
	)
	PARTITION BY DATE(started_ts)
`

// EnsureTable creates the sync_runs table if it does not exist yet.
func (r *BigQueryRecorder) EnsureTable(ctx context.Context) error {
	if err := runJob(ctx, r.client.Query(fmt.Sprintf(createTableDDL, r.table()))); err != nil {
		return fmt.Errorf("EnsureTable: %w", err)
	}
	return nil
}

// Start inserts a RUNNING row and returns the generated run id.
func (r *BigQueryRecorder) Start(ctx context.Context, source string, startedAt time.Time) (string, error) {
	runID := uuid.NewString()

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@source,
			@started_ts,
			@status
		)
	`, r.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "source", Value: source},
		{Name: "started_ts", Value: startedAt},
		{Name: "status", Value: StatusRunning},
	}

	if err := runJob(ctx, q); err != nil {
		return "", fmt.Errorf("Start: %w", err)
	}
	return runID, nil
}

// Finish sets status, finished_ts and the outcome columns.
func (r *BigQueryRecorder) Finish(ctx context.Context, runID string, outcome Outcome) error {
	status := StatusSuccess
	if outcome.Err != nil {
		status = StatusFailed
	}

	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message,
		    trace_path = @trace_path,
		    accounts_fetched = @accounts_fetched,
		    transactions_imported = @transactions_imported
		WHERE run_id = @run_id
	`, r.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errorMessage(outcome.Err)},
		{Name: "trace_path", Value: outcome.TracePath},
		{Name: "accounts_fetched", Value: outcome.AccountsFetched},
		{Name: "transactions_imported", Value: outcome.TransactionsImported},
		{Name: "run_id", Value: runID},
	}

	if err := runJob(ctx, q); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("Finish: updating sync run")
		return fmt.Errorf("Finish: %w", err)
	}
	return nil
}

// ListRecent returns the newest runs first.
func (r *BigQueryRecorder) ListRecent(ctx context.Context, limit int) ([]*SyncRunRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			source,
			started_ts,
			finished_ts,
			status,
			error_message,
			trace_path,
			accounts_fetched,
			transactions_imported
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.table()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: reading query: %w", err)
	}

	var runs []*SyncRunRow
	for {
		var row SyncRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecent: iterating rows: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

func runJob(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
