package runlog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	ctx := context.Background()

	id, err := r.Start(ctx, "bmo", time.Now())
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	assert.NoError(t, r.Finish(ctx, id, Outcome{Err: errors.New("boom")}))

	runs, err := r.ListRecent(ctx, 10)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "", errorMessage(nil))
	assert.Equal(t, "boom", errorMessage(errors.New("boom")))

	long := errors.New(strings.Repeat("x", maxErrorLen+50))
	assert.Len(t, errorMessage(long), maxErrorLen)
}

func TestErrorMessage_KeepsRunesWhole(t *testing.T) {
	// One ASCII byte shifts every two-byte rune so maxErrorLen falls inside one.
	msg := errorMessage(errors.New("x" + strings.Repeat("é", maxErrorLen)))

	assert.True(t, utf8.ValidString(msg))
	assert.Len(t, msg, maxErrorLen-1)
}

// A RUNNING row only has run_id, source, started_ts and status set, so every
// other column must decode from NULL.
func TestSyncRunRow_NullableColumns(t *testing.T) {
	schema, err := bigquery.InferSchema(SyncRunRow{})
	require.NoError(t, err)

	required := map[string]bool{}
	for _, f := range schema {
		required[f.Name] = f.Required
	}
	assert.Equal(t, map[string]bool{
		"run_id":                true,
		"source":                true,
		"started_ts":            true,
		"finished_ts":           false,
		"status":                false,
		"error_message":         false,
		"trace_path":            false,
		"accounts_fetched":      false,
		"transactions_imported": false,
	}, required)

	for name, req := range required {
		notNull := regexp.MustCompile(`(?m)^\s*` + name + `\s+\w+ NOT NULL`).MatchString(createTableDDL)
		assert.Equal(t, req, notNull, name)
	}
}

func TestBigQueryRecorder_Table(t *testing.T) {
	r := &BigQueryRecorder{projectID: "proj", datasetID: "banksync"}
	assert.Equal(t, "`proj.banksync.sync_runs`", r.table())
}

func TestCreateTableDDL_MatchesRow(t *testing.T) {
	for _, col := range []string{
		"run_id", "source", "started_ts", "finished_ts", "status",
		"error_message", "trace_path", "accounts_fetched", "transactions_imported",
	} {
		assert.Contains(t, createTableDDL, col)
	}
}
