package domain

import "errors"

var (
	// ErrAuthentication means the source rejected the credentials or the second factor.
	ErrAuthentication = errors.New("authentication failure")

	// ErrCodeNotFound means no message in the second-factor channel carried a code.
	ErrCodeNotFound = errors.New("second-factor code not found")

	// ErrSchemaMismatch means a source payload did not have the expected shape.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrChannel means the second-factor backend reported a hard error status.
	ErrChannel = errors.New("second-factor channel error")

	// ErrNoAccountsFetched means a run finished without producing any account.
	ErrNoAccountsFetched = errors.New("no accounts fetched")

	// ErrLedgerMatchMiss means a canonical account has no ledger account annotated with its id.
	ErrLedgerMatchMiss = errors.New("no matching ledger account")

	// ErrUnsupportedSource means the requested source has no adapter.
	ErrUnsupportedSource = errors.New("unsupported source")
)
