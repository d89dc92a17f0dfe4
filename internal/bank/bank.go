package bank

import (
	"context"
	"time"

	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/normalize"
	"github.com/dvloznov/bank-sync/internal/otp"
)

// State is a step of a synchronization run.
type State string

const (
	StateInit                State = "init"
	StateAuthenticating      State = "authenticating"
	StateSecondFactorPending State = "second_factor_pending"
	StateAuthenticated       State = "authenticated"
	StateFetching            State = "fetching"
	StateDone                State = "done"
	StateErrorTrace          State = "error_trace"
)

// Challenge is returned by Authenticate when the source wants a second
// factor before letting the session in. The adapter has already asked the
// source to send the code.
type Challenge struct {
	Kind otp.Kind
}

// Run is what an adapter gets to work with during one synchronization.
type Run struct {
	Session    browser.Session
	Normalizer *normalize.Normalizer
	StartedAt  time.Time
}

// Adapter drives one source. An adapter value is built per run from the
// source's credentials and may keep state between its calls.
type Adapter interface {
	// Source is the selector name, also used in trace file names.
	Source() string
	// Stealth reports whether the session must hide automation fingerprints.
	Stealth() bool
	// Authenticate submits credentials. A nil Challenge means the session
	// is signed in.
	Authenticate(ctx context.Context, run *Run) (*Challenge, error)
	// SubmitCode completes a second-factor challenge.
	SubmitCode(ctx context.Context, run *Run, code string) error
	// FetchAccounts lists accounts with their recent transactions.
	FetchAccounts(ctx context.Context, run *Run) ([]domain.Account, error)
}

// Result is the outcome of a run. Accounts is empty whenever Err is set.
type Result struct {
	Source      string
	StartedAt   time.Time
	State       State
	Transitions []State
	Accounts    []domain.Account
	Err         error
	TracePath   string
}

func (r *Result) enter(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

func (r *Result) fail(err error) {
	r.Err = err
	r.Accounts = nil
	r.enter(StateErrorTrace)
}
