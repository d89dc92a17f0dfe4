package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/bank-sync/internal/artifact"
	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/normalize"
	"github.com/dvloznov/bank-sync/internal/otp"
)

// Runner executes adapters. It owns the session for the whole run and
// always releases it, keeping a trace when the run fails.
type Runner struct {
	opener    browser.Opener
	channels  otp.Channels
	store     artifact.Store
	namespace uuid.UUID
	now       func() time.Time
}

func NewRunner(opener browser.Opener, channels otp.Channels, store artifact.Store, namespace uuid.UUID) *Runner {
	return &Runner{
		opener:    opener,
		channels:  channels,
		store:     store,
		namespace: namespace,
		now:       time.Now,
	}
}

// Run performs one synchronization. Failures never escape as errors or
// panics: they end in StateErrorTrace with Result.Err set and no accounts.
func (r *Runner) Run(ctx context.Context, a Adapter) (res *Result) {
	ctx = logger.WithSource(ctx, a.Source())
	log := logger.FromContext(ctx)

	res = &Result{Source: a.Source(), StartedAt: r.now()}
	res.enter(StateInit)

	sess, err := r.opener.Open(ctx, a.Stealth())
	if err != nil {
		log.Error().Err(err).Msg("could not open browser session")
		res.fail(fmt.Errorf("Run: open session: %w", err))
		return res
	}

	run := &Run{
		Session:    sess,
		Normalizer: normalize.New(r.namespace, res.StartedAt),
		StartedAt:  res.StartedAt,
	}

	defer func() {
		if p := recover(); p != nil {
			res.fail(fmt.Errorf("Run: panic in state %s: %v", res.State, p))
		}
		r.release(ctx, sess, res)
	}()

	accounts, err := r.drive(ctx, a, run, res)
	if err != nil {
		log.Error().Err(err).Str("state", string(res.State)).Msg("run failed")
		res.fail(err)
		return res
	}

	res.Accounts = accounts
	log.Info().
		Int("accounts", len(accounts)).
		Int("transactions", domain.TransactionCount(accounts)).
		Msg("run finished")
	return res
}

func (r *Runner) drive(ctx context.Context, a Adapter, run *Run, res *Result) ([]domain.Account, error) {
	log := logger.FromContext(ctx)

	var (
		challenge *Challenge
		accounts  []domain.Account
	)

	next := StateAuthenticating
	for {
		res.enter(next)
		log.Debug().Str("state", string(next)).Msg("entering state")

		switch next {
		case StateAuthenticating:
			c, err := a.Authenticate(ctx, run)
			if err != nil {
				return nil, fmt.Errorf("authenticate: %w", err)
			}
			challenge = c
			if challenge != nil {
				next = StateSecondFactorPending
			} else {
				next = StateAuthenticated
			}

		case StateSecondFactorPending:
			log.Info().Str("channel", string(challenge.Kind)).Msg("second factor required")
			channel, err := r.channels.Get(challenge.Kind)
			if err != nil {
				return nil, err
			}
			code, err := channel.FetchCode(ctx, run.StartedAt)
			if err != nil {
				return nil, fmt.Errorf("second factor: %w", err)
			}
			if err := a.SubmitCode(ctx, run, code); err != nil {
				return nil, fmt.Errorf("submit code: %w", err)
			}
			next = StateFetching

		case StateAuthenticated:
			next = StateFetching

		case StateFetching:
			fetched, err := a.FetchAccounts(ctx, run)
			if err != nil {
				return nil, fmt.Errorf("fetch accounts: %w", err)
			}
			accounts = fetched
			next = StateDone

		case StateDone:
			return accounts, nil

		default:
			return nil, fmt.Errorf("unknown state %q", next)
		}
	}
}

// release closes the session. Cleanup runs even if ctx was cancelled.
func (r *Runner) release(ctx context.Context, sess browser.Session, res *Result) {
	log := logger.FromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	if res.Err == nil {
		if err := sess.Close(ctx, ""); err != nil {
			log.Warn().Err(err).Msg("closing browser session")
		}
		return
	}

	path, err := r.store.Prepare(res.StartedAt, res.Source)
	if err != nil {
		log.Error().Err(err).Msg("could not prepare trace path")
		if err := sess.Close(ctx, ""); err != nil {
			log.Warn().Err(err).Msg("closing browser session")
		}
		return
	}

	if err := sess.Close(ctx, path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("closing browser session with trace")
		return
	}
	res.TracePath = path
	log.Info().Str("path", path).Msg("trace saved")

	if err := r.store.Persist(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not persist trace")
	}
}
