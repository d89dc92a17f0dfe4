package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
)

// PollConfig controls the retry loop around an Inbox.
type PollConfig struct {
	// Delay is the pause between two attempts.
	Delay time.Duration
	// AttemptTimeout bounds a single lookup.
	AttemptTimeout time.Duration
	// MaxWait bounds the whole loop. Zero means poll until the context ends.
	MaxWait time.Duration
}

// DefaultPollConfig polls every second with a one minute attempt timeout and
// no overall bound.
func DefaultPollConfig() PollConfig {
	return PollConfig{Delay: time.Second, AttemptTimeout: time.Minute}
}

// Poller turns an Inbox into a Channel by retrying lookup and extraction until
// a code shows up. "Nothing yet", "no code in the message" and backend errors
// are all retried; only a found code, MaxWait or context cancellation end it.
type Poller struct {
	kind  Kind
	inbox Inbox
	cfg   PollConfig
}

func NewPoller(kind Kind, inbox Inbox, cfg PollConfig) *Poller {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultPollConfig().Delay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultPollConfig().AttemptTimeout
	}
	return &Poller{kind: kind, inbox: inbox, cfg: cfg}
}

func (p *Poller) FetchCode(ctx context.Context, after time.Time) (string, error) {
	log := logger.FromContext(ctx).With().Str("channel", string(p.kind)).Logger()

	if p.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.MaxWait)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		code, err := p.attempt(ctx, after)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("second-factor code received")
			return code, nil
		}

		switch {
		case ctx.Err() != nil:
			return "", fmt.Errorf("FetchCode: gave up after %d attempts: %w", attempt, ctx.Err())
		case errors.Is(err, ErrNoMessage):
			log.Debug().Int("attempt", attempt).Msg("no message yet")
		case errors.Is(err, domain.ErrCodeNotFound):
			log.Debug().Int("attempt", attempt).Msg("latest message has no code")
		case errors.Is(err, domain.ErrChannel):
			log.Warn().Err(err).Int("attempt", attempt).Msg("channel reported an error")
		default:
			log.Warn().Err(err).Int("attempt", attempt).Msg("lookup failed")
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("FetchCode: gave up after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(p.cfg.Delay):
		}
	}
}

func (p *Poller) attempt(ctx context.Context, after time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	text, err := p.inbox.Latest(ctx, after)
	if err != nil {
		return "", err
	}
	return ExtractCode(text)
}
