// Package manulife syncs Manulife Bank deposit accounts.
package manulife

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/normalize"
	"github.com/dvloznov/bank-sync/internal/otp"
)

const (
	Source             = "manulife-bank"
	DefaultBaseURL     = "https://online.manulifebank.ca"
	DefaultIdentityURL = "https://id.manulife.ca"
)

type Credentials struct {
	Username string
	Password string
}

type Config struct {
	BaseURL     string
	IdentityURL string
	HTTPClient  *http.Client
}

type Adapter struct {
	creds  Credentials
	cfg    Config
	listed browser.Waiter
}

var _ bank.Adapter = (*Adapter)(nil)

func New(creds Credentials, cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Adapter{creds: creds, cfg: cfg}
}

func (a *Adapter) Source() string { return Source }
func (a *Adapter) Stealth() bool  { return false }

func (a *Adapter) landingURL() string  { return a.cfg.BaseURL + "/init" }
func (a *Adapter) accountsURL() string { return a.cfg.BaseURL + "/api/v9/bank/ca/v2/accounts/" }

// Authenticate signs in and looks at where the identity provider sends the
// browser: straight to the landing page, or to a code prompt.
func (a *Adapter) Authenticate(ctx context.Context, run *bank.Run) (*bank.Challenge, error) {
	sess := run.Session
	log := logger.FromContext(ctx)

	log.Debug().Msg("navigating to login page")
	if err := sess.Navigate(ctx, a.cfg.BaseURL+"/accounts"); err != nil {
		return nil, err
	}
	if err := sess.Click(ctx, browser.ByRole("button", "Sign in")); err != nil {
		return nil, err
	}
	for _, field := range []struct{ name, value string }{
		{"Username", a.creds.Username},
		{"Password", a.creds.Password},
	} {
		target := browser.ByRole("textbox", field.name)
		if err := sess.Click(ctx, target); err != nil {
			return nil, err
		}
		if err := sess.Fill(ctx, target, field.value); err != nil {
			return nil, err
		}
	}

	// The landing page lists accounts as soon as it loads, with or
	// without a second factor in between.
	a.listed = sess.Expect(browser.Exact(http.MethodGet, a.accountsURL()))
	if err := sess.Click(ctx, browser.ByRole("button", "Sign In")); err != nil {
		return nil, err
	}

	landed, err := sess.WaitForURL(ctx, func(url string) bool {
		return strings.HasPrefix(url, a.cfg.IdentityURL+"/otp-on-demand") ||
			strings.HasPrefix(url, a.cfg.IdentityURL+"/mfa") ||
			url == a.landingURL()
	})
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %v: %w", err, domain.ErrAuthentication)
	}
	if landed == a.landingURL() {
		return nil, nil
	}

	log.Debug().Str("url", landed).Msg("requesting texted code")
	if err := sess.Click(ctx, browser.ByRole("button", "Text")); err != nil {
		return nil, err
	}
	return &bank.Challenge{Kind: otp.SMS}, nil
}

func (a *Adapter) SubmitCode(ctx context.Context, run *bank.Run, code string) error {
	sess := run.Session
	if err := sess.Fill(ctx, browser.ByRole("textbox", "Code"), code); err != nil {
		return err
	}
	return sess.Click(ctx, browser.ByRole("button", "Continue"))
}

// FetchAccounts reads the account list the landing page requested and
// replays that request's Cookie header to load each account's history.
func (a *Adapter) FetchAccounts(ctx context.Context, run *bank.Run) ([]domain.Account, error) {
	log := logger.FromContext(ctx)
	if a.listed == nil {
		return nil, errors.New("FetchAccounts: not signed in")
	}

	resp, err := a.listed.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: accounts: %w", err)
	}
	out, err := run.Normalizer.Normalize(normalize.ManulifeAccounts, resp.Body)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("accounts", len(out.Accounts)).Msg("fetched accounts")

	header := http.Header{}
	header.Set("Cookie", resp.Header("Cookie"))
	start := run.StartedAt.Add(-normalize.Lookback).Format("2006-01-02")
	end := run.StartedAt.Format("2006-01-02")

	return bank.FetchEach(ctx, out.Accounts, func(ctx context.Context, acc normalize.Listed) ([]domain.Transaction, error) {
		url := fmt.Sprintf("%s/api/v9/bank/ca/v2/accounts/history/%s/start/%s/end/%s", a.cfg.BaseURL, acc.SourceRef, start, end)
		body, err := bank.Get(ctx, a.cfg.HTTPClient, url, header)
		if err != nil {
			return nil, err
		}
		txns, err := run.Normalizer.Normalize(normalize.ManulifeTransactions, body)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("account_id", acc.ID).Int("transactions", len(txns.Transactions)).Msg("fetched transactions")
		return txns.Transactions, nil
	})
}
