// Package tangerine syncs Tangerine accounts. Login goes through the browser;
// transactions are then read straight from the PFM REST API with the
// session's cookies.
package tangerine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/normalize"
	"github.com/dvloznov/bank-sync/internal/otp"
)

const (
	Source            = "tangerine"
	DefaultLoginURL   = "https://www.tangerine.ca/app/#/login/login-id?locale=en_CA"
	DefaultAPIBaseURL = "https://secure.tangerine.ca/web/rest/pfm/v1"
)

type Credentials struct {
	LoginID string
	PIN     string
}

type Config struct {
	LoginURL   string
	APIBaseURL string
	HTTPClient *http.Client
}

type Adapter struct {
	creds  Credentials
	cfg    Config
	listed browser.Waiter
}

var _ bank.Adapter = (*Adapter)(nil)

func New(creds Credentials, cfg Config) *Adapter {
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Adapter{creds: creds, cfg: cfg}
}

func (a *Adapter) Source() string { return Source }
func (a *Adapter) Stealth() bool  { return true }

// Authenticate enters the login ID and PIN. Tangerine always texts a
// security code afterwards.
func (a *Adapter) Authenticate(ctx context.Context, run *bank.Run) (*bank.Challenge, error) {
	sess := run.Session
	log := logger.FromContext(ctx)

	log.Debug().Msg("navigating to login page")
	if err := sess.Navigate(ctx, a.cfg.LoginURL); err != nil {
		return nil, err
	}
	if err := sess.Click(ctx, browser.BySelector("#onetrust-accept-btn-handler")); err != nil {
		return nil, err
	}
	if err := sess.Fill(ctx, browser.ByRole("textbox", "Login ID"), a.creds.LoginID); err != nil {
		return nil, err
	}
	if err := sess.Click(ctx, browser.ByRole("button", "Next")); err != nil {
		return nil, err
	}
	if err := sess.Fill(ctx, browser.ByRole("textbox", "PIN"), a.creds.PIN); err != nil {
		return nil, err
	}
	if err := sess.Click(ctx, browser.ByRole("button", "Log In")); err != nil {
		return nil, err
	}
	return &bank.Challenge{Kind: otp.SMS}, nil
}

// SubmitCode enters the security code. The dashboard requests the account
// list right after, so the listener is registered first.
func (a *Adapter) SubmitCode(ctx context.Context, run *bank.Run, code string) error {
	sess := run.Session
	a.listed = sess.Expect(browser.Exact(http.MethodGet, a.cfg.APIBaseURL+"/accounts"))
	if err := sess.Fill(ctx, browser.ByRole("textbox", "Security Code"), code); err != nil {
		return err
	}
	return sess.Click(ctx, browser.ByRole("button", "Log In"))
}

func (a *Adapter) FetchAccounts(ctx context.Context, run *bank.Run) ([]domain.Account, error) {
	log := logger.FromContext(ctx)
	if a.listed == nil {
		return nil, errors.New("FetchAccounts: not signed in")
	}

	resp, err := a.listed.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: accounts: %w", err)
	}
	out, err := run.Normalizer.Normalize(normalize.TangerineAccounts, resp.Body)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("accounts", len(out.Accounts)).Msg("fetched accounts")

	cookies, err := run.Session.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Accept-Language", "en_CA")
	header.Set("Cookie", browser.CookieHeader(cookies))
	periodFrom := run.StartedAt.Add(-normalize.Lookback).Format("2006-01-02")

	return bank.FetchEach(ctx, out.Accounts, func(ctx context.Context, acc normalize.Listed) ([]domain.Transaction, error) {
		q := url.Values{}
		q.Set("accountIdentifiers", acc.SourceRef)
		q.Set("hideAuthorizedStatus", "true")
		q.Set("periodFrom", periodFrom)

		body, err := bank.Get(ctx, a.cfg.HTTPClient, a.cfg.APIBaseURL+"/transactions?"+q.Encode(), header)
		if err != nil {
			return nil, err
		}
		txns, err := run.Normalizer.Normalize(normalize.TangerineTransactions, body)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("account_id", acc.ID).Int("transactions", len(txns.Transactions)).Msg("fetched transactions")
		return txns.Transactions, nil
	})
}
