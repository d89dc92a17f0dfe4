// Package bmo syncs Bank of Montreal chequing, savings and credit card
// accounts by driving the online banking UI.
package bmo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/normalize"
	"github.com/dvloznov/bank-sync/internal/otp"
)

const (
	Source         = "bmo"
	DefaultBaseURL = "https://www1.bmo.com"
)

// accountRows matches one list item per bank account and credit card on
// the accounts page.
const accountRows = `//div[@id="accounts-container-BANK_ACCOUNTS" or @id="accounts-container-CREDIT_CARDS"]//app-accounts-list-group-item`

const otpConsent = "IMPORTANT: To proceed, you must confirm you will not provide this verification code to anyone."

type Credentials struct {
	CardNumber string
	Password   string
}

type Adapter struct {
	creds Credentials
	base  string
}

var _ bank.Adapter = (*Adapter)(nil)

// New returns an adapter for one run. An empty baseURL selects DefaultBaseURL.
func New(creds Credentials, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{creds: creds, base: baseURL}
}

func (a *Adapter) Source() string { return Source }
func (a *Adapter) Stealth() bool  { return true }

func (a *Adapter) loginURL() string    { return a.base + "/banking/digital/login" }
func (a *Adapter) accountsURL() string { return a.base + "/banking/digital/accounts" }
func (a *Adapter) verifyURL() string   { return a.base + "/banking/services/signin/verifyCredential" }
func (a *Adapter) bankDetailsURL() string {
	return a.base + "/banking/services/accountdetails/getBankAccountDetails"
}
func (a *Adapter) cardDetailsURL() string {
	return a.base + "/banking/services/accountdetails/getCCAccountDetails"
}

// Authenticate signs in and reads the verifyCredential response to learn
// whether BMO wants an emailed code. When it does, the code is requested
// before returning.
func (a *Adapter) Authenticate(ctx context.Context, run *bank.Run) (*bank.Challenge, error) {
	log := logger.FromContext(ctx)
	sess := run.Session

	log.Debug().Msg("navigating to login page")
	if err := sess.Navigate(ctx, a.loginURL()); err != nil {
		return nil, err
	}
	if err := sess.Type(ctx, browser.ByRole("textbox", "Card number"), a.creds.CardNumber); err != nil {
		return nil, err
	}
	if err := sess.Fill(ctx, browser.ByRole("textbox", "Password"), a.creds.Password); err != nil {
		return nil, err
	}

	verify := sess.Expect(browser.Exact(http.MethodPost, a.verifyURL()))
	if err := sess.Click(ctx, browser.ByRole("button", "Sign in")); err != nil {
		return nil, err
	}
	resp, err := verify.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: verifyCredential: %w", err)
	}
	if resp.Status >= http.StatusBadRequest {
		return nil, fmt.Errorf("Authenticate: verifyCredential status %d: %w", resp.Status, domain.ErrAuthentication)
	}

	out, err := run.Normalizer.Normalize(normalize.BMOVerifyCredential, resp.Body)
	if err != nil {
		return nil, err
	}
	if !out.SecondFactorRequired {
		return nil, nil
	}

	log.Debug().Msg("requesting emailed verification code")
	for _, target := range []browser.Target{
		browser.ByRole("button", "Next"),
		browser.ByRole("radio", "Email"),
		browser.ByRole("checkbox", otpConsent),
		browser.ByRole("button", "Send code"),
	} {
		if err := sess.Click(ctx, target); err != nil {
			return nil, err
		}
	}
	return &bank.Challenge{Kind: otp.Email}, nil
}

func (a *Adapter) SubmitCode(ctx context.Context, run *bank.Run, code string) error {
	sess := run.Session
	if err := sess.Fill(ctx, browser.ByRole("textbox", "Verification code"), code); err != nil {
		return err
	}
	if err := sess.Click(ctx, browser.ByRole("button", "Confirm")); err != nil {
		return err
	}
	return sess.Click(ctx, browser.ByRole("button", "Continue"))
}

// FetchAccounts opens each account from the accounts page in turn, captures
// the details response the page requests, and goes back to the list. The
// page only shows one account at a time so this is strictly sequential.
func (a *Adapter) FetchAccounts(ctx context.Context, run *bank.Run) ([]domain.Account, error) {
	log := logger.FromContext(ctx)
	sess := run.Session

	if err := a.waitForAccountsPage(ctx, sess); err != nil {
		return nil, err
	}
	rows := browser.BySelector(accountRows)
	n, err := sess.Count(ctx, rows)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("rows", n).Msg("accounts page loaded")

	accounts := make([]domain.Account, 0, n)
	for i := 0; i < n; i++ {
		details := sess.Expect(browser.Exact(http.MethodPost, a.bankDetailsURL(), a.cardDetailsURL()))
		if err := sess.Click(ctx, rows.Nth(i)); err != nil {
			return nil, err
		}
		resp, err := details.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("FetchAccounts: row %d: %w", i, err)
		}

		kind := normalize.BMOCreditCard
		if resp.URL == a.bankDetailsURL() {
			kind = normalize.BMOBankAccount
		}
		out, err := run.Normalizer.Normalize(kind, resp.Body)
		if err != nil {
			return nil, err
		}
		for _, acc := range out.Accounts {
			log.Debug().Str("account_id", acc.ID).Int("transactions", len(acc.Transactions)).Msg("fetched account")
			accounts = append(accounts, acc.Account)
		}

		if err := sess.Back(ctx); err != nil {
			return nil, err
		}
		if err := a.waitForAccountsPage(ctx, sess); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func (a *Adapter) waitForAccountsPage(ctx context.Context, sess browser.Session) error {
	_, err := sess.WaitForURL(ctx, func(url string) bool { return url == a.accountsURL() })
	return err
}
