package bmo

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/browser/browsertest"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/normalize"
	"github.com/dvloznov/bank-sync/internal/otp"
)

const testBase = "https://bmo.test"

var now = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func verifyResponse(flag string) browser.Response {
	return browser.Response{
		URL:    testBase + "/banking/services/signin/verifyCredential",
		Method: http.MethodPost,
		Status: http.StatusOK,
		Body:   []byte(fmt.Sprintf(`{"VerifyCredentialRs":{"BodyRs":{"isOTPSignIn":%q}}}`, flag)),
	}
}

func bankDetails() browser.Response {
	return browser.Response{
		URL:    testBase + "/banking/services/accountdetails/getBankAccountDetails",
		Method: http.MethodPost,
		Status: http.StatusOK,
		Body: []byte(`{"GetBankAccountDetailsRs":{"BodyRs":{
		  "bankAccountDetails":{"accountNumber":"0001-1234","accountBalance":"950.00"},
		  "bankAccountTransactions":[{"txnDate":"2024-06-12","descr":"PAYROLL   DEPOSIT","txnAmount":"1500.00"}]
		}}}`),
	}
}

func cardDetails() browser.Response {
	return browser.Response{
		URL:    testBase + "/banking/services/accountdetails/getCCAccountDetails",
		Method: http.MethodPost,
		Status: http.StatusOK,
		Body: []byte(`{"GetCCAccountDetailsRs":{"BodyRs":{
		  "creditCardDetails":{"accountNumber":"5191-0000","currentBalance":"42.10"},
		  "lendingTransactions":[{"txnDate":"2024-06-13","postDate":"2024-06-14","descr":"BOOKSTORE","amount":"42.10","merchantName":"BOOKSTORE"}]
		}}}`),
	}
}

func newRun(sess browser.Session) *bank.Run {
	return &bank.Run{
		Session:    sess,
		Normalizer: normalize.New(uuid.NameSpaceOID, now),
		StartedAt:  now,
	}
}

func TestAdapter_AuthenticateWithoutSecondFactor(t *testing.T) {
	sess := &browsertest.Session{Responses: []browser.Response{verifyResponse("N")}}
	a := New(Credentials{CardNumber: "5555", Password: "pw"}, testBase)

	challenge, err := a.Authenticate(context.Background(), newRun(sess))
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.True(t, sess.Did("navigate "+testBase+"/banking/digital/login"))
	assert.True(t, sess.Did(`type role=textbox[name="Card number"]`))
	assert.True(t, sess.Did(`click role=button[name="Sign in"]`))
	assert.False(t, sess.Did(`click role=button[name="Send code"]`))
}

func TestAdapter_AuthenticateRequestsEmailCode(t *testing.T) {
	sess := &browsertest.Session{Responses: []browser.Response{verifyResponse("Y")}}
	a := New(Credentials{CardNumber: "5555", Password: "pw"}, testBase)
	run := newRun(sess)

	challenge, err := a.Authenticate(context.Background(), run)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, otp.Email, challenge.Kind)
	assert.True(t, sess.Did(`click role=radio[name="Email"]`))
	assert.True(t, sess.Did(`click role=button[name="Send code"]`))

	require.NoError(t, a.SubmitCode(context.Background(), run, "482913"))
	assert.True(t, sess.Did(`fill role=textbox[name="Verification code"]`))
	assert.True(t, sess.Did(`click role=button[name="Continue"]`))
}

func TestAdapter_AuthenticateRejected(t *testing.T) {
	resp := verifyResponse("N")
	resp.Status = http.StatusUnauthorized
	sess := &browsertest.Session{Responses: []browser.Response{resp}}

	_, err := New(Credentials{}, testBase).Authenticate(context.Background(), newRun(sess))
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAdapter_AuthenticateUnexpectedPayload(t *testing.T) {
	resp := verifyResponse("N")
	resp.Body = []byte(`{"error":"maintenance"}`)
	sess := &browsertest.Session{Responses: []browser.Response{resp}}

	_, err := New(Credentials{}, testBase).Authenticate(context.Background(), newRun(sess))
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestAdapter_FetchAccounts(t *testing.T) {
	accountsPage := testBase + "/banking/digital/accounts"
	sess := &browsertest.Session{
		Responses: []browser.Response{bankDetails(), cardDetails()},
		URLs:      []string{accountsPage, accountsPage, accountsPage},
		Counts:    map[string]int{accountRows: 2},
	}

	accounts, err := New(Credentials{}, testBase).FetchAccounts(context.Background(), newRun(sess))
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, normalize.DeriveAccountID(uuid.NameSpaceOID, "0001-1234"), accounts[0].ID)
	assert.Equal(t, "950", accounts[0].Balance.String())
	require.Len(t, accounts[0].Transactions, 1)
	assert.Equal(t, "PAYROLL DEPOSIT", accounts[0].Transactions[0].Description)

	assert.Equal(t, "-42.1", accounts[1].Balance.String())
	require.Len(t, accounts[1].Transactions, 1)
	assert.Equal(t, "-42.1", accounts[1].Transactions[0].Amount.String())

	assert.True(t, sess.Did("click "+browser.BySelector(accountRows).Nth(0).String()))
	assert.True(t, sess.Did("click "+browser.BySelector(accountRows).Nth(1).String()))
	assert.Empty(t, sess.URLs)
}

func TestAdapter_ThroughRunner(t *testing.T) {
	accountsPage := testBase + "/banking/digital/accounts"
	sess := &browsertest.Session{
		Responses: []browser.Response{verifyResponse("Y"), bankDetails()},
		URLs:      []string{accountsPage, accountsPage},
		Counts:    map[string]int{accountRows: 1},
	}
	var codes int
	channels := otp.Channels{otp.Email: channelFunc(func(ctx context.Context, after time.Time) (string, error) {
		codes++
		return "482913", nil
	})}
	runner := bank.NewRunner(&browsertest.Opener{Session: sess}, channels, nil, uuid.NameSpaceOID)

	res := runner.Run(context.Background(), New(Credentials{CardNumber: "5555", Password: "pw"}, testBase))

	require.NoError(t, res.Err)
	assert.Equal(t, 1, codes)
	assert.Equal(t, bank.StateDone, res.State)
	assert.Contains(t, res.Transitions, bank.StateSecondFactorPending)
	assert.Len(t, res.Accounts, 1)
	assert.True(t, sess.Closed)
}

type channelFunc func(ctx context.Context, after time.Time) (string, error)

func (f channelFunc) FetchCode(ctx context.Context, after time.Time) (string, error) {
	return f(ctx, after)
}
