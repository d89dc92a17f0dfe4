package tangerine

import (
	"context"
	"net/http"
	"net/http/httptest"
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

var now = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

const accountsBody = `{"accounts":[
  {"type":"CHEQUING","number":"3001","account_balance":812.4},
  {"type":"CREDIT_CARD","number":"3002","account_balance":120}
]}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "JSESSIONID=abc; XSRF=def", r.Header.Get("Cookie"))
		assert.Equal(t, "en_CA", r.Header.Get("Accept-Language"))
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("hideAuthorizedStatus"))
		assert.Equal(t, "2024-06-05", q.Get("periodFrom"))

		switch q.Get("accountIdentifiers") {
		case "3001":
			// Finish last to show results keep the listing order.
			time.Sleep(20 * time.Millisecond)
			_, _ = w.Write([]byte(`{"transactions":[
			  {"transaction_date":"2024-06-10T00:00:00","amount":-60.5,"description":"HYDRO  BILL","is_uncleared":false,"status":"POSTED"},
			  {"transaction_date":"2024-06-13T00:00:00","amount":2000,"description":"PAYROLL","is_uncleared":false,"status":"POSTED"}
			]}`))
		case "3002":
			_, _ = w.Write([]byte(`{"transactions":[
			  {"transaction_date":"2024-06-11T00:00:00","amount":-25,"description":"GAS","is_uncleared":false,"status":"POSTED"}
			]}`))
		default:
			http.Error(w, "unknown account", http.StatusNotFound)
		}
	}))
}

func signedIn(t *testing.T, a *Adapter, sess *browsertest.Session) *bank.Run {
	t.Helper()
	run := &bank.Run{Session: sess, Normalizer: normalize.New(uuid.NameSpaceOID, now), StartedAt: now}

	challenge, err := a.Authenticate(context.Background(), run)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, otp.SMS, challenge.Kind)
	require.NoError(t, a.SubmitCode(context.Background(), run, "482913"))
	return run
}

func TestAdapter_FetchAccounts(t *testing.T) {
	server := newServer(t)
	defer server.Close()

	sess := &browsertest.Session{
		Responses: []browser.Response{{URL: server.URL + "/accounts", Method: http.MethodGet, Status: http.StatusOK, Body: []byte(accountsBody)}},
		Jar:       []browser.Cookie{{Name: "JSESSIONID", Value: "abc"}, {Name: "XSRF", Value: "def"}},
	}
	a := New(Credentials{LoginID: "me", PIN: "0000"}, Config{LoginURL: "https://tangerine.test/login", APIBaseURL: server.URL, HTTPClient: server.Client()})
	run := signedIn(t, a, sess)

	assert.True(t, sess.Did("click #onetrust-accept-btn-handler"))
	assert.True(t, sess.Did(`fill role=textbox[name="Security Code"]`))

	accounts, err := a.FetchAccounts(context.Background(), run)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, normalize.DeriveAccountID(uuid.NameSpaceOID, "3001"), accounts[0].ID)
	assert.Equal(t, "812.4", accounts[0].Balance.String())
	require.Len(t, accounts[0].Transactions, 2)
	assert.Equal(t, "PAYROLL", accounts[0].Transactions[0].Description)
	assert.Equal(t, "HYDRO BILL", accounts[0].Transactions[1].Description)

	assert.Equal(t, "-120", accounts[1].Balance.String())
	require.Len(t, accounts[1].Transactions, 1)
	assert.Equal(t, "-25", accounts[1].Transactions[0].Amount.String())
}

func TestAdapter_FetchAccounts_SessionExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sess := &browsertest.Session{
		Responses: []browser.Response{{URL: server.URL + "/accounts", Method: http.MethodGet, Status: http.StatusOK, Body: []byte(accountsBody)}},
	}
	a := New(Credentials{}, Config{APIBaseURL: server.URL, HTTPClient: server.Client()})
	run := signedIn(t, a, sess)

	accounts, err := a.FetchAccounts(context.Background(), run)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Nil(t, accounts)
}

func TestAdapter_FetchAccountsBeforeLogin(t *testing.T) {
	a := New(Credentials{}, Config{})
	_, err := a.FetchAccounts(context.Background(), &bank.Run{Session: &browsertest.Session{}})
	assert.Error(t, err)
}

func TestAdapter_Source(t *testing.T) {
	a := New(Credentials{}, Config{})
	assert.Equal(t, "tangerine", a.Source())
	assert.True(t, a.Stealth())
}
