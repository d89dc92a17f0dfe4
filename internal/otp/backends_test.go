package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/domain"
)

func TestVoIPmsInbox_Latest(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	after := time.Date(2024, 6, 15, 16, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		body    string
		status  int
		want    string
		wantErr error
	}{
		{
			name:   "message",
			body:   `{"status":"success","sms":[{"id":"1","date":"2024-06-15 12:31:00","type":"1","did":"5550001111","contact":"88888","message":"Your code is 482913 today"}]}`,
			status: http.StatusOK,
			want:   "Your code is 482913 today",
		},
		{name: "nothing yet", body: `{"status":"no_sms"}`, status: http.StatusOK, wantErr: ErrNoMessage},
		{name: "hard error", body: `{"status":"invalid_credentials"}`, status: http.StatusOK, wantErr: domain.ErrChannel},
		{name: "http failure", body: `oops`, status: http.StatusBadGateway, wantErr: domain.ErrChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				assert.Equal(t, "user@example.com", q.Get("api_username"))
				assert.Equal(t, "secret", q.Get("api_password"))
				assert.Equal(t, "getSMS", q.Get("method"))
				assert.Equal(t, "5550001111", q.Get("did"))
				assert.Equal(t, "1", q.Get("limit"))
				assert.Equal(t, "1", q.Get("all_messages"))
				assert.Equal(t, "2024-06-15 12:30:00", q.Get("from"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			inbox := NewVoIPmsInbox(VoIPmsConfig{
				BaseURL:  server.URL,
				Username: "user@example.com",
				Password: "secret",
				DID:      "5550001111",
				Location: newYork,
			}, server.Client())

			got, err := inbox.Latest(context.Background(), after)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newJMAPServer(t *testing.T, getResponse string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/session":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"apiUrl":          server.URL + "/api",
				"primaryAccounts": map[string]string{jmapMailCapability: "acc-1"},
			})
		case "/api":
			var req jmapRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.MethodCalls, 2)
			assert.Equal(t, "Email/query", req.MethodCalls[0][0])
			query := req.MethodCalls[0][1].(map[string]interface{})
			assert.Equal(t, "acc-1", query["accountId"])
			assert.Equal(t, "2024-06-15T16:30:00Z", query["filter"].(map[string]interface{})["after"])
			assert.EqualValues(t, 1, query["limit"])
			assert.Equal(t, "Email/get", req.MethodCalls[1][0])
			_, _ = w.Write([]byte(getResponse))
		default:
			http.NotFound(w, r)
		}
	}))
	return server
}

func TestJMAPInbox_Latest(t *testing.T) {
	after := time.Date(2024, 6, 15, 16, 30, 0, 0, time.UTC)

	t.Run("preview", func(t *testing.T) {
		server := newJMAPServer(t, `{"methodResponses":[
		  ["Email/query",{"ids":["m1"]},"q"],
		  ["Email/get",{"list":[{"id":"m1","preview":"Your BMO verification code is 482913."}]},"g"]
		]}`)
		defer server.Close()

		inbox := NewJMAPInbox(server.URL+"/session", "token-1", server.Client())
		got, err := inbox.Latest(context.Background(), after)
		require.NoError(t, err)
		assert.Equal(t, "Your BMO verification code is 482913.", got)

		// Session is discovered once and reused.
		got, err = inbox.Latest(context.Background(), after)
		require.NoError(t, err)
		assert.NotEmpty(t, got)
	})

	t.Run("empty mailbox", func(t *testing.T) {
		server := newJMAPServer(t, `{"methodResponses":[
		  ["Email/query",{"ids":[]},"q"],
		  ["Email/get",{"list":[]},"g"]
		]}`)
		defer server.Close()

		_, err := NewJMAPInbox(server.URL+"/session", "token-1", server.Client()).Latest(context.Background(), after)
		assert.ErrorIs(t, err, ErrNoMessage)
	})

	t.Run("method error", func(t *testing.T) {
		server := newJMAPServer(t, `{"methodResponses":[["error",{"type":"unknownMethod"},"q"]]}`)
		defer server.Close()

		_, err := NewJMAPInbox(server.URL+"/session", "token-1", server.Client()).Latest(context.Background(), after)
		assert.ErrorIs(t, err, domain.ErrChannel)
	})
}

func TestPoller_WithJMAP(t *testing.T) {
	server := newJMAPServer(t, `{"methodResponses":[
	  ["Email/get",{"list":[{"id":"m1","preview":"your code is 482913 today"}]},"g"]
	]}`)
	defer server.Close()

	channel := NewPoller(Email, NewJMAPInbox(server.URL+"/session", "token-1", server.Client()), fastPoll())
	code, err := channel.FetchCode(context.Background(), time.Date(2024, 6, 15, 16, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
}
