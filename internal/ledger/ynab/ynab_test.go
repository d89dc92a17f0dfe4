package ynab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ledger"
)

func TestClient_ListAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/budgets/budget-1/accounts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"accounts":[
			{"id":"a1","name":"Chequing","note":"acct-1","deleted":false},
			{"id":"a2","name":"Old","note":null,"deleted":true}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "budget-1", srv.Client())
	accounts, err := c.ListAccounts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []ledger.Account{
		{ID: "a1", Name: "Chequing", Note: "acct-1"},
		{ID: "a2", Name: "Old", Deleted: true},
	}, accounts)
}

func TestClient_CreateTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/budgets/budget-1/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body saveTransactions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Transactions, 2)
		assert.Equal(t, transaction{
			AccountID: "a1",
			Date:      "2024-06-03",
			Amount:    -4500,
			PayeeName: "COFFEE",
			Cleared:   "cleared",
			ImportID:  "YNAB:-4500:2024-06-03:1",
		}, body.Transactions[0])
		assert.Equal(t, "uncleared", body.Transactions[1].Cleared)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"transaction_ids":["t1"],"duplicate_import_ids":["YNAB:100:2024-06-03:1"]}}`))
	}))
	defer srv.Close()

	date := civil.Date{Year: 2024, Month: 6, Day: 3}
	c := NewClient(srv.URL, "secret", "budget-1", srv.Client())
	result, err := c.CreateTransactions(context.Background(), []ledger.ImportRecord{
		{AccountID: "a1", Date: date, Amount: -4500, PayeeName: "COFFEE", Cleared: true, ImportID: "YNAB:-4500:2024-06-03:1"},
		{AccountID: "a1", Date: date, Amount: 100, PayeeName: "REFUND", ImportID: "YNAB:100:2024-06-03:1"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, result.TransactionIDs)
	assert.Equal(t, []string{"YNAB:100:2024-06-03:1"}, result.DuplicateImportIDs)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantAuth bool
		contains string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"id":"401","name":"unauthorized","detail":"Unauthorized"}}`,
			wantAuth: true,
			contains: "401 unauthorized",
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"error":{"id":"404.2","name":"resource_not_found","detail":"Budget not found"}}`,
			contains: "Budget not found",
		},
		{
			name:     "plain text",
			status:   http.StatusBadGateway,
			body:     "upstream down",
			contains: "status 502: upstream down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "secret", "budget-1", srv.Client()).ListAccounts(context.Background())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.wantAuth, errors.Is(err, domain.ErrAuthentication))
		})
	}
}
