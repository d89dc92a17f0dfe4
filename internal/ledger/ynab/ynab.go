// Package ynab implements the ledger against the YNAB REST API.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ledger"
	"github.com/dvloznov/bank-sync/internal/logger"
)

const DefaultBaseURL = "https://api.ynab.com/v1"

// YNAB allows 200 requests per token per rolling hour.
var defaultLimit = rate.Every(time.Hour / 200)

// Client talks to one YNAB budget.
type Client struct {
	baseURL    string
	token      string
	budgetID   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient returns a client for budgetID. An empty baseURL uses
// DefaultBaseURL and a nil httpClient gets a 30 second timeout.
func NewClient(baseURL, token, budgetID string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		budgetID:   budgetID,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(defaultLimit, 10),
	}
}

var _ ledger.Ledger = (*Client)(nil)

type apiResponse[T any] struct {
	Data T `json:"data"`
}

type apiError struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}

type account struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Note    *string `json:"note"`
	Deleted bool    `json:"deleted"`
	Closed  bool    `json:"closed"`
}

type transaction struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"`
	Amount    int64  `json:"amount"`
	PayeeName string `json:"payee_name"`
	Cleared   string `json:"cleared"`
	ImportID  string `json:"import_id"`
}

type saveTransactions struct {
	Transactions []transaction `json:"transactions"`
}

type saveResult struct {
	TransactionIDs     []string `json:"transaction_ids"`
	DuplicateImportIDs []string `json:"duplicate_import_ids"`
}

// ListAccounts returns every account in the budget, deleted ones included.
func (c *Client) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	var resp apiResponse[struct {
		Accounts []account `json:"accounts"`
	}]
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &resp); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}

	accounts := make([]ledger.Account, 0, len(resp.Data.Accounts))
	for _, a := range resp.Data.Accounts {
		acc := ledger.Account{ID: a.ID, Name: a.Name, Deleted: a.Deleted}
		if a.Note != nil {
			acc.Note = *a.Note
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// CreateTransactions submits records in one bulk call. Records whose import
// id already exists in their account come back as duplicates.
func (c *Client) CreateTransactions(ctx context.Context, records []ledger.ImportRecord) (*ledger.CreateResult, error) {
	payload := saveTransactions{Transactions: make([]transaction, 0, len(records))}
	for _, r := range records {
		cleared := "uncleared"
		if r.Cleared {
			cleared = "cleared"
		}
		payload.Transactions = append(payload.Transactions, transaction{
			AccountID: r.AccountID,
			Date:      r.Date.String(),
			Amount:    int64(r.Amount),
			PayeeName: r.PayeeName,
			Cleared:   cleared,
			ImportID:  r.ImportID,
		})
	}

	var resp apiResponse[saveResult]
	if err := c.do(ctx, http.MethodPost, "/transactions", payload, &resp); err != nil {
		return nil, fmt.Errorf("CreateTransactions: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Debug().
		Int("created", len(resp.Data.TransactionIDs)).
		Int("duplicates", len(resp.Data.DuplicateImportIDs)).
		Msg("ynab accepted transactions")

	return &ledger.CreateResult{
		TransactionIDs:     resp.Data.TransactionIDs,
		DuplicateImportIDs: resp.Data.DuplicateImportIDs,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	endpoint := c.baseURL + "/budgets/" + url.PathEscape(c.budgetID) + path

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		detail := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.ID != "" {
			detail = fmt.Sprintf("%s %s: %s", apiErr.Error.ID, apiErr.Error.Name, apiErr.Error.Detail)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%s %s: %s: %w", method, path, detail, domain.ErrAuthentication)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, detail)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
