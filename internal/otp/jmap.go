package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
)

const jmapMailCapability = "urn:ietf:params:jmap:mail"

// JMAPInbox reads the newest email preview through a JMAP server.
type JMAPInbox struct {
	sessionURL  string
	bearerToken string
	httpClient  *http.Client

	mu        sync.Mutex
	apiURL    string
	accountID string
}

func NewJMAPInbox(sessionURL, bearerToken string, httpClient *http.Client) *JMAPInbox {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JMAPInbox{sessionURL: sessionURL, bearerToken: bearerToken, httpClient: httpClient}
}

type jmapSession struct {
	APIURL          string            `json:"apiUrl"`
	PrimaryAccounts map[string]string `json:"primaryAccounts"`
}

type jmapRequest struct {
	Using       []string        `json:"using"`
	MethodCalls [][]interface{} `json:"methodCalls"`
}

type jmapResponse struct {
	MethodResponses [][]json.RawMessage `json:"methodResponses"`
}

type jmapEmailList struct {
	List []struct {
		ID      string `json:"id"`
		Preview string `json:"preview"`
	} `json:"list"`
}

type jmapError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Latest runs Email/query for the newest message received after the given
// time and Email/get for its preview in one round trip.
func (j *JMAPInbox) Latest(ctx context.Context, after time.Time) (string, error) {
	apiURL, accountID, err := j.session(ctx)
	if err != nil {
		return "", err
	}

	req := jmapRequest{
		Using: []string{"urn:ietf:params:jmap:core", jmapMailCapability},
		MethodCalls: [][]interface{}{
			{"Email/query", map[string]interface{}{
				"accountId": accountID,
				"filter":    map[string]string{"after": after.UTC().Format(time.RFC3339)},
				"sort":      []map[string]interface{}{{"property": "receivedAt", "isAscending": false}},
				"limit":     1,
			}, "q"},
			{"Email/get", map[string]interface{}{
				"accountId":  accountID,
				"#ids":       map[string]string{"resultOf": "q", "name": "Email/query", "path": "/ids"},
				"properties": []string{"preview"},
			}, "g"},
		},
	}

	var resp jmapResponse
	if err := j.do(ctx, http.MethodPost, apiURL, req, &resp); err != nil {
		return "", err
	}

	for _, call := range resp.MethodResponses {
		if len(call) < 2 {
			return "", fmt.Errorf("JMAPInbox.Latest: malformed method response: %w", domain.ErrChannel)
		}
		var name string
		if err := json.Unmarshal(call[0], &name); err != nil {
			return "", fmt.Errorf("JMAPInbox.Latest: method name: %v: %w", err, domain.ErrChannel)
		}
		switch name {
		case "error":
			var jerr jmapError
			_ = json.Unmarshal(call[1], &jerr)
			return "", fmt.Errorf("JMAPInbox.Latest: %s %s: %w", jerr.Type, jerr.Description, domain.ErrChannel)
		case "Email/get":
			var emails jmapEmailList
			if err := json.Unmarshal(call[1], &emails); err != nil {
				return "", fmt.Errorf("JMAPInbox.Latest: decode Email/get: %v: %w", err, domain.ErrChannel)
			}
			if len(emails.List) == 0 {
				return "", ErrNoMessage
			}
			log := logger.FromContext(ctx)
			log.Debug().Str("email_id", emails.List[0].ID).Msg("found email")
			return emails.List[0].Preview, nil
		}
	}
	return "", fmt.Errorf("JMAPInbox.Latest: no Email/get response: %w", domain.ErrChannel)
}

// session discovers the API endpoint and primary mail account once.
func (j *JMAPInbox) session(ctx context.Context) (string, string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.apiURL != "" {
		return j.apiURL, j.accountID, nil
	}

	var s jmapSession
	if err := j.do(ctx, http.MethodGet, j.sessionURL, nil, &s); err != nil {
		return "", "", err
	}
	accountID := s.PrimaryAccounts[jmapMailCapability]
	if s.APIURL == "" || accountID == "" {
		return "", "", fmt.Errorf("JMAPInbox.session: session has no mail account: %w", domain.ErrChannel)
	}
	j.apiURL, j.accountID = s.APIURL, accountID
	return j.apiURL, j.accountID, nil
}

func (j *JMAPInbox) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("JMAPInbox: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("JMAPInbox: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+j.bearerToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("JMAPInbox: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JMAPInbox: %s %s: status %d: %w", method, url, resp.StatusCode, domain.ErrChannel)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("JMAPInbox: decode response: %v: %w", err, domain.ErrChannel)
	}
	return nil
}
