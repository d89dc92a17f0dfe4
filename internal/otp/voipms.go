package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
)

const DefaultVoIPmsURL = "https://voip.ms/api/v1/rest.php"

// VoIPmsInbox reads the newest SMS delivered to a voip.ms DID.
type VoIPmsInbox struct {
	baseURL    string
	username   string
	password   string
	did        string
	loc        *time.Location
	httpClient *http.Client
	limiter    *rate.Limiter
}

type VoIPmsConfig struct {
	BaseURL  string
	Username string
	Password string
	DID      string
	// Location is the zone voip.ms interprets the "from" filter in.
	Location *time.Location
}

func NewVoIPmsInbox(cfg VoIPmsConfig, httpClient *http.Client) *VoIPmsInbox {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVoIPmsURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VoIPmsInbox{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		did:        cfg.DID,
		loc:        cfg.Location,
		httpClient: httpClient,
		// voip.ms throttles API users that poll faster than once a second.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type voipmsMessage struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Type    string `json:"type"`
	DID     string `json:"did"`
	Contact string `json:"contact"`
	Message string `json:"message"`
}

type voipmsResponse struct {
	Status string          `json:"status"`
	SMS    []voipmsMessage `json:"sms"`
}

func (v *VoIPmsInbox) Latest(ctx context.Context, after time.Time) (string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("VoIPmsInbox.Latest: %w", err)
	}

	q := url.Values{}
	q.Set("api_username", v.username)
	q.Set("api_password", v.password)
	q.Set("method", "getSMS")
	q.Set("did", v.did)
	q.Set("limit", "1")
	q.Set("all_messages", "1")
	q.Set("from", after.In(v.loc).Format("2006-01-02 15:04:05"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("VoIPmsInbox.Latest: build request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("VoIPmsInbox.Latest: getSMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("VoIPmsInbox.Latest: status %d: %w", resp.StatusCode, domain.ErrChannel)
	}

	var body voipmsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("VoIPmsInbox.Latest: decode: %v: %w", err, domain.ErrChannel)
	}

	switch body.Status {
	case "success":
	case "no_sms":
		return "", ErrNoMessage
	default:
		return "", fmt.Errorf("VoIPmsInbox.Latest: status %q: %w", body.Status, domain.ErrChannel)
	}
	if len(body.SMS) == 0 {
		return "", ErrNoMessage
	}

	msg := body.SMS[0]
	log := logger.FromContext(ctx)
	log.Debug().Str("sms_id", msg.ID).Str("contact", msg.Contact).Msg("found sms")
	return msg.Message, nil
}
