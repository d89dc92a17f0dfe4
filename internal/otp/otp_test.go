package otp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// MockInbox is a mock implementation of Inbox for testing.
type MockInbox struct {
	LatestFunc func(ctx context.Context, after time.Time) (string, error)
}

func (m *MockInbox) Latest(ctx context.Context, after time.Time) (string, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx, after)
	}
	return "", ErrNoMessage
}

func fastPoll() PollConfig {
	return PollConfig{Delay: time.Millisecond, AttemptTimeout: time.Second}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "sentence", text: "your code is 482913 today", want: "482913"},
		{name: "first match wins", text: "123456 then 654321", want: "123456"},
		{name: "punctuation boundary", text: "Code:482913.", want: "482913"},
		{name: "seven digits", text: "ref 4829130", wantErr: true},
		{name: "five digits", text: "ref 48291", wantErr: true},
		{name: "embedded in word", text: "abc482913", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrCodeNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPoller_ReturnsCodeAfterMessageArrives(t *testing.T) {
	reference := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	var calls int32
	inbox := &MockInbox{
		LatestFunc: func(ctx context.Context, after time.Time) (string, error) {
			assert.True(t, after.Equal(reference))
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				return "", ErrNoMessage
			case 2:
				return "", fmt.Errorf("status invalid_credentials: %w", domain.ErrChannel)
			case 3:
				return "Welcome to your bank", nil
			default:
				return "your code is 482913 today", nil
			}
		},
	}

	code, err := NewPoller(Email, inbox, fastPoll()).FetchCode(context.Background(), reference)
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestPoller_KeepsPollingWithoutTerminalError(t *testing.T) {
	const attempts = 25
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	inbox := &MockInbox{
		LatestFunc: func(ctx context.Context, after time.Time) (string, error) {
			if atomic.AddInt32(&calls, 1) == attempts {
				cancel()
			}
			return "", ErrNoMessage
		},
	}

	code, err := NewPoller(SMS, inbox, fastPoll()).FetchCode(ctx, time.Now())
	assert.Empty(t, code)
	assert.Equal(t, int32(attempts), atomic.LoadInt32(&calls))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, domain.ErrCodeNotFound))
}

func TestPoller_MaxWait(t *testing.T) {
	cfg := fastPoll()
	cfg.MaxWait = 50 * time.Millisecond
	inbox := &MockInbox{
		LatestFunc: func(ctx context.Context, after time.Time) (string, error) {
			return "no digits here", nil
		},
	}

	start := time.Now()
	_, err := NewPoller(SMS, inbox, cfg).FetchCode(context.Background(), start)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPoller_AttemptTimeout(t *testing.T) {
	cfg := PollConfig{Delay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond}
	var calls int32
	inbox := &MockInbox{
		LatestFunc: func(ctx context.Context, after time.Time) (string, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "123456", nil
		},
	}

	code, err := NewPoller(SMS, inbox, cfg).FetchCode(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestChannels_Get(t *testing.T) {
	email := NewPoller(Email, &MockInbox{}, fastPoll())
	channels := Channels{Email: email}

	got, err := channels.Get(Email)
	require.NoError(t, err)
	assert.Same(t, email, got)

	_, err = channels.Get(SMS)
	assert.Error(t, err)
}
