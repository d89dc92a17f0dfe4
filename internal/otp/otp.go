package otp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// Kind is the out-of-band medium a source sends its code through.
type Kind string

const (
	Email Kind = "email"
	SMS   Kind = "sms"
)

// ErrNoMessage means the inbox has nothing newer than the reference time yet.
var ErrNoMessage = errors.New("no message yet")

// Channel returns a six-digit code that arrived strictly after the given time.
type Channel interface {
	FetchCode(ctx context.Context, after time.Time) (string, error)
}

// Inbox performs one lookup of the newest message received after the given
// time and returns its text. It returns ErrNoMessage when there is none and
// an error wrapping domain.ErrChannel when the backend reports a failure.
type Inbox interface {
	Latest(ctx context.Context, after time.Time) (string, error)
}

// Channels maps each medium to the channel serving it.
type Channels map[Kind]Channel

func (c Channels) Get(kind Kind) (Channel, error) {
	ch, ok := c[kind]
	if !ok || ch == nil {
		return nil, fmt.Errorf("otp: no %s channel configured", kind)
	}
	return ch, nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// ExtractCode returns the first standalone run of exactly six digits in text.
func ExtractCode(text string) (string, error) {
	code := codePattern.FindString(text)
	if code == "" {
		return "", domain.ErrCodeNotFound
	}
	return code, nil
}
