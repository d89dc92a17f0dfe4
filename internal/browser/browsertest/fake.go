// Package browsertest provides a scripted browser.Session for adapter tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dvloznov/bank-sync/internal/browser"
)

// Session is a scripted browser.Session. Responses are handed to waiters in
// queue order, URLs to WaitForURL calls in queue order. Every action is
// recorded as "<verb> <target>" in Actions.
type Session struct {
	mu sync.Mutex

	Responses []browser.Response
	URLs      []string
	Counts    map[string]int
	Jar       []browser.Cookie
	// Fail makes the action with this exact description return the error.
	Fail map[string]error
	// OnAction is called after each recorded action.
	OnAction func(action string)

	Actions   []string
	Closed    bool
	TracePath string
}

func (s *Session) record(action string) error {
	s.mu.Lock()
	s.Actions = append(s.Actions, action)
	err := s.Fail[action]
	hook := s.OnAction
	s.mu.Unlock()
	if hook != nil {
		hook(action)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.record("navigate " + url)
}

func (s *Session) Fill(ctx context.Context, t browser.Target, value string) error {
	return s.record("fill " + t.String())
}

func (s *Session) Type(ctx context.Context, t browser.Target, value string) error {
	return s.record("type " + t.String())
}

func (s *Session) Click(ctx context.Context, t browser.Target) error {
	return s.record("click " + t.String())
}

func (s *Session) Count(ctx context.Context, t browser.Target) (int, error) {
	if err := s.record("count " + t.String()); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts[t.String()], nil
}

func (s *Session) Back(ctx context.Context) error {
	return s.record("back")
}

func (s *Session) WaitForURL(ctx context.Context, match func(string) bool) (string, error) {
	if err := s.record("wait url"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.URLs) > 0 {
		url := s.URLs[0]
		s.URLs = s.URLs[1:]
		if match(url) {
			return url, nil
		}
	}
	return "", errors.New("browsertest: no queued URL matches")
}

func (s *Session) Expect(match browser.Match) browser.Waiter {
	return &waiter{session: s, match: match}
}

func (s *Session) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := s.record("cookies"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Cookie(nil), s.Jar...), nil
}

// Close writes a placeholder trace when tracePath is set so callers can
// check the artifact exists.
func (s *Session) Close(ctx context.Context, tracePath string) error {
	s.mu.Lock()
	s.Closed = true
	s.TracePath = tracePath
	s.mu.Unlock()
	if tracePath != "" {
		if err := os.WriteFile(tracePath, []byte("trace"), 0o600); err != nil {
			return fmt.Errorf("browsertest: write trace: %w", err)
		}
	}
	return nil
}

// Did reports whether action was recorded.
func (s *Session) Did(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.Actions {
		if a == action {
			return true
		}
	}
	return false
}

type waiter struct {
	session *Session
	match   browser.Match
}

func (w *waiter) Wait(ctx context.Context) (*browser.Response, error) {
	if err := w.session.record("wait response"); err != nil {
		return nil, err
	}
	s := w.session
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.Responses {
		if w.match(r.URL, r.Method) {
			s.Responses = append(s.Responses[:i], s.Responses[i+1:]...)
			resp := r
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("browsertest: no queued response matches: %w", context.DeadlineExceeded)
}

// Opener hands out Session, or Err when set.
type Opener struct {
	Session *Session
	Err     error

	Opened  int
	Stealth bool
}

func (o *Opener) Open(ctx context.Context, stealth bool) (browser.Session, error) {
	o.Opened++
	o.Stealth = stealth
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Session, nil
}
