package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/dvloznov/bank-sync/internal/logger"
)

// DefaultResponseTimeout bounds Waiter.Wait when the context has no deadline.
const DefaultResponseTimeout = 60 * time.Second

var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-blink-features=AutomationControlled",
}

// stealthScript removes the signals bank login pages use to spot headless
// Chromium before any page script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-CA', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// Launcher opens Chromium sessions through playwright with tracing enabled.
type Launcher struct {
	headless bool
}

func NewLauncher(headless bool) *Launcher {
	return &Launcher{headless: headless}
}

func (l *Launcher) Open(ctx context.Context, stealth bool) (Session, error) {
	log := logger.FromContext(ctx)

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("Launcher.Open: start playwright: %w", err)
	}

	log.Debug().Bool("stealth", stealth).Bool("headless", l.headless).Msg("launching browser")
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.headless),
		Args:     launchArgs,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("Launcher.Open: launch chromium: %w", err)
	}

	s := &playwrightSession{pw: pw, browser: b}
	if err := s.init(stealth); err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("Launcher.Open: %w", err)
	}
	return s, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	mu      sync.Mutex
	waiters []*responseWaiter
}

func (s *playwrightSession) init(stealth bool) error {
	bctx, err := s.browser.NewContext()
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}
	s.context = bctx

	if stealth {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
			return fmt.Errorf("stealth script: %w", err)
		}
	}

	if err := bctx.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	s.page = page
	page.OnResponse(s.onResponse)
	return nil
}

func (s *playwrightSession) locator(t Target) playwright.Locator {
	var loc playwright.Locator
	if t.Selector != "" {
		loc = s.page.Locator(t.Selector)
	} else {
		loc = s.page.GetByRole(playwright.AriaRole(t.Role), playwright.PageGetByRoleOptions{
			Name: t.Name,
		})
	}
	if t.indexed {
		loc = loc.Nth(t.Index)
	}
	return loc
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	log := logger.FromContext(ctx)
	log.Debug().Str("url", url).Msg("navigating")
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("Navigate: %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) Fill(ctx context.Context, t Target, value string) error {
	log := logger.FromContext(ctx)
	log.Debug().Stringer("target", t).Msg("filling")
	if err := s.locator(t).Fill(value); err != nil {
		return fmt.Errorf("Fill: %s: %w", t, err)
	}
	return nil
}

func (s *playwrightSession) Type(ctx context.Context, t Target, value string) error {
	log := logger.FromContext(ctx)
	log.Debug().Stringer("target", t).Msg("typing")
	if err := s.locator(t).PressSequentially(value); err != nil {
		return fmt.Errorf("Type: %s: %w", t, err)
	}
	return nil
}

func (s *playwrightSession) Click(ctx context.Context, t Target) error {
	log := logger.FromContext(ctx)
	log.Debug().Stringer("target", t).Msg("clicking")
	if err := s.locator(t).Click(); err != nil {
		return fmt.Errorf("Click: %s: %w", t, err)
	}
	return nil
}

func (s *playwrightSession) Count(ctx context.Context, t Target) (int, error) {
	n, err := s.locator(t).Count()
	if err != nil {
		return 0, fmt.Errorf("Count: %s: %w", t, err)
	}
	return n, nil
}

func (s *playwrightSession) Back(ctx context.Context) error {
	if _, err := s.page.GoBack(); err != nil {
		return fmt.Errorf("Back: %w", err)
	}
	return nil
}

func (s *playwrightSession) WaitForURL(ctx context.Context, match func(string) bool) (string, error) {
	err := s.page.WaitForURL(match, playwright.PageWaitForURLOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", fmt.Errorf("WaitForURL: %w", err)
	}
	return s.page.URL(), nil
}

func (s *playwrightSession) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := s.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("Cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

func (s *playwrightSession) Close(ctx context.Context, tracePath string) error {
	log := logger.FromContext(ctx)
	var errs []error

	if tracePath != "" {
		log.Debug().Str("path", tracePath).Msg("stopping tracing")
		if err := s.context.Tracing().Stop(tracePath); err != nil {
			errs = append(errs, fmt.Errorf("stop tracing: %w", err))
		}
	} else if err := s.context.Tracing().Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop tracing: %w", err))
	}

	log.Debug().Msg("closing browser")
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return nil
}

type responseWaiter struct {
	match Match
	ch    chan playwright.Response
}

func (s *playwrightSession) Expect(match Match) Waiter {
	w := &responseWaiter{match: match, ch: make(chan playwright.Response, 1)}
	s.mu.Lock()
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()
	return &waiterHandle{session: s, waiter: w}
}

// onResponse runs on playwright's event goroutine, so it only hands the
// response over; reading the body there would block the event loop.
func (s *playwrightSession) onResponse(resp playwright.Response) {
	url := resp.URL()
	method := resp.Request().Method()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w.match(url, method) {
			w.ch <- resp
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *playwrightSession) forget(w *responseWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.waiters {
		if other == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

type waiterHandle struct {
	session *playwrightSession
	waiter  *responseWaiter
}

func (h *waiterHandle) Wait(ctx context.Context) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultResponseTimeout)
		defer cancel()
	}

	var resp playwright.Response
	select {
	case resp = <-h.waiter.ch:
	case <-ctx.Done():
		h.session.forget(h.waiter)
		return nil, fmt.Errorf("Wait: no matching response: %w", ctx.Err())
	}

	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("Wait: read body of %s: %w", resp.URL(), err)
	}
	headers, err := resp.Request().AllHeaders()
	if err != nil {
		return nil, fmt.Errorf("Wait: request headers of %s: %w", resp.URL(), err)
	}

	log := logger.FromContext(ctx)

	log.Debug().Str("url", resp.URL()).Int("status", resp.Status()).Msg("captured response")
	return &Response{
		URL:            resp.URL(),
		Method:         resp.Request().Method(),
		Status:         resp.Status(),
		Body:           body,
		RequestHeaders: headers,
	}, nil
}
