package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Session is one automated browser session owned by a single run.
// Close must be called exactly once; a non-empty tracePath keeps the
// recorded trace at that path, an empty one discards it.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, target Target, value string) error
	// Type enters value one key at a time, for inputs that reject pasted text.
	Type(ctx context.Context, target Target, value string) error
	Click(ctx context.Context, target Target) error
	Count(ctx context.Context, target Target) (int, error)
	Back(ctx context.Context) error
	// WaitForURL blocks until the page URL satisfies match and returns it.
	WaitForURL(ctx context.Context, match func(url string) bool) (string, error)
	// Expect starts watching for a network response before the action that
	// triggers it, so a fast response cannot be missed.
	Expect(match Match) Waiter
	Cookies(ctx context.Context) ([]Cookie, error)
	Close(ctx context.Context, tracePath string) error
}

// Opener starts sessions. Stealth hides the usual automation fingerprints.
type Opener interface {
	Open(ctx context.Context, stealth bool) (Session, error)
}

// Waiter delivers the first response matched after it was created.
type Waiter interface {
	Wait(ctx context.Context) (*Response, error)
}

// Match selects a network response by its URL and request method.
type Match func(url, method string) bool

// Exact matches one URL requested with method.
func Exact(method string, urls ...string) Match {
	return func(url, m string) bool {
		if m != method {
			return false
		}
		for _, u := range urls {
			if u == url {
				return true
			}
		}
		return false
	}
}

// Response is a captured network response and the headers its request carried.
type Response struct {
	URL            string
	Method         string
	Status         int
	Body           []byte
	RequestHeaders map[string]string
}

func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("Response.JSON: %s: %w", r.URL, err)
	}
	return nil
}

// Header returns a request header by case-insensitive name.
func (r *Response) Header(name string) string {
	for k, v := range r.RequestHeaders {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

type Cookie struct {
	Name  string
	Value string
}

// CookieHeader renders cookies as a Cookie request header value.
func CookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Target locates an element either by accessible role and name or by a
// CSS/XPath selector.
type Target struct {
	Role     string
	Name     string
	Selector string
	Index    int
	indexed  bool
}

func ByRole(role, name string) Target {
	return Target{Role: role, Name: name}
}

func BySelector(selector string) Target {
	return Target{Selector: selector}
}

// Nth narrows the target to its i-th match, counting from zero.
func (t Target) Nth(i int) Target {
	t.Index = i
	t.indexed = true
	return t
}

func (t Target) String() string {
	var s string
	if t.Selector != "" {
		s = t.Selector
	} else {
		s = fmt.Sprintf("role=%s[name=%q]", t.Role, t.Name)
	}
	if t.indexed {
		s += fmt.Sprintf(" >> nth=%d", t.Index)
	}
	return s
}
