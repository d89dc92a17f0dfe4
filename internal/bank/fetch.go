package bank

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/normalize"
)

// Get issues an authenticated GET that reuses session material lifted from
// the browser and returns the body of a 200 response.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("Get: build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Get: %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Get: read %s: %w", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("Get: %s: status %d: %w", url, resp.StatusCode, domain.ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("Get: %s: status %d", url, resp.StatusCode)
	}
	return body, nil
}

// FetchEach loads transactions for every listed account concurrently. The
// requests are independent; results keep the listing order so the output
// is the same whichever request finishes first.
func FetchEach(
	ctx context.Context,
	listed []normalize.Listed,
	fetch func(ctx context.Context, acc normalize.Listed) ([]domain.Transaction, error),
) ([]domain.Account, error) {
	accounts := make([]domain.Account, len(listed))
	g, gctx := errgroup.WithContext(ctx)
	for i, acc := range listed {
		g.Go(func() error {
			txns, err := fetch(gctx, acc)
			if err != nil {
				return fmt.Errorf("account %s: %w", acc.ID, err)
			}
			a := acc.Account
			a.Transactions = txns
			accounts[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return accounts, nil
}
