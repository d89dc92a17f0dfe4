// Package notion implements the ledger on two Notion databases: one page per
// account and one page per imported transaction.
package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/bank-sync/internal/ledger"
	"github.com/dvloznov/bank-sync/internal/logger"
)

// Property names.
const (
	propName     = "Name"
	propNote     = "Note"
	propPayee    = "Payee"
	propDate     = "Date"
	propAmount   = "Amount"
	propAccount  = "Account"
	propCleared  = "Cleared"
	propImportID = "Import ID"
)

// Ledger stores transactions in Notion. Notion has no import id
// deduplication, so it is done here against the existing pages.
type Ledger struct {
	service        Service
	accountsDB     string
	transactionsDB string
}

var _ ledger.Ledger = (*Ledger)(nil)

func NewLedger(service Service, accountsDB, transactionsDB string) *Ledger {
	return &Ledger{service: service, accountsDB: accountsDB, transactionsDB: transactionsDB}
}

// ListAccounts returns every page in the accounts database. Archived pages
// are reported as deleted.
func (l *Ledger) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	pages, err := queryAllPages(ctx, l.service, l.accountsDB)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}

	accounts := make([]ledger.Account, 0, len(pages))
	for _, p := range pages {
		accounts = append(accounts, ledger.Account{
			ID:      p.ID.String(),
			Name:    titleText(p, propName),
			Note:    richText(p, propNote),
			Deleted: p.Archived,
		})
	}
	return accounts, nil
}

// CreateTransactions creates one page per record not already present for
// its account.
func (l *Ledger) CreateTransactions(ctx context.Context, records []ledger.ImportRecord) (*ledger.CreateResult, error) {
	log := logger.FromContext(ctx)

	pages, err := queryAllPages(ctx, l.service, l.transactionsDB)
	if err != nil {
		return nil, fmt.Errorf("CreateTransactions: %w", err)
	}

	existing := make(map[string]bool, len(pages))
	for _, p := range pages {
		if id := richText(p, propImportID); id != "" {
			existing[dedupKey(richText(p, propAccount), id)] = true
		}
	}
	log.Debug().Int("existing", len(existing)).Msg("loaded existing notion transactions")

	result := &ledger.CreateResult{
		TransactionIDs:     []string{},
		DuplicateImportIDs: []string{},
	}
	for _, r := range records {
		key := dedupKey(r.AccountID, r.ImportID)
		if existing[key] {
			result.DuplicateImportIDs = append(result.DuplicateImportIDs, r.ImportID)
			continue
		}

		page, err := l.service.CreatePage(ctx, l.transactionsDB, transactionProperties(r))
		if err != nil {
			return nil, fmt.Errorf("CreateTransactions: import %s: %w", r.ImportID, err)
		}
		existing[key] = true
		result.TransactionIDs = append(result.TransactionIDs, page.ID.String())
	}
	return result, nil
}

func dedupKey(accountID, importID string) string {
	return accountID + "|" + importID
}

func transactionProperties(r ledger.ImportRecord) notionapi.Properties {
	date := notionapi.Date(time.Date(r.Date.Year, r.Date.Month, r.Date.Day, 0, 0, 0, 0, time.UTC))
	return notionapi.Properties{
		propPayee: notionapi.TitleProperty{
			Title: []notionapi.RichText{text(r.PayeeName)},
		},
		propDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		propAmount: notionapi.NumberProperty{
			Number: float64(r.Amount) / 1000,
		},
		propAccount: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{text(r.AccountID)},
		},
		propCleared: notionapi.CheckboxProperty{
			Checkbox: r.Cleared,
		},
		propImportID: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{text(r.ImportID)},
		},
	}
}

func text(content string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}
}

func queryAllPages(ctx context.Context, service Service, databaseID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := service.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		pages = append(pages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return pages, nil
}

func richText(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name].(*notionapi.RichTextProperty); ok {
		return plainText(prop.RichText)
	}
	return ""
}

func titleText(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name].(*notionapi.TitleProperty); ok {
		return plainText(prop.Title)
	}
	return ""
}

func plainText(parts []notionapi.RichText) string {
	var s string
	for _, p := range parts {
		s += p.PlainText
	}
	return s
}
