package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
)

var thousand = decimal.NewFromInt(1000)

// ToMilliunits scales amount by 1000 and rounds to the nearest integer.
func ToMilliunits(amount decimal.Decimal) Milliunits {
	return Milliunits(amount.Mul(thousand).Round(0).IntPart())
}

// ImportID builds the identifier for the occurrence-th record sharing an
// account, amount and date within one batch. The account is left out of the
// string because the ledger already scopes import ids per account.
func ImportID(amount Milliunits, date civil.Date, occurrence int) string {
	return fmt.Sprintf("YNAB:%d:%s:%d", amount, date, occurrence)
}

// Summary describes one import.
type Summary struct {
	Records         int
	Created         int
	Duplicates      []string
	SkippedAccounts []string
	DryRun          bool
}

// Importer turns canonical accounts into ledger records and submits them.
type Importer struct {
	ledger Ledger
	loc    *time.Location
	dryRun bool
}

// NewImporter renders dates in loc. With dryRun the records are built and
// logged but never submitted.
func NewImporter(l Ledger, loc *time.Location, dryRun bool) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{ledger: l, loc: loc, dryRun: dryRun}
}

// Import matches accounts against the ledger and submits one batch.
func (i *Importer) Import(ctx context.Context, accounts []domain.Account) (*Summary, error) {
	log := logger.FromContext(ctx)

	ledgerAccounts, err := i.ledger.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("Import: list ledger accounts: %w", err)
	}

	records, skipped := i.BuildRecords(ctx, accounts, ledgerAccounts)
	summary := &Summary{Records: len(records), SkippedAccounts: skipped, DryRun: i.dryRun}

	if i.dryRun {
		for _, r := range records {
			log.Info().
				Str("account_id", r.AccountID).
				Str("date", r.Date.String()).
				Stringer("amount", r.Amount).
				Str("payee", r.PayeeName).
				Str("import_id", r.ImportID).
				Msg("dry run: would import")
		}
		return summary, nil
	}

	if len(records) == 0 {
		log.Info().Msg("nothing to import")
		return summary, nil
	}

	result, err := i.ledger.CreateTransactions(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("Import: create transactions: %w", err)
	}
	summary.Created = len(result.TransactionIDs)
	summary.Duplicates = result.DuplicateImportIDs

	log.Info().
		Int("records", summary.Records).
		Int("created", summary.Created).
		Int("duplicates", len(summary.Duplicates)).
		Msg("imported transactions")
	if len(summary.Duplicates) > 0 {
		log.Debug().Strs("duplicate_import_ids", summary.Duplicates).Msg("ledger skipped duplicates")
	}
	return summary, nil
}

// BuildRecords maps every transaction of every matched account to an
// ImportRecord, in account order then transaction order. Accounts with no
// ledger match are skipped and their ids returned.
func (i *Importer) BuildRecords(ctx context.Context, accounts []domain.Account, ledgerAccounts []Account) ([]ImportRecord, []string) {
	log := logger.FromContext(ctx)

	var (
		records     []ImportRecord
		skipped     []string
		occurrences = make(map[string]int)
	)
	for _, acc := range accounts {
		target, ok := Match(acc.ID, ledgerAccounts)
		if !ok {
			log.Warn().
				Err(domain.ErrLedgerMatchMiss).
				Str("account_id", acc.ID).
				Int("transactions", len(acc.Transactions)).
				Msg("no ledger account has this id in its note, skipping")
			skipped = append(skipped, acc.ID)
			continue
		}

		for _, t := range acc.Transactions {
			date := civil.DateOf(t.Date.In(i.loc))
			amount := ToMilliunits(t.Amount)
			key := fmt.Sprintf("%s:%d:%s", target.ID, amount, date)
			occurrences[key]++

			records = append(records, ImportRecord{
				AccountID: target.ID,
				Date:      date,
				Amount:    amount,
				PayeeName: t.Description,
				Cleared:   true,
				ImportID:  ImportID(amount, date, occurrences[key]),
			})
		}
	}
	return records, skipped
}

// Match returns the first live ledger account whose note contains id.
func Match(id string, ledgerAccounts []Account) (Account, bool) {
	if id == "" {
		return Account{}, false
	}
	for _, a := range ledgerAccounts {
		if !a.Deleted && strings.Contains(a.Note, id) {
			return a, true
		}
	}
	return Account{}, false
}
