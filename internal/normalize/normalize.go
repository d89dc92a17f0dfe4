package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// Lookback is the trailing window of transactions kept by every schema.
const Lookback = 10 * 24 * time.Hour

// Kind names one source payload schema.
type Kind string

const (
	BMOVerifyCredential   Kind = "bmo.verify_credential"
	BMOBankAccount        Kind = "bmo.bank_account"
	BMOCreditCard         Kind = "bmo.credit_card"
	TangerineAccounts     Kind = "tangerine.accounts"
	TangerineTransactions Kind = "tangerine.transactions"
	ManulifeAccounts      Kind = "manulife.accounts"
	ManulifeTransactions  Kind = "manulife.transactions"
)

// Listed is a canonical account together with the source's own handle for it,
// used by adapters that fetch transactions with a follow-up request.
type Listed struct {
	domain.Account
	SourceRef string
}

// Output is the canonical result of one payload. Which fields are populated
// depends on the schema kind.
type Output struct {
	Accounts             []Listed
	Transactions         []domain.Transaction
	SecondFactorRequired bool
}

// Normalizer validates and converts source payloads. Now anchors the
// lookback window and is normally the start time of the run.
type Normalizer struct {
	Namespace uuid.UUID
	Now       time.Time
}

func New(namespace uuid.UUID, now time.Time) *Normalizer {
	return &Normalizer{Namespace: namespace, Now: now}
}

// DeriveAccountID returns the UUIDv5 of number within namespace.
func DeriveAccountID(namespace uuid.UUID, number string) string {
	return uuid.NewSHA1(namespace, []byte(number)).String()
}

// Normalize decodes body and converts it according to kind. Any missing or
// mistyped required field fails the whole payload with domain.ErrSchemaMismatch.
func (n *Normalizer) Normalize(kind Kind, body []byte) (*Output, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("normalize: %s: invalid JSON: %v: %w", kind, err, domain.ErrSchemaMismatch)
	}

	var (
		out *Output
		err error
	)
	switch kind {
	case BMOVerifyCredential:
		out, err = n.bmoVerifyCredential(raw)
	case BMOBankAccount:
		out, err = n.bmoBankAccount(raw)
	case BMOCreditCard:
		out, err = n.bmoCreditCard(raw)
	case TangerineAccounts:
		out, err = n.tangerineAccounts(raw)
	case TangerineTransactions:
		out, err = n.tangerineTransactions(raw)
	case ManulifeAccounts:
		out, err = n.manulifeAccounts(raw)
	case ManulifeTransactions:
		out, err = n.manulifeTransactions(raw)
	default:
		return nil, fmt.Errorf("normalize: unknown schema %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("normalize: %s: %w", kind, err)
	}
	return out, nil
}

// Window drops transactions not strictly after Now minus Lookback and sorts
// the rest newest first.
func (n *Normalizer) Window(txns []domain.Transaction) []domain.Transaction {
	cutoff := n.Now.Add(-Lookback)
	kept := make([]domain.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.Date.After(cutoff) {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Date.After(kept[j].Date)
	})
	return kept
}

// CleanDescription collapses Unicode whitespace runs to one space and trims
// the ends.
func CleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
