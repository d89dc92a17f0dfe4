package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one canonical transaction produced by a bank adapter.
// Amount follows a single sign convention for every account type:
// money leaving the holder's control is negative, money received is positive.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Account is the canonical, source-independent view of one bank account.
// ID is derived deterministically from the source's native account number
// and is the join key used to find the matching ledger account.
type Account struct {
	ID           string
	Balance      decimal.Decimal
	Transactions []Transaction
}

// TransactionCount returns the total number of transactions across accounts.
func TransactionCount(accounts []Account) int {
	n := 0
	for _, acc := range accounts {
		n += len(acc.Transactions)
	}
	return n
}
