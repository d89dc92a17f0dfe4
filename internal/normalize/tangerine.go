package normalize

import (
	"github.com/dvloznov/bank-sync/internal/domain"
)

var tangerineAccountTypes = map[string]bool{
	"CHEQUING":    false,
	"SAVINGS":     false,
	"CREDIT_CARD": true,
}

func (n *Normalizer) tangerineAccounts(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	items, err := root.objects("accounts")
	if err != nil {
		return nil, err
	}

	accounts := make([]Listed, 0, len(items))
	for _, item := range items {
		typ, err := item.str("type")
		if err != nil {
			return nil, err
		}
		liability, known := tangerineAccountTypes[typ]
		if !known {
			return nil, mismatch(join(item.path, "type"), "unexpected account type %q", typ)
		}
		number, err := item.str("number")
		if err != nil {
			return nil, err
		}
		balance, err := item.number("account_balance")
		if err != nil {
			return nil, err
		}
		if liability {
			balance = balance.Neg()
		}
		accounts = append(accounts, Listed{
			Account: domain.Account{
				ID:      DeriveAccountID(n.Namespace, number),
				Balance: balance,
			},
			SourceRef: number,
		})
	}
	return &Output{Accounts: accounts}, nil
}

// tangerineTransactions reads the transactions endpoint, whose amounts are
// already signed from the holder's point of view.
func (n *Normalizer) tangerineTransactions(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	rows, err := root.objects("transactions")
	if err != nil {
		return nil, err
	}

	txns := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		date, err := row.date("transaction_date")
		if err != nil {
			return nil, err
		}
		amount, err := row.number("amount")
		if err != nil {
			return nil, err
		}
		descr, err := row.str("description")
		if err != nil {
			return nil, err
		}
		if _, err := row.boolean("is_uncleared"); err != nil {
			return nil, err
		}
		if _, err := row.str("status"); err != nil {
			return nil, err
		}
		txns = append(txns, domain.Transaction{
			Date:        date,
			Description: CleanDescription(descr),
			Amount:      amount,
		})
	}
	return &Output{Transactions: n.Window(txns)}, nil
}
