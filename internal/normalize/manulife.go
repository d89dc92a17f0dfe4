package normalize

import (
	"github.com/dvloznov/bank-sync/internal/domain"
)

// manulifeDepositType is the account category holding day-to-day deposit
// accounts. Mortgages and investments are listed alongside and skipped.
const manulifeDepositType = "ADVM"

func (n *Normalizer) manulifeAccounts(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	asset, err := root.object("assetAccounts")
	if err != nil {
		return nil, err
	}

	items, err := depositAccounts(asset)
	if err != nil {
		return nil, err
	}

	accounts := make([]Listed, 0, len(items))
	for _, item := range items {
		index, err := item.str("id")
		if err != nil {
			return nil, err
		}
		accountID, err := item.object("accountId")
		if err != nil {
			return nil, err
		}
		number, err := accountID.str("accountNumber")
		if err != nil {
			return nil, err
		}
		balance, err := item.number("balance")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, Listed{
			Account: domain.Account{
				ID:      DeriveAccountID(n.Namespace, number),
				Balance: balance,
			},
			SourceRef: index,
		})
	}
	return &Output{Accounts: accounts}, nil
}

// depositAccounts filters assetAccount down to ADVM entries. A non-array
// value means no accounts; every entry must still be an object.
func depositAccounts(asset object) ([]object, error) {
	items, ok := asset.m["assetAccount"].([]interface{})
	if !ok {
		return nil, nil
	}
	all, err := objectsOf(items, join(asset.path, "assetAccount"))
	if err != nil {
		return nil, err
	}
	var kept []object
	for _, row := range all {
		accountID, ok := row.m["accountId"].(map[string]interface{})
		if !ok {
			continue
		}
		if accountID["accountType"] == manulifeDepositType {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func (n *Normalizer) manulifeTransactions(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	history, err := root.object("historyTransactions")
	if err != nil {
		return nil, err
	}
	rows, err := history.objects("transaction")
	if err != nil {
		return nil, err
	}

	txns := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		date, err := row.epochMillis("date")
		if err != nil {
			return nil, err
		}
		descr, err := row.str("description")
		if err != nil {
			return nil, err
		}
		amount, err := row.number("transactionAmount")
		if err != nil {
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
