package normalize

import (
	"github.com/dvloznov/bank-sync/internal/domain"
)

func (n *Normalizer) bmoVerifyCredential(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	rs, err := root.object("VerifyCredentialRs")
	if err != nil {
		return nil, err
	}
	body, err := rs.object("BodyRs")
	if err != nil {
		return nil, err
	}
	flag, err := body.str("isOTPSignIn")
	if err != nil {
		return nil, err
	}
	switch flag {
	case "Y":
		return &Output{SecondFactorRequired: true}, nil
	case "N":
		return &Output{}, nil
	default:
		return nil, mismatch(join(body.path, "isOTPSignIn"), "got %q, want Y or N", flag)
	}
}

func (n *Normalizer) bmoBankAccount(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	rs, err := root.object("GetBankAccountDetailsRs")
	if err != nil {
		return nil, err
	}
	body, err := rs.object("BodyRs")
	if err != nil {
		return nil, err
	}

	details, err := body.object("bankAccountDetails")
	if err != nil {
		return nil, err
	}
	number, err := details.str("accountNumber")
	if err != nil {
		return nil, err
	}
	balance, err := details.numericStr("accountBalance")
	if err != nil {
		return nil, err
	}

	rows, err := body.objects("bankAccountTransactions")
	if err != nil {
		return nil, err
	}
	txns := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		date, err := row.date("txnDate")
		if err != nil {
			return nil, err
		}
		descr, err := row.str("descr")
		if err != nil {
			return nil, err
		}
		amount, err := row.numericStr("txnAmount")
		if err != nil {
			return nil, err
		}
		txns = append(txns, domain.Transaction{
			Date:        date,
			Description: CleanDescription(descr),
			Amount:      amount,
		})
	}

	return &Output{Accounts: []Listed{{
		Account: domain.Account{
			ID:           DeriveAccountID(n.Namespace, number),
			Balance:      balance,
			Transactions: n.Window(txns),
		},
		SourceRef: number,
	}}}, nil
}

func (n *Normalizer) bmoCreditCard(raw interface{}) (*Output, error) {
	root, err := asObject(raw, "")
	if err != nil {
		return nil, err
	}
	rs, err := root.object("GetCCAccountDetailsRs")
	if err != nil {
		return nil, err
	}
	body, err := rs.object("BodyRs")
	if err != nil {
		return nil, err
	}

	details, err := body.object("creditCardDetails")
	if err != nil {
		return nil, err
	}
	number, err := details.str("accountNumber")
	if err != nil {
		return nil, err
	}
	balance, err := details.numericStr("currentBalance")
	if err != nil {
		return nil, err
	}

	rows, err := lendingRows(body)
	if err != nil {
		return nil, err
	}
	txns := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := creditCardTransaction(row)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}

	return &Output{Accounts: []Listed{{
		Account: domain.Account{
			ID:           DeriveAccountID(n.Namespace, number),
			Balance:      balance.Neg(),
			Transactions: n.Window(txns),
		},
		SourceRef: number,
	}}}, nil
}

// lendingRows keeps only posted merchant rows. Pending authorizations and
// summary rows come without postDate or merchantName; a non-array value
// means the card has no activity. Every entry must still be an object, and
// kept rows carry their original index in error paths.
func lendingRows(body object) ([]object, error) {
	items, ok := body.m["lendingTransactions"].([]interface{})
	if !ok {
		return nil, nil
	}
	all, err := objectsOf(items, join(body.path, "lendingTransactions"))
	if err != nil {
		return nil, err
	}
	var kept []object
	for _, row := range all {
		if row.nonEmpty("postDate") && row.nonEmpty("merchantName") {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func creditCardTransaction(row object) (domain.Transaction, error) {
	txnDate, err := row.date("txnDate")
	if err != nil {
		return domain.Transaction{}, err
	}
	postDate, err := row.date("postDate")
	if err != nil {
		return domain.Transaction{}, err
	}
	descr, err := row.str("descr")
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := row.numericStr("amount")
	if err != nil {
		return domain.Transaction{}, err
	}
	indicator, present, err := row.optionalStr("txnIndicator")
	if err != nil {
		return domain.Transaction{}, err
	}
	if present && indicator != "CR" {
		return domain.Transaction{}, mismatch(join(row.path, "txnIndicator"), "got %q, want CR or absent", indicator)
	}

	// Credits (payments, refunds) settle on postDate and add to the holder's
	// money; everything else is a purchase dated when it happened.
	if indicator == "CR" {
		return domain.Transaction{Date: postDate, Description: CleanDescription(descr), Amount: amount}, nil
	}
	return domain.Transaction{Date: txnDate, Description: CleanDescription(descr), Amount: amount.Neg()}, nil
}
