package famledger

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/statement"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// ImportResult summarizes an ImportStatement run.
type ImportResult struct {
	Posted  int `json:"posted"`
	Skipped int `json:"skipped"`
}

// ImportStatement posts the entries of a household spreadsheet on the
// child's accounts as approved deposits and withdrawals. Entries for an
// account type the child does not have are skipped. Failed entries are
// collected in a MultiError; the others are still posted.
func (l *Ledger) ImportStatement(ctx context.Context, caller Caller, childID id.UserID, r io.Reader) (*ImportResult, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	if _, err := l.authorizeUser(ctx, caller, childID); err != nil {
		return nil, err
	}

	entries, err := statement.Parse(r)
	if err != nil {
		return nil, invalid("statement", "%v", err)
	}

	accounts, err := l.store.ListAccounts(ctx, account.ListOpts{OwnerIDs: []id.UserID{childID}})
	if err != nil {
		return nil, internal("list accounts", err)
	}
	byType := make(map[account.Type]id.AccountID, len(accounts))
	for _, a := range accounts {
		if _, seen := byType[a.Type]; !seen {
			byType[a.Type] = a.ID
		}
	}

	res := &ImportResult{}
	var errs MultiError
	for _, e := range entries {
		accountID, ok := byType[e.AccountType]
		if !ok {
			res.Skipped++
			continue
		}

		now := l.now()
		t := &transaction.Transaction{
			Entity:      types.EntityAt(now),
			ID:          id.NewTransactionID(),
			AccountID:   accountID,
			Description: e.Note,
			Amount:      e.Amount.Abs(),
			Type:        e.TransactionType(),
			Date:        e.Date,
			CreatedBy:   caller.ID,
		}
		markApproved(t, caller.ID, now)

		if err := l.post(ctx, t); err != nil {
			errs.Add(fmt.Errorf("row %d %s: %w", e.Row, e.AccountType, err))
			continue
		}
		l.plugins.EmitTransactionCreated(ctx, t)
		res.Posted++
	}

	l.logger.Info("statement imported",
		"user_id", childID.String(),
		"posted", res.Posted,
		"skipped", res.Skipped,
		"failed", len(errs.Errors),
	)
	return res, errs.ErrOrNil()
}

// ExportStatement writes the transactions visible to caller, filtered by
// opts, as a CSV statement.
func (l *Ledger) ExportStatement(ctx context.Context, caller Caller, w io.Writer, opts transaction.ListOpts) error {
	accounts, err := l.ListAccounts(ctx, caller, account.ListOpts{})
	if err != nil {
		return err
	}
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID.String()] = a.Name
	}

	txns, err := l.ListTransactions(ctx, caller, opts)
	if err != nil {
		return err
	}

	rows := make([]statement.Row, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, statement.NewRow(t, names[t.AccountID.String()]))
	}
	if err := statement.Export(w, rows); err != nil {
		return internal("export statement", err)
	}
	return nil
}
