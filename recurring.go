package famledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// CreateRecurringInput describes a new recurring definition. UserID
// defaults to the account owner. Active defaults to true.
type CreateRecurringInput struct {
	Name         string
	Description  string
	Amount       types.Money
	Type         recurring.Type
	Frequency    recurring.Frequency
	AccountID    id.AccountID
	UserID       id.UserID
	Distribution recurring.Distribution
	NextDate     time.Time
	Active       *bool
}

// RecurringPatch is a partial update. Nil fields are left unchanged.
type RecurringPatch struct {
	Name         *string
	Description  *string
	Amount       *types.Money
	Frequency    *recurring.Frequency
	AccountID    *id.AccountID
	Distribution recurring.Distribution
	NextDate     *time.Time
	Active       *bool
}

// ──────────────────────────────────────────────────
// Definitions
// ──────────────────────────────────────────────────

// CreateRecurring stores a recurring definition. The caller must be the
// beneficiary or one of its parents. An allowance needs a distribution
// summing to 100 and no other active allowance for the beneficiary.
func (l *Ledger) CreateRecurring(ctx context.Context, caller Caller, in CreateRecurringInput) (*recurring.Definition, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, invalid("name", "is required")
	case !in.Amount.IsPositive():
		return nil, invalid("amount", "must be greater than zero")
	case !in.Type.Valid():
		return nil, invalid("type", "unknown recurring type %q", in.Type)
	case !in.Frequency.Valid():
		return nil, invalid("frequency", "unknown frequency %q", in.Frequency)
	case in.AccountID.IsNil():
		return nil, invalid("account_id", "is required")
	case in.NextDate.IsZero():
		return nil, invalid("next_date", "is required")
	}

	a, err := l.authorizeAccount(ctx, caller, in.AccountID)
	if err != nil {
		return nil, err
	}
	beneficiary := in.UserID
	if beneficiary.IsNil() {
		beneficiary = a.OwnerID
	}
	if _, err := l.authorizeUser(ctx, caller, beneficiary); err != nil {
		return nil, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	now := l.now()
	d := &recurring.Definition{
		Entity:      types.EntityAt(now),
		ID:          id.NewRecurringID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Type:        in.Type,
		Frequency:   in.Frequency,
		AccountID:   in.AccountID,
		UserID:      beneficiary,
		CreatedBy:   caller.ID,
		NextDate:    in.NextDate,
		Active:      active,
	}
	if d.Description == "" {
		d.Description = name
	}

	if d.IsAllowance() {
		if err := validateDistribution(in.Distribution); err != nil {
			return nil, err
		}
		d.Distribution = in.Distribution

		unlock := l.locks.lock(beneficiary)
		defer unlock()
		if d.Active {
			if err := l.checkSingleAllowance(ctx, beneficiary, id.Nil); err != nil {
				return nil, err
			}
		}
	}

	if err := l.store.CreateRecurring(ctx, d); err != nil {
		return nil, internal("create recurring", err)
	}

	l.plugins.EmitRecurringCreated(ctx, d)
	return d, nil
}

// GetRecurring returns a definition whose beneficiary is visible to caller.
func (l *Ledger) GetRecurring(ctx context.Context, caller Caller, recID id.RecurringID) (*recurring.Definition, error) {
	d, err := l.store.GetRecurring(ctx, recID)
	if err != nil {
		return nil, internal("get recurring", err)
	}
	if _, err := l.authorizeUser(ctx, caller, d.UserID); err != nil {
		return nil, err
	}
	return d, nil
}

// ListRecurring lists definitions whose beneficiaries are in caller's
// scope.
func (l *Ledger) ListRecurring(ctx context.Context, caller Caller, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	s, err := l.Scope(ctx, caller)
	if err != nil {
		return nil, err
	}

	if len(opts.UserIDs) == 0 {
		opts.UserIDs = s.UserIDs()
	} else {
		users := make([]id.UserID, 0, len(opts.UserIDs))
		for _, u := range opts.UserIDs {
			if s.AllowsUser(u) {
				users = append(users, u)
			}
		}
		if len(users) == 0 {
			return []*recurring.Definition{}, nil
		}
		opts.UserIDs = users
	}

	defs, err := l.store.ListRecurring(ctx, opts)
	if err != nil {
		return nil, internal("list recurring", err)
	}
	return defs, nil
}

// UpdateRecurring patches a definition. Allowance distributions are
// re-validated, and reactivating an allowance re-checks that the
// beneficiary has no other active one.
func (l *Ledger) UpdateRecurring(ctx context.Context, caller Caller, recID id.RecurringID, patch RecurringPatch) (*recurring.Definition, error) {
	d, err := l.GetRecurring(ctx, caller, recID)
	if err != nil {
		return nil, err
	}
	wasActive := d.Active

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name", "is required")
		}
		d.Name = name
	}
	if patch.Description != nil {
		d.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return nil, invalid("amount", "must be greater than zero")
		}
		d.Amount = *patch.Amount
	}
	if patch.Frequency != nil {
		if !patch.Frequency.Valid() {
			return nil, invalid("frequency", "unknown frequency %q", *patch.Frequency)
		}
		d.Frequency = *patch.Frequency
	}
	if patch.AccountID != nil && !patch.AccountID.Equal(d.AccountID) {
		if _, err := l.authorizeAccount(ctx, caller, *patch.AccountID); err != nil {
			return nil, err
		}
		d.AccountID = *patch.AccountID
	}
	if patch.NextDate != nil {
		if patch.NextDate.IsZero() {
			return nil, invalid("next_date", "must not be zero")
		}
		d.NextDate = *patch.NextDate
	}
	if patch.Active != nil {
		d.Active = *patch.Active
	}

	if d.IsAllowance() {
		if patch.Distribution != nil {
			d.Distribution = patch.Distribution
		}
		if err := validateDistribution(d.Distribution); err != nil {
			return nil, err
		}

		unlock := l.locks.lock(d.UserID)
		defer unlock()
		if d.Active && !wasActive {
			if err := l.checkSingleAllowance(ctx, d.UserID, d.ID); err != nil {
				return nil, err
			}
		}
	}

	d.TouchAt(l.now())
	if err := l.store.UpdateRecurring(ctx, d); err != nil {
		return nil, internal("update recurring", err)
	}
	return d, nil
}

// DeleteRecurring removes a definition. Transactions it already posted
// stand.
func (l *Ledger) DeleteRecurring(ctx context.Context, caller Caller, recID id.RecurringID) error {
	if _, err := l.GetRecurring(ctx, caller, recID); err != nil {
		return err
	}
	if err := l.store.DeleteRecurring(ctx, recID); err != nil {
		return internal("delete recurring", err)
	}

	l.plugins.EmitRecurringDeleted(ctx, recID)
	return nil
}

func validateDistribution(dist recurring.Distribution) error {
	if len(dist) == 0 {
		return invalid("distribution", "is required for allowances")
	}
	if !dist.Valid() {
		return fmt.Errorf("%w: got %s", ErrInvalidDistribution, dist.Total().String())
	}
	return nil
}

// checkSingleAllowance fails when userID already has an active allowance
// other than except. The caller holds the user's lock.
func (l *Ledger) checkSingleAllowance(ctx context.Context, userID id.UserID, except id.RecurringID) error {
	active := true
	existing, err := l.store.ListRecurring(ctx, recurring.ListOpts{
		UserIDs: []id.UserID{userID},
		Type:    recurring.TypeAllowance,
		Active:  &active,
	})
	if err != nil {
		return internal("list allowances", err)
	}
	for _, d := range existing {
		if !d.ID.Equal(except) {
			return fmt.Errorf("%w: %s", ErrActiveAllowanceExists, d.ID)
		}
	}
	return nil
}

// deactivateRecurring pauses every active definition matching opts.
func (l *Ledger) deactivateRecurring(ctx context.Context, opts recurring.ListOpts) error {
	active := true
	opts.Active = &active
	defs, err := l.store.ListRecurring(ctx, opts)
	if err != nil {
		return internal("list recurring", err)
	}
	for _, d := range defs {
		d.Active = false
		d.TouchAt(l.now())
		if err := l.store.UpdateRecurring(ctx, d); err != nil {
			return internal("deactivate recurring", err)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Due processing
// ──────────────────────────────────────────────────

// DueResult is the outcome of one due pass. Both lists keep the order in
// which definitions were due.
type DueResult struct {
	Processed []ProcessedItem `json:"processed"`
	Errors    []ItemError     `json:"errors"`
}

// ProcessedItem describes a definition that posted successfully.
type ProcessedItem struct {
	RecurringID  id.RecurringID             `json:"id"`
	Name         string                     `json:"name"`
	Type         recurring.Type             `json:"type"`
	Amount       types.Money                `json:"amount"`
	NextDate     time.Time                  `json:"next_date"`
	Transactions []*transaction.Transaction `json:"transactions"`
}

// ItemError attributes a failure to one definition.
type ItemError struct {
	RecurringID id.RecurringID `json:"id"`
	Name        string         `json:"name"`
	Err         error          `json:"-"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("famledger: recurring %s (%s): %v", e.RecurringID, e.Name, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// ProcessDue posts every definition due at now. Interest definitions are
// synced and refreshed first. A failing definition is recorded in Errors
// and does not stop the others; its schedule is left unchanged so the
// next pass retries it. Passes never overlap; a call made while another
// pass is running waits for it.
func (l *Ledger) ProcessDue(ctx context.Context, now time.Time) (*DueResult, error) {
	l.passMu.Lock()
	defer l.passMu.Unlock()

	start := time.Now()

	if l.refreshInterest {
		if _, err := l.syncInterest(ctx, now); err != nil {
			return nil, fmt.Errorf("sync interest: %w", err)
		}
		if _, err := l.RefreshInterestAmounts(ctx); err != nil {
			return nil, fmt.Errorf("refresh interest: %w", err)
		}
	}

	due, err := l.store.ListDueRecurring(ctx, now)
	if err != nil {
		return nil, internal("list due recurring", err)
	}

	type outcome struct {
		item *ProcessedItem
		err  error
	}
	outcomes := make([]outcome, len(due))

	var g errgroup.Group
	g.SetLimit(l.processConcurrency)
	for i, d := range due {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			item, err := l.processOne(ctx, d, now)
			outcomes[i] = outcome{item: item, err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record failures per item

	res := &DueResult{
		Processed: make([]ProcessedItem, 0, len(due)),
		Errors:    make([]ItemError, 0),
	}
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, ItemError{RecurringID: due[i].ID, Name: due[i].Name, Err: o.err})
			continue
		}
		if o.item == nil {
			continue
		}
		res.Processed = append(res.Processed, *o.item)
	}

	elapsed := time.Since(start)
	l.plugins.EmitDuePassCompleted(ctx, len(res.Processed), len(res.Errors), elapsed)
	l.logger.Info("due pass completed",
		"due", len(due),
		"processed", len(res.Processed),
		"failed", len(res.Errors),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// processOne posts one definition and advances its schedule. If anything
// fails after a posting, the postings are reversed so a retry cannot post
// twice. It returns a nil item when the definition was already handled,
// deleted or paused since it was listed.
func (l *Ledger) processOne(ctx context.Context, listed *recurring.Definition, now time.Time) (*ProcessedItem, error) {
	unlock := l.locks.lock(listed.ID)
	defer unlock()

	d, err := l.store.GetRecurring(ctx, listed.ID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, internal("get recurring", err)
	}
	if !d.IsDue(now) || !d.NextDate.Equal(listed.NextDate) {
		return nil, nil
	}

	var posted []*transaction.Transaction
	if d.IsAllowance() {
		posted, err = l.postAllowance(ctx, d, now)
	} else {
		var t *transaction.Transaction
		t, err = l.postScheduled(ctx, d, d.AccountID, d.Amount, d.Type.PostingType(), regularDescription(d), now)
		if t != nil {
			posted = append(posted, t)
		}
	}
	if err != nil {
		l.revertPostings(ctx, d, posted)
		return nil, err
	}

	d.Advance(now)
	d.TouchAt(now)
	if err := l.store.UpdateRecurring(ctx, d); err != nil {
		l.revertPostings(ctx, d, posted)
		return nil, internal("advance recurring", err)
	}

	for _, t := range posted {
		l.plugins.EmitTransactionCreated(ctx, t)
	}
	l.plugins.EmitRecurringProcessed(ctx, d, posted)

	return &ProcessedItem{
		RecurringID:  d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Amount:       d.Amount,
		NextDate:     d.NextDate,
		Transactions: posted,
	}, nil
}

// postAllowance deposits each share of the allowance on the beneficiary's
// account of that type. Types the beneficiary has no account for, or with
// a zero share, are skipped.
func (l *Ledger) postAllowance(ctx context.Context, d *recurring.Definition, now time.Time) ([]*transaction.Transaction, error) {
	accounts, err := l.store.ListAccounts(ctx, account.ListOpts{OwnerIDs: []id.UserID{d.UserID}})
	if err != nil {
		return nil, internal("list accounts", err)
	}
	byType := make(map[account.Type]*account.Account, len(account.Types))
	for _, a := range accounts {
		if _, seen := byType[a.Type]; !seen {
			byType[a.Type] = a
		}
	}

	description := d.Description
	if description == "" {
		description = "Recurring Allowance"
	}

	var posted []*transaction.Transaction
	for _, typ := range account.Types {
		share := d.Distribution.Share(typ)
		a, ok := byType[typ]
		if !ok || !share.IsPositive() {
			continue
		}
		amount := d.Amount.Percent(share)
		if !amount.IsPositive() {
			continue
		}
		t, err := l.postScheduled(ctx, d, a.ID, amount, transaction.TypeDeposit, description, now)
		if err != nil {
			return posted, fmt.Errorf("%s share: %w", typ, err)
		}
		posted = append(posted, t)
	}
	return posted, nil
}

func (l *Ledger) postScheduled(
	ctx context.Context,
	d *recurring.Definition,
	accountID id.AccountID,
	amount types.Money,
	typ transaction.Type,
	description string,
	now time.Time,
) (*transaction.Transaction, error) {
	t := &transaction.Transaction{
		Entity:      types.EntityAt(now),
		ID:          id.NewTransactionID(),
		AccountID:   accountID,
		Description: description,
		Amount:      amount,
		Type:        typ,
		Date:        now,
		RecurringID: d.ID,
		CreatedBy:   d.CreatedBy,
	}
	markApproved(t, d.CreatedBy, now)

	if err := l.post(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// revertPostings soft-deletes postings of a failed item through the normal
// transition path.
func (l *Ledger) revertPostings(ctx context.Context, d *recurring.Definition, posted []*transaction.Transaction) {
	for _, t := range posted {
		if _, _, err := l.transition(ctx, t.ID, func(t *transaction.Transaction, now time.Time) error {
			return markDeleted(t, id.Nil, now)
		}); err != nil {
			l.logger.Error("failed to revert recurring posting",
				"recurring_id", d.ID.String(),
				"transaction_id", t.ID.String(),
				"error", err,
			)
		}
	}
}

func regularDescription(d *recurring.Definition) string {
	if d.Description != "" {
		return d.Description
	}
	typ := string(d.Type)
	if typ == "" {
		return "Recurring"
	}
	return "Recurring " + strings.ToUpper(typ[:1]) + typ[1:]
}
