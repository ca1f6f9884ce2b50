package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	fstore "github.com/xraph/famledger/store"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

// compile-time interface check
var _ fstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("famledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("famledger/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.pg.NewInsert(toUserModel(u)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	m := new(userModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", userID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, famledger.ErrUserNotFound
		}
		return nil, err
	}
	return fromUserModel(m)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	m := new(userModel)
	err := s.pg.NewSelect(m).
		Where("LOWER(email) = LOWER($1)", email).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, famledger.ErrUserNotFound
		}
		return nil, err
	}
	return fromUserModel(m)
}

func (s *Store) ListUsers(ctx context.Context, opts user.ListOpts) ([]*user.User, error) {
	var models []userModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Role != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("role = $%d", argIdx), string(opts.Role))
	}
	if len(opts.IDs) > 0 {
		q = q.Where(fmt.Sprintf("id IN (%s)", placeholders(argIdx+1, len(opts.IDs))), idArgs(opts.IDs)...)
		argIdx += len(opts.IDs)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromUserModels(models)
}

func (s *Store) ListChildrenOf(ctx context.Context, parentID id.UserID) ([]*user.User, error) {
	contains, err := json.Marshal([]string{parentID.String()})
	if err != nil {
		return nil, err
	}
	var models []userModel
	err = s.pg.NewSelect(&models).
		Where("role = $1", string(user.RoleChild)).
		Where("(parent_id = $2 OR parents @> $3::jsonb)", parentID.String(), string(contains)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromUserModels(models)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	res, err := s.pg.NewUpdate(toUserModel(u)).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return famledger.ErrAlreadyExists
		}
		return err
	}
	return expectRow(res, famledger.ErrUserNotFound)
}

func (s *Store) DeleteUser(ctx context.Context, userID id.UserID) error {
	res, err := s.pg.NewDelete((*userModel)(nil)).
		Where("id = $1", userID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrUserNotFound)
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.pg.NewInsert(toAccountModel(a)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, famledger.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if len(opts.OwnerIDs) > 0 {
		q = q.Where(fmt.Sprintf("owner_id IN (%s)", placeholders(argIdx+1, len(opts.OwnerIDs))), idArgs(opts.OwnerIDs)...)
		argIdx += len(opts.OwnerIDs)
	}
	if len(opts.Types) > 0 {
		args := make([]any, len(opts.Types))
		for i, t := range opts.Types {
			args[i] = string(t)
		}
		q = q.Where(fmt.Sprintf("type IN (%s)", placeholders(argIdx+1, len(args))), args...)
		argIdx += len(args)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// UpdateAccount writes the mutable descriptive columns. The balance column
// is owned by AdjustBalance and SetBalance.
func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("name = $1", a.Name).
		Set("type = $2", string(a.Type)).
		Set("interest_rate = $3", a.InterestRate.String()).
		Set("updated_at = $4", a.UpdatedAt).
		Where("id = $5", a.ID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

func (s *Store) DeleteAccount(ctx context.Context, accountID id.AccountID) error {
	res, err := s.pg.NewDelete((*accountModel)(nil)).
		Where("id = $1", accountID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

// AdjustBalance adds delta in a single UPDATE so concurrent writers never
// overwrite each other.
func (s *Store) AdjustBalance(ctx context.Context, accountID id.AccountID, delta types.Money) error {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("balance = balance + $1", delta.Amount).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

func (s *Store) SetBalance(ctx context.Context, accountID id.AccountID, balance types.Money) error {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("balance = $1", balance.Amount).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	_, err := s.pg.NewInsert(toTransactionModel(t)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", txnID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, famledger.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if len(opts.AccountIDs) > 0 {
		q = q.Where(fmt.Sprintf("account_id IN (%s)", placeholders(argIdx+1, len(opts.AccountIDs))), idArgs(opts.AccountIDs)...)
		argIdx += len(opts.AccountIDs)
	}
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), string(opts.Type))
	}
	if !opts.IncludeDeleted {
		q = q.Where("deleted = FALSE")
	}
	if !opts.From.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("date >= $%d", argIdx), opts.From)
	}
	if !opts.To.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("date <= $%d", argIdx), opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("date DESC, created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *transaction.Transaction) error {
	res, err := s.pg.NewUpdate(toTransactionModel(t)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrTransactionNotFound)
}

func (s *Store) DeleteTransaction(ctx context.Context, txnID id.TransactionID) error {
	res, err := s.pg.NewDelete((*transactionModel)(nil)).
		Where("id = $1", txnID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrTransactionNotFound)
}

// ==================== Recurring Store ====================

func (s *Store) CreateRecurring(ctx context.Context, d *recurring.Definition) error {
	_, err := s.pg.NewInsert(toRecurringModel(d)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Definition, error) {
	m := new(recurringModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", recID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, famledger.ErrRecurringNotFound
		}
		return nil, err
	}
	return fromRecurringModel(m)
}

func (s *Store) ListRecurring(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	var models []recurringModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if len(opts.UserIDs) > 0 {
		q = q.Where(fmt.Sprintf("user_id IN (%s)", placeholders(argIdx+1, len(opts.UserIDs))), idArgs(opts.UserIDs)...)
		argIdx += len(opts.UserIDs)
	}
	if !opts.AccountID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("account_id = $%d", argIdx), opts.AccountID.String())
	}
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), string(opts.Type))
	}
	if opts.Active != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("active = $%d", argIdx), *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("next_date ASC, created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromRecurringModels(models)
}

func (s *Store) ListDueRecurring(ctx context.Context, at time.Time) ([]*recurring.Definition, error) {
	var models []recurringModel
	err := s.pg.NewSelect(&models).
		Where("active = TRUE").
		Where("next_date <= $1", at).
		OrderExpr("next_date ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromRecurringModels(models)
}

func (s *Store) FindRecurring(ctx context.Context, accountID id.AccountID, typ recurring.Type, name string) (*recurring.Definition, error) {
	m := new(recurringModel)
	err := s.pg.NewSelect(m).
		Where("account_id = $1", accountID.String()).
		Where("type = $2", string(typ)).
		Where("name = $3", name).
		OrderExpr("created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, famledger.ErrRecurringNotFound
		}
		return nil, err
	}
	return fromRecurringModel(m)
}

func (s *Store) UpdateRecurring(ctx context.Context, d *recurring.Definition) error {
	res, err := s.pg.NewUpdate(toRecurringModel(d)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrRecurringNotFound)
}

func (s *Store) DeleteRecurring(ctx context.Context, recID id.RecurringID) error {
	res, err := s.pg.NewDelete((*recurringModel)(nil)).
		Where("id = $1", recID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrRecurringNotFound)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// rowsResult is the part of a grove exec result that expectRow reads.
type rowsResult interface {
	RowsAffected() (int64, error)
}

func expectRow(res rowsResult, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// placeholders renders "$start, $start+1, ..." for an IN list of n values.
func placeholders(start, n int) string {
	if n == 0 {
		return "NULL"
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func idArgs(ids []id.ID) []any {
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v.String()
	}
	return args
}

func fromUserModels(models []userModel) ([]*user.User, error) {
	result := make([]*user.User, len(models))
	for i := range models {
		u, err := fromUserModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = u
	}
	return result, nil
}

func fromRecurringModels(models []recurringModel) ([]*recurring.Definition, error) {
	result := make([]*recurring.Definition, len(models))
	for i := range models {
		d, err := fromRecurringModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}
