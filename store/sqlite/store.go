package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("famledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("famledger/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(toUserModel(u)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("email = ? COLLATE NOCASE", email).
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
	q := s.sdb.NewSelect(&models)

	if opts.Role != "" {
		q = q.Where("role = ?", string(opts.Role))
	}
	if len(opts.IDs) > 0 {
		q = q.Where(fmt.Sprintf("id IN (%s)", placeholders(len(opts.IDs))), idArgs(opts.IDs)...)
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
	var models []userModel
	err := s.sdb.NewSelect(&models).
		Where("role = ?", string(user.RoleChild)).
		Where("(parent_id = ? OR EXISTS (SELECT 1 FROM json_each(parents) WHERE json_each.value = ?))",
			parentID.String(), parentID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromUserModels(models)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	res, err := s.sdb.NewUpdate(toUserModel(u)).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return famledger.ErrAlreadyExists
		}
		return err
	}
	return expectRow(res, famledger.ErrUserNotFound)
}

func (s *Store) DeleteUser(ctx context.Context, userID id.UserID) error {
	res, err := s.sdb.NewDelete((*userModel)(nil)).
		Where("id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrUserNotFound)
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.sdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID.String()).
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
	q := s.sdb.NewSelect(&models)

	if len(opts.OwnerIDs) > 0 {
		q = q.Where(fmt.Sprintf("owner_id IN (%s)", placeholders(len(opts.OwnerIDs))), idArgs(opts.OwnerIDs)...)
	}
	if len(opts.Types) > 0 {
		args := make([]any, len(opts.Types))
		for i, t := range opts.Types {
			args[i] = string(t)
		}
		q = q.Where(fmt.Sprintf("type IN (%s)", placeholders(len(args))), args...)
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
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("name = ?", a.Name).
		Set("type = ?", string(a.Type)).
		Set("interest_rate = ?", a.InterestRate.String()).
		Set("updated_at = ?", a.UpdatedAt).
		Where("id = ?", a.ID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

func (s *Store) DeleteAccount(ctx context.Context, accountID id.AccountID) error {
	res, err := s.sdb.NewDelete((*accountModel)(nil)).
		Where("id = ?", accountID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

// AdjustBalance adds delta in a single UPDATE so concurrent writers never
// overwrite each other.
func (s *Store) AdjustBalance(ctx context.Context, accountID id.AccountID, delta types.Money) error {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("balance = balance + ?", delta.Amount).
		Set("updated_at = ?", now()).
		Where("id = ?", accountID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

func (s *Store) SetBalance(ctx context.Context, accountID id.AccountID, balance types.Money) error {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("balance = ?", balance.Amount).
		Set("updated_at = ?", now()).
		Where("id = ?", accountID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrAccountNotFound)
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	_, err := s.sdb.NewInsert(toTransactionModel(t)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", txnID.String()).
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
	q := s.sdb.NewSelect(&models)

	if len(opts.AccountIDs) > 0 {
		q = q.Where(fmt.Sprintf("account_id IN (%s)", placeholders(len(opts.AccountIDs))), idArgs(opts.AccountIDs)...)
	}
	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if !opts.IncludeDeleted {
		q = q.Where("deleted = 0")
	}
	if !opts.From.IsZero() {
		q = q.Where("date >= ?", opts.From)
	}
	if !opts.To.IsZero() {
		q = q.Where("date <= ?", opts.To)
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
	res, err := s.sdb.NewUpdate(toTransactionModel(t)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrTransactionNotFound)
}

func (s *Store) DeleteTransaction(ctx context.Context, txnID id.TransactionID) error {
	res, err := s.sdb.NewDelete((*transactionModel)(nil)).
		Where("id = ?", txnID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrTransactionNotFound)
}

// ==================== Recurring Store ====================

func (s *Store) CreateRecurring(ctx context.Context, d *recurring.Definition) error {
	_, err := s.sdb.NewInsert(toRecurringModel(d)).Exec(ctx)
	if isUniqueViolation(err) {
		return famledger.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Definition, error) {
	m := new(recurringModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", recID.String()).
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
	q := s.sdb.NewSelect(&models)

	if len(opts.UserIDs) > 0 {
		q = q.Where(fmt.Sprintf("user_id IN (%s)", placeholders(len(opts.UserIDs))), idArgs(opts.UserIDs)...)
	}
	if !opts.AccountID.IsNil() {
		q = q.Where("account_id = ?", opts.AccountID.String())
	}
	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
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
	err := s.sdb.NewSelect(&models).
		Where("active = 1").
		Where("next_date <= ?", at).
		OrderExpr("next_date ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromRecurringModels(models)
}

func (s *Store) FindRecurring(ctx context.Context, accountID id.AccountID, typ recurring.Type, name string) (*recurring.Definition, error) {
	m := new(recurringModel)
	err := s.sdb.NewSelect(m).
		Where("account_id = ?", accountID.String()).
		Where("type = ?", string(typ)).
		Where("name = ?", name).
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
	res, err := s.sdb.NewUpdate(toRecurringModel(d)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, famledger.ErrRecurringNotFound)
}

func (s *Store) DeleteRecurring(ctx context.Context, recID id.RecurringID) error {
	res, err := s.sdb.NewDelete((*recurringModel)(nil)).
		Where("id = ?", recID.String()).
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

// isUniqueViolation reports SQLITE_CONSTRAINT_UNIQUE and primary key clashes.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
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

// placeholders renders "?, ?, ..." for an IN list of n values.
func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
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
