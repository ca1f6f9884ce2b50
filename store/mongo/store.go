package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	fstore "github.com/xraph/famledger/store"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

// Collection name constants.
const (
	colUsers        = "famledger_users"
	colAccounts     = "famledger_accounts"
	colTransactions = "famledger_transactions"
	colRecurring    = "famledger_recurring"
)

// compile-time interface check
var _ fstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all famledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("famledger/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toUserModel(u)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return famledger.ErrAlreadyExists
		}
		return fmt.Errorf("famledger/mongo: create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, famledger.ErrUserNotFound
		}
		return nil, fmt.Errorf("famledger/mongo: get user: %w", err)
	}
	return fromUserModel(&m)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"email_lower": strings.ToLower(email)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, famledger.ErrUserNotFound
		}
		return nil, fmt.Errorf("famledger/mongo: get user by email: %w", err)
	}
	return fromUserModel(&m)
}

func (s *Store) ListUsers(ctx context.Context, opts user.ListOpts) ([]*user.User, error) {
	var models []userModel

	filter := bson.M{}
	if opts.Role != "" {
		filter["role"] = string(opts.Role)
	}
	if len(opts.IDs) > 0 {
		filter["_id"] = bson.M{"$in": idStrings(opts.IDs)}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("famledger/mongo: list users: %w", err)
	}
	return fromUserModels(models)
}

func (s *Store) ListChildrenOf(ctx context.Context, parentID id.UserID) ([]*user.User, error) {
	var models []userModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"role": string(user.RoleChild),
			"$or": bson.A{
				bson.M{"parent_id": parentID.String()},
				bson.M{"parents": parentID.String()},
			},
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("famledger/mongo: list children: %w", err)
	}
	return fromUserModels(models)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return famledger.ErrAlreadyExists
		}
		return fmt.Errorf("famledger/mongo: update user: %w", err)
	}
	if res.MatchedCount() == 0 {
		return famledger.ErrUserNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID id.UserID) error {
	res, err := s.mdb.NewDelete((*userModel)(nil)).
		Filter(bson.M{"_id": userID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: delete user: %w", err)
	}
	if res.DeletedCount() == 0 {
		return famledger.ErrUserNotFound
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.mdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return famledger.ErrAlreadyExists
		}
		return fmt.Errorf("famledger/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, famledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("famledger/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	filter := bson.M{}
	if len(opts.OwnerIDs) > 0 {
		filter["owner_id"] = bson.M{"$in": idStrings(opts.OwnerIDs)}
	}
	if len(opts.Types) > 0 {
		typs := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			typs[i] = string(t)
		}
		filter["type"] = bson.M{"$in": typs}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("famledger/mongo: list accounts: %w", err)
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

// UpdateAccount never touches the balance field.
func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": a.ID.String()}).
		Set("name", a.Name).
		Set("type", string(a.Type)).
		Set("interest_rate", a.InterestRate.String()).
		Set("updated_at", a.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return famledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, accountID id.AccountID) error {
	res, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: delete account: %w", err)
	}
	if res.DeletedCount() == 0 {
		return famledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) AdjustBalance(ctx context.Context, accountID id.AccountID, delta types.Money) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		SetUpdate(bson.M{
			"$inc": bson.M{"balance": delta.Amount},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: adjust balance: %w", err)
	}
	if res.MatchedCount() == 0 {
		return famledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) SetBalance(ctx context.Context, accountID id.AccountID, balance types.Money) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("balance", balance.Amount).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: set balance: %w", err)
	}
	if res.MatchedCount() == 0 {
		return famledger.ErrAccountNotFound
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	_, err := s.mdb.NewInsert(toTransactionModel(t)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return famledger.ErrAlreadyExists
		}
		return fmt.Errorf("famledger/mongo: create transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": txnID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, famledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("famledger/mongo: get transaction: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel

	filter := bson.M{}
	if len(opts.AccountIDs) > 0 {
		filter["account_id"] = bson.M{"$in": idStrings(opts.AccountIDs)}
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if !opts.IncludeDeleted {
		filter["deleted"] = false
	}
	dateRange := bson.M{}
	if !opts.From.IsZero() {
		dateRange["$gte"] = opts.From
	}
	if !opts.To.IsZero() {
		dateRange["$lte"] = opts.To
	}
	if len(dateRange) > 0 {
		filter["date"] = dateRange
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("famledger/mongo: list transactions: %w", err)
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
	m := toTransactionModel(t)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: update transaction: %w", err)
	}
	if res.MatchedCount() == 0 {
		return famledger.ErrTransactionNotFound
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, txnID id.TransactionID) error {
	res, err := s.mdb.NewDelete((*transactionModel)(nil)).
		Filter(bson.M{"_id": txnID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: delete transaction: %w", err)
	}
	if res.DeletedCount() == 0 {
		return famledger.ErrTransactionNotFound
	}
	return nil
}

// ==================== Recurring Store ====================

func (s *Store) CreateRecurring(ctx context.Context, d *recurring.Definition) error {
	_, err := s.mdb.NewInsert(toRecurringModel(d)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return famledger.ErrAlreadyExists
		}
		return fmt.Errorf("famledger/mongo: create recurring: %w", err)
	}
	return nil
}

func (s *Store) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Definition, error) {
	var m recurringModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": recID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, famledger.ErrRecurringNotFound
		}
		return nil, fmt.Errorf("famledger/mongo: get recurring: %w", err)
	}
	return fromRecurringModel(&m)
}

func (s *Store) ListRecurring(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	var models []recurringModel

	filter := bson.M{}
	if len(opts.UserIDs) > 0 {
		filter["user_id"] = bson.M{"$in": idStrings(opts.UserIDs)}
	}
	if !opts.AccountID.IsNil() {
		filter["account_id"] = opts.AccountID.String()
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(dueOrder)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("famledger/mongo: list recurring: %w", err)
	}
	return fromRecurringModels(models)
}

func (s *Store) ListDueRecurring(ctx context.Context, at time.Time) ([]*recurring.Definition, error) {
	var models []recurringModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"active":    true,
			"next_date": bson.M{"$lte": at},
		}).
		Sort(dueOrder).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("famledger/mongo: list due recurring: %w", err)
	}
	return fromRecurringModels(models)
}

func (s *Store) FindRecurring(ctx context.Context, accountID id.AccountID, typ recurring.Type, name string) (*recurring.Definition, error) {
	var m recurringModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"account_id": accountID.String(),
			"type":       string(typ),
			"name":       name,
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, famledger.ErrRecurringNotFound
		}
		return nil, fmt.Errorf("famledger/mongo: find recurring: %w", err)
	}
	return fromRecurringModel(&m)
}

func (s *Store) UpdateRecurring(ctx context.Context, d *recurring.Definition) error {
	m := toRecurringModel(d)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: update recurring: %w", err)
	}
	if res.MatchedCount() == 0 {
		return famledger.ErrRecurringNotFound
	}
	return nil
}

func (s *Store) DeleteRecurring(ctx context.Context, recID id.RecurringID) error {
	res, err := s.mdb.NewDelete((*recurringModel)(nil)).
		Filter(bson.M{"_id": recID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("famledger/mongo: delete recurring: %w", err)
	}
	if res.DeletedCount() == 0 {
		return famledger.ErrRecurringNotFound
	}
	return nil
}

// ==================== Helpers ====================

var dueOrder = bson.D{{Key: "next_date", Value: 1}, {Key: "created_at", Value: 1}}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
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

// migrationIndexes returns the index definitions for all famledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{
				Keys: bson.D{{Key: "email_lower", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"email_lower": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
			{Keys: bson.D{{Key: "parents", Value: 1}}},
		},
		colAccounts: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "type", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "date", Value: -1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "recurring_id", Value: 1}}},
		},
		colRecurring: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "next_date", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "type", Value: 1}, {Key: "name", Value: 1}}},
		},
	}
}
