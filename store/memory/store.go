package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/store"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

var _ store.Store = (*Store)(nil)

// Store keeps every record in process memory. Records are copied on the way
// in and on the way out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	users        map[string]*user.User
	accounts     map[string]*account.Account
	transactions map[string]*transaction.Transaction
	recurring    map[string]*recurring.Definition
}

func New() *Store {
	return &Store{
		users:        make(map[string]*user.User),
		accounts:     make(map[string]*account.Account),
		transactions: make(map[string]*transaction.Transaction),
		recurring:    make(map[string]*recurring.Definition),
	}
}

// User Store implementation
func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID.String()]; exists {
		return famledger.ErrAlreadyExists
	}
	if u.Email != "" {
		for _, existing := range s.users {
			if strings.EqualFold(existing.Email, u.Email) {
				return famledger.ErrAlreadyExists
			}
		}
	}
	s.users[u.ID.String()] = cloneUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID.String()]; ok {
		return cloneUser(u), nil
	}
	return nil, famledger.ErrUserNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, famledger.ErrUserNotFound
}

func (s *Store) ListUsers(_ context.Context, opts user.ListOpts) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := idSet(opts.IDs)
	result := make([]*user.User, 0)
	for _, u := range s.users {
		if opts.Role != "" && u.Role != opts.Role {
			continue
		}
		if ids != nil {
			if _, ok := ids[u.ID.String()]; !ok {
				continue
			}
		}
		result = append(result, cloneUser(u))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListChildrenOf(_ context.Context, parentID id.UserID) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*user.User, 0)
	for _, u := range s.users {
		if u.IsChild() && u.HasParent(parentID) {
			result = append(result, cloneUser(u))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID.String()]; !exists {
		return famledger.ErrUserNotFound
	}
	s.users[u.ID.String()] = cloneUser(u)
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID.String()]; !exists {
		return famledger.ErrUserNotFound
	}
	delete(s.users, userID.String())
	return nil
}

// Account Store implementation
func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return famledger.ErrAlreadyExists
	}
	c := *a
	s.accounts[a.ID.String()] = &c
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		c := *a
		return &c, nil
	}
	return nil, famledger.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := idSet(opts.OwnerIDs)
	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if owners != nil {
			if _, ok := owners[a.OwnerID.String()]; !ok {
				continue
			}
		}
		if len(opts.Types) > 0 && !containsType(opts.Types, a.Type) {
			continue
		}
		c := *a
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[a.ID.String()]
	if !ok {
		return famledger.ErrAccountNotFound
	}
	existing.Name = a.Name
	existing.Type = a.Type
	existing.InterestRate = a.InterestRate
	existing.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[accountID.String()]; !exists {
		return famledger.ErrAccountNotFound
	}
	delete(s.accounts, accountID.String())
	return nil
}

func (s *Store) AdjustBalance(_ context.Context, accountID id.AccountID, delta types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return famledger.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetBalance(_ context.Context, accountID id.AccountID, balance types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return famledger.ErrAccountNotFound
	}
	a.Balance = balance
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Transaction Store implementation
func (s *Store) CreateTransaction(_ context.Context, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[t.ID.String()]; exists {
		return famledger.ErrAlreadyExists
	}
	s.transactions[t.ID.String()] = t.Clone()
	return nil
}

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.transactions[txnID.String()]; ok {
		return t.Clone(), nil
	}
	return nil, famledger.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := idSet(opts.AccountIDs)
	result := make([]*transaction.Transaction, 0)
	for _, t := range s.transactions {
		if accounts != nil {
			if _, ok := accounts[t.AccountID.String()]; !ok {
				continue
			}
		}
		if opts.Type != "" && t.Type != opts.Type {
			continue
		}
		if !opts.IncludeDeleted && t.Deleted {
			continue
		}
		if !opts.From.IsZero() && t.Date.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && t.Date.After(opts.To) {
			continue
		}
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateTransaction(_ context.Context, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[t.ID.String()]; !exists {
		return famledger.ErrTransactionNotFound
	}
	s.transactions[t.ID.String()] = t.Clone()
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, txnID id.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[txnID.String()]; !exists {
		return famledger.ErrTransactionNotFound
	}
	delete(s.transactions, txnID.String())
	return nil
}

// Recurring Store implementation
func (s *Store) CreateRecurring(_ context.Context, d *recurring.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recurring[d.ID.String()]; exists {
		return famledger.ErrAlreadyExists
	}
	s.recurring[d.ID.String()] = d.Clone()
	return nil
}

func (s *Store) GetRecurring(_ context.Context, recID id.RecurringID) (*recurring.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.recurring[recID.String()]; ok {
		return d.Clone(), nil
	}
	return nil, famledger.ErrRecurringNotFound
}

func (s *Store) ListRecurring(_ context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := idSet(opts.UserIDs)
	result := make([]*recurring.Definition, 0)
	for _, d := range s.recurring {
		if users != nil {
			if _, ok := users[d.UserID.String()]; !ok {
				continue
			}
		}
		if !opts.AccountID.IsNil() && !d.AccountID.Equal(opts.AccountID) {
			continue
		}
		if opts.Type != "" && d.Type != opts.Type {
			continue
		}
		if opts.Active != nil && d.Active != *opts.Active {
			continue
		}
		result = append(result, d.Clone())
	}
	sortDefinitions(result)
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListDueRecurring(_ context.Context, now time.Time) ([]*recurring.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*recurring.Definition, 0)
	for _, d := range s.recurring {
		if d.IsDue(now) {
			result = append(result, d.Clone())
		}
	}
	sortDefinitions(result)
	return result, nil
}

func (s *Store) FindRecurring(_ context.Context, accountID id.AccountID, typ recurring.Type, name string) (*recurring.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *recurring.Definition
	for _, d := range s.recurring {
		if d.AccountID.Equal(accountID) && d.Type == typ && d.Name == name {
			if found == nil || d.CreatedAt.Before(found.CreatedAt) {
				found = d
			}
		}
	}
	if found == nil {
		return nil, famledger.ErrRecurringNotFound
	}
	return found.Clone(), nil
}

func (s *Store) UpdateRecurring(_ context.Context, d *recurring.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recurring[d.ID.String()]; !exists {
		return famledger.ErrRecurringNotFound
	}
	s.recurring[d.ID.String()] = d.Clone()
	return nil
}

func (s *Store) DeleteRecurring(_ context.Context, recID id.RecurringID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recurring[recID.String()]; !exists {
		return famledger.ErrRecurringNotFound
	}
	delete(s.recurring, recID.String())
	return nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions
func cloneUser(u *user.User) *user.User {
	c := *u
	if u.DateOfBirth != nil {
		dob := *u.DateOfBirth
		c.DateOfBirth = &dob
	}
	if u.Parents != nil {
		c.Parents = append([]id.UserID(nil), u.Parents...)
	}
	return &c
}

func idSet(ids []id.ID) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, i := range ids {
		set[i.String()] = struct{}{}
	}
	return set
}

func containsType(ts []account.Type, t account.Type) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func sortDefinitions(defs []*recurring.Definition) {
	sort.Slice(defs, func(i, j int) bool {
		if !defs[i].NextDate.Equal(defs[j].NextDate) {
			return defs[i].NextDate.Before(defs[j].NextDate)
		}
		return defs[i].CreatedAt.Before(defs[j].CreatedAt)
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
