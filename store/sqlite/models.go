package sqlite

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

// ==================== User models ====================

type userModel struct {
	grove.BaseModel `grove:"table:famledger_users"`

	ID          string     `grove:"id,pk"`
	Name        string     `grove:"name"`
	Email       string     `grove:"email"`
	Role        string     `grove:"role"`
	DateOfBirth *time.Time `grove:"date_of_birth"`
	ParentID    string     `grove:"parent_id"`
	Parents     string     `grove:"parents"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	ids := make([]string, 0, len(u.Parents))
	for _, p := range u.Parents {
		ids = append(ids, p.String())
	}
	parents, _ := json.Marshal(ids) //nolint:errcheck // strings always marshal
	return &userModel{
		ID:          u.ID.String(),
		Name:        u.Name,
		Email:       u.Email,
		Role:        string(u.Role),
		DateOfBirth: u.DateOfBirth,
		ParentID:    u.Parent.String(),
		Parents:     string(parents),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) (*user.User, error) {
	userID, err := id.ParseUserID(m.ID)
	if err != nil {
		return nil, err
	}
	legacy, err := id.ParseOptional(m.ParentID, id.PrefixUser)
	if err != nil {
		return nil, err
	}
	var ids []string
	if m.Parents != "" {
		if err := json.Unmarshal([]byte(m.Parents), &ids); err != nil {
			return nil, err
		}
	}
	var parents []id.UserID
	for _, p := range ids {
		pid, err := id.ParseUserID(p)
		if err != nil {
			return nil, err
		}
		parents = append(parents, pid)
	}

	return &user.User{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          userID,
		Name:        m.Name,
		Email:       m.Email,
		Role:        user.Role(m.Role),
		DateOfBirth: m.DateOfBirth,
		Parent:      legacy,
		Parents:     parents,
	}, nil
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:famledger_accounts"`

	ID           string    `grove:"id,pk"`
	OwnerID      string    `grove:"owner_id"`
	Name         string    `grove:"name"`
	Type         string    `grove:"type"`
	Balance      int64     `grove:"balance"`
	InterestRate string    `grove:"interest_rate"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:           a.ID.String(),
		OwnerID:      a.OwnerID.String(),
		Name:         a.Name,
		Type:         string(a.Type),
		Balance:      a.Balance.Amount,
		InterestRate: a.InterestRate.String(),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseUserID(m.OwnerID)
	if err != nil {
		return nil, err
	}
	rate := decimal.Zero
	if m.InterestRate != "" {
		if rate, err = decimal.NewFromString(m.InterestRate); err != nil {
			return nil, err
		}
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           accountID,
		OwnerID:      ownerID,
		Name:         m.Name,
		Type:         account.Type(m.Type),
		Balance:      types.Cents(m.Balance),
		InterestRate: rate,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:famledger_transactions"`

	ID              string     `grove:"id,pk"`
	AccountID       string     `grove:"account_id"`
	Description     string     `grove:"description"`
	Amount          int64      `grove:"amount"`
	Type            string     `grove:"type"`
	Date            time.Time  `grove:"date"`
	Approved        bool       `grove:"approved"`
	ApprovedBy      string     `grove:"approved_by"`
	ApprovedAt      *time.Time `grove:"approved_at"`
	Rejected        bool       `grove:"rejected"`
	RejectedBy      string     `grove:"rejected_by"`
	RejectedAt      *time.Time `grove:"rejected_at"`
	RejectionReason string     `grove:"rejection_reason"`
	Deleted         bool       `grove:"deleted"`
	DeletedBy       string     `grove:"deleted_by"`
	DeletedAt       *time.Time `grove:"deleted_at"`
	RecurringID     string     `grove:"recurring_id"`
	CreatedBy       string     `grove:"created_by"`
	CreatedAt       time.Time  `grove:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:              t.ID.String(),
		AccountID:       t.AccountID.String(),
		Description:     t.Description,
		Amount:          t.Amount.Amount,
		Type:            string(t.Type),
		Date:            t.Date,
		Approved:        t.Approved,
		ApprovedBy:      t.ApprovedBy.String(),
		ApprovedAt:      t.ApprovedAt,
		Rejected:        t.Rejected,
		RejectedBy:      t.RejectedBy.String(),
		RejectedAt:      t.RejectedAt,
		RejectionReason: t.RejectionReason,
		Deleted:         t.Deleted,
		DeletedBy:       t.DeletedBy.String(),
		DeletedAt:       t.DeletedAt,
		RecurringID:     t.RecurringID.String(),
		CreatedBy:       t.CreatedBy.String(),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	users := make([]id.UserID, 4)
	for i, s := range []string{m.ApprovedBy, m.RejectedBy, m.DeletedBy, m.CreatedBy} {
		if users[i], err = id.ParseOptional(s, id.PrefixUser); err != nil {
			return nil, err
		}
	}
	recID, err := id.ParseOptional(m.RecurringID, id.PrefixRecurring)
	if err != nil {
		return nil, err
	}

	return &transaction.Transaction{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              txnID,
		AccountID:       accountID,
		Description:     m.Description,
		Amount:          types.Cents(m.Amount),
		Type:            transaction.Type(m.Type),
		Date:            m.Date,
		Approved:        m.Approved,
		ApprovedBy:      users[0],
		ApprovedAt:      m.ApprovedAt,
		Rejected:        m.Rejected,
		RejectedBy:      users[1],
		RejectedAt:      m.RejectedAt,
		RejectionReason: m.RejectionReason,
		Deleted:         m.Deleted,
		DeletedBy:       users[2],
		DeletedAt:       m.DeletedAt,
		RecurringID:     recID,
		CreatedBy:       users[3],
	}, nil
}

// ==================== Recurring models ====================

type recurringModel struct {
	grove.BaseModel `grove:"table:famledger_recurring"`

	ID            string     `grove:"id,pk"`
	Name          string     `grove:"name"`
	Description   string     `grove:"description"`
	Amount        int64      `grove:"amount"`
	Type          string     `grove:"type"`
	Frequency     string     `grove:"frequency"`
	AccountID     string     `grove:"account_id"`
	UserID        string     `grove:"user_id"`
	CreatedBy     string     `grove:"created_by"`
	Distribution  string     `grove:"distribution"`
	NextDate      time.Time  `grove:"next_date"`
	LastProcessed *time.Time `grove:"last_processed"`
	Active        bool       `grove:"active"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toRecurringModel(d *recurring.Definition) *recurringModel {
	return &recurringModel{
		ID:            d.ID.String(),
		Name:          d.Name,
		Description:   d.Description,
		Amount:        d.Amount.Amount,
		Type:          string(d.Type),
		Frequency:     string(d.Frequency),
		AccountID:     d.AccountID.String(),
		UserID:        d.UserID.String(),
		CreatedBy:     d.CreatedBy.String(),
		Distribution:  encodeDistribution(d.Distribution),
		NextDate:      d.NextDate,
		LastProcessed: d.LastProcessed,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func fromRecurringModel(m *recurringModel) (*recurring.Definition, error) {
	recID, err := id.ParseRecurringID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseOptional(m.AccountID, id.PrefixAccount)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}
	createdBy, err := id.ParseOptional(m.CreatedBy, id.PrefixUser)
	if err != nil {
		return nil, err
	}
	dist, err := decodeDistribution(m.Distribution)
	if err != nil {
		return nil, err
	}

	return &recurring.Definition{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            recID,
		Name:          m.Name,
		Description:   m.Description,
		Amount:        types.Cents(m.Amount),
		Type:          recurring.Type(m.Type),
		Frequency:     recurring.Frequency(m.Frequency),
		AccountID:     accountID,
		UserID:        userID,
		CreatedBy:     createdBy,
		Distribution:  dist,
		NextDate:      m.NextDate,
		LastProcessed: m.LastProcessed,
		Active:        m.Active,
	}, nil
}

// The distribution column holds a JSON object of decimal strings keyed by
// account type, or the empty string when there is none.
func encodeDistribution(d recurring.Distribution) string {
	if len(d) == 0 {
		return ""
	}
	out := make(map[string]string, len(d))
	for t, pct := range d {
		out[string(t)] = pct.String()
	}
	raw, _ := json.Marshal(out) //nolint:errcheck // strings always marshal
	return string(raw)
}

func decodeDistribution(raw string) (recurring.Distribution, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	out := make(recurring.Distribution, len(m))
	for t, s := range m {
		pct, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out[account.Type(t)] = pct
	}
	return out, nil
}
