package famledger

import "github.com/xraph/famledger/types"

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	Cents      = types.Cents
	Zero       = types.Zero
	ParseMoney = types.ParseMoney
	Sum        = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
