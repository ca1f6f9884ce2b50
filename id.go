package famledger

import "github.com/xraph/famledger/id"

// ID is the primary identifier type for all famledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
