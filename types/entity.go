package types

import "time"

// Entity carries the timestamps shared by every famledger record.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity stamped with the current time.
func NewEntity() Entity {
	return EntityAt(time.Now())
}

// EntityAt creates an Entity created and updated at t (UTC).
func EntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// TouchAt sets UpdatedAt to t (UTC).
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t.UTC()
}
