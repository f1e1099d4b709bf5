package models

import "github.com/uptrace/bun"

// Assignment links a promoter to an event with an optional access quota.
// The number of issued tickets is never stored here: it is always recomputed
// as a live count of tickets referencing the assignment, so the only thing
// guarding the quota is the row lock taken at issuance time.
type Assignment struct {
	bun.BaseModel `bun:"table:assignments"`

	ID            string `bun:"id,pk"`
	EventID       string `bun:"event_id,notnull"`
	PromoterID    string `bun:"promoter_id,notnull"`
	LimitAccesses *int   `bun:"limit_accesses,nullzero"`
}

// Unlimited reports whether the assignment carries no quota.
func (a *Assignment) Unlimited() bool {
	return a.LimitAccesses == nil
}
