package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Club is the tenant boundary: every event belongs to a club and every club
// to exactly one manager. Scan-side ownership checks walk ticket -> event ->
// club -> manager.
type Club struct {
	bun.BaseModel `bun:"table:clubs"`

	ID        string `bun:"id,pk"`
	ManagerID string `bun:"manager_id,notnull"`
	Name      string `bun:"name,notnull"`
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk"`
	ClubID    string    `bun:"club_id,notnull"`
	Name      string    `bun:"name,notnull"`
	StartsAt  time.Time `bun:"starts_at,notnull"`
	EndsAt    time.Time `bun:"ends_at,notnull"`
	Active    bool      `bun:"active,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
