package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Guest types form a closed set; OTHER is rendered with the manager's
// configured label at scan time.
const (
	GuestTypeStandard = "STANDARD"
	GuestTypePremium  = "PREMIUM"
	GuestTypeOther    = "OTHER"
)

// Ticket status only ever moves PENDING -> SCANNED.
const (
	TicketStatusPending = "PENDING"
	TicketStatusScanned = "SCANNED"
)

// MaxNoteLength bounds the free-text note attached at issuance.
const MaxNoteLength = 280

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string    `bun:"id,pk"`
	EventID      string    `bun:"event_id,notnull"`
	PromoterID   string    `bun:"promoter_id,notnull"`
	AssignmentID string    `bun:"assignment_id,notnull"`
	GuestType    string    `bun:"guest_type,notnull"`
	Note         string    `bun:"note,nullzero"`
	QRToken      string    `bun:"qr_token,notnull,unique"`
	Status       string    `bun:"status,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ValidGuestType reports whether t is one of the closed guest type set.
func ValidGuestType(t string) bool {
	switch t {
	case GuestTypeStandard, GuestTypePremium, GuestTypeOther:
		return true
	}
	return false
}
