package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketScan records one redemption. The primary key on ticket_id is what
// makes redemption at-most-once: two confirms racing on the same ticket hit
// the constraint, and the loser is translated to an already-scanned outcome.
type TicketScan struct {
	bun.BaseModel `bun:"table:ticket_scans"`

	TicketID  string    `bun:"ticket_id,pk"`
	ScannerID string    `bun:"scanner_id,notnull"`
	ScannedAt time.Time `bun:"scanned_at,notnull,default:current_timestamp"`
}

// ScanConfirmRequest is the idempotency log: one row per client-supplied
// confirm request id, holding the exact response that was first computed so
// retries replay it byte for byte. Rows are append-only; the unique
// constraint on client_request_id rejects a second insert instead of
// overwriting the original.
type ScanConfirmRequest struct {
	bun.BaseModel `bun:"table:scan_confirm_requests"`

	ID              string    `bun:"id,pk"`
	ClientRequestID string    `bun:"client_request_id,notnull,unique"`
	ScannerID       string    `bun:"scanner_id,notnull"`
	TicketID        string    `bun:"ticket_id,notnull"`
	ResponsePayload []byte    `bun:"response_payload,notnull"`
	StatusCode      int       `bun:"status_code,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
