package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-guestpass/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrTicketAlreadyScanned is returned when the scan insert loses the race on
// the ticket_scans primary key: some other confirm recorded the redemption
// between our pre-check and our insert.
var ErrTicketAlreadyScanned = errors.New("ticket already scanned")

// ErrRequestIDTaken is returned when the confirm request id already exists
// in the idempotency log. The caller re-reads the stored row to decide
// between replay and conflict.
var ErrRequestIDTaken = errors.New("client request id already recorded")

type DB struct {
	Bun *bun.DB
}

// ScannerByUser returns the active scanner profile for an authenticated
// user, or ErrNotFound.
func (d *DB) ScannerByUser(ctx context.Context, userID string) (*models.ScannerProfile, error) {
	var profile models.ScannerProfile
	err := d.Bun.NewSelect().
		Model(&profile).
		Where("user_id = ?", userID).
		Where("active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select scanner profile: %w", err)
	}
	return &profile, nil
}

// TicketByToken resolves the opaque QR token to its ticket.
func (d *DB) TicketByToken(ctx context.Context, qrToken string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("qr_token = ?", qrToken).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select ticket by token: %w", err)
	}
	return &ticket, nil
}

// EventManagerID walks event -> club to find the manager owning the event.
func (d *DB) EventManagerID(ctx context.Context, eventID string) (string, error) {
	var managerID string
	err := d.Bun.NewSelect().
		Table("events").
		ColumnExpr("clubs.manager_id").
		Join("JOIN clubs ON clubs.id = events.club_id").
		Where("events.id = ?", eventID).
		Scan(ctx, &managerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select event manager: %w", err)
	}
	return managerID, nil
}

// ScanForTicket returns the redemption record for a ticket, or nil when the
// ticket has not been scanned.
func (d *DB) ScanForTicket(ctx context.Context, ticketID string) (*models.TicketScan, error) {
	var scan models.TicketScan
	err := d.Bun.NewSelect().
		Model(&scan).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select ticket scan: %w", err)
	}
	return &scan, nil
}

// ConfirmRequestByID returns the idempotency log row for a client request
// id, or nil when the id has never been seen.
func (d *DB) ConfirmRequestByID(ctx context.Context, clientRequestID string) (*models.ScanConfirmRequest, error) {
	var req models.ScanConfirmRequest
	err := d.Bun.NewSelect().
		Model(&req).
		Where("client_request_id = ?", clientRequestID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select confirm request: %w", err)
	}
	return &req, nil
}

// ConfirmScan commits one redemption: the scan row, the ticket status flip
// and the idempotency log entry land in a single transaction, so a retry or
// a racing scanner can never observe half of them.
//
// Two separate unique constraints guard two separate guarantees here. The
// primary key on ticket_scans.ticket_id makes redemption at-most-once across
// different callers racing on the same physical ticket; the unique index on
// scan_confirm_requests.client_request_id makes one caller's retries replay
// the original response. Violations are translated to the matching sentinel
// so the service can re-derive the proper outcome instead of surfacing a
// storage error.
func (d *DB) ConfirmScan(ctx context.Context, scan *models.TicketScan, logEntry *models.ScanConfirmRequest) error {
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(scan).Exec(ctx); err != nil {
			return fmt.Errorf("insert ticket scan: %w", err)
		}

		_, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketStatusScanned).
			Where("id = ?", scan.TicketID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update ticket status: %w", err)
		}

		if _, err := tx.NewInsert().Model(logEntry).Exec(ctx); err != nil {
			return fmt.Errorf("insert confirm request: %w", err)
		}

		return nil
	})
	if err != nil {
		switch {
		case uniqueViolationOn(err, "ticket_scans"):
			return ErrTicketAlreadyScanned
		case uniqueViolationOn(err, "client_request_id"):
			return ErrRequestIDTaken
		}
		return err
	}
	return nil
}

// OtherLabel returns the manager's display label for OTHER guests, with the
// default when no row exists.
func (d *DB) OtherLabel(ctx context.Context, managerID string) (string, error) {
	var setting models.ManagerSetting
	err := d.Bun.NewSelect().
		Model(&setting).
		Where("manager_id = ?", managerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultOtherLabel, nil
		}
		return "", fmt.Errorf("select manager setting: %w", err)
	}
	return setting.OtherLabel, nil
}
