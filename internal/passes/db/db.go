package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-guestpass/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrQuotaExhausted is returned when an assignment's access limit is already
// reached at insert time.
var ErrQuotaExhausted = errors.New("access limit reached for assignment")

type DB struct {
	Bun *bun.DB
}

// PromoterByUser returns the active promoter profile for an authenticated
// user, or ErrNotFound.
func (d *DB) PromoterByUser(ctx context.Context, userID string) (*models.PromoterProfile, error) {
	var profile models.PromoterProfile
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
		return nil, fmt.Errorf("select promoter profile: %w", err)
	}
	return &profile, nil
}

// AssignmentFor returns the quota entry linking a promoter to an event.
func (d *DB) AssignmentFor(ctx context.Context, eventID, promoterID string) (*models.Assignment, error) {
	var assignment models.Assignment
	err := d.Bun.NewSelect().
		Model(&assignment).
		Where("event_id = ?", eventID).
		Where("promoter_id = ?", promoterID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select assignment: %w", err)
	}
	return &assignment, nil
}

func (d *DB) EventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select event: %w", err)
	}
	return &event, nil
}

// CreateTicketWithQuota inserts a ticket while holding the assignment's
// quota invariant, and returns the issued count including the new ticket.
//
// The naive "count, then insert if below the limit" is racy: two concurrent
// requests can both read count == limit-1 and both insert. So the count and
// the insert run in one transaction that first takes a row lock on the
// assignment (SELECT ... FOR UPDATE); every concurrent issuance for the same
// assignment queues on that lock and re-reads the count after the previous
// writer committed. SQLite has no FOR UPDATE but serialises writers itself,
// so the locking clause is only added on Postgres.
func (d *DB) CreateTicketWithQuota(ctx context.Context, assignmentID string, ticket *models.Ticket) (int, error) {
	issued := 0

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var assignment models.Assignment
		q := tx.NewSelect().
			Model(&assignment).
			Where("id = ?", assignmentID)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock assignment row: %w", err)
		}

		count, err := tx.NewSelect().
			Model((*models.Ticket)(nil)).
			Where("assignment_id = ?", assignmentID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count issued tickets: %w", err)
		}

		if assignment.LimitAccesses != nil && count >= *assignment.LimitAccesses {
			return ErrQuotaExhausted
		}

		if _, err := tx.NewInsert().Model(ticket).Exec(ctx); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		issued = count + 1
		return nil
	})
	if err != nil {
		return 0, err
	}

	return issued, nil
}

// TicketForPromoter fetches a ticket only when it belongs to the promoter.
func (d *DB) TicketForPromoter(ctx context.Context, ticketID, promoterID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", ticketID).
		Where("promoter_id = ?", promoterID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select ticket: %w", err)
	}
	return &ticket, nil
}
