package db

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-guestpass/internal/models"
	"ms-guestpass/internal/utils"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:scandb_test?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Club)(nil),
		(*models.Event)(nil),
		(*models.ScannerProfile)(nil),
		(*models.Ticket)(nil),
		(*models.TicketScan)(nil),
		(*models.ScanConfirmRequest)(nil),
		(*models.ManagerSetting)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	t.Cleanup(func() { bunDB.Close() })
	return &DB{Bun: bunDB}
}

type fixture struct {
	managerID string
	event     *models.Event
	ticket    *models.Ticket
}

func seedTicket(t *testing.T, d *DB) *fixture {
	t.Helper()
	ctx := context.Background()

	club := &models.Club{
		ID:        utils.NewID(),
		ManagerID: utils.NewID(),
		Name:      "Velvet Room",
	}
	_, err := d.Bun.NewInsert().Model(club).Exec(ctx)
	require.NoError(t, err)

	event := &models.Event{
		ID:       utils.NewID(),
		ClubID:   club.ID,
		Name:     "Saturday Session",
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(6 * time.Hour),
		Active:   true,
	}
	_, err = d.Bun.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)

	ticket := &models.Ticket{
		ID:           utils.NewID(),
		EventID:      event.ID,
		PromoterID:   utils.NewID(),
		AssignmentID: utils.NewID(),
		GuestType:    models.GuestTypeStandard,
		QRToken:      utils.NewQRToken(),
		Status:       models.TicketStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = d.Bun.NewInsert().Model(ticket).Exec(ctx)
	require.NoError(t, err)

	return &fixture{managerID: club.ManagerID, event: event, ticket: ticket}
}

func newConfirmPair(ticketID string) (*models.TicketScan, *models.ScanConfirmRequest) {
	now := time.Now().UTC()
	scan := &models.TicketScan{
		TicketID:  ticketID,
		ScannerID: utils.NewID(),
		ScannedAt: now,
	}
	logEntry := &models.ScanConfirmRequest{
		ID:              utils.NewID(),
		ClientRequestID: utils.NewID(),
		ScannerID:       scan.ScannerID,
		TicketID:        ticketID,
		ResponsePayload: []byte(`{"confirmed":true}`),
		StatusCode:      http.StatusOK,
		CreatedAt:       now,
	}
	return scan, logEntry
}

func TestConfirmScan_CommitsAllThreeWrites(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	f := seedTicket(t, d)

	scan, logEntry := newConfirmPair(f.ticket.ID)
	require.NoError(t, d.ConfirmScan(ctx, scan, logEntry))

	var ticket models.Ticket
	require.NoError(t, d.Bun.NewSelect().Model(&ticket).Where("id = ?", f.ticket.ID).Scan(ctx))
	assert.Equal(t, models.TicketStatusScanned, ticket.Status)

	got, err := d.ScanForTicket(ctx, f.ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, scan.ScannerID, got.ScannerID)

	stored, err := d.ConfirmRequestByID(ctx, logEntry.ClientRequestID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, logEntry.ResponsePayload, stored.ResponsePayload)
	assert.Equal(t, http.StatusOK, stored.StatusCode)
}

func TestConfirmScan_SecondScannerLosesAndRollsBack(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	f := seedTicket(t, d)

	first, firstLog := newConfirmPair(f.ticket.ID)
	require.NoError(t, d.ConfirmScan(ctx, first, firstLog))

	second, secondLog := newConfirmPair(f.ticket.ID)
	err := d.ConfirmScan(ctx, second, secondLog)
	assert.ErrorIs(t, err, ErrTicketAlreadyScanned)

	// The loser's transaction must leave no trace, including its log entry.
	stored, err := d.ConfirmRequestByID(ctx, secondLog.ClientRequestID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	count, err := d.Bun.NewSelect().Model((*models.TicketScan)(nil)).
		Where("ticket_id = ?", f.ticket.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConfirmScan_DuplicateRequestID(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	first := seedTicket(t, d)
	scan, logEntry := newConfirmPair(first.ticket.ID)
	require.NoError(t, d.ConfirmScan(ctx, scan, logEntry))

	// A second ticket reusing the same client request id trips the
	// idempotency-log constraint, not the scan constraint.
	second := seedTicket(t, d)
	otherScan, otherLog := newConfirmPair(second.ticket.ID)
	otherLog.ClientRequestID = logEntry.ClientRequestID

	err := d.ConfirmScan(ctx, otherScan, otherLog)
	assert.ErrorIs(t, err, ErrRequestIDTaken)

	// The scan insert rolled back with the log insert.
	got, err := d.ScanForTicket(ctx, second.ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var ticket models.Ticket
	require.NoError(t, d.Bun.NewSelect().Model(&ticket).Where("id = ?", second.ticket.ID).Scan(ctx))
	assert.Equal(t, models.TicketStatusPending, ticket.Status)
}

func TestConfirmScan_ConcurrentSingleWinner(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	f := seedTicket(t, d)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scan, logEntry := newConfirmPair(f.ticket.ID)
			results <- d.ConfirmScan(ctx, scan, logEntry)
		}()
	}
	wg.Wait()
	close(results)

	winners, losers := 0, 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrTicketAlreadyScanned):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, losers)

	count, err := d.Bun.NewSelect().Model((*models.TicketScan)(nil)).
		Where("ticket_id = ?", f.ticket.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventManagerID(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	f := seedTicket(t, d)

	managerID, err := d.EventManagerID(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, f.managerID, managerID)

	_, err = d.EventManagerID(ctx, utils.NewID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketByToken(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	f := seedTicket(t, d)

	got, err := d.TicketByToken(ctx, f.ticket.QRToken)
	require.NoError(t, err)
	assert.Equal(t, f.ticket.ID, got.ID)

	_, err = d.TicketByToken(ctx, utils.NewQRToken())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScannerByUser_IgnoresInactive(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	userID := utils.NewID()
	profile := &models.ScannerProfile{
		ID:        utils.NewID(),
		UserID:    userID,
		ManagerID: utils.NewID(),
		Active:    false,
	}
	_, err := d.Bun.NewInsert().Model(profile).Exec(ctx)
	require.NoError(t, err)

	_, err = d.ScannerByUser(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.Bun.NewUpdate().Model(profile).
		Set("active = ?", true).
		Where("id = ?", profile.ID).
		Exec(ctx)
	require.NoError(t, err)

	got, err := d.ScannerByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, got.ID)
}

func TestScanForTicket_NilWhenUnscanned(t *testing.T) {
	d := setupTestDB(t)
	f := seedTicket(t, d)

	got, err := d.ScanForTicket(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUniqueViolationOn(t *testing.T) {
	pgErr := &pq.Error{
		Code:       pgUniqueViolationCode,
		Constraint: "ticket_scans_pkey",
	}
	assert.True(t, uniqueViolationOn(pgErr, "ticket_scans"))
	assert.False(t, uniqueViolationOn(pgErr, "client_request_id"))

	sqliteErr := errors.New("constraint failed: UNIQUE constraint failed: scan_confirm_requests.client_request_id (2067)")
	assert.True(t, uniqueViolationOn(sqliteErr, "client_request_id"))
	assert.False(t, uniqueViolationOn(sqliteErr, "ticket_scans"))

	assert.False(t, uniqueViolationOn(errors.New("connection refused"), "ticket_scans"))
}
