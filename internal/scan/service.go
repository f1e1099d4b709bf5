package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-guestpass/internal/cache"
	"ms-guestpass/internal/logger"
	"ms-guestpass/internal/models"
	scandb "ms-guestpass/internal/scan/db"
	"ms-guestpass/internal/utils"
)

// Response reason classifications. "Invalid" is not a ticket state: a token
// that matches nothing is reported, never materialised.
const (
	ReasonAlreadyScanned = "ALREADY_SCANNED"
	ReasonInvalidToken   = "INVALID_TOKEN"
)

// ErrScannerInactive is returned when the caller has no active scanner
// profile.
var ErrScannerInactive = errors.New("scanner not authorized or inactive")

// ErrForbidden is returned when a ticket belongs to another manager's club.
var ErrForbidden = errors.New("ticket belongs to another manager")

// ErrRequestIDConflict is returned when a confirm request id is already
// owned by a different scanner.
var ErrRequestIDConflict = errors.New("client request id already used by another scanner")

// ErrInvalidRequestID is returned when the client request id is not a UUID.
var ErrInvalidRequestID = errors.New("clientRequestId must be a UUID")

type DBLayer interface {
	ScannerByUser(ctx context.Context, userID string) (*models.ScannerProfile, error)
	TicketByToken(ctx context.Context, qrToken string) (*models.Ticket, error)
	EventManagerID(ctx context.Context, eventID string) (string, error)
	ScanForTicket(ctx context.Context, ticketID string) (*models.TicketScan, error)
	ConfirmRequestByID(ctx context.Context, clientRequestID string) (*models.ScanConfirmRequest, error)
	ConfirmScan(ctx context.Context, scan *models.TicketScan, logEntry *models.ScanConfirmRequest) error
	OtherLabel(ctx context.Context, managerID string) (string, error)
}

type ResponseCache interface {
	ConfirmResponse(ctx context.Context, clientRequestID string) (*cache.StoredConfirm, error)
	StoreConfirmResponse(ctx context.Context, clientRequestID string, stored cache.StoredConfirm) error
	OtherLabel(ctx context.Context, managerID string) (string, bool, error)
	StoreOtherLabel(ctx context.Context, managerID, label string) error
}

type KafkaPublisher interface {
	PublishTicketScanned(ticket models.Ticket, scan models.TicketScan) error
}

type ScanService struct {
	DB    DBLayer
	Cache ResponseCache
	Kafka KafkaPublisher
	Log   *logger.Logger
}

func NewScanService(db DBLayer, responseCache ResponseCache, kafka KafkaPublisher, log *logger.Logger) *ScanService {
	if responseCache == nil {
		// A no-op cache keeps every call site on the durable table.
		responseCache = cache.New(nil)
	}
	return &ScanService{DB: db, Cache: responseCache, Kafka: kafka, Log: log}
}

// TicketSummary is the scan-side view of a ticket.
type TicketSummary struct {
	TicketID     string  `json:"ticketId"`
	EventID      string  `json:"eventId"`
	GuestType    string  `json:"guestType"`
	DisplayLabel string  `json:"displayLabel"`
	Note         *string `json:"note"`
	Status       string  `json:"status"`
	ScannedAt    *string `json:"scannedAt"`
}

type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Reason *string        `json:"reason"`
	Ticket *TicketSummary `json:"ticket"`
}

type ConfirmResponse struct {
	Confirmed bool           `json:"confirmed"`
	Reason    *string        `json:"reason"`
	Ticket    *TicketSummary `json:"ticket"`
}

// ConfirmOutcome carries the exact bytes and status code a confirm produced.
// Replays return the stored bytes untouched so retried requests observe a
// byte-identical response.
type ConfirmOutcome struct {
	StatusCode int
	Payload    json.RawMessage
}

// Validate checks a token without side effects. An unknown token is a
// normal, successfully computed result, not an error: door scanners hit it
// constantly and branch on the reason field.
func (s *ScanService) Validate(ctx context.Context, userID, qrToken string) (*ValidationResult, error) {
	scanner, err := s.DB.ScannerByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, scandb.ErrNotFound) {
			return nil, ErrScannerInactive
		}
		return nil, err
	}

	ticket, err := s.DB.TicketByToken(ctx, qrToken)
	if err != nil {
		if errors.Is(err, scandb.ErrNotFound) {
			return &ValidationResult{Valid: false, Reason: strPtr(ReasonInvalidToken)}, nil
		}
		return nil, err
	}

	if err := s.checkOwnership(ctx, ticket, scanner); err != nil {
		return nil, err
	}

	otherLabel, err := s.otherLabel(ctx, scanner.ManagerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.DB.ScanForTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ValidationResult{
			Valid:  false,
			Reason: strPtr(ReasonAlreadyScanned),
			Ticket: s.buildSummary(ticket, otherLabel, existing),
		}, nil
	}

	return &ValidationResult{
		Valid:  true,
		Ticket: s.buildSummary(ticket, otherLabel, nil),
	}, nil
}

// Confirm redeems a ticket exactly once. Retries with the same client
// request id replay the stored response; a different scanner racing on the
// same ticket loses on the ticket_scans primary key and gets ALREADY_SCANNED.
func (s *ScanService) Confirm(ctx context.Context, userID, qrToken, clientRequestID string) (*ConfirmOutcome, error) {
	if !utils.IsUUID(clientRequestID) {
		return nil, ErrInvalidRequestID
	}

	scanner, err := s.DB.ScannerByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, scandb.ErrNotFound) {
			return nil, ErrScannerInactive
		}
		return nil, err
	}

	// Idempotency short-circuit: a known request id replays the stored
	// response verbatim, with no further reads of ticket state.
	if outcome, err := s.replayStored(ctx, scanner, clientRequestID); outcome != nil || err != nil {
		return outcome, err
	}

	ticket, err := s.DB.TicketByToken(ctx, qrToken)
	if err != nil {
		if errors.Is(err, scandb.ErrNotFound) {
			// Nothing was touched, so this outcome is not worth a log row.
			return s.outcome(http.StatusNotFound, ConfirmResponse{
				Confirmed: false,
				Reason:    strPtr(ReasonInvalidToken),
			})
		}
		return nil, err
	}

	if err := s.checkOwnership(ctx, ticket, scanner); err != nil {
		return nil, err
	}

	otherLabel, err := s.otherLabel(ctx, scanner.ManagerID)
	if err != nil {
		return nil, err
	}

	// Fast-path pre-check. The constraint on ticket_scans below still
	// backstops the race window between this read and the insert.
	existing, err := s.DB.ScanForTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.alreadyScanned(ticket, otherLabel, existing)
	}

	now := time.Now().UTC()
	newScan := &models.TicketScan{
		TicketID:  ticket.ID,
		ScannerID: scanner.ID,
		ScannedAt: now,
	}

	payload, err := json.Marshal(ConfirmResponse{
		Confirmed: true,
		Ticket:    s.buildSummary(ticket, otherLabel, newScan),
	})
	if err != nil {
		return nil, err
	}

	logEntry := &models.ScanConfirmRequest{
		ID:              utils.NewID(),
		ClientRequestID: clientRequestID,
		ScannerID:       scanner.ID,
		TicketID:        ticket.ID,
		ResponsePayload: payload,
		StatusCode:      http.StatusOK,
		CreatedAt:       now,
	}

	err = s.DB.ConfirmScan(ctx, newScan, logEntry)
	switch {
	case errors.Is(err, scandb.ErrTicketAlreadyScanned):
		// Lost the race to another confirm. Re-read the winning scan so the
		// summary carries the real redemption time.
		winner, readErr := s.DB.ScanForTicket(ctx, ticket.ID)
		if readErr != nil {
			return nil, readErr
		}
		return s.alreadyScanned(ticket, otherLabel, winner)
	case errors.Is(err, scandb.ErrRequestIDTaken):
		// A concurrent retry with the same request id won; replay its result.
		if outcome, replayErr := s.replayStored(ctx, scanner, clientRequestID); outcome != nil || replayErr != nil {
			return outcome, replayErr
		}
		return nil, ErrRequestIDConflict
	case err != nil:
		return nil, err
	}

	s.logScan("CONFIRM", ticket.ID, fmt.Sprintf("scanned by %s", scanner.ID))

	if cacheErr := s.Cache.StoreConfirmResponse(ctx, clientRequestID, cache.StoredConfirm{
		ScannerID:  scanner.ID,
		StatusCode: http.StatusOK,
		Payload:    payload,
	}); cacheErr != nil {
		s.logError("CACHE", fmt.Sprintf("store confirm response: %v", cacheErr))
	}

	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketScanned(*ticket, *newScan); err != nil {
			s.logError("KAFKA", fmt.Sprintf("publish ticket scanned: %v", err))
		}
	}

	return &ConfirmOutcome{StatusCode: http.StatusOK, Payload: payload}, nil
}

// replayStored checks the cache and the durable log for a previously
// computed response to this request id. It returns (nil, nil) when the id
// has never been seen.
func (s *ScanService) replayStored(ctx context.Context, scanner *models.ScannerProfile, clientRequestID string) (*ConfirmOutcome, error) {
	cached, err := s.Cache.ConfirmResponse(ctx, clientRequestID)
	if err != nil {
		// A broken cache must not break confirms; fall through to the table.
		s.logError("CACHE", fmt.Sprintf("read confirm response: %v", err))
		cached = nil
	}
	if cached != nil {
		if cached.ScannerID != scanner.ID {
			return nil, ErrRequestIDConflict
		}
		s.logScan("REPLAY", clientRequestID, "served from cache")
		return &ConfirmOutcome{StatusCode: cached.StatusCode, Payload: cached.Payload}, nil
	}

	stored, err := s.DB.ConfirmRequestByID(ctx, clientRequestID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	if stored.ScannerID != scanner.ID {
		return nil, ErrRequestIDConflict
	}

	if cacheErr := s.Cache.StoreConfirmResponse(ctx, clientRequestID, cache.StoredConfirm{
		ScannerID:  stored.ScannerID,
		StatusCode: stored.StatusCode,
		Payload:    stored.ResponsePayload,
	}); cacheErr != nil {
		s.logError("CACHE", fmt.Sprintf("store confirm response: %v", cacheErr))
	}

	s.logScan("REPLAY", clientRequestID, "served from idempotency log")
	return &ConfirmOutcome{StatusCode: stored.StatusCode, Payload: stored.ResponsePayload}, nil
}

func (s *ScanService) alreadyScanned(ticket *models.Ticket, otherLabel string, existing *models.TicketScan) (*ConfirmOutcome, error) {
	return s.outcome(http.StatusConflict, ConfirmResponse{
		Confirmed: false,
		Reason:    strPtr(ReasonAlreadyScanned),
		Ticket:    s.buildSummary(ticket, otherLabel, existing),
	})
}

func (s *ScanService) outcome(status int, resp ConfirmResponse) (*ConfirmOutcome, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &ConfirmOutcome{StatusCode: status, Payload: payload}, nil
}

// checkOwnership enforces tenant isolation: the token alone resolves the
// ticket, but a scanner may only touch tickets whose event belongs to its
// manager.
func (s *ScanService) checkOwnership(ctx context.Context, ticket *models.Ticket, scanner *models.ScannerProfile) error {
	managerID, err := s.DB.EventManagerID(ctx, ticket.EventID)
	if err != nil {
		return err
	}
	if managerID != scanner.ManagerID {
		s.logSecurity("CROSS_TENANT", fmt.Sprintf("scanner %s touched ticket %s of manager %s", scanner.ID, ticket.ID, managerID))
		return ErrForbidden
	}
	return nil
}

func (s *ScanService) otherLabel(ctx context.Context, managerID string) (string, error) {
	if label, ok, err := s.Cache.OtherLabel(ctx, managerID); err == nil && ok {
		return label, nil
	}

	label, err := s.DB.OtherLabel(ctx, managerID)
	if err != nil {
		return "", err
	}

	if cacheErr := s.Cache.StoreOtherLabel(ctx, managerID, label); cacheErr != nil {
		s.logError("CACHE", fmt.Sprintf("store other label: %v", cacheErr))
	}
	return label, nil
}

func (s *ScanService) buildSummary(ticket *models.Ticket, otherLabel string, scanRecord *models.TicketScan) *TicketSummary {
	displayLabel := ticket.GuestType
	if ticket.GuestType == models.GuestTypeOther {
		displayLabel = otherLabel
	}

	summary := &TicketSummary{
		TicketID:     ticket.ID,
		EventID:      ticket.EventID,
		GuestType:    ticket.GuestType,
		DisplayLabel: displayLabel,
		Status:       ticket.Status,
	}
	if ticket.Note != "" {
		summary.Note = strPtr(ticket.Note)
	}
	if scanRecord != nil {
		summary.Status = models.TicketStatusScanned
		summary.ScannedAt = strPtr(scanRecord.ScannedAt.UTC().Format(time.RFC3339))
	}
	return summary
}

func strPtr(s string) *string {
	return &s
}

func (s *ScanService) logScan(action, id, message string) {
	if s.Log != nil {
		s.Log.LogScan(action, id, message)
	}
}

func (s *ScanService) logError(category, message string) {
	if s.Log != nil {
		s.Log.Error(category, message)
	}
}

func (s *ScanService) logSecurity(event, message string) {
	if s.Log != nil {
		s.Log.LogSecurity(event, message)
	}
}
