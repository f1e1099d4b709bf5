package passes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-guestpass/internal/logger"
	"ms-guestpass/internal/models"
	passdb "ms-guestpass/internal/passes/db"
	"ms-guestpass/internal/utils"
)

// ErrPromoterInactive is returned when the caller has no active promoter
// profile.
var ErrPromoterInactive = errors.New("promoter not authorized or inactive")

// ErrEventClosed is returned when the event is not open for issuance.
var ErrEventClosed = errors.New("event is not active")

// ErrInvalidInput is returned for malformed issue requests.
var ErrInvalidInput = errors.New("invalid input")

type DBLayer interface {
	PromoterByUser(ctx context.Context, userID string) (*models.PromoterProfile, error)
	AssignmentFor(ctx context.Context, eventID, promoterID string) (*models.Assignment, error)
	EventByID(ctx context.Context, id string) (*models.Event, error)
	CreateTicketWithQuota(ctx context.Context, assignmentID string, ticket *models.Ticket) (int, error)
	TicketForPromoter(ctx context.Context, ticketID, promoterID string) (*models.Ticket, error)
	OtherLabel(ctx context.Context, managerID string) (string, error)
	UpsertOtherLabel(ctx context.Context, managerID, label string) error
}

type KafkaPublisher interface {
	PublishTicketIssued(ticket models.Ticket) error
}

type PassService struct {
	DB    DBLayer
	Kafka KafkaPublisher
	Log   *logger.Logger
}

func NewPassService(db DBLayer, kafka KafkaPublisher, log *logger.Logger) *PassService {
	return &PassService{DB: db, Kafka: kafka, Log: log}
}

type IssueRequest struct {
	EventID   string `json:"eventId"`
	GuestType string `json:"guestType"`
	Note      string `json:"note"`
}

type EventSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// IssuedTicket is the issuance response. RemainingAccesses is nil for
// unlimited assignments.
type IssuedTicket struct {
	ID                string       `json:"id"`
	GuestType         string       `json:"guestType"`
	Note              string       `json:"note,omitempty"`
	Status            string       `json:"status"`
	Event             EventSummary `json:"event"`
	LimitAccesses     *int         `json:"limitAccesses"`
	UsedAccesses      int          `json:"usedAccesses"`
	RemainingAccesses *int         `json:"remainingAccesses"`
}

// IssueTicket creates one ticket against the caller's assignment for the
// event. The quota check and insert happen inside one locked transaction in
// the db layer, so concurrent calls can never jointly exceed the limit.
func (s *PassService) IssueTicket(ctx context.Context, userID string, req IssueRequest) (*IssuedTicket, error) {
	req.Note = strings.TrimSpace(req.Note)
	if req.EventID == "" || !models.ValidGuestType(req.GuestType) {
		return nil, ErrInvalidInput
	}
	if len(req.Note) > models.MaxNoteLength {
		return nil, fmt.Errorf("%w: note exceeds %d characters", ErrInvalidInput, models.MaxNoteLength)
	}

	profile, err := s.DB.PromoterByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, passdb.ErrNotFound) {
			return nil, ErrPromoterInactive
		}
		return nil, err
	}

	assignment, err := s.DB.AssignmentFor(ctx, req.EventID, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("event not assigned to promoter: %w", err)
	}

	event, err := s.DB.EventByID(ctx, assignment.EventID)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", assignment.EventID, err)
	}
	if !event.Active {
		return nil, ErrEventClosed
	}

	ticket := &models.Ticket{
		ID:           utils.NewID(),
		EventID:      assignment.EventID,
		PromoterID:   profile.ID,
		AssignmentID: assignment.ID,
		GuestType:    req.GuestType,
		Note:         req.Note,
		QRToken:      utils.NewQRToken(),
		Status:       models.TicketStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	used, err := s.DB.CreateTicketWithQuota(ctx, assignment.ID, ticket)
	if err != nil {
		return nil, err
	}

	s.logTicket("ISSUE", ticket.ID, fmt.Sprintf("issued for event %s (%d used)", event.ID, used))

	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketIssued(*ticket); err != nil {
			s.logError("KAFKA", fmt.Sprintf("publish ticket issued: %v", err))
		}
	}

	var remaining *int
	if assignment.LimitAccesses != nil {
		r := *assignment.LimitAccesses - used
		if r < 0 {
			r = 0
		}
		remaining = &r
	}

	return &IssuedTicket{
		ID:        ticket.ID,
		GuestType: ticket.GuestType,
		Note:      ticket.Note,
		Status:    ticket.Status,
		Event: EventSummary{
			ID:       event.ID,
			Name:     event.Name,
			StartsAt: event.StartsAt,
			EndsAt:   event.EndsAt,
		},
		LimitAccesses:     assignment.LimitAccesses,
		UsedAccesses:      used,
		RemainingAccesses: remaining,
	}, nil
}

// TicketToken returns the QR token for a ticket the promoter owns. The
// artifact endpoint encodes it; everything beyond the bare code (template,
// layout) belongs to the external renderer.
func (s *PassService) TicketToken(ctx context.Context, userID, ticketID string) (string, error) {
	profile, err := s.DB.PromoterByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, passdb.ErrNotFound) {
			return "", ErrPromoterInactive
		}
		return "", err
	}

	ticket, err := s.DB.TicketForPromoter(ctx, ticketID, profile.ID)
	if err != nil {
		return "", fmt.Errorf("ticket %s: %w", ticketID, err)
	}
	return ticket.QRToken, nil
}

// OtherLabel returns the manager's display label for OTHER guests.
func (s *PassService) OtherLabel(ctx context.Context, managerID string) (string, error) {
	return s.DB.OtherLabel(ctx, managerID)
}

// UpdateOtherLabel stores a new OTHER display label for the manager.
func (s *PassService) UpdateOtherLabel(ctx context.Context, managerID, label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	if err := s.DB.UpsertOtherLabel(ctx, managerID, label); err != nil {
		return "", err
	}
	return label, nil
}

func (s *PassService) logTicket(action, ticketID, message string) {
	if s.Log != nil {
		s.Log.LogTicket(action, ticketID, message)
	}
}

func (s *PassService) logError(category, message string) {
	if s.Log != nil {
		s.Log.Error(category, message)
	}
}
