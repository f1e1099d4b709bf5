package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-guestpass/internal/models"
)

// Producer streams ticket lifecycle events for the reporting side. Consumers
// only ever read ticket and scan rows, so losing an event is tolerable and
// publishing is best effort at the call sites.
type Producer struct {
	issuedWriter  *kafka.Writer
	scannedWriter *kafka.Writer
}

func NewProducer(brokers []string, issuedTopic, scannedTopic string) *Producer {
	return &Producer{
		issuedWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   issuedTopic,
		}),
		scannedWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   scannedTopic,
		}),
	}
}

type ticketIssuedEvent struct {
	TicketID     string    `json:"ticketId"`
	EventID      string    `json:"eventId"`
	PromoterID   string    `json:"promoterId"`
	AssignmentID string    `json:"assignmentId"`
	GuestType    string    `json:"guestType"`
	IssuedAt     time.Time `json:"issuedAt"`
}

type ticketScannedEvent struct {
	TicketID  string    `json:"ticketId"`
	EventID   string    `json:"eventId"`
	ScannerID string    `json:"scannerId"`
	ScannedAt time.Time `json:"scannedAt"`
}

// PublishTicketIssued streams a ticket creation event.
func (p *Producer) PublishTicketIssued(ticket models.Ticket) error {
	msgBytes, err := json.Marshal(ticketIssuedEvent{
		TicketID:     ticket.ID,
		EventID:      ticket.EventID,
		PromoterID:   ticket.PromoterID,
		AssignmentID: ticket.AssignmentID,
		GuestType:    ticket.GuestType,
		IssuedAt:     ticket.CreatedAt,
	})
	if err != nil {
		return err
	}

	return p.issuedWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ticket.ID),
			Value: msgBytes,
		},
	)
}

// PublishTicketScanned streams a redemption event.
func (p *Producer) PublishTicketScanned(ticket models.Ticket, scan models.TicketScan) error {
	msgBytes, err := json.Marshal(ticketScannedEvent{
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		ScannerID: scan.ScannerID,
		ScannedAt: scan.ScannedAt,
	})
	if err != nil {
		return err
	}

	return p.scannedWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ticket.ID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.issuedWriter.Close(); err != nil {
		return err
	}
	return p.scannedWriter.Close()
}
