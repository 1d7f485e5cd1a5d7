package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
)

var (
	// ErrNotFound means the payload does not resolve to a ticket. A payload
	// with a bad signature resolves to nothing on purpose.
	ErrNotFound = errors.New("ticket not found")

	// ErrWrongStatus means the ticket exists but is not PAID.
	ErrWrongStatus = errors.New("ticket is not paid")

	// ErrAlreadyCheckedIn means a repeat scan. Distinct from ErrWrongStatus
	// so the gate can show the attendant a friendly already-inside response
	// instead of an alarm.
	ErrAlreadyCheckedIn = errors.New("ticket already checked in")
)

type DBLayer interface {
	GetTicketByQR(ctx context.Context, qrCode string) (*models.Ticket, error)
	CheckInTicketIfPaid(ctx context.Context, ticketID string, at time.Time) (bool, error)
}

type Verifier interface {
	Verify(payload string) (string, error)
}

type KafkaPublisher interface {
	PublishTicketCheckedIn(ticket models.Ticket) error
}

// Service marks tickets CHECKED_IN from their scanned QR payload,
// idempotently.
type Service struct {
	DB     DBLayer
	QR     Verifier
	Kafka  KafkaPublisher
	Logger *logger.Logger

	now func() time.Time
}

func NewService(db DBLayer, verifier Verifier, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, QR: verifier, Kafka: kafka, Logger: log, now: time.Now}
}

// CheckIn validates the payload signature, resolves the ticket and performs
// the one-way flip. On a repeat scan the stored ticket is returned alongside
// ErrAlreadyCheckedIn with checked_in_at untouched.
func (s *Service) CheckIn(ctx context.Context, qrPayload string) (*models.TicketSummary, error) {
	if _, err := s.QR.Verify(qrPayload); err != nil {
		return nil, ErrNotFound
	}

	ticket, err := s.DB.GetTicketByQR(ctx, qrPayload)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case models.TicketCheckedIn:
		summary := ticket.Summary()
		return &summary, ErrAlreadyCheckedIn
	case models.TicketPaid:
	default:
		return nil, fmt.Errorf("ticket %s is %s: %w", ticket.TicketID, ticket.Status, ErrWrongStatus)
	}

	now := s.now()
	flipped, err := s.DB.CheckInTicketIfPaid(ctx, ticket.TicketID, now)
	if err != nil {
		return nil, fmt.Errorf("check in ticket %s: %w", ticket.TicketID, err)
	}
	if !flipped {
		// Lost to a concurrent scan; report the stored state.
		stored, err := s.DB.GetTicketByQR(ctx, qrPayload)
		if err != nil {
			return nil, err
		}
		if stored.Status == models.TicketCheckedIn {
			summary := stored.Summary()
			return &summary, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("ticket %s is %s: %w", stored.TicketID, stored.Status, ErrWrongStatus)
	}

	ticket.Status = models.TicketCheckedIn
	ticket.CheckedInAt = now
	if kerr := s.Kafka.PublishTicketCheckedIn(*ticket); kerr != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("checked-in publish failed for %s: %v", ticket.TicketID, kerr))
	}

	s.Logger.Info("CHECKIN", fmt.Sprintf("ticket %s checked in", ticket.TicketID))
	summary := ticket.Summary()
	return &summary, nil
}
