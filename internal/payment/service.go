package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
)

var (
	// ErrNotFound means the payment or order is unknown.
	ErrNotFound = errors.New("payment not found")

	// ErrConflictingCallback means a webhook replay carried a different
	// result than the one that already settled the payment. First result
	// wins; the replay is logged and dropped.
	ErrConflictingCallback = errors.New("conflicting payment callback")

	// ErrInvalidResult means the webhook result is neither completed nor failed.
	ErrInvalidResult = errors.New("invalid payment result")

	// ErrCancelNotAllowed means at least one ticket of the order is already
	// in a terminal state.
	ErrCancelNotAllowed = errors.New("order can no longer be cancelled")

	// ErrEventStarted means cancellation arrived after the event began.
	ErrEventStarted = errors.New("event has already started")
)

type DBLayer interface {
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	SettlePaymentIfPending(ctx context.Context, paymentID string, to models.PaymentStatus, transactionID string, at time.Time) (bool, error)
	MarkRefunded(ctx context.Context, paymentID string, at time.Time) (bool, error)
	MarkOrderTicketsPaid(ctx context.Context, orderID string) (int64, error)
	MarkOrderPaid(ctx context.Context, orderID string) (bool, error)
	CancelTicketAndRelease(ctx context.Context, ticketID, ticketTypeID string) (bool, error)
	CancelOrderIfActive(ctx context.Context, orderID string) (bool, error)
	EarliestEventStart(ctx context.Context, orderID string) (sql.NullTime, error)
}

type KafkaPublisher interface {
	PublishPaymentSettled(payment models.Payment) error
}

type ExpiryClearer interface {
	Clear(ctx context.Context, orderID string) error
}

// Service drives orders and tickets through the payment-settled transitions.
// Every inventory release in this file rides on CancelTicketAndRelease: the
// ticket's terminal status flip and the unit's return commit in one
// transaction, so a retried cancellation either finds the ticket still active
// or finds the unit already returned, never a flip without its release.
type Service struct {
	DB      DBLayer
	Gateway Gateway
	Kafka   KafkaPublisher
	Expiry  ExpiryClearer
	Logger  *logger.Logger

	now func() time.Time
}

func NewService(db DBLayer, gateway Gateway, kafka KafkaPublisher, expiry ExpiryClearer, log *logger.Logger) *Service {
	return &Service{
		DB:      db,
		Gateway: gateway,
		Kafka:   kafka,
		Expiry:  expiry,
		Logger:  log,
		now:     time.Now,
	}
}

func resultToStatus(result string) (models.PaymentStatus, error) {
	switch result {
	case string(models.PaymentCompleted), "success":
		return models.PaymentCompleted, nil
	case string(models.PaymentFailed), "failure":
		return models.PaymentFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResult, result)
	}
}

// OnPaymentCallback consumes one gateway webhook delivery. Replays of the
// settled result are acknowledged as no-ops; a replay carrying the opposite
// result is reported as ErrConflictingCallback and never applied.
func (s *Service) OnPaymentCallback(ctx context.Context, cb models.PaymentCallback) error {
	desired, err := resultToStatus(cb.Result)
	if err != nil {
		return err
	}

	payment, err := s.DB.GetPayment(ctx, cb.PaymentID)
	if err != nil {
		return err
	}

	if payment.Status.Terminal() {
		return s.ackTerminal(payment, desired)
	}

	won, err := s.DB.SettlePaymentIfPending(ctx, payment.PaymentID, desired, cb.TransactionID, s.now())
	if err != nil {
		return fmt.Errorf("settle payment %s: %w", payment.PaymentID, err)
	}
	if !won {
		// Lost to a concurrent delivery; re-read and judge the replay.
		settled, err := s.DB.GetPayment(ctx, cb.PaymentID)
		if err != nil {
			return err
		}
		return s.ackTerminal(settled, desired)
	}

	switch desired {
	case models.PaymentCompleted:
		err = s.applyCompleted(ctx, payment.OrderID)
	case models.PaymentFailed:
		err = s.applyFailed(ctx, payment.OrderID)
	}
	if err != nil {
		return err
	}

	payment.Status = desired
	payment.TransactionID = cb.TransactionID
	if kerr := s.Kafka.PublishPaymentSettled(*payment); kerr != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("payment settled publish failed for %s: %v", payment.PaymentID, kerr))
	}

	s.Logger.LogPayment("CALLBACK", payment.PaymentID, fmt.Sprintf("settled %s (txn %s)", desired, cb.TransactionID))
	return nil
}

// ackTerminal decides whether a callback against an already-settled payment
// is a harmless replay or a conflict.
func (s *Service) ackTerminal(payment *models.Payment, desired models.PaymentStatus) error {
	// A refund only follows a completed payment, so a replayed "completed"
	// for a refunded payment is still the same first result.
	if payment.Status == desired ||
		(payment.Status == models.PaymentRefunded && desired == models.PaymentCompleted) {
		s.Logger.LogPayment("CALLBACK", payment.PaymentID, "duplicate delivery ignored")
		return nil
	}
	s.Logger.Warn("PAYMENT", fmt.Sprintf("conflicting callback for %s: settled %s, replay wants %s", payment.PaymentID, payment.Status, desired))
	return fmt.Errorf("payment %s already %s: %w", payment.PaymentID, payment.Status, ErrConflictingCallback)
}

func (s *Service) applyCompleted(ctx context.Context, orderID string) error {
	flipped, err := s.DB.MarkOrderTicketsPaid(ctx, orderID)
	if err != nil {
		return fmt.Errorf("mark tickets paid for %s: %w", orderID, err)
	}
	if flipped == 0 {
		// The sweeper won the race: the reservation lapsed and its tickets
		// already expired, so the buyer paid for an order that holds nothing.
		// The units are back in the pool; the charge needs an operator refund.
		if order, oerr := s.DB.GetOrder(ctx, orderID); oerr == nil && order.Status == models.OrderExpired {
			s.Logger.Error("PAYMENT", fmt.Sprintf("completed callback landed on expired order %s: no tickets advanced, refund required", orderID))
		}
	}
	if _, err := s.DB.MarkOrderPaid(ctx, orderID); err != nil {
		return fmt.Errorf("mark order paid for %s: %w", orderID, err)
	}

	if err := s.Expiry.Clear(ctx, orderID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("failed to clear expiry key for %s: %v", orderID, err))
	}

	s.Logger.LogOrder("PAID", orderID, fmt.Sprintf("%d tickets advanced to paid", flipped))
	return nil
}

// applyFailed cancels the order's tickets and returns their units. Each
// ticket cancels in its own transaction, so a retry after a mid-run failure
// picks up exactly the tickets still active.
func (s *Service) applyFailed(ctx context.Context, orderID string) error {
	tickets, err := s.DB.GetTicketsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load tickets for %s: %w", orderID, err)
	}

	for _, ticket := range tickets {
		if _, err := s.DB.CancelTicketAndRelease(ctx, ticket.TicketID, ticket.TicketTypeID); err != nil {
			return fmt.Errorf("cancel ticket %s: %w", ticket.TicketID, err)
		}
	}

	if _, err := s.DB.CancelOrderIfActive(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	if err := s.Expiry.Clear(ctx, orderID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("failed to clear expiry key for %s: %v", orderID, err))
	}

	s.Logger.LogOrder("PAYMENT_FAILED", orderID, "tickets cancelled, inventory returned")
	return nil
}

// Cancel is the buyer- or organizer-initiated path. Allowed only while every
// ticket is still RESERVED or PAID and the event has not started. A paid
// order gets its refund scheduled with the gateway; the payment flips to
// REFUNDED once the gateway confirms.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	order, err := s.DB.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	tickets, err := s.DB.GetTicketsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load tickets for %s: %w", orderID, err)
	}

	paid := false
	for _, ticket := range tickets {
		switch ticket.Status {
		case models.TicketReserved:
		case models.TicketPaid:
			paid = true
		default:
			return fmt.Errorf("ticket %s is %s: %w", ticket.TicketID, ticket.Status, ErrCancelNotAllowed)
		}
	}

	start, err := s.DB.EarliestEventStart(ctx, orderID)
	if err != nil {
		return fmt.Errorf("event start for %s: %w", orderID, err)
	}
	if start.Valid && !s.now().Before(start.Time) {
		return ErrEventStarted
	}

	for _, ticket := range tickets {
		if _, err := s.DB.CancelTicketAndRelease(ctx, ticket.TicketID, ticket.TicketTypeID); err != nil {
			return fmt.Errorf("cancel ticket %s: %w", ticket.TicketID, err)
		}
	}

	if _, err := s.DB.CancelOrderIfActive(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	if err := s.Expiry.Clear(ctx, orderID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("failed to clear expiry key for %s: %v", orderID, err))
	}

	if paid && order.PaymentID != "" {
		if err := s.refund(ctx, order); err != nil {
			// The order is already cancelled and the inventory returned;
			// a failed refund is retried by the operator, not rolled back.
			s.Logger.Error("PAYMENT", fmt.Sprintf("refund for order %s failed: %v", orderID, err))
		}
	}

	s.Logger.LogOrder("CANCEL", orderID, "order cancelled")
	return nil
}

func (s *Service) refund(ctx context.Context, order *models.Order) error {
	payment, err := s.DB.GetPayment(ctx, order.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentCompleted {
		return nil
	}

	if err := s.Gateway.Refund(ctx, payment.PaymentID, payment.AmountCents); err != nil {
		return err
	}

	if _, err := s.DB.MarkRefunded(ctx, payment.PaymentID, s.now()); err != nil {
		return fmt.Errorf("mark refunded %s: %w", payment.PaymentID, err)
	}

	payment.Status = models.PaymentRefunded
	if kerr := s.Kafka.PublishPaymentSettled(*payment); kerr != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("refund publish failed for %s: %v", payment.PaymentID, kerr))
	}

	s.Logger.LogPayment("REFUND", payment.PaymentID, "refund confirmed")
	return nil
}
