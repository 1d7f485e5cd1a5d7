package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-purchase/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("payment_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("ticket_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// SettlePaymentIfPending applies the first terminal result; a payment that
// already settled is left untouched. Returns false when the PENDING guard
// rejected the update.
func (d *DB) SettlePaymentIfPending(ctx context.Context, paymentID string, to models.PaymentStatus, transactionID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", to).
		Set("transaction_id = ?", transactionID).
		Set("updated_at = ?", at).
		Where("payment_id = ?", paymentID).
		Where("status = ?", models.PaymentPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkRefunded flips a COMPLETED payment to REFUNDED once the gateway
// confirms the refund.
func (d *DB) MarkRefunded(ctx context.Context, paymentID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentRefunded).
		Set("updated_at = ?", at).
		Where("payment_id = ?", paymentID).
		Where("status = ?", models.PaymentCompleted).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkOrderTicketsPaid advances every still-RESERVED ticket of the order to
// PAID. The status guard makes a replayed completed-callback a no-op.
func (d *DB) MarkOrderTicketsPaid(ctx context.Context, orderID string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketPaid).
		Where("order_id = ?", orderID).
		Where("status = ?", models.TicketReserved).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CancelTicketAndRelease flips one RESERVED or PAID ticket to CANCELLED and
// returns its unit to the ticket type, both inside one transaction. The flip
// is the marker that the unit is owed back; because flip and decrement commit
// together, a failure rolls both back and a retried cancellation finds the
// ticket still active. A rerun over an already-cancelled ticket flips nothing
// and therefore releases nothing.
func (d *DB) CancelTicketAndRelease(ctx context.Context, ticketID, ticketTypeID string) (bool, error) {
	flipped := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketCancelled).
			Where("ticket_id = ?", ticketID).
			Where("status IN (?)", bun.In([]models.TicketStatus{models.TicketReserved, models.TicketPaid})).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		res, err = tx.NewUpdate().
			Model((*models.TicketType)(nil)).
			Set("sold = sold - 1").
			Where("id = ?", ticketTypeID).
			Where("sold - 1 >= 0").
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("release of ticket %s would drive %s negative", ticketID, ticketTypeID)
		}

		flipped = true
		return nil
	})
	return flipped, err
}

// CancelOrderIfActive moves an order to CANCELLED from either live status.
func (d *DB) CancelOrderIfActive(ctx context.Context, orderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCancelled).
		Where("order_id = ?", orderID).
		Where("status IN (?)", bun.In([]models.OrderStatus{models.OrderReserved, models.OrderPaid})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkOrderPaid advances the order row alongside its tickets.
func (d *DB) MarkOrderPaid(ctx context.Context, orderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderPaid).
		Where("order_id = ?", orderID).
		Where("status = ?", models.OrderReserved).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// EarliestEventStart returns the soonest event start among the order's
// ticket types; cancellation is refused once it has passed. Not valid when
// the order has no lines.
func (d *DB) EarliestEventStart(ctx context.Context, orderID string) (sql.NullTime, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Join("JOIN ticket_types AS tt ON tt.event_id = e.id").
		Join("JOIN order_lines AS ol ON ol.ticket_type_id = tt.id").
		Where("ol.order_id = ?", orderID).
		OrderExpr("e.start_date ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullTime{}, nil
	}
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Valid: true, Time: event.StartDate}, nil
}
