package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-purchase/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// FindExpiredReservedOrders returns orders still awaiting payment whose
// reservation TTL has lapsed. Paid and cancelled orders never match: their
// status already moved off RESERVED.
func (d *DB) FindExpiredReservedOrders(ctx context.Context, now time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderReserved).
		Where("expires_at <= ?", now).
		Order("expires_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
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

// ExpireTicketAndRelease is the per-unit atomic step of the sweep: flip the
// ticket to EXPIRED and return its unit to the ticket type, both inside one
// transaction. The RESERVED guard means a rerun over an already-swept order
// flips nothing and therefore releases nothing.
func (d *DB) ExpireTicketAndRelease(ctx context.Context, ticketID, ticketTypeID string) (bool, error) {
	flipped := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketExpired).
			Where("ticket_id = ?", ticketID).
			Where("status = ?", models.TicketReserved).
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

// ExpireOrderIfReserved closes out the order row; swept orders are never
// revived.
func (d *DB) ExpireOrderIfReserved(ctx context.Context, orderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderExpired).
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
