package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-purchase/internal/models"

	"github.com/uptrace/bun"
)

var ErrNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

// CreateOrderGraph inserts the order, its immutable lines, one ticket per
// purchased unit and the pending payment in a single transaction. The
// inventory increment already happened in the ledger; this transaction only
// materializes the records that own it.
func (d *DB) CreateOrderGraph(ctx context.Context, order *models.Order, lines []models.OrderLine, tickets []models.Ticket, payment *models.Payment) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if _, err := tx.NewInsert().Model(&lines).Exec(ctx); err != nil {
			return fmt.Errorf("insert order lines: %w", err)
		}
		if _, err := tx.NewInsert().Model(&tickets).Exec(ctx); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		if _, err := tx.NewInsert().Model(payment).Exec(ctx); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
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

func (d *DB) GetOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := d.Bun.NewSelect().
		Model(&lines).
		Where("order_id = ?", orderID).
		Order("ticket_type_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return lines, nil
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

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetOrdersWithLinesByUser returns a buyer's orders newest first, each with
// its lines attached.
func (d *DB) GetOrdersWithLinesByUser(ctx context.Context, userID string) ([]models.Order, map[string][]models.OrderLine, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(orders) == 0 {
		return []models.Order{}, map[string][]models.OrderLine{}, nil
	}

	orderIDs := make([]string, len(orders))
	for i, order := range orders {
		orderIDs[i] = order.OrderID
	}

	var lines []models.OrderLine
	err = d.Bun.NewSelect().
		Model(&lines).
		Where("order_id IN (?)", bun.In(orderIDs)).
		Order("order_id", "ticket_type_id").
		Scan(ctx)
	if err != nil {
		return nil, nil, err
	}

	linesByOrder := make(map[string][]models.OrderLine)
	for _, line := range lines {
		linesByOrder[line.OrderID] = append(linesByOrder[line.OrderID], line)
	}
	return orders, linesByOrder, nil
}
