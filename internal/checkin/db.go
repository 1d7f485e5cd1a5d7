package checkin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-purchase/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketByQR(ctx context.Context, qrCode string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("qr_code = ?", qrCode).
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

// CheckInTicketIfPaid performs the one-way PAID to CHECKED_IN flip. The
// status guard makes a double scan lose cleanly instead of moving
// checked_in_at.
func (d *DB) CheckInTicketIfPaid(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCheckedIn).
		Set("checked_in_at = ?", at).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketPaid).
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
