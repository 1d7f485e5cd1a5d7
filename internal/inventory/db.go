package inventory

import (
	"context"
	"database/sql"
	"errors"

	"ms-purchase/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

// ReserveUnits performs the single atomic read-modify-write that guards
// capacity. The WHERE clause carries the headroom check, so two concurrent
// reservations can never both win the last unit: the row update serializes
// them at the storage layer. Returns false when the guard rejected the
// increment.
func (d *DB) ReserveUnits(ctx context.Context, id string, qty int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("sold = sold + ?", qty).
		Where("id = ?", id).
		Where("frozen = ?", false).
		Where("sold + ? <= capacity", qty).
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

// ReleaseUnits decrements sold, refusing to go below zero. Returns false when
// the floor guard rejected the decrement, which callers treat as an invariant
// violation.
func (d *DB) ReleaseUnits(ctx context.Context, id string, qty int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("sold = sold - ?", qty).
		Where("id = ?", id).
		Where("sold - ? >= 0", qty).
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

// FreezeTicketType halts all further reservations against a type.
func (d *DB) FreezeTicketType(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("frozen = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
