package inventory

import (
	"context"
	"fmt"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
	ReserveUnits(ctx context.Context, id string, qty int) (bool, error)
	ReleaseUnits(ctx context.Context, id string, qty int) (bool, error)
	FreezeTicketType(ctx context.Context, id string) error
}

// ReservationToken is a provisional hold on inventory. The increment has
// already happened in the ledger row when the token is issued; the token only
// tracks whether that increment may still be undone. Tokens are owned by a
// single cart reservation and are not safe for concurrent use.
type ReservationToken struct {
	ID           string
	TicketTypeID string
	Quantity     int
	UnitCents    int64

	committed  bool
	rolledBack bool
}

// Ledger owns the sold counter of every ticket type. All inventory movement
// in the engine goes through TryReserve/Commit/Rollback/Release; nothing else
// writes ticket_types.sold.
type Ledger struct {
	DB     DBLayer
	Logger *logger.Logger

	now func() time.Time
}

func NewLedger(db DBLayer, log *logger.Logger) *Ledger {
	return &Ledger{DB: db, Logger: log, now: time.Now}
}

// TryReserve validates the sale window and per-order bounds, then attempts
// the atomic conditional increment. On success the hold can still be rolled
// back until Commit is called on the token.
func (l *Ledger) TryReserve(ctx context.Context, ticketTypeID string, qty int) (*ReservationToken, error) {
	tt, err := l.DB.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}

	if tt.Frozen {
		return nil, ErrFrozen
	}

	now := l.now()
	if now.Before(tt.SaleStart) || now.After(tt.SaleEnd) {
		return nil, ErrOutOfWindow
	}

	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if tt.MinPerOrder > 0 && qty < tt.MinPerOrder {
		return nil, ErrInvalidQuantity
	}
	if tt.MaxPerOrder > 0 && qty > tt.MaxPerOrder {
		return nil, ErrInvalidQuantity
	}

	ok, err := l.DB.ReserveUnits(ctx, ticketTypeID, qty)
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", ticketTypeID, err)
	}
	if !ok {
		return nil, ErrInsufficientInventory
	}

	l.Logger.LogReservation("RESERVE", ticketTypeID, fmt.Sprintf("held %d units", qty))

	return &ReservationToken{
		ID:           uuid.NewString(),
		TicketTypeID: ticketTypeID,
		Quantity:     qty,
		UnitCents:    tt.PriceCents,
	}, nil
}

// Commit finalizes a provisional hold. After Commit the token can no longer
// be rolled back; releasing the units again requires an explicit Release
// driven by a ticket status transition.
func (l *Ledger) Commit(token *ReservationToken) {
	token.committed = true
}

// Rollback undoes an uncommitted hold. Calling it on a committed or already
// rolled-back token is a no-op, so a coordinator can unwind unconditionally.
func (l *Ledger) Rollback(ctx context.Context, token *ReservationToken) error {
	if token.committed || token.rolledBack {
		return nil
	}
	token.rolledBack = true

	l.Logger.LogReservation("ROLLBACK", token.TicketTypeID, fmt.Sprintf("returning %d units", token.Quantity))
	return l.Release(ctx, token.TicketTypeID, token.Quantity)
}

// Release returns units to the pool. Callers must have flipped the owning
// ticket to a terminal status first, so a retried release path sees the flip
// and never calls in twice for the same unit. A decrement that would go
// negative freezes the type and reports an invariant violation.
func (l *Ledger) Release(ctx context.Context, ticketTypeID string, qty int) error {
	ok, err := l.DB.ReleaseUnits(ctx, ticketTypeID, qty)
	if err != nil {
		return fmt.Errorf("release %s: %w", ticketTypeID, err)
	}
	if !ok {
		l.Logger.Error("INVENTORY", fmt.Sprintf("release of %d units would drive %s negative, freezing type", qty, ticketTypeID))
		if ferr := l.DB.FreezeTicketType(ctx, ticketTypeID); ferr != nil {
			return fmt.Errorf("freeze %s after invariant violation: %v: %w", ticketTypeID, ferr, ErrInvariantViolation)
		}
		return fmt.Errorf("release %d units of %s: %w", qty, ticketTypeID, ErrInvariantViolation)
	}
	return nil
}
