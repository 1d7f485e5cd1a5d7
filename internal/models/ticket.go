package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketReserved  TicketStatus = "reserved"
	TicketPaid      TicketStatus = "paid"
	TicketCheckedIn TicketStatus = "checked_in"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// Terminal reports whether the status can never change again. CHECKED_IN is
// terminal too, but it is the only terminal state that does not return the
// unit to inventory.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketCheckedIn, TicketCancelled, TicketExpired:
		return true
	}
	return false
}

// Ticket is one sellable unit. Created RESERVED by the order factory, one row
// per purchased unit, never split or merged.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID     string       `bun:"ticket_id,pk" json:"ticket_id"`
	OrderID      string       `bun:"order_id,notnull" json:"order_id"`
	TicketTypeID string       `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	OwnerID      string       `bun:"owner_id,notnull" json:"owner_id"`
	Status       TicketStatus `bun:"status,notnull" json:"status"`
	QRCode       string       `bun:"qr_code,notnull,unique" json:"qr_code"`
	PriceCents   int64        `bun:"price_cents,notnull" json:"price_cents"`
	IssuedAt     time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	CheckedInAt  time.Time    `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
}

type TicketSummary struct {
	TicketID     string       `json:"ticket_id"`
	OrderID      string       `json:"order_id"`
	TicketTypeID string       `json:"ticket_type_id"`
	Status       TicketStatus `json:"status"`
	CheckedInAt  *time.Time   `json:"checked_in_at,omitempty"`
}

func (t *Ticket) Summary() TicketSummary {
	s := TicketSummary{
		TicketID:     t.TicketID,
		OrderID:      t.OrderID,
		TicketTypeID: t.TicketTypeID,
		Status:       t.Status,
	}
	if !t.CheckedInAt.IsZero() {
		checkedIn := t.CheckedInAt
		s.CheckedInAt = &checkedIn
	}
	return s
}
