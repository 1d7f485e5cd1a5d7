package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketType is the inventory pool for one purchasable category of an event.
// Sold is only ever mutated through the inventory ledger's conditional
// updates; nothing else writes this row.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID          string    `bun:"id,pk" json:"id"`
	EventID     string    `bun:"event_id,notnull" json:"event_id"`
	Name        string    `bun:"name" json:"name"`
	Capacity    int       `bun:"capacity,notnull" json:"capacity"`
	Sold        int       `bun:"sold,notnull,default:0" json:"sold"`
	MinPerOrder int       `bun:"min_per_order" json:"min_per_order"`
	MaxPerOrder int       `bun:"max_per_order" json:"max_per_order"`
	SaleStart   time.Time `bun:"sale_start,notnull" json:"sale_start"`
	SaleEnd     time.Time `bun:"sale_end,notnull" json:"sale_end"`
	PriceCents  int64     `bun:"price_cents,notnull" json:"price_cents"`
	Frozen      bool      `bun:"frozen,notnull,default:false" json:"frozen"`
}

// Remaining returns the units still available for sale.
func (t *TicketType) Remaining() int {
	return t.Capacity - t.Sold
}
