package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderReserved  OrderStatus = "reserved"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string      `bun:"order_id,pk" json:"order_id"`
	UserID        string      `bun:"user_id,notnull" json:"user_id"`
	Status        OrderStatus `bun:"status,notnull" json:"status"`
	PromoCode     string      `bun:"promo_code,nullzero" json:"promo_code,omitempty"`
	DiscountCents int64       `bun:"discount_cents,notnull,default:0" json:"discount_cents"`
	TotalCents    int64       `bun:"total_cents,notnull" json:"total_cents"`
	PaymentID     string      `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     time.Time   `bun:"expires_at,notnull" json:"expires_at"`
}

// OrderLine is one (ticket type, quantity) entry of a cart. Lines are
// immutable after the order is created.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	ID           int64  `bun:"id,pk,autoincrement" json:"-"`
	OrderID      string `bun:"order_id,notnull" json:"order_id"`
	TicketTypeID string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	Quantity     int    `bun:"quantity,notnull" json:"quantity"`
	UnitCents    int64  `bun:"unit_cents,notnull" json:"unit_cents"`
}

// CartLine is the inbound purchase request shape, before any price snapshot.
type CartLine struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

type PurchaseRequest struct {
	Lines     []CartLine `json:"lines"`
	PromoCode string     `json:"promo_code,omitempty"`
}

type PurchaseResponse struct {
	OrderID         string       `json:"order_id"`
	TotalCents      int64        `json:"total_cents"`
	DiscountCents   int64        `json:"discount_cents"`
	ExpiresAt       time.Time    `json:"expires_at"`
	PaymentRedirect string       `json:"payment_redirect"`
	Lines           []LineStatus `json:"lines"`
}

// LineStatus reports the per-line outcome of a purchase attempt so a failed
// cart can tell the buyer exactly which line sank it.
type LineStatus struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}
