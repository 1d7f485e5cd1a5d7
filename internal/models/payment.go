package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

// Payment maps one-to-one onto an order. Its COMPLETED transition is the sole
// trigger that flips the order's tickets from RESERVED to PAID.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	PaymentID     string        `bun:"payment_id,pk" json:"payment_id"`
	OrderID       string        `bun:"order_id,notnull,unique" json:"order_id"`
	AmountCents   int64         `bun:"amount_cents,notnull" json:"amount_cents"`
	Method        string        `bun:"method" json:"method"`
	Status        PaymentStatus `bun:"status,notnull" json:"status"`
	TransactionID string        `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// PaymentCallback is the inbound webhook payload from the gateway.
type PaymentCallback struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Result        string `json:"result"` // "completed" or "failed"
}
