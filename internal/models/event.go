package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is read-only here: event CRUD belongs to another service. The engine
// only needs the start time to decide whether a cancellation is still allowed.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	StartDate time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate   time.Time `bun:"end_date,notnull" json:"end_date"`
}
