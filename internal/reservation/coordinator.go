package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ms-purchase/internal/inventory"
	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"

	"github.com/google/uuid"
)

// Ledger is the slice of the inventory ledger the coordinator needs.
type Ledger interface {
	TryReserve(ctx context.Context, ticketTypeID string, qty int) (*inventory.ReservationToken, error)
	Commit(token *inventory.ReservationToken)
	Rollback(ctx context.Context, token *inventory.ReservationToken) error
}

// LineError attributes a cart failure to the line that caused it.
type LineError struct {
	Line         int // index into the caller's cart
	TicketTypeID string
	Err          error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (ticket type %s): %v", e.Line, e.TicketTypeID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// DraftLine is a reserved cart line with its price snapshot.
type DraftLine struct {
	TicketTypeID string
	Quantity     int
	UnitCents    int64
}

// OrderDraft is a fully reserved cart, ready for the order factory. The
// inventory is already committed; if the draft is never materialized the
// sweeper reclaims it through the order TTL path only after materialization,
// so callers must materialize a draft or the units leak until expiry.
type OrderDraft struct {
	OrderID   string
	Lines     []DraftLine
	ExpiresAt time.Time
}

type Coordinator struct {
	Ledger Ledger
	Logger *logger.Logger
	TTL    time.Duration

	now func() time.Time
}

func NewCoordinator(ledger Ledger, log *logger.Logger, ttl time.Duration) *Coordinator {
	return &Coordinator{Ledger: ledger, Logger: log, TTL: ttl, now: time.Now}
}

// ReserveCart reserves every line of a cart or none of them. Lines naming the
// same ticket type are merged first, so per-order quantity bounds apply to the
// order's total for that type and cannot be split across lines. Merged lines
// are attempted in ascending ticket type order so two carts wanting
// overlapping type sets can never wait on each other in a cycle. On the first
// failure every earlier hold is rolled back and the failure is attributed to
// the first cart line naming the offending type.
func (c *Coordinator) ReserveCart(ctx context.Context, lines []models.CartLine) (*OrderDraft, error) {
	if len(lines) == 0 {
		return nil, &LineError{Line: 0, Err: inventory.ErrInvalidQuantity}
	}

	// Merge duplicate types, remembering where each type first appeared,
	// then fix the global attempt order.
	type indexedLine struct {
		models.CartLine
		pos int
	}
	byType := make(map[string]int, len(lines))
	ordered := make([]indexedLine, 0, len(lines))
	for i, line := range lines {
		if at, seen := byType[line.TicketTypeID]; seen {
			ordered[at].Quantity += line.Quantity
			continue
		}
		byType[line.TicketTypeID] = len(ordered)
		ordered = append(ordered, indexedLine{CartLine: line, pos: i})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TicketTypeID < ordered[j].TicketTypeID
	})

	tokens := make([]*inventory.ReservationToken, 0, len(ordered))
	for _, line := range ordered {
		token, err := c.Ledger.TryReserve(ctx, line.TicketTypeID, line.Quantity)
		if err != nil {
			for i := len(tokens) - 1; i >= 0; i-- {
				if rbErr := c.Ledger.Rollback(ctx, tokens[i]); rbErr != nil {
					c.Logger.Error("RESERVATION", fmt.Sprintf("rollback of %s failed: %v", tokens[i].TicketTypeID, rbErr))
				}
			}
			return nil, &LineError{Line: line.pos, TicketTypeID: line.TicketTypeID, Err: err}
		}
		tokens = append(tokens, token)
	}

	for _, token := range tokens {
		c.Ledger.Commit(token)
	}

	draft := &OrderDraft{
		OrderID:   uuid.NewString(),
		Lines:     make([]DraftLine, len(tokens)),
		ExpiresAt: c.now().Add(c.TTL),
	}
	for i, token := range tokens {
		draft.Lines[i] = DraftLine{
			TicketTypeID: token.TicketTypeID,
			Quantity:     token.Quantity,
			UnitCents:    token.UnitCents,
		}
	}

	c.Logger.LogOrder("RESERVE", draft.OrderID, fmt.Sprintf("cart of %d lines reserved, expires %s", len(lines), draft.ExpiresAt.Format(time.RFC3339)))
	return draft, nil
}
