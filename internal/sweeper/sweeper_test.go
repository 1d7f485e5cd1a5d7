package sweeper_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
	"ms-purchase/internal/sweeper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type captureKafka struct {
	expired []models.Ticket
}

func (c *captureKafka) PublishTicketExpired(ticket models.Ticket) error {
	c.expired = append(c.expired, ticket)
	return nil
}

func setupSweepDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(),
		(*models.TicketType)(nil), (*models.Order)(nil), (*models.Ticket)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// seedReservedOrder creates an order holding qty units of one ticket type,
// with the sold counter already incremented the way a real reservation left it.
func seedReservedOrder(t *testing.T, bunDB *bun.DB, orderID string, qty int, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	tt := models.TicketType{
		ID: "type-" + orderID, EventID: "event-1", Name: "GA",
		Capacity: 10, Sold: qty,
		SaleStart: now.Add(-time.Hour), SaleEnd: now.Add(time.Hour),
		PriceCents: 2500,
	}
	_, err := bunDB.NewInsert().Model(&tt).Exec(ctx)
	require.NoError(t, err)

	order := models.Order{
		OrderID: orderID, UserID: "user-9", Status: models.OrderReserved,
		TotalCents: int64(qty) * 2500, PaymentID: "pay-" + orderID,
		CreatedAt: now, ExpiresAt: expiresAt,
	}
	_, err = bunDB.NewInsert().Model(&order).Exec(ctx)
	require.NoError(t, err)

	for i := 0; i < qty; i++ {
		ticket := models.Ticket{
			TicketID: orderID + "-tk-" + string(rune('a'+i)), OrderID: orderID,
			TicketTypeID: tt.ID, OwnerID: "user-9",
			Status: models.TicketReserved, QRCode: orderID + "-qr-" + string(rune('a'+i)),
			PriceCents: 2500, IssuedAt: now,
		}
		_, err = bunDB.NewInsert().Model(&ticket).Exec(ctx)
		require.NoError(t, err)
	}
}

func soldOf(t *testing.T, bunDB *bun.DB, id string) int {
	t.Helper()
	var tt models.TicketType
	require.NoError(t, bunDB.NewSelect().Model(&tt).Where("id = ?", id).Scan(context.Background()))
	return tt.Sold
}

func orderStatus(t *testing.T, bunDB *bun.DB, id string) models.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, bunDB.NewSelect().Model(&order).Where("order_id = ?", id).Scan(context.Background()))
	return order.Status
}

func TestSweepOnceReclaimsLapsedReservations(t *testing.T) {
	bunDB := setupSweepDB(t)
	seedReservedOrder(t, bunDB, "lapsed", 2, time.Now().Add(-time.Minute))
	seedReservedOrder(t, bunDB, "fresh", 1, time.Now().Add(10*time.Minute))

	kafka := &captureKafka{}
	sw := sweeper.NewSweeper(&sweeper.DB{Bun: bunDB}, kafka, nil, logger.NewLogger(), time.Minute)

	swept, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	// The lapsed order's units went back and its graph is closed out.
	assert.Equal(t, 0, soldOf(t, bunDB, "type-lapsed"))
	assert.Equal(t, models.OrderExpired, orderStatus(t, bunDB, "lapsed"))

	var tickets []models.Ticket
	require.NoError(t, bunDB.NewSelect().Model(&tickets).Where("order_id = ?", "lapsed").Scan(context.Background()))
	for _, tk := range tickets {
		assert.Equal(t, models.TicketExpired, tk.Status)
	}
	assert.Len(t, kafka.expired, 2)

	// The fresh reservation is untouched.
	assert.Equal(t, 1, soldOf(t, bunDB, "type-fresh"))
	assert.Equal(t, models.OrderReserved, orderStatus(t, bunDB, "fresh"))
}

func TestSweepIsExactlyOnceAcrossReruns(t *testing.T) {
	bunDB := setupSweepDB(t)
	seedReservedOrder(t, bunDB, "lapsed", 3, time.Now().Add(-time.Minute))

	kafka := &captureKafka{}
	sw := sweeper.NewSweeper(&sweeper.DB{Bun: bunDB}, kafka, nil, logger.NewLogger(), time.Minute)

	_, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, soldOf(t, bunDB, "type-lapsed"))

	// A rerun sees no RESERVED tickets and releases nothing twice.
	swept, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t, 0, soldOf(t, bunDB, "type-lapsed"))
	assert.Len(t, kafka.expired, 3)
}

func TestSweepSkipsTicketsSettledMidFlight(t *testing.T) {
	bunDB := setupSweepDB(t)
	seedReservedOrder(t, bunDB, "lapsed", 2, time.Now().Add(-time.Minute))

	// A payment callback beat the sweeper to one ticket.
	_, err := bunDB.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketPaid).
		Where("ticket_id = ?", "lapsed-tk-a").
		Exec(context.Background())
	require.NoError(t, err)

	kafka := &captureKafka{}
	sw := sweeper.NewSweeper(&sweeper.DB{Bun: bunDB}, kafka, nil, logger.NewLogger(), time.Minute)

	_, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)

	// Only the still-reserved ticket's unit was released.
	assert.Equal(t, 1, soldOf(t, bunDB, "type-lapsed"))
	assert.Len(t, kafka.expired, 1)

	var paid models.Ticket
	require.NoError(t, bunDB.NewSelect().Model(&paid).Where("ticket_id = ?", "lapsed-tk-a").Scan(context.Background()))
	assert.Equal(t, models.TicketPaid, paid.Status)
}
