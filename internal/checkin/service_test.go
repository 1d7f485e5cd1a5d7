package checkin_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-purchase/internal/checkin"
	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
	"ms-purchase/internal/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type captureKafka struct {
	checkedIn []models.Ticket
}

func (c *captureKafka) PublishTicketCheckedIn(ticket models.Ticket) error {
	c.checkedIn = append(c.checkedIn, ticket)
	return nil
}

func setupCheckinDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Ticket)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func seedTicket(t *testing.T, bunDB *bun.DB, gen *qr.Generator, ticketID string, status models.TicketStatus) string {
	t.Helper()
	payload := gen.Payload(ticketID)
	ticket := models.Ticket{
		TicketID: ticketID, OrderID: "order-1", TicketTypeID: "type-a",
		OwnerID: "user-9", Status: status, QRCode: payload,
		PriceCents: 2500, IssuedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&ticket).Exec(context.Background())
	require.NoError(t, err)
	return payload
}

func TestCheckInFlipsPaidTicketOnce(t *testing.T) {
	bunDB := setupCheckinDB(t)
	gen := qr.NewGenerator("gate-secret")
	payload := seedTicket(t, bunDB, gen, "tk-1", models.TicketPaid)

	kafka := &captureKafka{}
	svc := checkin.NewService(&checkin.DB{Bun: bunDB}, gen, kafka, logger.NewLogger())

	summary, err := svc.CheckIn(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "tk-1", summary.TicketID)
	assert.Equal(t, models.TicketCheckedIn, summary.Status)
	require.NotNil(t, summary.CheckedInAt)
	assert.Len(t, kafka.checkedIn, 1)

	var stored models.Ticket
	require.NoError(t, bunDB.NewSelect().Model(&stored).Where("ticket_id = ?", "tk-1").Scan(context.Background()))
	firstScan := stored.CheckedInAt

	// Second scan reports the existing state without moving the timestamp.
	summary, err = svc.CheckIn(context.Background(), payload)
	assert.ErrorIs(t, err, checkin.ErrAlreadyCheckedIn)
	require.NotNil(t, summary)
	assert.Equal(t, models.TicketCheckedIn, summary.Status)

	require.NoError(t, bunDB.NewSelect().Model(&stored).Where("ticket_id = ?", "tk-1").Scan(context.Background()))
	assert.True(t, stored.CheckedInAt.Equal(firstScan))
	assert.Len(t, kafka.checkedIn, 1)
}

func TestCheckInRejectsUnpaidTicket(t *testing.T) {
	bunDB := setupCheckinDB(t)
	gen := qr.NewGenerator("gate-secret")

	reserved := seedTicket(t, bunDB, gen, "tk-reserved", models.TicketReserved)
	expired := seedTicket(t, bunDB, gen, "tk-expired", models.TicketExpired)

	svc := checkin.NewService(&checkin.DB{Bun: bunDB}, gen, &captureKafka{}, logger.NewLogger())

	_, err := svc.CheckIn(context.Background(), reserved)
	assert.ErrorIs(t, err, checkin.ErrWrongStatus)

	_, err = svc.CheckIn(context.Background(), expired)
	assert.ErrorIs(t, err, checkin.ErrWrongStatus)
}

func TestCheckInRejectsBadPayloads(t *testing.T) {
	bunDB := setupCheckinDB(t)
	gen := qr.NewGenerator("gate-secret")
	seedTicket(t, bunDB, gen, "tk-1", models.TicketPaid)

	svc := checkin.NewService(&checkin.DB{Bun: bunDB}, gen, &captureKafka{}, logger.NewLogger())

	// A payload signed with a different secret never reaches the database.
	forged := qr.NewGenerator("other-secret").Payload("tk-1")
	_, err := svc.CheckIn(context.Background(), forged)
	assert.ErrorIs(t, err, checkin.ErrNotFound)

	_, err = svc.CheckIn(context.Background(), "garbage")
	assert.ErrorIs(t, err, checkin.ErrNotFound)

	// Valid signature over an id that was never issued.
	_, err = svc.CheckIn(context.Background(), gen.Payload("tk-ghost"))
	assert.ErrorIs(t, err, checkin.ErrNotFound)
}
