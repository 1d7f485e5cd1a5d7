package sweeper

import (
	"context"
	"testing"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifyDB struct {
	order *models.Order

	lookups int
	sweeps  int
	expired []string
}

func (f *notifyDB) FindExpiredReservedOrders(ctx context.Context, now time.Time) ([]models.Order, error) {
	return nil, nil
}

func (f *notifyDB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	f.lookups++
	return f.order, nil
}

func (f *notifyDB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	f.sweeps++
	return []models.Ticket{
		{TicketID: "tk-1", OrderID: orderID, TicketTypeID: "type-a", Status: models.TicketReserved},
	}, nil
}

func (f *notifyDB) ExpireTicketAndRelease(ctx context.Context, ticketID, ticketTypeID string) (bool, error) {
	f.expired = append(f.expired, ticketID)
	return true, nil
}

func (f *notifyDB) ExpireOrderIfReserved(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}

type dropKafka struct{}

func (dropKafka) PublishTicketExpired(models.Ticket) error { return nil }

func notifySweeper(db *notifyDB, at time.Time) *Sweeper {
	sw := NewSweeper(db, dropKafka{}, nil, logger.NewLogger(), time.Minute)
	sw.now = func() time.Time { return at }
	return sw
}

func TestExpiryNotificationSweepsLapsedOrder(t *testing.T) {
	now := time.Now()
	db := &notifyDB{order: &models.Order{
		OrderID: "order-1", Status: models.OrderReserved, ExpiresAt: now.Add(-time.Second),
	}}

	sw := notifySweeper(db, now)
	sw.handleExpiryNotification(context.Background(), "resv_expiry:order-1")

	require.Equal(t, 1, db.sweeps)
	assert.Equal(t, []string{"tk-1"}, db.expired)
}

func TestExpiryNotificationIgnoresLiveReservation(t *testing.T) {
	now := time.Now()
	db := &notifyDB{order: &models.Order{
		OrderID: "order-1", Status: models.OrderReserved, ExpiresAt: now.Add(10 * time.Minute),
	}}

	// A mistimed key, redis restart replay, or clock skew must not expire a
	// reservation whose deadline has not passed by the service clock.
	sw := notifySweeper(db, now)
	sw.handleExpiryNotification(context.Background(), "resv_expiry:order-1")

	assert.Equal(t, 1, db.lookups)
	assert.Zero(t, db.sweeps)
	assert.Empty(t, db.expired)
}

func TestExpiryNotificationIgnoresSettledOrder(t *testing.T) {
	now := time.Now()
	db := &notifyDB{order: &models.Order{
		OrderID: "order-1", Status: models.OrderPaid, ExpiresAt: now.Add(-time.Minute),
	}}

	sw := notifySweeper(db, now)
	sw.handleExpiryNotification(context.Background(), "resv_expiry:order-1")

	assert.Zero(t, db.sweeps)
}

func TestExpiryNotificationIgnoresForeignKeys(t *testing.T) {
	db := &notifyDB{}
	sw := notifySweeper(db, time.Now())

	sw.handleExpiryNotification(context.Background(), "session:abc")
	sw.handleExpiryNotification(context.Background(), "")

	assert.Zero(t, db.lookups)
}
