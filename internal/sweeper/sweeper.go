package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
	orderredis "ms-purchase/internal/order/redis"

	"github.com/go-redis/redis/v8"
)

type DBLayer interface {
	FindExpiredReservedOrders(ctx context.Context, now time.Time) ([]models.Order, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	ExpireTicketAndRelease(ctx context.Context, ticketID, ticketTypeID string) (bool, error)
	ExpireOrderIfReserved(ctx context.Context, orderID string) (bool, error)
}

type KafkaPublisher interface {
	PublishTicketExpired(ticket models.Ticket) error
}

// Sweeper reclaims inventory held by reservations that were never paid. The
// periodic scan is the source of truth; the redis keyspace subscription only
// makes reclamation prompt by sweeping an order the moment its TTL key
// expires instead of at the next tick.
type Sweeper struct {
	DB       DBLayer
	Kafka    KafkaPublisher
	Redis    *redis.Client
	Logger   *logger.Logger
	Interval time.Duration

	now func() time.Time
}

func NewSweeper(db DBLayer, kafka KafkaPublisher, rdb *redis.Client, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		DB:       db,
		Kafka:    kafka,
		Redis:    rdb,
		Logger:   log,
		Interval: interval,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, scanning on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Redis != nil {
		go s.subscribeExpiry(ctx)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.LogSweep(fmt.Sprintf("sweeper started, interval %s", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.Logger.LogSweep("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.Logger.Error("SWEEPER", fmt.Sprintf("sweep failed: %v", err))
			}
		}
	}
}

// SweepOnce expires every lapsed reservation and returns how many orders
// were swept. Safe to run concurrently with itself and with payment
// callbacks: every ticket flip is a conditional update, so each unit of
// inventory is released at most once no matter how often a sweep reruns.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	orders, err := s.DB.FindExpiredReservedOrders(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find expired orders: %w", err)
	}

	swept := 0
	for _, order := range orders {
		if err := s.sweepOrder(ctx, order.OrderID); err != nil {
			s.Logger.Error("SWEEPER", fmt.Sprintf("sweep of order %s failed: %v", order.OrderID, err))
			continue
		}
		swept++
	}

	if swept > 0 {
		s.Logger.LogSweep(fmt.Sprintf("swept %d expired orders", swept))
	}
	return swept, nil
}

// sweepOrder expires one order, ticket by ticket. Each ticket's status flip
// and its inventory release commit together; a rerun over the same order
// sees the EXPIRED tickets, skips them, and releases nothing twice.
func (s *Sweeper) sweepOrder(ctx context.Context, orderID string) error {
	tickets, err := s.DB.GetTicketsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}

	for _, ticket := range tickets {
		flipped, err := s.DB.ExpireTicketAndRelease(ctx, ticket.TicketID, ticket.TicketTypeID)
		if err != nil {
			return fmt.Errorf("expire ticket %s: %w", ticket.TicketID, err)
		}
		if !flipped {
			continue
		}

		ticket.Status = models.TicketExpired
		if kerr := s.Kafka.PublishTicketExpired(ticket); kerr != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("ticket expired publish failed for %s: %v", ticket.TicketID, kerr))
		}
	}

	if _, err := s.DB.ExpireOrderIfReserved(ctx, orderID); err != nil {
		return fmt.Errorf("expire order: %w", err)
	}
	return nil
}

// subscribeExpiry listens for the reservation TTL keys expiring in redis and
// sweeps the affected order immediately. Requires notify-keyspace-events to
// include expired events; main enables it at startup.
func (s *Sweeper) subscribeExpiry(ctx context.Context) {
	pubsub := s.Redis.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	s.Logger.LogSweep("subscribed to redis expired-key notifications")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			s.handleExpiryNotification(ctx, msg.Payload)
		}
	}
}

// handleExpiryNotification sweeps the order named by an expired TTL key. The
// key is only a nudge: the order must actually be lapsed by the database
// clock, so a mistimed or foreign key can never expire a live reservation.
func (s *Sweeper) handleExpiryNotification(ctx context.Context, key string) {
	orderID := orderredis.OrderIDFromKey(key)
	if orderID == "" {
		return
	}

	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		s.Logger.Error("SWEEPER", fmt.Sprintf("lookup of expired order %s failed: %v", orderID, err))
		return
	}
	if order.Status != models.OrderReserved || s.now().Before(order.ExpiresAt) {
		return
	}

	s.Logger.LogSweep(fmt.Sprintf("expiry notification for order %s, sweeping early", orderID))
	if err := s.sweepOrder(ctx, orderID); err != nil {
		s.Logger.Error("SWEEPER", fmt.Sprintf("early sweep of order %s failed: %v", orderID, err))
	}
}
