package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "resv_expiry:"

// Expiry mirrors each reservation's TTL as a redis key so the keyspace
// expiry notification can nudge the sweeper the moment a reservation lapses,
// instead of waiting for the next periodic scan. The database expires_at
// column stays authoritative; losing these keys only delays reclamation.
type Expiry struct {
	Client *redis.Client
}

func NewExpiry(client *redis.Client) *Expiry {
	return &Expiry{Client: client}
}

// MarkReservation arms the TTL key for a freshly materialized order.
func (e *Expiry) MarkReservation(ctx context.Context, orderID string, ttl time.Duration) error {
	return e.Client.Set(ctx, keyPrefix+orderID, orderID, ttl).Err()
}

// Clear disarms the key once the order settled (paid or cancelled).
func (e *Expiry) Clear(ctx context.Context, orderID string) error {
	return e.Client.Del(ctx, keyPrefix+orderID).Err()
}

// OrderIDFromKey extracts the order id from an expired-key notification
// payload, returning "" for unrelated keys.
func OrderIDFromKey(key string) string {
	if len(key) <= len(keyPrefix) || key[:len(keyPrefix)] != keyPrefix {
		return ""
	}
	return key[len(keyPrefix):]
}
