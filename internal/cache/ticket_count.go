package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	TotalCountKey   = "tickets:total_count"
	DefaultCountTTL = 30 * time.Second
)

// TicketCountCache keeps the total number of issued tickets in Redis so the
// home page does not count the table on every request.
type TicketCountCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewTicketCountCache(client *redis.Client, ttl time.Duration) *TicketCountCache {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	return &TicketCountCache{Client: client, TTL: ttl}
}

// Get returns the cached total. ok is false on a cache miss.
func (c *TicketCountCache) Get(ctx context.Context) (count int, ok bool, err error) {
	val, err := c.Client.Get(ctx, TotalCountKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", TotalCountKey, err)
	}

	count, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt %s value %q: %w", TotalCountKey, val, err)
	}
	return count, true, nil
}

func (c *TicketCountCache) Set(ctx context.Context, count int) error {
	if err := c.Client.Set(ctx, TotalCountKey, count, c.TTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", TotalCountKey, err)
	}
	return nil
}

// Invalidate drops the cached total after a new ticket has been issued.
func (c *TicketCountCache) Invalidate(ctx context.Context) error {
	if err := c.Client.Del(ctx, TotalCountKey).Err(); err != nil {
		return fmt.Errorf("del %s: %w", TotalCountKey, err)
	}
	return nil
}
