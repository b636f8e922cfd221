package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through cache in front of open-charge reads. Balance
// mutations invalidate the affected customer's entry; everything degrades to
// the loader when redis is unavailable.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache constructs the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func openChargesKey(customerID int64) string {
	return fmt.Sprintf("ledger:open-charges:%d", customerID)
}

// OpenCharges returns the customer's open charges, loading through the cache.
// Concurrent misses for the same customer collapse into one loader call.
func (c *Cache) OpenCharges(ctx context.Context, customerID int64, loader func(context.Context) ([]Charge, error)) ([]Charge, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := openChargesKey(customerID)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var charges []Charge
		if err := json.Unmarshal(payload, &charges); err == nil {
			return charges, nil
		}
		// Corrupt entry: fall through and rebuild.
	} else if err != redis.Nil {
		return loader(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		charges, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(charges)
		if err != nil {
			return charges, nil
		}
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		return charges, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Charge), nil
}

// Invalidate drops the customer's cached entry after a balance mutation.
func (c *Cache) Invalidate(ctx context.Context, customerID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, openChargesKey(customerID)).Err()
}
