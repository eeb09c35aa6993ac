package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps redis-based caching of derived balances with per-company
// version counters. Invalidation is a version bump, never a key scan.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client degrades to
// pass-through loading, which tests and single-process setups rely on.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(companyID int64) string {
	return fmt.Sprintf("balance:%d:version", companyID)
}

// Version returns the current cache version for the company, initialising
// it when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(companyID)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey(companyID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchJSON loads a cached value or populates it using the loader. Keys are
// scoped by company and version so a bump orphans stale entries in place.
func (c *Cache) FetchJSON(ctx context.Context, companyID int64, parts []string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("balance cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("balance:%d:%s:%d", companyID, strings.Join(parts, ":"), ver)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the company's cached balances by incrementing its version.
// Called synchronously by the ledger after every successful post or void.
func (c *Cache) Bump(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(companyID)).Err()
}
