package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
)

const (
	cacheVersionKey = "costing:version"
	bumpChannel     = "costing.bump"
)

// Cache keeps labor-cost books and the day-type catalog in Redis. Keys carry a
// global version so a labor-cost import invalidates everything with one INCR.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// LaborCosts returns the labor-cost records of period, loading them once per
// version even under concurrent callers.
func (c *Cache) LaborCosts(ctx context.Context, period costing.Period, load func(context.Context, costing.Period) ([]costing.LaborCostRecord, error)) ([]costing.LaborCostRecord, error) {
	var out []costing.LaborCostRecord
	err := c.fetch(ctx, keyLabor(period), &out, func(ctx context.Context) (any, error) {
		return load(ctx, period)
	})
	return out, err
}

// DayTypes returns the day-type surcharge catalog.
func (c *Cache) DayTypes(ctx context.Context, load func(context.Context) ([]costing.DayTypeSurcharge, error)) ([]costing.DayTypeSurcharge, error) {
	var out []costing.DayTypeSurcharge
	err := c.fetch(ctx, keyDayTypes(), &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}

// Bump invalidates every cached entry and notifies other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

func (c *Cache) fetch(ctx context.Context, base string, dest any, loader func(context.Context) (any, error)) error {
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return fmt.Errorf("cache version: %w", err)
	}
	key := fmt.Sprintf("%s:%d", base, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func keyLabor(period costing.Period) string {
	return strings.Join([]string{"costing", "labor", period.String()}, ":")
}

func keyDayTypes() string {
	return strings.Join([]string{"costing", "day_types"}, ":")
}
