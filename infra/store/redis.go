package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/irrigo/core/factory"
	"github.com/kilianp07/irrigo/core/model"
	corestore "github.com/kilianp07/irrigo/core/store"
)

// DefaultLastReadingTTL expires cached readings of stations that stopped reporting.
const DefaultLastReadingTTL = 24 * time.Hour

// RedisConfig configures the last-reading cache.
type RedisConfig struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// RedisCache keeps the latest reading of each station.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	ttl := DefaultLastReadingTTL
	if cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func newRedisFromConf(conf map[string]any) (corestore.ReadingStore, error) {
	var c RedisConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return NewRedisCache(ctx, c)
}

// RedisBackend returns the settings of the first configured redis backend.
func (c Config) RedisBackend() (RedisConfig, bool, error) {
	for _, b := range c.Backends {
		if b.Type != "redis" {
			continue
		}
		var rc RedisConfig
		if err := factory.Decode(b.Conf, &rc); err != nil {
			return RedisConfig{}, false, err
		}
		return rc, true, nil
	}
	return RedisConfig{}, false, nil
}

// LastReadingKey returns the cache key of a station.
func LastReadingKey(tenantID, stationID string) string {
	return fmt.Sprintf("station:last:%s:%s", tenantID, stationID)
}

// Save overwrites the cached reading of the station.
func (c *RedisCache) Save(ctx context.Context, r model.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, LastReadingKey(r.TenantID, r.StationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Last returns the cached reading of a station. ok is false when none is cached.
func (c *RedisCache) Last(ctx context.Context, tenantID, stationID string) (r model.Reading, ok bool, err error) {
	data, err := c.rdb.Get(ctx, LastReadingKey(tenantID, stationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Reading{}, false, nil
	}
	if err != nil {
		return model.Reading{}, false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return model.Reading{}, false, fmt.Errorf("decode cached reading: %w", err)
	}
	return r, true, nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
