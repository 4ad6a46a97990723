// Package cache stores last-known-final candles and indicator values in
// Redis so consumers can be served outside trading hours and pipelines can
// warm-start after restarts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/config"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

// ErrCacheMiss is returned when no value is cached for the key.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the persistence surface the engine needs. Implementations must
// be safe for concurrent use.
type Cache interface {
	SetLastCandle(ctx context.Context, c *models.Candle, ttl time.Duration) error
	GetLastCandle(ctx context.Context, instrumentID string, interval time.Duration) (*models.Candle, error)
	SetIndicators(ctx context.Context, instrumentID string, values map[string]float64, ttl time.Duration) error
	GetIndicators(ctx context.Context, instrumentID string) (map[string]float64, error)
	Close() error
}

// RedisCache implements Cache on a Redis instance.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("addr", cfg.Addr()),
	)

	return &RedisCache{client: rdb}, nil
}

func candleKey(instrumentID string, interval time.Duration) string {
	return fmt.Sprintf("candle:last:%s:%s", instrumentID, interval)
}

func indicatorKey(instrumentID string) string {
	return fmt.Sprintf("indicators:last:%s", instrumentID)
}

// SetLastCandle stores the most recent finalized candle for an instrument.
func (r *RedisCache) SetLastCandle(ctx context.Context, c *models.Candle, ttl time.Duration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal candle: %w", err)
	}
	if err := r.client.Set(ctx, candleKey(c.InstrumentID, c.Interval), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache candle for %s: %w", c.InstrumentID, err)
	}
	return nil
}

// GetLastCandle returns the cached finalized candle, or ErrCacheMiss.
func (r *RedisCache) GetLastCandle(ctx context.Context, instrumentID string, interval time.Duration) (*models.Candle, error) {
	data, err := r.client.Get(ctx, candleKey(instrumentID, interval)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached candle for %s: %w", instrumentID, err)
	}

	var c models.Candle
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached candle: %w", err)
	}
	return &c, nil
}

// SetIndicators stores the latest final indicator values for an instrument.
func (r *RedisCache) SetIndicators(ctx context.Context, instrumentID string, values map[string]float64, ttl time.Duration) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal indicators: %w", err)
	}
	if err := r.client.Set(ctx, indicatorKey(instrumentID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache indicators for %s: %w", instrumentID, err)
	}
	return nil
}

// GetIndicators returns the cached indicator values, or ErrCacheMiss.
func (r *RedisCache) GetIndicators(ctx context.Context, instrumentID string) (map[string]float64, error) {
	data, err := r.client.Get(ctx, indicatorKey(instrumentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached indicators for %s: %w", instrumentID, err)
	}

	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached indicators: %w", err)
	}
	return values, nil
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
