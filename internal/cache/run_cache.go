package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/config"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/redis/go-redis/v9"
)

const (
	latestRunKeyPrefix = "restock:latest:"
	scanBatchSize      = 100
	defaultRunTTL      = time.Hour
	pingTimeout        = 5 * time.Second
)

// RunCache keeps the latest completed run of each sector
type RunCache interface {
	GetLatest(ctx context.Context, sector string) (*pipeline.RestockRun, bool, error)
	SetLatest(ctx context.Context, run *pipeline.RestockRun) error
	Invalidate(ctx context.Context, sector string) error
	InvalidateAll(ctx context.Context) error
}

type redisRunCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRunCache struct{}

// NewRunCache returns a redis backed cache, or a no-op cache when caching is
// disabled
func NewRunCache(cfg config.CacheConfig) (RunCache, error) {
	if !cfg.Enabled {
		return &noopRunCache{}, nil
	}

	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisRunCache{client: client, ttl: runTTL(cfg)}, nil
}

func NewNoopRunCache() RunCache {
	return &noopRunCache{}
}

func runTTL(cfg config.CacheConfig) time.Duration {
	ttl := time.Duration(cfg.DecisionTTLSeconds) * time.Second
	if ttl <= 0 {
		return defaultRunTTL
	}
	return ttl
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func latestRunKey(sector string) string {
	return latestRunKeyPrefix + strings.ToLower(strings.TrimSpace(sector))
}

func (c *redisRunCache) GetLatest(ctx context.Context, sector string) (*pipeline.RestockRun, bool, error) {
	payload, err := c.client.Get(ctx, latestRunKey(sector)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var run pipeline.RestockRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, false, fmt.Errorf("decode cached run: %w", err)
	}
	return &run, true, nil
}

func (c *redisRunCache) SetLatest(ctx context.Context, run *pipeline.RestockRun) error {
	if run == nil {
		return nil
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if err := c.client.Set(ctx, latestRunKey(run.Sector), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisRunCache) Invalidate(ctx context.Context, sector string) error {
	if err := c.client.Del(ctx, latestRunKey(sector)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *redisRunCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, latestRunKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (n *noopRunCache) GetLatest(ctx context.Context, sector string) (*pipeline.RestockRun, bool, error) {
	return nil, false, nil
}

func (n *noopRunCache) SetLatest(ctx context.Context, run *pipeline.RestockRun) error {
	return nil
}

func (n *noopRunCache) Invalidate(ctx context.Context, sector string) error {
	return nil
}

func (n *noopRunCache) InvalidateAll(ctx context.Context) error {
	return nil
}
