package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"reelshare/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 6379
	pingTimeout = 3 * time.Second
)

var (
	// ErrCacheMiss means no bundle is stored under the key.
	ErrCacheMiss = errors.New("cache miss")
	// ErrDisabled is returned when redis is not enabled in config.
	ErrDisabled = errors.New("redis disabled")
	errNotReady = errors.New("redis client not initialized")
)

// Client is the string key/value store behind BundleCache.
type Client struct {
	inner *redis.Client
}

// NewRedisClient dials redis from app config and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if !cfg.Redis.Enabled {
		return nil, ErrDisabled
	}
	opts := redisOptions(cfg.Redis)
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Client{inner: client}, nil
}

// redisOptions accepts either host plus port or a "host:port" host, as set
// through REELSHARE_REDIS_HOST.
func redisOptions(rc config.RedisConfig) *redis.Options {
	host, port := rc.Host, rc.Port
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	return &redis.Options{
		Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		Username:    rc.Username,
		Password:    rc.Password,
		DB:          rc.DB,
		DialTimeout: pingTimeout,
	}
}

// Set stores value under key; ttl <= 0 keeps it without expiry.
func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return errNotReady
	}
	return c.inner.Set(ctx, key, value, max(ttl, 0)).Err()
}

// Get returns ErrCacheMiss when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", errNotReady
	}
	v, err := c.inner.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil {
		return errNotReady
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
