package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
)

const (
	poolSize     = 10
	minIdleConns = 2
	maxRetries   = 3
	dialTimeout  = 5 * time.Second
	ioTimeout    = 3 * time.Second
	poolTimeout  = 4 * time.Second
	idleTime     = 5 * time.Minute
)

// Client owns the Redis connection pool. Redis only ever serves as the
// optional session backend; the identity and audit stores never live here.
type Client struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewClient connects the pool and verifies the server answers before
// handing it out.
func NewClient(cfg config.RedisSettings, log *zap.Logger) (*Client, error) {
	var tlsConf *tls.Config
	if cfg.TLSEnabled {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
		MaxRetries:   maxRetries,

		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,

		PoolTimeout:     poolTimeout,
		ConnMaxIdleTime: idleTime,

		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	log.Info("redis connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB),
		zap.Bool("tls", cfg.TLSEnabled),
	)

	return &Client{rdb: rdb, log: log}, nil
}

// Client returns the underlying redis.Client for repository wiring.
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// HealthCheck pings the server, feeding the readiness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: health check: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	c.log.Info("closing redis connection")
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}
