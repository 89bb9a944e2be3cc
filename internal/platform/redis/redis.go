package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the history mirror's client. Zero values take the
// shipped defaults.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	// IOTimeout bounds each read and write.
	IOTimeout time.Duration
	PoolSize  int
	Logger    *slog.Logger
}

func (o Options) clientOptions() *redis.Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 3 * time.Second
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 2 * time.Second
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	return &redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.IOTimeout,
		WriteTimeout: o.IOTimeout,
		PoolSize:     o.PoolSize,
	}
}

// New connects and pings within the dial timeout. The client is closed again
// when the ping fails.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientOpts := opts.clientOptions()
	client := redis.NewClient(clientOpts)

	pingCtx, cancel := context.WithTimeout(ctx, clientOpts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s failed: %w", opts.Addr, err)
	}

	logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB, "pool_size", clientOpts.PoolSize)
	return client, nil
}
