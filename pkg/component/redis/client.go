// Package redis provides the Redis client constructor.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	options "github.com/kart-io/essay-qa/pkg/options/redis"
)

// Client wraps the go-redis client together with the options it was built from.
//
// Example usage:
//
//	client, err := redis.New(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	rdb := client.Raw()
//	err = rdb.Set(ctx, "key", "value", 0).Err()
type Client struct {
	rdb  *goredis.Client
	opts *options.Options
}

// New creates a Redis client and verifies connectivity with a ping.
func New(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid redis options: %v", errs)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", opts.Addr(), err)
	}

	return &Client{rdb: rdb, opts: opts}, nil
}

// Raw returns the underlying go-redis client.
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

// Ping checks if the connection to Redis is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
