// Package store persists draw pools and winner history.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"devfest/internal/draw"
)

// Store is what the draw engine needs from persistence.
type Store interface {
	draw.PoolStore
	draw.WinnerStore
}

// OpenRedis creates a client and pings it to validate the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}
