package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen caps the stream so an unattended booth cannot grow it forever.
const DefaultStreamMaxLen = 10000

// RedisPublisher appends scan events to a redis stream for check-in and contact consumers.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher writes to stream, trimming it to roughly maxLen entries (0 uses the default).
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev ScanEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"scanner_id": ev.ScannerID,
			"kind":       string(ev.Kind),
			"text":       ev.Text,
			"at":         ev.At.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
