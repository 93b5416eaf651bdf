package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devfest/internal/draw"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	testStore(t, NewRedisStore(client, ""))
}

func TestRedisStore_Keys(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test:")
	ctx := context.Background()

	require.NoError(t, s.SavePool(ctx, samplePool("r1")))
	require.NoError(t, s.RecordWinner(ctx, sampleResult("r1", "spin-1")))

	assert.True(t, mr.Exists("test:draw:pool:r1"))
	items, err := mr.List("test:draw:winners:r1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	got, err := s.LoadPool(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, samplePool("r1").LoadedAt.Equal(got.LoadedAt))
}

func TestRedisStore_CorruptPool(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "")
	require.NoError(t, mr.Set("devfest:draw:pool:bad", "{not json"))

	_, err := s.LoadPool(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, draw.ErrPoolNotFound)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	_ = client.Close()

	_, err = OpenRedis(context.Background(), "", "", 0)
	assert.Error(t, err)

	mr.Close()
	_, err = OpenRedis(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}
