package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"devfest/internal/draw"
)

const defaultPrefix = "devfest:"

// RedisStore keeps pools as JSON strings and winners as JSON lists.
//
//	<prefix>draw:pool:<reward>     pool JSON
//	<prefix>draw:winners:<reward>  list of SpinResult JSON, oldest first
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore uses client with keys under prefix ("devfest:" when empty).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) poolKey(rewardID string) string {
	return fmt.Sprintf("%sdraw:pool:%s", r.prefix, rewardID)
}

func (r *RedisStore) winnersKey(rewardID string) string {
	return fmt.Sprintf("%sdraw:winners:%s", r.prefix, rewardID)
}

func (r *RedisStore) SavePool(ctx context.Context, pool draw.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.poolKey(pool.RewardID), data, 0).Err()
}

func (r *RedisStore) LoadPool(ctx context.Context, rewardID string) (draw.Pool, error) {
	data, err := r.client.Get(ctx, r.poolKey(rewardID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return draw.Pool{}, draw.ErrPoolNotFound
		}
		return draw.Pool{}, err
	}

	var pool draw.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return draw.Pool{}, fmt.Errorf("decode pool %s: %w", rewardID, err)
	}
	return pool, nil
}

func (r *RedisStore) RecordWinner(ctx context.Context, result draw.SpinResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.winnersKey(result.RewardID), data).Err()
}

// CommitDraw appends the winner and saves the drawn pool in one MULTI/EXEC.
func (r *RedisStore) CommitDraw(ctx context.Context, pool draw.Pool, result draw.SpinResult) error {
	poolData, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	resultData, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.winnersKey(result.RewardID), resultData)
		pipe.Set(ctx, r.poolKey(pool.RewardID), poolData, 0)
		return nil
	})
	return err
}

func (r *RedisStore) Winners(ctx context.Context, rewardID string) ([]draw.SpinResult, error) {
	items, err := r.client.LRange(ctx, r.winnersKey(rewardID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	results := make([]draw.SpinResult, 0, len(items))
	for _, item := range items {
		var result draw.SpinResult
		if err := json.Unmarshal([]byte(item), &result); err != nil {
			return nil, fmt.Errorf("decode winner of %s: %w", rewardID, err)
		}
		results = append(results, result)
	}
	return results, nil
}
