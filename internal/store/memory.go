package store

import (
	"context"
	"sync"

	"devfest/internal/draw"
)

// MemoryStore keeps everything in process memory. Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	pools   map[string]draw.Pool
	winners map[string][]draw.SpinResult
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:   make(map[string]draw.Pool),
		winners: make(map[string][]draw.SpinResult),
	}
}

func (m *MemoryStore) SavePool(_ context.Context, pool draw.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.RewardID] = pool.Snapshot()
	return nil
}

func (m *MemoryStore) LoadPool(_ context.Context, rewardID string) (draw.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[rewardID]
	if !ok {
		return draw.Pool{}, draw.ErrPoolNotFound
	}
	return pool.Snapshot(), nil
}

func (m *MemoryStore) RecordWinner(_ context.Context, result draw.SpinResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.winners[result.RewardID] = append(m.winners[result.RewardID], result)
	return nil
}

// CommitDraw appends the winner and saves the drawn pool under one lock.
func (m *MemoryStore) CommitDraw(_ context.Context, pool draw.Pool, result draw.SpinResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.winners[result.RewardID] = append(m.winners[result.RewardID], result)
	m.pools[pool.RewardID] = pool.Snapshot()
	return nil
}

func (m *MemoryStore) Winners(_ context.Context, rewardID string) ([]draw.SpinResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]draw.SpinResult{}, m.winners[rewardID]...), nil
}
