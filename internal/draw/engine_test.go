package draw_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devfest/internal/draw"
	"devfest/internal/store"
)

type half struct{}

func (half) Float64() float64 { return 0.5 }

func newEngine(mock *clock.Mock) (*draw.Engine, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return draw.NewEngine(st, st, draw.EngineConfig{
		SpinDuration:  time.Second,
		FullRotations: 5,
		FrameInterval: 100 * time.Millisecond,
		Clock:         mock,
		Rand:          half{},
	}), st
}

func people(names ...string) []draw.Entry {
	out := make([]draw.Entry, len(names))
	for i, n := range names {
		out[i] = draw.Entry{ID: n, DisplayName: n, Code: "R-" + n}
	}
	return out
}

// advance keeps moving the mock clock until done is closed.
func advance(t *testing.T, mock *clock.Mock, done <-chan struct{}) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			mock.Add(100 * time.Millisecond)
			return false
		}
	}, 5*time.Second, time.Millisecond)
}

func TestEngine_SpinRecordsWinnerOnce(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	engine, st := newEngine(mock)

	_, err := engine.Load(ctx, "reward-1", people("A", "B", "C", "D"))
	require.NoError(t, err)

	var (
		result draw.SpinResult
		spinErr error
		frames  int
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, spinErr = engine.Spin(ctx, "reward-1", func(draw.Frame) { frames++ })
	}()
	advance(t, mock, done)

	require.NoError(t, spinErr)
	assert.Equal(t, "C", result.Winner.DisplayName)
	assert.InDelta(t, 1935, result.FinalRotationDegrees, 1e-9)
	assert.Greater(t, frames, 2)

	winners, err := st.Winners(ctx, "reward-1")
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, result.ID, winners[0].ID)

	pool, err := engine.Pool(ctx, "reward-1")
	require.NoError(t, err)
	assert.True(t, pool.Drawn())

	_, err = engine.Spin(ctx, "reward-1", nil)
	assert.ErrorIs(t, err, draw.ErrPoolDrawn)

	// reloading allows another draw
	_, err = engine.Load(ctx, "reward-1", people("A", "B", "D"))
	require.NoError(t, err)
	pool, err = engine.Pool(ctx, "reward-1")
	require.NoError(t, err)
	assert.False(t, pool.Drawn())
}

func TestEngine_Preconditions(t *testing.T) {
	ctx := context.Background()
	engine, st := newEngine(clock.NewMock())

	_, err := engine.Spin(ctx, "missing", nil)
	assert.ErrorIs(t, err, draw.ErrPoolNotFound)

	_, err = engine.Load(ctx, "empty", nil)
	require.NoError(t, err)

	called := false
	_, err = engine.Spin(ctx, "empty", func(draw.Frame) { called = true })
	assert.ErrorIs(t, err, draw.ErrEmptyPool)
	assert.False(t, called, "no frame for an empty pool")
	assert.False(t, engine.Spinning("empty"))

	winners, err := st.Winners(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestEngine_ConcurrentSpinRejected(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	engine, _ := newEngine(mock)

	_, err := engine.Load(ctx, "reward-1", people("A", "B"))
	require.NoError(t, err)

	started := make(chan struct{})
	var once sync.Once
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Spin(ctx, "reward-1", func(draw.Frame) { once.Do(func() { close(started) }) })
	}()
	<-started

	_, err = engine.Spin(ctx, "reward-1", nil)
	assert.ErrorIs(t, err, draw.ErrSpinInProgress)

	_, err = engine.Load(ctx, "reward-1", people("X"))
	assert.ErrorIs(t, err, draw.ErrSpinInProgress)

	advance(t, mock, done)
}

func TestEngine_CancelledSpinCommitsNothing(t *testing.T) {
	mock := clock.NewMock()
	engine, st := newEngine(mock)

	_, err := engine.Load(context.Background(), "reward-1", people("A", "B", "C"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Spin(ctx, "reward-1", func(draw.Frame) { once.Do(func() { close(started) }) })
		errCh <- err
	}()
	<-started
	cancel()

	err = <-errCh
	assert.True(t, errors.Is(err, context.Canceled))

	winners, err := st.Winners(context.Background(), "reward-1")
	require.NoError(t, err)
	assert.Empty(t, winners)

	pool, err := engine.Pool(context.Background(), "reward-1")
	require.NoError(t, err)
	assert.False(t, pool.Drawn())
	assert.False(t, engine.Spinning("reward-1"))
}

// slowPools blocks SavePool for one reward until unblock is closed.
type slowPools struct {
	*store.MemoryStore
	rewardID string
	entered  chan struct{}
	unblock  chan struct{}
}

func (s *slowPools) SavePool(ctx context.Context, pool draw.Pool) error {
	if pool.RewardID == s.rewardID {
		s.entered <- struct{}{}
		<-s.unblock
	}
	return s.MemoryStore.SavePool(ctx, pool)
}

func TestEngine_SlowLoadDoesNotBlockOtherRewards(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	pools := &slowPools{MemoryStore: st, rewardID: "slow", entered: make(chan struct{}, 1), unblock: make(chan struct{})}
	engine := draw.NewEngine(pools, st, draw.EngineConfig{Clock: clock.NewMock(), Rand: half{}})

	loaded := make(chan error, 1)
	go func() {
		_, err := engine.Load(ctx, "slow", people("A", "B"))
		loaded <- err
	}()
	<-pools.entered

	fast := make(chan error, 1)
	go func() {
		assert.False(t, engine.Spinning("other"))
		_, err := engine.Load(ctx, "other", people("C"))
		fast <- err
	}()
	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine lock held during a store write")
	}

	_, err := engine.Spin(ctx, "slow", nil)
	assert.ErrorIs(t, err, draw.ErrPoolLoading)
	_, err = engine.Load(ctx, "slow", people("D"))
	assert.ErrorIs(t, err, draw.ErrPoolLoading)

	close(pools.unblock)
	require.NoError(t, <-loaded)

	pool, err := engine.Pool(ctx, "slow")
	require.NoError(t, err)
	assert.Len(t, pool.Entries, 2)
}
