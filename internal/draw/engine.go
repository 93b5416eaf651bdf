package draw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// PoolStore keeps the loaded pool of each reward.
type PoolStore interface {
	SavePool(ctx context.Context, pool Pool) error
	// LoadPool returns ErrPoolNotFound when nothing was saved for rewardID.
	LoadPool(ctx context.Context, rewardID string) (Pool, error)
}

// WinnerStore keeps the history of completed spins.
type WinnerStore interface {
	RecordWinner(ctx context.Context, result SpinResult) error
	Winners(ctx context.Context, rewardID string) ([]SpinResult, error)
}

// DrawCommitter is implemented by stores that can record the winner and the drawn pool atomically.
type DrawCommitter interface {
	CommitDraw(ctx context.Context, pool Pool, result SpinResult) error
}

// EngineConfig tunes spins.
type EngineConfig struct {
	SpinDuration  time.Duration
	FullRotations int
	FrameInterval time.Duration
	Clock         clock.Clock
	Rand          Rand
}

// Engine runs lucky draws per reward. A pool produces one winner; drawing again needs a reload.
type Engine struct {
	pools    PoolStore
	winners  WinnerStore
	cfg      EngineConfig
	animator Animator
	selector Selector

	mu       sync.Mutex
	spinning map[string]struct{}
	loading  map[string]struct{}
}

// NewEngine creates an engine on top of the given stores.
func NewEngine(pools PoolStore, winners WinnerStore, cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.SpinDuration <= 0 {
		cfg.SpinDuration = 5 * time.Second
	}

	return &Engine{
		pools:    pools,
		winners:  winners,
		cfg:      cfg,
		animator: Animator{Clock: cfg.Clock, FrameInterval: cfg.FrameInterval},
		selector: Selector{Rand: cfg.Rand, FullRotations: cfg.FullRotations, Now: cfg.Clock.Now},
		spinning: make(map[string]struct{}),
		loading:  make(map[string]struct{}),
	}
}

// SpinDuration returns the configured animation length.
func (e *Engine) SpinDuration() time.Duration {
	return e.cfg.SpinDuration
}

// Load replaces the pool of rewardID. It fails while that reward is spinning or loading. The
// store write runs without holding the engine lock; spins of the same reward are refused until
// it returns.
func (e *Engine) Load(ctx context.Context, rewardID string, entries []Entry) (Pool, error) {
	if err := e.mark(e.loading, rewardID); err != nil {
		return Pool{}, err
	}
	defer e.unmark(e.loading, rewardID)

	pool := Pool{
		RewardID: rewardID,
		Entries:  append([]Entry(nil), entries...),
		LoadedAt: e.cfg.Clock.Now(),
	}
	if err := e.pools.SavePool(ctx, pool); err != nil {
		return Pool{}, fmt.Errorf("save pool %s: %w", rewardID, err)
	}

	log.Info().Str("reward_id", rewardID).Int("entries", len(entries)).Msg("draw pool loaded")
	return pool, nil
}

// Pool returns the loaded pool of rewardID.
func (e *Engine) Pool(ctx context.Context, rewardID string) (Pool, error) {
	return e.pools.LoadPool(ctx, rewardID)
}

// Winners returns past results for rewardID.
func (e *Engine) Winners(ctx context.Context, rewardID string) ([]SpinResult, error) {
	return e.winners.Winners(ctx, rewardID)
}

// Spin selects a winner, animates the wheel and, once the animation completes, records the
// winner and marks the pool drawn. Precondition failures return before the first frame. If ctx
// ends mid-animation nothing is recorded.
func (e *Engine) Spin(ctx context.Context, rewardID string, onFrame func(Frame)) (SpinResult, error) {
	// claimed before reading the pool so Load cannot swap it mid-spin
	if err := e.mark(e.spinning, rewardID); err != nil {
		return SpinResult{}, err
	}
	defer e.unmark(e.spinning, rewardID)

	pool, err := e.pools.LoadPool(ctx, rewardID)
	if err != nil {
		return SpinResult{}, err
	}
	if pool.Drawn() {
		return SpinResult{}, ErrPoolDrawn
	}

	result, err := e.selector.Select(pool.Snapshot())
	if err != nil {
		return SpinResult{}, err
	}

	logger := log.With().Str("reward_id", rewardID).Str("spin_id", result.ID).Logger()
	logger.Info().Int("entries", len(pool.Entries)).Int("winner_index", result.WinnerIndex).Msg("spin started")

	if err := e.animator.Animate(ctx, result, e.cfg.SpinDuration, onFrame, nil); err != nil {
		logger.Info().Err(err).Msg("spin cancelled")
		return SpinResult{}, err
	}

	// the animation finished, so the result stands even if the caller went away now
	pool.DrawnBy = result.ID
	if err := e.commit(context.WithoutCancel(ctx), pool, result); err != nil {
		logger.Error().Err(err).Msg("failed to record winner")
		return SpinResult{}, err
	}

	logger.Info().Str("winner", result.Winner.DisplayName).Msg("spin completed")
	return result, nil
}

func (e *Engine) commit(ctx context.Context, pool Pool, result SpinResult) error {
	if c, ok := e.winners.(DrawCommitter); ok {
		if err := c.CommitDraw(ctx, pool, result); err != nil {
			return fmt.Errorf("commit draw: %w", err)
		}
		return nil
	}

	if err := e.winners.RecordWinner(ctx, result); err != nil {
		return fmt.Errorf("record winner: %w", err)
	}
	if err := e.pools.SavePool(ctx, pool); err != nil {
		return fmt.Errorf("mark pool drawn: %w", err)
	}
	return nil
}

// mark adds rewardID to set unless the reward is already spinning or loading.
func (e *Engine) mark(set map[string]struct{}, rewardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.spinning[rewardID]; busy {
		return ErrSpinInProgress
	}
	if _, busy := e.loading[rewardID]; busy {
		return ErrPoolLoading
	}
	set[rewardID] = struct{}{}
	return nil
}

func (e *Engine) unmark(set map[string]struct{}, rewardID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(set, rewardID)
}

// Spinning reports whether rewardID has a spin in flight.
func (e *Engine) Spinning(rewardID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.spinning[rewardID]
	return busy
}
