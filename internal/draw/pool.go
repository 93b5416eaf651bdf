package draw

import (
	"errors"
	"time"
)

var (
	// ErrEmptyPool is returned when a spin is requested with no eligible entries.
	ErrEmptyPool = errors.New("draw pool is empty")
	// ErrPoolNotFound is returned when no pool was loaded for a reward.
	ErrPoolNotFound = errors.New("draw pool not found")
	// ErrSpinInProgress is returned when a reward is already spinning.
	ErrSpinInProgress = errors.New("spin already in progress")
	// ErrPoolLoading is returned while another Load of the same reward is saving.
	ErrPoolLoading = errors.New("draw pool is being loaded")
	// ErrPoolDrawn is returned when the pool already produced a winner and was not reloaded.
	ErrPoolDrawn = errors.New("draw pool already drawn, reload it first")
)

// Entry is one winner-eligible record, usually a completed redemption.
type Entry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Code        string `json:"code"`
}

// Pool is the set of entries for one reward. Entries are not modified while a spin runs.
type Pool struct {
	RewardID string    `json:"reward_id"`
	Entries  []Entry   `json:"entries"`
	LoadedAt time.Time `json:"loaded_at"`
	// DrawnBy is the spin that consumed this pool, empty until a spin completes.
	DrawnBy string `json:"drawn_by,omitempty"`
}

// Snapshot returns a copy whose entries can be used without holding any lock.
func (p Pool) Snapshot() Pool {
	p.Entries = append([]Entry(nil), p.Entries...)
	return p
}

// Drawn reports whether the pool already produced a winner.
func (p Pool) Drawn() bool {
	return p.DrawnBy != ""
}
