package draw

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// DefaultFullRotations is how many whole turns a spin makes before settling.
const DefaultFullRotations = 5

// Rand is a source of uniform floats in [0, 1).
type Rand interface {
	Float64() float64
}

type randFunc func() float64

func (f randFunc) Float64() float64 { return f() }

// DefaultRand uses the process-wide generator. It is not cryptographically secure.
var DefaultRand Rand = randFunc(rand.Float64)

// SpinResult is the outcome of one spin.
type SpinResult struct {
	ID                   string    `json:"id"`
	RewardID             string    `json:"reward_id"`
	WinnerIndex          int       `json:"winner_index"`
	Winner               Entry     `json:"winner"`
	SliceDegrees         float64   `json:"slice_degrees"`
	TargetDegrees        float64   `json:"target_degrees"`
	FinalRotationDegrees float64   `json:"final_rotation_degrees"`
	StartedAt            time.Time `json:"started_at"`
}

// Selector picks winners.
type Selector struct {
	Rand          Rand
	FullRotations int
	Now           func() time.Time
}

// SelectWinner picks a winner with DefaultRand and DefaultFullRotations.
func SelectWinner(pool Pool) (SpinResult, error) {
	return Selector{}.Select(pool)
}

// Select picks floor(r*n) as the winner and computes the rotation that puts the middle of the
// winner's slice under the pointer.
func (s Selector) Select(pool Pool) (SpinResult, error) {
	n := len(pool.Entries)
	if n == 0 {
		return SpinResult{}, ErrEmptyPool
	}

	rng := s.Rand
	if rng == nil {
		rng = DefaultRand
	}
	rotations := s.FullRotations
	if rotations <= 0 {
		rotations = DefaultFullRotations
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	index := int(math.Floor(rng.Float64() * float64(n)))
	// guards against sources that return exactly 1.0
	index = min(max(index, 0), n-1)

	target := TargetAngle(index, n)
	return SpinResult{
		ID:                   uuid.NewString(),
		RewardID:             pool.RewardID,
		WinnerIndex:          index,
		Winner:               pool.Entries[index],
		SliceDegrees:         SliceDegrees(n),
		TargetDegrees:        target,
		FinalRotationDegrees: float64(rotations)*360 + target,
		StartedAt:            now(),
	}, nil
}

// SliceDegrees is the angular width of one slice.
func SliceDegrees(n int) float64 {
	if n <= 0 {
		return 360
	}
	return 360 / float64(n)
}

// TargetAngle is the wheel rotation in [0, 360) that centres slice i of n under the pointer.
func TargetAngle(i, n int) float64 {
	w := SliceDegrees(n)
	return NormalizeDegrees(360 - (float64(i)*w + w/2))
}

// NormalizeDegrees maps a into [0, 360).
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// PointerSlice returns the slice under the pointer when the wheel is rotated by rotation.
func PointerSlice(n int, rotation float64) (int, error) {
	if n <= 0 {
		return 0, errors.New("draw: no slices")
	}
	wheelAngle := NormalizeDegrees(-rotation)
	i := int(math.Floor(wheelAngle / SliceDegrees(n)))
	return min(i, n-1), nil
}
