package draw

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func entries(names ...string) []Entry {
	out := make([]Entry, len(names))
	for i, n := range names {
		out[i] = Entry{ID: n, DisplayName: n, Code: "CODE-" + n}
	}
	return out
}

func TestSelect_FourEntryExample(t *testing.T) {
	pool := Pool{RewardID: "r1", Entries: entries("A", "B", "C", "D")}

	result, err := Selector{Rand: fixedRand(0.5), FullRotations: 5}.Select(pool)
	require.NoError(t, err)

	assert.Equal(t, 2, result.WinnerIndex)
	assert.Equal(t, "C", result.Winner.DisplayName)
	assert.InDelta(t, 90, result.SliceDegrees, 1e-9)
	assert.InDelta(t, 135, result.TargetDegrees, 1e-9)
	assert.InDelta(t, 1935, result.FinalRotationDegrees, 1e-9)
	assert.InDelta(t, 135, math.Mod(result.FinalRotationDegrees, 360), 1e-9)
	assert.Equal(t, "r1", result.RewardID)
	assert.NotEmpty(t, result.ID)
}

func TestSelect_EmptyPool(t *testing.T) {
	_, err := SelectWinner(Pool{RewardID: "r1"})
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestSelect_IndexBounds(t *testing.T) {
	pool := Pool{Entries: entries("A", "B", "C")}

	testCases := []struct {
		r    float64
		want int
	}{
		{0, 0},
		{0.333, 0},
		{0.334, 1},
		{0.9999, 2},
		{1.0, 2}, // clamped
	}
	for _, tc := range testCases {
		result, err := Selector{Rand: fixedRand(tc.r)}.Select(pool)
		require.NoError(t, err)
		assert.Equal(t, tc.want, result.WinnerIndex, "r=%v", tc.r)
	}
}

func TestSelect_DefaultRandStaysInRange(t *testing.T) {
	pool := Pool{Entries: entries("A", "B", "C", "D", "E", "F", "G")}
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		result, err := SelectWinner(pool)
		require.NoError(t, err)
		require.GreaterOrEqual(t, result.WinnerIndex, 0)
		require.Less(t, result.WinnerIndex, 7)
		seen[result.WinnerIndex] = true
	}
	assert.Len(t, seen, 7)
}

func TestTargetAngle_CentresWinnerUnderPointer(t *testing.T) {
	for n := 1; n <= 60; n++ {
		w := 360 / float64(n)
		for i := 0; i < n; i++ {
			target := TargetAngle(i, n)

			want := math.Mod(360-(float64(i)*360/float64(n)+180/float64(n)), 360)
			if want < 0 {
				want += 360
			}
			require.InDelta(t, want, target, 1e-9, "n=%d i=%d", n, i)
			require.GreaterOrEqual(t, target, 0.0)
			require.Less(t, target, 360.0)

			// middle of slice i after rotation sits at 0
			mid := NormalizeDegrees(float64(i)*w + w/2 + target)
			if mid > 180 {
				mid -= 360
			}
			require.InDelta(t, 0, mid, 1e-9, "n=%d i=%d", n, i)

			final := float64(DefaultFullRotations)*360 + target
			got, err := PointerSlice(n, final)
			require.NoError(t, err)
			require.Equal(t, i, got, "n=%d i=%d", n, i)
		}
	}
}

func TestNormalizeDegrees(t *testing.T) {
	assert.InDelta(t, 0, NormalizeDegrees(360), 1e-12)
	assert.InDelta(t, 350, NormalizeDegrees(-10), 1e-12)
	assert.InDelta(t, 135, NormalizeDegrees(1935), 1e-12)
	assert.InDelta(t, 0, NormalizeDegrees(-1e-16), 1e-12)
}

func TestPointerSlice_NoSlices(t *testing.T) {
	_, err := PointerSlice(0, 10)
	assert.Error(t, err)
}
