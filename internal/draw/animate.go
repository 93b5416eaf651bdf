package draw

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultFrameInterval is about one display refresh at 60 Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// EaseOutCubic maps progress p to 1-(1-p)^3. p is clamped to [0, 1].
func EaseOutCubic(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	return 1 - math.Pow(1-p, 3)
}

// Frame is one animation step.
type Frame struct {
	// Rotation is the absolute wheel rotation in degrees, not normalised.
	Rotation float64       `json:"rotation"`
	Progress float64       `json:"progress"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Animator drives a spin from elapsed clock time, so slow frames skip ahead instead of
// stretching the animation.
type Animator struct {
	Clock         clock.Clock
	FrameInterval time.Duration
}

// Animate eases the wheel from 0 to result.FinalRotationDegrees over duration. onFrame gets every
// frame; the last one has exactly the final rotation. onComplete fires once, after at least
// duration has elapsed. If ctx ends first, Animate returns ctx.Err() and no callback runs after
// that point.
func (a Animator) Animate(ctx context.Context, result SpinResult, duration time.Duration, onFrame func(Frame), onComplete func(SpinResult)) error {
	clk := a.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := a.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if onFrame == nil {
		onFrame = func(Frame) {}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	start := clk.Now()
	final := result.FinalRotationDegrees
	onFrame(Frame{Rotation: 0, Progress: 0})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		// select picks at random when both are ready
		if err := ctx.Err(); err != nil {
			return err
		}

		elapsed := clk.Since(start)
		if elapsed >= duration {
			onFrame(Frame{Rotation: final, Progress: 1, Elapsed: elapsed})
			if onComplete != nil {
				onComplete(result)
			}
			return nil
		}

		p := float64(elapsed) / float64(duration)
		onFrame(Frame{Rotation: final * EaseOutCubic(p), Progress: p, Elapsed: elapsed})
	}
}
