package gmaps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosom/maps-recommender/metrics"
)

var ErrNotStabilized = errors.New("scroll height did not stabilize")

// ScrollTarget is a scrollable element whose content grows as it is scrolled.
type ScrollTarget interface {
	ScrollHeight(ctx context.Context) (int, error)
	ScrollToBottom(ctx context.Context) error
}

// ScrollPolicy bounds the scroll loop. A zero MaxIterations or MaxDuration
// leaves that bound unset.
type ScrollPolicy struct {
	Settle        time.Duration
	MaxIterations int
	MaxDuration   time.Duration
}

func DefaultScrollPolicy() ScrollPolicy {
	return ScrollPolicy{
		Settle:        2 * time.Second,
		MaxIterations: 200,
		MaxDuration:   10 * time.Minute,
	}
}

type ScrollResult struct {
	// Scrolls is the number of scroll-to-bottom commands issued.
	Scrolls int
	// Height is the last measured scroll height.
	Height int
}

// Scroll scrolls target to the bottom until two consecutive height
// measurements are equal.
func Scroll(ctx context.Context, target ScrollTarget, policy ScrollPolicy) (ScrollResult, error) {
	var res ScrollResult

	start := time.Now()

	last, err := target.ScrollHeight(ctx)
	if err != nil {
		return res, fmt.Errorf("could not read scroll height: %w", err)
	}

	res.Height = last

	for {
		if policy.MaxIterations > 0 && res.Scrolls >= policy.MaxIterations {
			return res, fmt.Errorf("%w: %d scrolls, last height %d", ErrNotStabilized, res.Scrolls, res.Height)
		}

		if policy.MaxDuration > 0 && time.Since(start) >= policy.MaxDuration {
			return res, fmt.Errorf("%w: %s elapsed, last height %d", ErrNotStabilized, policy.MaxDuration, res.Height)
		}

		if err := target.ScrollToBottom(ctx); err != nil {
			return res, fmt.Errorf("could not scroll to bottom: %w", err)
		}

		res.Scrolls++
		metrics.ScrollCommands.Inc()

		if err := ctxWait(ctx, policy.Settle); err != nil {
			return res, err
		}

		height, err := target.ScrollHeight(ctx)
		if err != nil {
			return res, fmt.Errorf("could not read scroll height: %w", err)
		}

		res.Height = height

		if height == last {
			return res, nil
		}

		last = height
	}
}

func ctxWait(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(dur)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
