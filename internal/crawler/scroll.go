package crawler

import (
	"context"
	"fmt"
	"time"
)

// ScrollConfig bounds the lazy-load scroll loop.
type ScrollConfig struct {
	Step        int           // pixels per tick
	Interval    time.Duration // tick cadence
	MaxDistance int           // hard cap on total distance scrolled
}

// DefaultScrollConfig matches the tuning the extraction heuristics were
// calibrated against: 100 px every 100 ms, capped at 15000 px.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		Step:        100,
		Interval:    100 * time.Millisecond,
		MaxDistance: 15000,
	}
}

func (c ScrollConfig) withDefaults() ScrollConfig {
	d := DefaultScrollConfig()
	if c.Step <= 0 {
		c.Step = d.Step
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = d.MaxDistance
	}
	return c
}

// AutoScroll drives the session through repeated small scroll steps to
// trigger lazy-loaded content. It completes when the accumulated distance
// reaches the bottom of the page or exceeds the hard cap, whichever comes
// first. The scrollable height is re-read each tick because content may
// grow while scrolling.
func AutoScroll(ctx context.Context, session Session, cfg ScrollConfig) error {
	cfg = cfg.withDefaults()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	total := 0
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("auto scroll: %w", ctx.Err())
		case <-ticker.C:
		}

		m, err := session.Metrics(ctx)
		if err != nil {
			return fmt.Errorf("read scroll metrics: %w", err)
		}
		if err := session.ScrollBy(ctx, cfg.Step); err != nil {
			return fmt.Errorf("scroll step: %w", err)
		}
		total += cfg.Step

		if total >= m.ScrollHeight-m.ViewportHeight || total > cfg.MaxDistance {
			return nil
		}
	}
}
