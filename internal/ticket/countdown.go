package ticket

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// CountdownOptions tune the sale-open wait loop.
type CountdownOptions struct {
	Interval time.Duration // tick cadence, sub-second
	Lead     time.Duration // how early the loop reports readiness
	Now      func() time.Time
	Out      io.Writer
}

// Countdown ticks toward a sale-open instant and hands control back once
// the remaining time drops inside the configured lead.
type Countdown struct {
	interval time.Duration
	lead     time.Duration
	now      func() time.Time
	out      io.Writer
	logger   zerolog.Logger
}

// NewCountdown constructs the countdown loop.
func NewCountdown(opts CountdownOptions, logger zerolog.Logger) *Countdown {
	interval := opts.Interval
	if interval <= 0 {
		interval = 400 * time.Millisecond
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Countdown{
		interval: interval,
		lead:     opts.Lead,
		now:      now,
		out:      out,
		logger:   logger.With().Str("component", "countdown").Logger(),
	}
}

// Await blocks until the sale window is within lead, printing the remaining
// time each tick. Cancellation returns ctx.Err() and takes priority over a
// simultaneously ready tick.
func (c *Countdown) Await(ctx context.Context, saleOpen time.Time) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	ready := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
			return nil
		case <-ticker.C:
			remaining := saleOpen.Sub(c.now())
			if remaining <= c.lead {
				// non-blocking: a second eligible tick must not send into
				// the full buffer and deadlock the loop
				select {
				case ready <- struct{}{}:
				default:
				}
				continue
			}
			hours, minutes, seconds := msToHMS(remaining.Milliseconds())
			fmt.Fprintf(c.out, "\r\t开抢倒计时:%d小时:%d分钟:%.3f秒\t", hours, minutes, seconds)
		}
	}
}

// msToHMS decomposes a millisecond remainder into hours, minutes, and
// fractional seconds for the countdown display.
func msToHMS(ms int64) (int64, int64, float64) {
	sec := float64(ms) / 1000.0
	hours := int64(sec / 3600.0)
	rem := sec - float64(hours)*3600.0
	minutes := int64(rem / 60.0)
	seconds := rem - float64(minutes)*60.0
	return hours, minutes, seconds
}
