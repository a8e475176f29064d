package ticket

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
)

// leaksMinInterval floors the poll cadence so the listing endpoint is not
// hammered once inventory has stabilised.
const leaksMinInterval = time.Second

// LeaksOptions tune the returned-inventory poller.
type LeaksOptions struct {
	Attempts        int
	Interval        time.Duration
	Grades          []int // eligible 1-based tier indices; empty means any
	BuyCount        int   // 0 falls back to DefaultBuyCount
	DefaultBuyCount int
	Sleep           SleepFunc
	Out             io.Writer
}

// Leaks polls the tier listing for stock that reappears after the initial
// rush and fires a purchase burst at the first eligible marketable tier.
type Leaks struct {
	gateway  dmapi.Gateway
	burst    *Burst
	attempts int
	interval time.Duration
	grades   map[int]bool
	buyCount int
	sleep    SleepFunc
	out      io.Writer
	logger   zerolog.Logger
}

// NewLeaks constructs the poller around an existing burst runner.
func NewLeaks(gateway dmapi.Gateway, burst *Burst, opts LeaksOptions, logger zerolog.Logger) *Leaks {
	interval := opts.Interval
	if interval < leaksMinInterval {
		interval = leaksMinInterval
	}
	buyCount := opts.BuyCount
	if buyCount <= 0 {
		buyCount = opts.DefaultBuyCount
	}
	grades := make(map[int]bool, len(opts.Grades))
	for _, g := range opts.Grades {
		grades[g] = true
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepWith
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Leaks{
		gateway:  gateway,
		burst:    burst,
		attempts: opts.Attempts,
		interval: interval,
		grades:   grades,
		buyCount: buyCount,
		sleep:    sleep,
		out:      out,
		logger:   logger.With().Str("component", "leaks").Logger(),
	}
}

// Poll scans the tier listing up to the configured number of times. The
// first marketable tier that is unrestricted or configured eligible gets a
// burst; at most one tier is tried per poll cycle. Exhaustion returns
// false without error.
func (l *Leaks) Poll(ctx context.Context, ticketID, performID string) (bool, error) {
	for i := 0; i < l.attempts; i++ {
		fmt.Fprintf(l.out, "\r\t第%d次查询库存, ", i+1)

		detail, err := l.gateway.FetchSessionTiers(ctx, ticketID, performID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			l.logger.Debug().Err(err).Msg("查询票档失败")
		} else {
			ok, err := l.tryTiers(ctx, detail)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		fmt.Fprint(l.out, "无余票...")
		if err := l.sleep(ctx, l.interval); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (l *Leaks) tryTiers(ctx context.Context, detail *dmapi.PerformDetail) (bool, error) {
	for idx := range detail.Perform.SkuList {
		sku := &detail.Perform.SkuList[idx]
		grade := idx + 1
		if !sku.Salable() {
			continue
		}
		if len(l.grades) > 0 && !l.grades[grade] {
			continue
		}

		fmt.Fprint(l.out, "有余票...")
		l.logger.Info().Str("price_name", sku.PriceName).Str("price", sku.Price.String()).Msg("票档有库存, 去购买...")

		target := Target{ItemID: sku.ItemID, SkuID: sku.SkuID, BuyCount: l.buyCount}
		ok, err := l.burst.Run(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// a stale or throttled burst here only ends this poll cycle
			l.logger.Info().Err(err).Msg("捡漏抢购失败")
		}
		// one tier per cycle, matched or not
		return ok, nil
	}
	return false, nil
}
