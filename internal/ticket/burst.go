package ticket

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
)

// Target identifies what a burst purchases. Immutable for the duration of
// one burst; the leaks poller re-resolves a fresh one per matched tier.
type Target struct {
	ItemID   string
	SkuID    string
	BuyCount int
}

// AttemptOutcome records one purchase attempt for observability and the
// optional history store.
type AttemptOutcome struct {
	Attempt int
	Elapsed time.Duration
	Wait    time.Duration
	Status  string // success, rejected, errored
	Reason  string
	Kind    ErrorKind
}

// SleepFunc waits for d or until ctx is cancelled. Injectable for tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWith(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BurstOptions tune one purchase burst.
type BurstOptions struct {
	Size        int
	Probe       time.Duration
	SubmitDelay time.Duration
	Sleep       SleepFunc
	Observer    func(AttemptOutcome)
}

// Burst drives one bounded run of purchase attempts against a fixed sku.
type Burst struct {
	gateway     dmapi.Gateway
	sched       Scheduler
	size        int
	submitDelay time.Duration
	sleep       SleepFunc
	observer    func(AttemptOutcome)
	logger      zerolog.Logger
}

// NewBurst constructs a burst runner.
func NewBurst(gateway dmapi.Gateway, opts BurstOptions, logger zerolog.Logger) *Burst {
	size := opts.Size
	if size <= 0 {
		size = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepWith
	}
	return &Burst{
		gateway:     gateway,
		sched:       Scheduler{Probe: opts.Probe},
		size:        size,
		submitDelay: opts.SubmitDelay,
		sleep:       sleep,
		observer:    opts.Observer,
		logger:      logger.With().Str("component", "burst").Logger(),
	}
}

// Run executes up to the configured number of attempts and returns true on
// the first successful submission. SystemBusy and ProductExpired failures
// abort with the underlying error for the caller to dispatch on; other
// failures are retried until the budget is exhausted, which returns false
// without error.
func (b *Burst) Run(ctx context.Context, target Target) (bool, error) {
	var cumulative time.Duration
	var minAttempt time.Duration

	for attempt := 0; attempt < b.size; attempt++ {
		start := time.Now()
		ok, reason, err := b.attempt(ctx, target)
		elapsed := time.Since(start)
		outcome := AttemptOutcome{Attempt: attempt, Elapsed: elapsed}

		if err != nil {
			outcome.Status = "errored"
			outcome.Reason = err.Error()
			outcome.Kind = Classify(err)
			switch outcome.Kind {
			case KindSystemBusy, KindProductExpired:
				b.observe(outcome)
				return false, err
			}
			if ctx.Err() != nil {
				b.observe(outcome)
				return false, ctx.Err()
			}
			b.logger.Info().Err(err).Int("attempt", attempt).Msg("生成订单失败")
		} else if ok {
			outcome.Status = "success"
			b.observe(outcome)
			return true, nil
		} else {
			outcome.Status = "rejected"
			outcome.Reason = reason
			b.logger.Info().Str("reason", reason).Int("attempt", attempt).Msg("提交订单失败")
		}

		cumulative += elapsed
		if minAttempt == 0 || elapsed < minAttempt {
			minAttempt = elapsed
		}

		if attempt == b.size-1 {
			b.observe(outcome)
			break
		}
		wait := b.sched.NextInterval(attempt, cumulative, minAttempt)
		cumulative += wait
		outcome.Wait = wait
		b.observe(outcome)
		b.logger.Info().Int("attempt", attempt).Dur("elapsed", elapsed).Dur("wait", wait).Msg("此次抢购花费时间")
		if err := b.sleep(ctx, wait); err != nil {
			return false, err
		}
	}

	return false, nil
}

// attempt builds and submits one order. ok reports submission success;
// a false ok with nil error is a remote rejection carrying reason.
func (b *Burst) attempt(ctx context.Context, target Target) (bool, string, error) {
	draft, err := b.gateway.BuildOrder(ctx, target.ItemID, target.SkuID, target.BuyCount)
	if err != nil {
		return false, "", err
	}
	b.logger.Info().Msg("成功生成订单...")

	if b.submitDelay > 0 {
		if err := b.sleep(ctx, b.submitDelay); err != nil {
			return false, "", err
		}
	}

	res, err := b.gateway.SubmitOrder(ctx, draft, target.BuyCount)
	if err != nil {
		return false, "", err
	}
	if res.Success() {
		b.logger.Info().Msg("提交订单成功, 请尽快前往手机APP付款")
		return true, "", nil
	}
	return false, res.RetMsg(), nil
}

func (b *Burst) observe(outcome AttemptOutcome) {
	if b.observer != nil {
		b.observer(outcome)
	}
}
