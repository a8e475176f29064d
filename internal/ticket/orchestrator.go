package ticket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
	"github.com/sodargreen/dm-ticket/internal/reauth"
)

// Phase is the orchestrator's current position in the run state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseResolvingIdentity
	PhaseResolvingCatalog
	PhaseResolvingSession
	PhaseDeciding
	PhaseCountingDown
	PhaseBuyingNow
	PhaseAttempting
	PhasePollingLeaks
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseResolvingIdentity:
		return "resolving_identity"
	case PhaseResolvingCatalog:
		return "resolving_catalog"
	case PhaseResolvingSession:
		return "resolving_session"
	case PhaseDeciding:
		return "deciding"
	case PhaseCountingDown:
		return "counting_down"
	case PhaseBuyingNow:
		return "buying_now"
	case PhaseAttempting:
		return "attempting"
	case PhasePollingLeaks:
		return "polling_leaks"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// RunState is the single mutable value of one run, owned by the
// orchestrator and handed to the caller at the end.
type RunState struct {
	Phase     Phase
	Target    Target
	TicketID  string
	PerformID string
	TierName  string
	TierPrice decimal.Decimal
	SaleOpen  time.Time
	Success   bool
}

// Policy is the per-account purchase policy driving one run.
type Policy struct {
	TicketID             string
	SessionIndex         int // 1-based
	GradeIndex           int // 1-based
	BuyCount             int
	SaleOpenOverrideMs   int64 // positive value bypasses catalog timing
	PriorityPurchaseLead time.Duration
	GracePeriod          time.Duration
	Remark               string
	LoginID              string
}

// OrchestratorOptions carry the policy plus test seams.
type OrchestratorOptions struct {
	Policy Policy
	Now    func() time.Time
	Out    io.Writer
}

// Orchestrator sequences discovery and dispatches between countdown,
// immediate purchase, and inventory polling.
type Orchestrator struct {
	gateway   dmapi.Gateway
	countdown *Countdown
	burst     *Burst
	leaks     *Leaks
	reauth    reauth.Strategy
	policy    Policy
	now       func() time.Time
	out       io.Writer
	logger    zerolog.Logger
}

// NewOrchestrator wires the run state machine.
func NewOrchestrator(gateway dmapi.Gateway, countdown *Countdown, burst *Burst, leaks *Leaks, auth reauth.Strategy, opts OrchestratorOptions, logger zerolog.Logger) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	if auth == nil {
		auth = reauth.Noop{}
	}
	return &Orchestrator{
		gateway:   gateway,
		countdown: countdown,
		burst:     burst,
		leaks:     leaks,
		reauth:    auth,
		policy:    opts.Policy,
		now:       now,
		out:       out,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one acquisition run to a terminal state. A non-nil error is
// a fatal precondition failure; cancellation and "not acquired" outcomes
// end cleanly with state.Success=false.
func (o *Orchestrator) Run(ctx context.Context) (*RunState, error) {
	state := &RunState{Phase: PhaseInit, TicketID: o.policy.TicketID}

	o.logger.Info().Msg("正在检查用户信息...")
	state.Phase = PhaseResolvingIdentity
	identity, err := o.gateway.FetchIdentity(ctx)
	if err != nil {
		if Classify(err) == KindSystemBusy {
			o.logger.Error().Msg("获取用户信息失败, cookie已过期, 请重新登录!")
		} else {
			o.logger.Error().Err(err).Msg("获取用户信息失败")
		}
		return state, fmt.Errorf("获取用户信息: %w", err)
	}

	o.logger.Info().Msg("正在获取演唱会信息...")
	state.Phase = PhaseResolvingCatalog
	detail, err := o.gateway.FetchCatalog(ctx, o.policy.TicketID)
	if err != nil {
		return state, fmt.Errorf("获取演唱会信息: %w", err)
	}
	perform, err := detail.Perform(o.policy.SessionIndex - 1)
	if err != nil {
		return state, err
	}
	state.PerformID = perform.PerformID

	o.logger.Info().Msg("正在获取场次/票档信息...")
	state.Phase = PhaseResolvingSession
	tiers, err := o.gateway.FetchSessionTiers(ctx, o.policy.TicketID, perform.PerformID)
	if err != nil {
		return state, fmt.Errorf("获取场次/票档信息: %w", err)
	}
	skuIdx := o.policy.GradeIndex - 1
	if skuIdx < 0 || skuIdx >= len(tiers.Perform.SkuList) {
		return state, fmt.Errorf("票档索引 %d 超出范围 (共 %d 档)", o.policy.GradeIndex, len(tiers.Perform.SkuList))
	}
	sku := tiers.Perform.SkuList[skuIdx]
	state.Target = Target{ItemID: sku.ItemID, SkuID: sku.SkuID, BuyCount: o.policy.BuyCount}
	state.TierName = sku.PriceName
	state.TierPrice = sku.Price

	state.Phase = PhaseDeciding
	saleMillis, err := detail.SaleStartMillis()
	if err != nil {
		return state, err
	}
	if o.policy.SaleOpenOverrideMs > 0 {
		saleMillis = o.policy.SaleOpenOverrideMs
	}
	state.SaleOpen = time.UnixMilli(saleMillis)

	fmt.Fprintf(o.out,
		"\r\n\t账号备注: %s\n\t账号昵称: %s\n\t门票名称: %s\n\t场次名称: %s\n\t票档名称: %s\n\t开售时间: %s\n\n",
		o.policy.Remark, identity.Nickname, detail.ItemName(), perform.PerformName, sku.PriceName, detail.SaleStartTimeStr(),
	)

	if o.now().After(state.SaleOpen) {
		return o.buyItNow(ctx, state)
	}
	return o.waitForBuy(ctx, state)
}

// buyItNow handles a sale that is already open: one burst, then leaks on a
// stale product within the grace period, or the re-auth helper on a
// throttled session.
func (o *Orchestrator) buyItNow(ctx context.Context, state *RunState) (*RunState, error) {
	state.Phase = PhaseBuyingNow
	ok, err := o.burst.Run(ctx, state.Target)
	if ok {
		return o.done(state, true)
	}
	if err == nil {
		o.logger.Info().Msg("未能抢到票")
		return o.done(state, false)
	}
	if cancelled(ctx, err) {
		o.logger.Info().Msg("CTRL-C, 退出程序...")
		return o.done(state, false)
	}

	switch Classify(err) {
	case KindProductExpired:
		if o.now().Sub(state.SaleOpen) > o.policy.GracePeriod {
			return o.done(state, false)
		}
		o.logger.Info().Msg("商品已售空, 去捡漏...")
		return o.pollLeaks(ctx, state)
	case KindSystemBusy:
		o.logger.Info().Msg("cookie 失效, 调用重新登录流程")
		if rerr := o.reauth.Recover(ctx, o.policy.LoginID); rerr != nil {
			o.logger.Error().Err(rerr).Msg("重新登录失败")
		}
		return o.done(state, false)
	}
	return state, err
}

// waitForBuy counts down to the sale window, runs a burst, optionally
// repeats once for a priority-purchase window, then decides between
// escalation and termination.
func (o *Orchestrator) waitForBuy(ctx context.Context, state *RunState) (*RunState, error) {
	ok, err := o.countdownCycle(ctx, state, state.SaleOpen)
	if ok || cancelled(ctx, err) {
		if err != nil {
			o.logger.Info().Msg("CTRL-C, 退出程序...")
			return o.done(state, false)
		}
		return o.done(state, ok)
	}

	if o.policy.PriorityPurchaseLead > 0 {
		o.logger.Info().Msg("优先购已结束, 等待正式开抢...")
		secondOpen := state.SaleOpen.Add(o.policy.PriorityPurchaseLead)
		ok2, err2 := o.countdownCycle(ctx, state, secondOpen)
		if ok2 || cancelled(ctx, err2) {
			if err2 != nil {
				o.logger.Info().Msg("CTRL-C, 退出程序...")
				return o.done(state, false)
			}
			return o.done(state, ok2)
		}
		// a clean second-window exhaustion keeps the first cycle's
		// classified abort for the escalation decision below
		if err2 != nil {
			err = err2
		}
	}

	if err != nil {
		switch Classify(err) {
		case KindProductExpired:
			if o.now().Sub(state.SaleOpen) <= o.policy.GracePeriod {
				o.logger.Info().Msg("未能抢到票, 去捡漏...")
				return o.pollLeaks(ctx, state)
			}
			return o.done(state, false)
		case KindSystemBusy:
			o.logger.Error().Err(err).Msg("账号被限流, 终止本次抢购")
			return o.done(state, false)
		}
		return state, err
	}

	o.logger.Info().Msg("未能抢到票")
	return o.done(state, false)
}

// countdownCycle is one CountingDown→Attempting transition.
func (o *Orchestrator) countdownCycle(ctx context.Context, state *RunState, saleOpen time.Time) (bool, error) {
	state.Phase = PhaseCountingDown
	if err := o.countdown.Await(ctx, saleOpen); err != nil {
		return false, err
	}
	state.Phase = PhaseAttempting
	return o.burst.Run(ctx, state.Target)
}

func (o *Orchestrator) pollLeaks(ctx context.Context, state *RunState) (*RunState, error) {
	state.Phase = PhasePollingLeaks
	ok, err := o.leaks.Poll(ctx, state.TicketID, state.PerformID)
	if err != nil {
		if cancelled(ctx, err) {
			o.logger.Info().Msg("CTRL-C, 退出程序...")
			return o.done(state, false)
		}
		return state, err
	}
	if !ok {
		o.logger.Info().Msg("捡漏结束, 未能抢到票")
	}
	return o.done(state, ok)
}

func (o *Orchestrator) done(state *RunState, success bool) (*RunState, error) {
	state.Success = success
	state.Phase = PhaseDone
	return state, nil
}

func cancelled(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
