package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sodargreen/dm-ticket/internal/ticket"
)

// Leaks runs the returned-inventory poller directly, without waiting for a
// sale window. Useful after a sale has opened and sold out.
func (a *App) Leaks(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gateway, err := a.newGateway(ctx)
	if err != nil {
		return err
	}

	acct := a.Config.Account

	a.Logger.Info().Msg("正在获取演唱会信息...")
	detail, err := gateway.FetchCatalog(ctx, acct.Ticket.ID)
	if err != nil {
		return err
	}
	perform, err := detail.Perform(acct.Ticket.Session - 1)
	if err != nil {
		return err
	}

	burst := ticket.NewBurst(gateway, ticket.BurstOptions{
		Size:        acct.RetryTimes,
		Probe:       acct.RetryProbeInterval,
		SubmitDelay: acct.WaitForSubmit,
	}, a.Logger)

	leaks := ticket.NewLeaks(gateway, burst, ticket.LeaksOptions{
		Attempts:        acct.Ticket.PickUpLeaks.Times,
		Interval:        acct.Ticket.PickUpLeaks.Interval,
		Grades:          acct.Ticket.PickUpLeaks.Grades,
		BuyCount:        acct.Ticket.PickUpLeaks.Num,
		DefaultBuyCount: acct.Ticket.Num,
		Out:             os.Stdout,
	}, a.Logger)

	ok, err := leaks.Poll(ctx, acct.Ticket.ID, perform.PerformID)
	if err != nil {
		if ctx.Err() != nil {
			a.Logger.Info().Msg("CTRL-C, 退出程序...")
			return nil
		}
		return err
	}
	if ok {
		a.Logger.Info().Msg("捡漏成功, 请尽快付款")
	} else {
		a.Logger.Info().Msg("捡漏结束, 未能抢到票")
	}
	return nil
}
