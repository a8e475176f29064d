package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sodargreen/dm-ticket/internal/storage"
	"github.com/sodargreen/dm-ticket/internal/ticket"
)

// Run executes one ticket acquisition run end to end.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; history persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	gateway, err := a.newGateway(ctx)
	if err != nil {
		return err
	}

	acct := a.Config.Account

	var attempts []ticket.AttemptOutcome
	burst := ticket.NewBurst(gateway, ticket.BurstOptions{
		Size:        acct.RetryTimes,
		Probe:       acct.RetryProbeInterval,
		SubmitDelay: acct.WaitForSubmit,
		Observer: func(outcome ticket.AttemptOutcome) {
			attempts = append(attempts, outcome)
		},
	}, a.Logger)

	countdown := ticket.NewCountdown(ticket.CountdownOptions{
		Interval: acct.CountdownInterval,
		Lead:     acct.EarlySubmitLead,
		Out:      os.Stdout,
	}, a.Logger)

	leaks := ticket.NewLeaks(gateway, burst, ticket.LeaksOptions{
		Attempts:        acct.Ticket.PickUpLeaks.Times,
		Interval:        acct.Ticket.PickUpLeaks.Interval,
		Grades:          acct.Ticket.PickUpLeaks.Grades,
		BuyCount:        acct.Ticket.PickUpLeaks.Num,
		DefaultBuyCount: acct.Ticket.Num,
		Out:             os.Stdout,
	}, a.Logger)

	orch := ticket.NewOrchestrator(gateway, countdown, burst, leaks, a.newReauth(), ticket.OrchestratorOptions{
		Policy: a.policy(),
		Out:    os.Stdout,
	}, a.Logger)

	started := time.Now()
	state, runErr := orch.Run(ctx)
	finished := time.Now()

	if store != nil {
		a.recordRun(store, state, attempts, started, finished, runErr)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if state.Success {
		a.Logger.Info().Str("ticket_id", state.TicketID).Str("sku_id", state.Target.SkuID).Msg("抢票成功, 请尽快付款")
	} else {
		a.Logger.Info().Str("ticket_id", state.TicketID).Msg("本次未能抢到票")
	}
	return nil
}

// recordRun persists the run and its attempts on a fresh context, so a
// cancelled run still gets written.
func (a *App) recordRun(store *storage.Store, state *ticket.RunState, attempts []ticket.AttemptOutcome, started, finished time.Time, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	record := storage.RunRecord{
		StartedAt:     started,
		FinishedAt:    finished,
		AccountRemark: a.Config.Account.Remark,
		TicketID:      state.TicketID,
		PerformID:     state.PerformID,
		ItemID:        state.Target.ItemID,
		SkuID:         state.Target.SkuID,
		TierName:      state.TierName,
		TierPrice:     state.TierPrice,
		Phase:         state.Phase.String(),
		Success:       state.Success,
	}
	if runErr != nil {
		msg := runErr.Error()
		record.Error = &msg
	}

	record, err := store.InsertRun(ctx, record)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to persist run record")
		return
	}

	for _, attempt := range attempts {
		row := storage.AttemptRow{
			RunID:     record.ID,
			Attempt:   attempt.Attempt,
			ElapsedMs: attempt.Elapsed.Milliseconds(),
			WaitMs:    attempt.Wait.Milliseconds(),
			Status:    attempt.Status,
			Kind:      attempt.Kind.String(),
		}
		if attempt.Reason != "" {
			reason := attempt.Reason
			row.Reason = &reason
		}
		if _, err := store.InsertAttempt(ctx, row); err != nil {
			a.Logger.Error().Err(err).Int("attempt", attempt.Attempt).Msg("failed to persist attempt record")
		}
	}
}
