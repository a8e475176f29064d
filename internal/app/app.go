package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sodargreen/dm-ticket/internal/config"
	"github.com/sodargreen/dm-ticket/internal/dmapi"
	"github.com/sodargreen/dm-ticket/internal/reauth"
	"github.com/sodargreen/dm-ticket/internal/storage"
	"github.com/sodargreen/dm-ticket/internal/ticket"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newGateway(ctx context.Context) (*dmapi.Client, error) {
	return dmapi.New(ctx, dmapi.Options{
		BaseURL:   a.Config.Client.BaseURL,
		AppKey:    a.Config.Client.AppKey,
		Cookie:    a.Config.Account.Cookie,
		UserAgent: a.Config.Client.UserAgent,
		BxToken:   a.Config.Client.BxToken,
		BxUA:      a.Config.Client.BxUA,
		Timeout:   a.Config.Client.Timeout,
	}, a.Logger)
}

func (a *App) newReauth() reauth.Strategy {
	if a.Config.Reauth.Script == "" {
		return reauth.Noop{}
	}
	return reauth.NewHelper(reauth.HelperOptions{
		Command: a.Config.Reauth.Command,
		Script:  a.Config.Reauth.Script,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) policy() ticket.Policy {
	acct := a.Config.Account
	return ticket.Policy{
		TicketID:             acct.Ticket.ID,
		SessionIndex:         acct.Ticket.Session,
		GradeIndex:           acct.Ticket.Grade,
		BuyCount:             acct.Ticket.Num,
		SaleOpenOverrideMs:   acct.RequestTimeMillis,
		PriorityPurchaseLead: acct.Ticket.PriorityPurchaseLead,
		GracePeriod:          acct.Ticket.PickUpLeaks.GracePeriod,
		Remark:               acct.Remark,
		LoginID:              acct.LoginID,
	}
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting attempt timings.
type ExportOptions struct {
	RunID     int64
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

const persistTimeout = 10 * time.Second
