package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunRecord is one persisted acquisition run.
type RunRecord struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time
	AccountRemark string
	TicketID      string
	PerformID     string
	ItemID        string
	SkuID         string
	TierName      string
	TierPrice     decimal.Decimal
	Phase         string
	Success       bool
	Error         *string
	CreatedAt     time.Time
}

// AttemptRow is one persisted purchase attempt within a run.
type AttemptRow struct {
	ID        int64
	RunID     int64
	Attempt   int
	ElapsedMs int64
	WaitMs    int64
	Status    string
	Kind      string
	Reason    *string
	CreatedAt time.Time
}
