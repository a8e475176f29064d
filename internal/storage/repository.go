package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertRunSQL = `INSERT INTO runs (
        started_at,
        finished_at,
        account_remark,
        ticket_id,
        perform_id,
        item_id,
        sku_id,
        tier_name,
        tier_price,
        phase,
        success,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id, created_at;`

	insertAttemptSQL = `INSERT INTO attempts (
        run_id,
        attempt,
        elapsed_ms,
        wait_ms,
        status,
        kind,
        reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentRunsSQL = `SELECT
        id,
        started_at,
        finished_at,
        account_remark,
        ticket_id,
        perform_id,
        item_id,
        sku_id,
        tier_name,
        tier_price,
        phase,
        success,
        error,
        created_at
    FROM runs
    ORDER BY started_at DESC
    LIMIT $1;`

	listAttemptsForRunSQL = `SELECT
        id,
        run_id,
        attempt,
        elapsed_ms,
        wait_ms,
        status,
        kind,
        reason,
        created_at
    FROM attempts
    WHERE run_id = $1
    ORDER BY attempt;`

	listRecentAttemptsSQL = `SELECT
        id,
        run_id,
        attempt,
        elapsed_ms,
        wait_ms,
        status,
        kind,
        reason,
        created_at
    FROM attempts
    ORDER BY created_at DESC
    LIMIT $1;`

	countRunsSQL = `SELECT COUNT(*) FROM runs;`
)

// RunStore persists acquisition runs.
type RunStore interface {
	InsertRun(ctx context.Context, record RunRecord) (RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AttemptStore persists per-attempt timing rows.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, row AttemptRow) (AttemptRow, error)
	ListAttemptsForRun(ctx context.Context, runID int64) ([]AttemptRow, error)
	ListRecentAttempts(ctx context.Context, limit int) ([]AttemptRow, error)
}

// Store is the pgx-backed history repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an established pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertRun stores one finished run and returns it with id and created_at.
func (s *Store) InsertRun(ctx context.Context, record RunRecord) (RunRecord, error) {
	if s.pool == nil {
		return RunRecord{}, ErrNotConfigured
	}

	row := s.pool.QueryRow(ctx, insertRunSQL,
		record.StartedAt,
		record.FinishedAt,
		record.AccountRemark,
		record.TicketID,
		record.PerformID,
		record.ItemID,
		record.SkuID,
		record.TierName,
		record.TierPrice,
		record.Phase,
		record.Success,
		record.Error,
	)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return record, nil
}

// InsertAttempt stores one attempt row.
func (s *Store) InsertAttempt(ctx context.Context, row AttemptRow) (AttemptRow, error) {
	if s.pool == nil {
		return AttemptRow{}, ErrNotConfigured
	}

	result := s.pool.QueryRow(ctx, insertAttemptSQL,
		row.RunID,
		row.Attempt,
		row.ElapsedMs,
		row.WaitMs,
		row.Status,
		row.Kind,
		row.Reason,
	)
	if err := result.Scan(&row.ID, &row.CreatedAt); err != nil {
		return AttemptRow{}, fmt.Errorf("insert attempt: %w", err)
	}
	return row, nil
}

// ListRecentRuns returns the newest runs first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listRecentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ListAttemptsForRun returns a run's attempts in attempt order.
func (s *Store) ListAttemptsForRun(ctx context.Context, runID int64) ([]AttemptRow, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listAttemptsForRunSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts for run: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListRecentAttempts returns the newest attempt rows first.
func (s *Store) ListRecentAttempts(ctx context.Context, limit int) ([]AttemptRow, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listRecentAttemptsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// CountRuns reports how many runs have been recorded.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	if s.pool == nil {
		return 0, ErrNotConfigured
	}

	var count int64
	if err := s.pool.QueryRow(ctx, countRunsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

func scanRuns(rows pgx.Rows) ([]RunRecord, error) {
	var records []RunRecord
	for rows.Next() {
		var record RunRecord
		if err := rows.Scan(
			&record.ID,
			&record.StartedAt,
			&record.FinishedAt,
			&record.AccountRemark,
			&record.TicketID,
			&record.PerformID,
			&record.ItemID,
			&record.SkuID,
			&record.TierName,
			&record.TierPrice,
			&record.Phase,
			&record.Success,
			&record.Error,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanAttempts(rows pgx.Rows) ([]AttemptRow, error) {
	var result []AttemptRow
	for rows.Next() {
		var row AttemptRow
		if err := rows.Scan(
			&row.ID,
			&row.RunID,
			&row.Attempt,
			&row.ElapsedMs,
			&row.WaitMs,
			&row.Status,
			&row.Kind,
			&row.Reason,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

var (
	_ RunStore     = (*Store)(nil)
	_ AttemptStore = (*Store)(nil)
)
