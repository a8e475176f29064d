package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/sodargreen/dm-ticket/internal/storage"
)

// Export renders recorded attempt timings as CSV and/or a PNG latency
// chart, for tuning the retry cadence against observed server behaviour.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	if opts.MaxPoints <= 0 {
		opts.MaxPoints = a.Config.Export.MaxDataPoints
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var attempts []storage.AttemptRow
	if opts.RunID > 0 {
		attempts, err = store.ListAttemptsForRun(ctx, opts.RunID)
	} else {
		attempts, err = store.ListRecentAttempts(ctx, opts.MaxPoints)
		reverseAttempts(attempts)
	}
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		a.Logger.Info().Msg("no attempts found for export")
		return nil
	}

	downsampled := downsampleAttempts(attempts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(attempts)).Int("exported", len(downsampled)).Msg("exporting attempts")

	if opts.CSVPath != "" {
		if err := writeAttemptsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAttemptsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func reverseAttempts(attempts []storage.AttemptRow) {
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}
}

func downsampleAttempts(attempts []storage.AttemptRow, max int) []storage.AttemptRow {
	if max <= 0 || len(attempts) <= max {
		return attempts
	}

	result := make([]storage.AttemptRow, 0, max)
	step := float64(len(attempts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(attempts) {
			idx = len(attempts) - 1
		}
		result = append(result, attempts[idx])
	}
	return result
}

func writeAttemptsCSV(path string, attempts []storage.AttemptRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "run_id", "attempt", "elapsed_ms", "wait_ms", "status", "kind", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, attempt := range attempts {
		reason := ""
		if attempt.Reason != nil {
			reason = *attempt.Reason
		}
		record := []string{
			attempt.CreatedAt.Format(time.RFC3339),
			strconv.FormatInt(attempt.RunID, 10),
			strconv.Itoa(attempt.Attempt),
			strconv.FormatInt(attempt.ElapsedMs, 10),
			strconv.FormatInt(attempt.WaitMs, 10),
			attempt.Status,
			attempt.Kind,
			reason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAttemptsPNG(path string, attempts []storage.AttemptRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]float64, len(attempts))
	elapsed := make([]float64, len(attempts))
	wait := make([]float64, len(attempts))

	for i, attempt := range attempts {
		x[i] = float64(i)
		elapsed[i] = float64(attempt.ElapsedMs)
		wait[i] = float64(attempt.WaitMs)
	}

	msFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Attempt sequence",
			ValueFormatter: msFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Duration (ms)",
			ValueFormatter: msFormatter,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Attempt latency",
				XValues: x,
				YValues: elapsed,
			},
			chart.ContinuousSeries{
				Name:    "Scheduled wait",
				XValues: x,
				YValues: wait,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
