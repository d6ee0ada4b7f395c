package keeperd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ReporterConfig configures the execution report generator.
type ReporterConfig struct {
	Journal   *Journal
	OutputDir string
	TZ        *time.Location
	Now       func() time.Time
	Log       *slog.Logger
}

// Reporter exports the execution journal for a window as CSV and Parquet
// artefacts under a dated run directory.
type Reporter struct {
	journal   *Journal
	outputDir string
	tz        *time.Location
	now       func() time.Time
	log       *slog.Logger
}

// ReportRunOptions selects the window a report covers.
type ReportRunOptions struct {
	Start time.Time
	End   time.Time
}

// ReportFile references the artefacts generated for one run.
type ReportFile struct {
	CSVPath     string
	ParquetPath string
	Count       int
}

// NewReporter builds a configured reporter.
func NewReporter(cfg ReporterConfig) (*Reporter, error) {
	if cfg.Journal == nil {
		return nil, errors.New("keeperd: journal is required")
	}
	tz := cfg.TZ
	if tz == nil {
		tz = time.UTC
	}
	outputDir := cfg.OutputDir
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join("mrt-data", "reports")
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().In(tz) }
	}
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		journal:   cfg.Journal,
		outputDir: outputDir,
		tz:        tz,
		now:       nowFn,
		log:       logger,
	}, nil
}

// Run exports the execution attempts recorded inside the supplied window.
func (r *Reporter) Run(ctx context.Context, opts ReportRunOptions) (*ReportFile, error) {
	start := opts.Start.In(r.tz)
	end := opts.End.In(r.tz)
	if end.Before(start) {
		return nil, fmt.Errorf("keeperd: report end before start")
	}
	attempts, err := r.journal.AttemptsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("keeperd: load attempts: %w", err)
	}
	runDir := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s", start.Format("20060102"), end.Format("20060102")))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("keeperd: create report dir: %w", err)
	}
	csvPath := filepath.Join(runDir, "settlements.csv")
	if err := writeReportCSV(csvPath, attempts); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(runDir, "settlements.parquet")
	if err := writeReportParquet(parquetPath, attempts); err != nil {
		return nil, err
	}
	r.log.Info("execution report written",
		"csv", csvPath,
		"parquet", parquetPath,
		"rows", len(attempts),
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
	)
	return &ReportFile{CSVPath: csvPath, ParquetPath: parquetPath, Count: len(attempts)}, nil
}

func writeReportCSV(path string, attempts []ExecutionAttempt) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("keeperd: create csv: %w", err)
	}
	defer file.Close()
	cw := csv.NewWriter(file)
	header := []string{
		"attempt_id", "run_id", "batch_id", "rule_id", "executor", "outcome",
		"batch_status", "detail", "rule_acked", "started_at", "duration_ms",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("keeperd: write csv header: %w", err)
	}
	for _, attempt := range attempts {
		record := []string{
			attempt.ID.String(),
			attempt.RunID.String(),
			strconv.FormatUint(attempt.BatchID, 10),
			formatRuleID(attempt.RuleID),
			attempt.Executor,
			attempt.Outcome,
			attempt.Status,
			attempt.Detail,
			boolString(attempt.RuleAcked),
			attempt.StartedAt.Format(time.RFC3339),
			strconv.FormatInt(attempt.DurationMS, 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("keeperd: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("keeperd: flush csv: %w", err)
	}
	return nil
}

type reportRow struct {
	AttemptID   string `parquet:"name=attempt_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RunID       string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatchID     int64  `parquet:"name=batch_id, type=INT64"`
	RuleID      int64  `parquet:"name=rule_id, type=INT64"`
	HasRule     bool   `parquet:"name=has_rule, type=BOOLEAN"`
	Executor    string `parquet:"name=executor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outcome     string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatchStatus string `parquet:"name=batch_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Detail      string `parquet:"name=detail, type=BYTE_ARRAY, convertedtype=UTF8"`
	RuleAcked   bool   `parquet:"name=rule_acked, type=BOOLEAN"`
	StartedAt   string `parquet:"name=started_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationMS  int64  `parquet:"name=duration_ms, type=INT64"`
}

func writeReportParquet(path string, attempts []ExecutionAttempt) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("keeperd: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(reportRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("keeperd: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, attempt := range attempts {
		row := &reportRow{
			AttemptID:   attempt.ID.String(),
			RunID:       attempt.RunID.String(),
			BatchID:     int64(attempt.BatchID),
			Executor:    attempt.Executor,
			Outcome:     attempt.Outcome,
			BatchStatus: attempt.Status,
			Detail:      attempt.Detail,
			RuleAcked:   attempt.RuleAcked,
			StartedAt:   attempt.StartedAt.Format(time.RFC3339),
			DurationMS:  attempt.DurationMS,
		}
		if attempt.RuleID != nil {
			row.RuleID = int64(*attempt.RuleID)
			row.HasRule = true
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("keeperd: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("keeperd: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("keeperd: close parquet file: %w", err)
	}
	return nil
}

func formatRuleID(id *uint64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(*id, 10)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// SchedulerConfig configures the nightly report scheduler.
type SchedulerConfig struct {
	Reporter  *Reporter
	Window    time.Duration
	RunHour   int
	RunMinute int
	Location  *time.Location
	Log       *slog.Logger
}

// Scheduler generates execution reports on a fixed daily cadence.
type Scheduler struct {
	reporter  *Reporter
	window    time.Duration
	runHour   int
	runMinute int
	location  *time.Location
	log       *slog.Logger
}

// NewScheduler constructs a scheduler with sane defaults.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reporter:  cfg.Reporter,
		window:    window,
		runHour:   clampHour(cfg.RunHour),
		runMinute: clampMinute(cfg.RunMinute),
		location:  loc,
		log:       logger,
	}
}

// Start begins the scheduling loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.reporter == nil {
		return
	}
	for {
		now := time.Now().In(s.location)
		next := s.nextRun(now)
		delay := next.Sub(now)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			start := next.Add(-s.window)
			opts := ReportRunOptions{Start: start, End: next}
			if _, err := s.reporter.Run(ctx, opts); err != nil {
				s.log.Error("report run failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) nextRun(after time.Time) time.Time {
	target := time.Date(after.Year(), after.Month(), after.Day(), s.runHour, s.runMinute, 0, 0, s.location)
	if !target.After(after) {
		target = target.Add(24 * time.Hour)
	}
	return target
}

func clampHour(hour int) int {
	if hour < 0 {
		return 0
	}
	if hour > 23 {
		return 23
	}
	return hour
}

func clampMinute(minute int) int {
	if minute < 0 {
		return 0
	}
	if minute > 59 {
		return 59
	}
	return minute
}
