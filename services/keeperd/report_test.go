package keeperd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestReporterWritesArtifacts(t *testing.T) {
	journal := openTestJournal(t, "report_run")
	ctx := context.Background()
	base := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	ruleID := uint64(3)
	attempts := []*ExecutionAttempt{
		{
			RunID:     uuid.New(),
			BatchID:   11,
			RuleID:    &ruleID,
			Executor:  testExecutor(),
			Outcome:   OutcomeExecuted,
			Status:    "executed",
			RuleAcked: true,
			StartedAt: base.Add(time.Hour),
		},
		{
			RunID:     uuid.New(),
			BatchID:   12,
			Executor:  testExecutor(),
			Outcome:   OutcomeFailed,
			Detail:    "node rejected execution",
			StartedAt: base.Add(2 * time.Hour),
		},
	}
	for _, attempt := range attempts {
		if err := journal.Record(ctx, attempt); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	outputDir := filepath.Join(t.TempDir(), "reports")
	reporter, err := NewReporter(ReporterConfig{Journal: journal, OutputDir: outputDir, TZ: time.UTC})
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	file, err := reporter.Run(ctx, ReportRunOptions{Start: base, End: base.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if file.Count != 2 {
		t.Fatalf("expected 2 rows, got %d", file.Count)
	}
	if !strings.Contains(file.CSVPath, "20260304_20260305") {
		t.Fatalf("unexpected run directory in %q", file.CSVPath)
	}

	raw, err := os.ReadFile(file.CSVPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	header := "attempt_id,run_id,batch_id,rule_id,executor,outcome,batch_status,detail,rule_acked,started_at,duration_ms"
	if lines[0] != header {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], ",11,3,") || !strings.Contains(lines[1], OutcomeExecuted) {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if !strings.Contains(lines[2], ",12,,") || !strings.Contains(lines[2], "node rejected execution") {
		t.Fatalf("unexpected second row %q", lines[2])
	}

	info, err := os.Stat(file.ParquetPath)
	if err != nil {
		t.Fatalf("stat parquet: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty parquet file")
	}
}

func TestReporterRejectsInvertedWindow(t *testing.T) {
	journal := openTestJournal(t, "report_window")
	reporter, err := NewReporter(ReporterConfig{Journal: journal, OutputDir: t.TempDir(), TZ: time.UTC})
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	end := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	if _, err := reporter.Run(context.Background(), ReportRunOptions{Start: end.Add(time.Hour), End: end}); err == nil {
		t.Fatalf("expected inverted window error")
	}
}

func TestSchedulerNextRun(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{RunHour: 2, RunMinute: 30, Location: time.UTC})

	before := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)
	next := scheduler.nextRun(before)
	want := time.Date(2026, 3, 4, 2, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}

	after := time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)
	next = scheduler.nextRun(after)
	want = time.Date(2026, 3, 5, 2, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestSchedulerClampsRunTime(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{RunHour: 99, RunMinute: -5})
	if scheduler.runHour != 23 || scheduler.runMinute != 0 {
		t.Fatalf("unexpected clamped run time %d:%d", scheduler.runHour, scheduler.runMinute)
	}
	if scheduler.window != 24*time.Hour {
		t.Fatalf("unexpected default window %s", scheduler.window)
	}
}
