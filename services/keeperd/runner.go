package keeperd

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mrtcore/observability"
)

// NodeClient abstracts the node RPC methods the runner depends on.
type NodeClient interface {
	DueBatches(ctx context.Context) ([]uint64, error)
	ExecuteBatch(ctx context.Context, caller string, id uint64) (BatchResult, error)
	ActiveRules(ctx context.Context) ([]RuleRecord, error)
	MarkRuleExecuted(ctx context.Context, caller string, id uint64) error
}

// Runner polls the node for executable batches and submits executions under
// the configured executor address.
type Runner struct {
	client       NodeClient
	journal      *Journal
	executor     string
	pollInterval time.Duration
	backoff      time.Duration
	metrics      *observability.KeeperMetrics
	tracer       trace.Tracer
	log          *slog.Logger
	now          func() time.Time

	mu        sync.Mutex
	paused    bool
	lastScan  time.Time
	lastDue   int
	lastRules int
	executed  uint64
	failed    uint64
	skipped   uint64
}

// RunnerOption customises the runner instance.
type RunnerOption func(*Runner)

// WithPollInterval configures the scan cadence.
func WithPollInterval(interval time.Duration) RunnerOption {
	return func(r *Runner) { r.pollInterval = interval }
}

// WithRetryBackoff configures how long an attempted batch is left alone
// before the keeper tries it again.
func WithRetryBackoff(backoff time.Duration) RunnerOption {
	return func(r *Runner) { r.backoff = backoff }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.KeeperMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger supplies the structured logger.
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = clock }
}

// NewRunner constructs a keeper runner executing as the supplied address.
func NewRunner(client NodeClient, journal *Journal, executor string, opts ...RunnerOption) *Runner {
	runner := &Runner{
		client:       client,
		journal:      journal,
		executor:     strings.TrimSpace(executor),
		pollInterval: 5 * time.Second,
		backoff:      30 * time.Second,
		metrics:      observability.Keeper(),
		tracer:       otel.Tracer("keeperd"),
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(runner)
	}
	if runner.metrics == nil {
		runner.metrics = observability.Keeper()
	}
	if runner.log == nil {
		runner.log = slog.Default()
	}
	return runner
}

// Run scans on the configured cadence until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Scan(ctx); err != nil {
				r.log.Error("keeper scan failed", "error", err)
			}
		}
	}
}

// ScanReport summarises one pass over the node's due work.
type ScanReport struct {
	Due      int
	Rules    int
	Executed int
	Failed   int
	Skipped  int
}

// Scan performs one work-discovery pass: list due batches and active rules,
// submit executions, and acknowledge rules bound to executed batches. A
// paused runner returns an empty report without touching the node.
func (r *Runner) Scan(ctx context.Context) (ScanReport, error) {
	report := ScanReport{}
	r.mu.Lock()
	if r.paused {
		r.mu.Unlock()
		return report, nil
	}
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "keeper.scan")
	defer span.End()

	due, err := r.client.DueBatches(ctx)
	if err != nil {
		r.metrics.RecordError("list_due")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	rules, err := r.client.ActiveRules(ctx)
	if err != nil {
		r.metrics.RecordError("list_rules")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	report.Due = len(due)
	report.Rules = len(rules)
	r.metrics.RecordScan(len(due), len(rules))

	ruleByBatch := indexRulesByBatch(rules)
	runID := uuid.New()
	for _, id := range due {
		switch r.executeOne(ctx, runID, id, ruleByBatch) {
		case OutcomeExecuted:
			report.Executed++
		case OutcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	span.SetAttributes(
		attribute.Int("keeper.due", report.Due),
		attribute.Int("keeper.executed", report.Executed),
		attribute.Int("keeper.failed", report.Failed),
	)
	span.SetStatus(codes.Ok, "scan complete")

	r.mu.Lock()
	r.lastScan = r.now()
	r.lastDue = report.Due
	r.lastRules = report.Rules
	r.executed += uint64(report.Executed)
	r.failed += uint64(report.Failed)
	r.skipped += uint64(report.Skipped)
	r.mu.Unlock()
	return report, nil
}

func (r *Runner) executeOne(ctx context.Context, runID uuid.UUID, batchID uint64, ruleByBatch map[uint64]uint64) string {
	if r.journal != nil {
		last, found, err := r.journal.LastAttempt(ctx, batchID)
		if err != nil {
			r.metrics.RecordError("journal")
			r.log.Error("journal lookup failed", "batch", batchID, "error", err)
		} else if found && r.now().Sub(last) < r.backoff {
			r.metrics.RecordExecution(OutcomeSkipped, 0)
			return OutcomeSkipped
		}
	}

	ctx, span := r.tracer.Start(ctx, "keeper.execute",
		trace.WithAttributes(attribute.Int64("batch.id", int64(batchID))))
	defer span.End()

	start := r.now()
	attempt := &ExecutionAttempt{
		RunID:     runID,
		BatchID:   batchID,
		Executor:  r.executor,
		StartedAt: start,
	}
	if ruleID, bound := ruleByBatch[batchID]; bound {
		attempt.RuleID = &ruleID
	}

	result, err := r.client.ExecuteBatch(ctx, r.executor, batchID)
	attempt.DurationMS = r.now().Sub(start).Milliseconds()
	outcome := OutcomeExecuted
	if err != nil {
		outcome = OutcomeFailed
		attempt.Detail = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordError("execute")
		r.log.Error("batch execution failed", "batch", batchID, "error", err)
	} else {
		attempt.Status = result.Status
		span.SetAttributes(attribute.String("batch.status", result.Status))
		span.SetStatus(codes.Ok, "executed")
		r.log.Info("batch executed", "batch", batchID, "status", result.Status)
	}
	attempt.Outcome = outcome

	if outcome == OutcomeExecuted && attempt.RuleID != nil {
		if ackErr := r.client.MarkRuleExecuted(ctx, r.executor, *attempt.RuleID); ackErr != nil {
			r.metrics.RecordError("mark_rule")
			r.log.Error("rule acknowledgement failed", "rule", *attempt.RuleID, "error", ackErr)
		} else {
			attempt.RuleAcked = true
		}
	}

	if r.journal != nil {
		if recErr := r.journal.Record(ctx, attempt); recErr != nil {
			r.metrics.RecordError("journal")
			r.log.Error("journal write failed", "batch", batchID, "error", recErr)
		}
	}
	r.metrics.RecordExecution(outcome, time.Duration(attempt.DurationMS)*time.Millisecond)
	return outcome
}

// indexRulesByBatch maps batch ids to the rule bound to them. A rule binds
// to a batch when its execution data is exactly eight bytes, read as a
// big-endian batch id. The first rule targeting a batch wins.
func indexRulesByBatch(rules []RuleRecord) map[uint64]uint64 {
	index := make(map[uint64]uint64, len(rules))
	for _, rule := range rules {
		batchID, bound := ruleBatchID(rule)
		if !bound {
			continue
		}
		if _, exists := index[batchID]; !exists {
			index[batchID] = rule.ID
		}
	}
	return index
}

func ruleBatchID(rule RuleRecord) (uint64, bool) {
	raw := strings.TrimPrefix(strings.TrimSpace(rule.ExecutionData), "0x")
	if raw == "" {
		return 0, false
	}
	blob, err := hex.DecodeString(raw)
	if err != nil || len(blob) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(blob), true
}

// Pause halts new execution submissions.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
	r.metrics.SetPause(true)
}

// Resume re-enables execution submissions.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	r.metrics.SetPause(false)
}

// Status summarises runner state for administrative endpoints.
type Status struct {
	Paused      bool      `json:"paused"`
	Executor    string    `json:"executor"`
	LastScanAt  time.Time `json:"last_scan_at"`
	DueLastScan int       `json:"due_last_scan"`
	ActiveRules int       `json:"active_rules"`
	Executed    uint64    `json:"executed"`
	Failed      uint64    `json:"failed"`
	Skipped     uint64    `json:"skipped"`
}

// Status reports the current runner snapshot.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Paused:      r.paused,
		Executor:    r.executor,
		LastScanAt:  r.lastScan,
		DueLastScan: r.lastDue,
		ActiveRules: r.lastRules,
		Executed:    r.executed,
		Failed:      r.failed,
		Skipped:     r.skipped,
	}
}
