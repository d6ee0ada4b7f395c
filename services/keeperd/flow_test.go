package keeperd_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mrtcore/crypto"
	"mrtcore/services/keeperd"
)

type trackingNode struct {
	mu       sync.Mutex
	due      []uint64
	rules    []keeperd.RuleRecord
	executed []uint64
	callers  []string
	marked   []uint64
}

func (n *trackingNode) DueBatches(ctx context.Context) ([]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uint64(nil), n.due...), nil
}

func (n *trackingNode) ExecuteBatch(ctx context.Context, caller string, id uint64) (keeperd.BatchResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.executed = append(n.executed, id)
	n.callers = append(n.callers, caller)
	return keeperd.BatchResult{ID: id, Kind: "payout", Status: "completed", Token: "MRT", TotalAmount: "1000"}, nil
}

func (n *trackingNode) ActiveRules(ctx context.Context) ([]keeperd.RuleRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]keeperd.RuleRecord(nil), n.rules...), nil
}

func (n *trackingNode) MarkRuleExecuted(ctx context.Context, caller string, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.marked = append(n.marked, id)
	return nil
}

var _ keeperd.NodeClient = (*trackingNode)(nil)

func TestScanExecutesOnceAndAcksRule(t *testing.T) {
	journal, err := keeperd.OpenJournal(keeperd.JournalDriverSQLite, "file:keeperd_flow?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	node := &trackingNode{
		due:   []uint64{7},
		rules: []keeperd.RuleRecord{{ID: 3, Trigger: "time", ExecutionData: "0x0000000000000007", Active: true}},
	}
	executor := crypto.NewAddress(bytes.Repeat([]byte{0x42}, 20)).String()
	baseTime := time.Unix(1700000000, 0)
	runner := keeperd.NewRunner(node, journal, executor,
		keeperd.WithRetryBackoff(30*time.Second),
		keeperd.WithClock(func() time.Time { return baseTime }),
	)

	report, err := runner.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Executed)
	require.Equal(t, []uint64{7}, node.executed)
	require.Equal(t, executor, node.callers[0])
	require.Equal(t, []uint64{3}, node.marked)

	// Replay the same scan to ensure the journal suppresses a second attempt.
	report, err = runner.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Executed)
	require.Equal(t, 1, report.Skipped)
	require.Len(t, node.executed, 1)

	attempts, err := journal.AttemptsBetween(context.Background(), baseTime.Add(-time.Hour), baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, keeperd.OutcomeExecuted, attempts[0].Outcome)
	require.NotNil(t, attempts[0].RuleID)
	require.Equal(t, uint64(3), *attempts[0].RuleID)
	require.True(t, attempts[0].RuleAcked)
}

func TestPausedRunnerLeavesNodeUntouched(t *testing.T) {
	journal, err := keeperd.OpenJournal(keeperd.JournalDriverSQLite, "file:keeperd_flow_pause?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	node := &trackingNode{due: []uint64{11}}
	executor := crypto.NewAddress(bytes.Repeat([]byte{0x43}, 20)).String()
	runner := keeperd.NewRunner(node, journal, executor,
		keeperd.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)

	runner.Pause()
	report, err := runner.Scan(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Due)
	require.Empty(t, node.executed)
	require.True(t, runner.Status().Paused)

	runner.Resume()
	report, err = runner.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Executed)
	require.Equal(t, []uint64{11}, node.executed)
}
