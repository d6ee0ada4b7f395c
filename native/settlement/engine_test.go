package settlement

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
)

type mockState struct {
	batches        map[uint64]*PayoutBatch
	pending        []uint64
	seq            uint64
	tokens         map[string]bool
	balances       map[string]map[[20]byte]*big.Int
	pendingCounter map[string]*big.Int
	feesCounter    map[string]*big.Int
	params         map[string]*big.Int
	roles          map[string]map[[20]byte]bool
	vault          [20]byte
	rejectCredit   map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		batches:        make(map[uint64]*PayoutBatch),
		tokens:         map[string]bool{"MRT": true, "USDC": true},
		balances:       make(map[string]map[[20]byte]*big.Int),
		pendingCounter: make(map[string]*big.Int),
		feesCounter:    make(map[string]*big.Int),
		params:         make(map[string]*big.Int),
		roles:          make(map[string]map[[20]byte]bool),
		vault:          newTestAddress(0xCC),
		rejectCredit:   make(map[[20]byte]bool),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) BatchPut(batch *PayoutBatch) error {
	if batch == nil {
		return fmt.Errorf("nil batch")
	}
	m.batches[batch.ID] = batch.Clone()
	return nil
}

func (m *mockState) BatchGet(id uint64) (*PayoutBatch, bool) {
	batch, ok := m.batches[id]
	if !ok {
		return nil, false
	}
	return batch.Clone(), true
}

func (m *mockState) BatchNextID() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) BatchPendingAdd(id uint64) error {
	for _, existing := range m.pending {
		if existing == id {
			return nil
		}
	}
	m.pending = append(m.pending, id)
	return nil
}

func (m *mockState) BatchPendingRemove(id uint64) error {
	filtered := m.pending[:0]
	for _, existing := range m.pending {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	m.pending = filtered
	return nil
}

func (m *mockState) BatchPendingList() ([]uint64, error) {
	return append([]uint64(nil), m.pending...), nil
}

func (m *mockState) TokenExists(symbol string) bool {
	return m.tokens[symbol]
}

func (m *mockState) balance(symbol string, addr [20]byte) *big.Int {
	byAddr, ok := m.balances[symbol]
	if !ok {
		return big.NewInt(0)
	}
	balance, ok := byAddr[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockState) setBalance(symbol string, addr [20]byte, amount *big.Int) {
	byAddr, ok := m.balances[symbol]
	if !ok {
		byAddr = make(map[[20]byte]*big.Int)
		m.balances[symbol] = byAddr
	}
	byAddr[addr] = new(big.Int).Set(amount)
}

func (m *mockState) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	if m.rejectCredit[to] {
		return fmt.Errorf("recipient rejected transfer")
	}
	if from == to {
		return nil
	}
	fromBalance := m.balance(symbol, from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	m.setBalance(symbol, from, fromBalance.Sub(fromBalance, amount))
	toBalance := m.balance(symbol, to)
	m.setBalance(symbol, to, toBalance.Add(toBalance, amount))
	return nil
}

func (m *mockState) CustodyVault() [20]byte { return m.vault }

func (m *mockState) counterAdd(table map[string]*big.Int, symbol string, delta *big.Int) error {
	current, ok := table[symbol]
	if !ok {
		current = big.NewInt(0)
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("counter underflow")
	}
	table[symbol] = next
	return nil
}

func (m *mockState) AddPendingDeposits(symbol string, amount *big.Int) error {
	return m.counterAdd(m.pendingCounter, symbol, amount)
}

func (m *mockState) SubPendingDeposits(symbol string, amount *big.Int) error {
	return m.counterAdd(m.pendingCounter, symbol, new(big.Int).Neg(amount))
}

func (m *mockState) AddFeesAccrued(symbol string, amount *big.Int) error {
	return m.counterAdd(m.feesCounter, symbol, amount)
}

func (m *mockState) ParamBig(name string, fallback *big.Int) (*big.Int, error) {
	if value, ok := m.params[name]; ok {
		return new(big.Int).Set(value), nil
	}
	if fallback == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(fallback), nil
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	if len(addr) != 20 {
		return false
	}
	var key [20]byte
	copy(key[:], addr)
	return m.roles[role][key]
}

func (m *mockState) grantRole(role string, addr [20]byte) {
	members, ok := m.roles[role]
	if !ok {
		members = make(map[[20]byte]bool)
		m.roles[role] = members
	}
	members[addr] = true
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) lastOfType(eventType string) *types.Event {
	for i := len(c.events) - 1; i >= 0; i-- {
		wrapper, ok := c.events[i].(settlementEvent)
		if ok && wrapper.evt != nil && wrapper.evt.Type == eventType {
			return wrapper.evt
		}
	}
	return nil
}

var (
	testAdmin     = newTestAddress(0xAD)
	testExecutor  = newTestAddress(0xEE)
	testInitiator = newTestAddress(0x01)
)

func setupEngine(t *testing.T) (*Engine, *mockState, *capturingEmitter) {
	t.Helper()
	state := newMockState()
	state.grantRole(common.RoleAdmin, testAdmin)
	state.grantRole(common.RoleExecutor, testExecutor)
	state.setBalance("MRT", testInitiator, big.NewInt(100_000))
	state.setBalance("USDC", testInitiator, big.NewInt(100_000))
	engine := NewEngine()
	engine.SetState(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1000 })
	return engine, state, emitter
}

func threeRecipients() ([][20]byte, []*big.Int) {
	recipients := [][20]byte{newTestAddress(0x11), newTestAddress(0x12), newTestAddress(0x13)}
	amounts := []*big.Int{big.NewInt(500), big.NewInt(300), big.NewInt(200)}
	return recipients, amounts
}

func TestCreateBatchValidation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	recipients, amounts := threeRecipients()

	if _, err := engine.CreateBatch(testInitiator, BatchKind(99), recipients, amounts, "MRT", 1000, 2000, "", false, 0); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, nil, nil, "MRT", 1000, 2000, "", false, 0); !errors.Is(err, ErrInvalidRecipients) {
		t.Fatalf("expected ErrInvalidRecipients for empty arrays, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts[:2], "MRT", 1000, 2000, "", false, 0); !errors.Is(err, ErrInvalidRecipients) {
		t.Fatalf("expected ErrInvalidRecipients for length mismatch, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, []*big.Int{big.NewInt(1), big.NewInt(0), big.NewInt(1)}, "MRT", 1000, 2000, "", false, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 999, 2000, "", false, 0); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for past execution time, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1500, 1500, "", false, 0); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for deadline at execution time, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1500, 2000, "", true, 0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "DOGE", 1500, 2000, "", false, 0); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected ErrUnsupportedToken, got %v", err)
	}
	broke := newTestAddress(0x09)
	if _, err := engine.CreateBatch(broke, KindYieldDistribution, recipients, amounts, "MRT", 1500, 2000, "", false, 0); !errors.Is(err, ErrInsufficientCustody) {
		t.Fatalf("expected ErrInsufficientCustody, got %v", err)
	}
}

func TestCreateBatchDepositsCustody(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	recipients, amounts := threeRecipients()
	state.params[ParamExecutionFee] = big.NewInt(25)

	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "usdc", 1500, 2000, "memo", true, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if batch.ID != 1 {
		t.Fatalf("expected first id 1, got %d", batch.ID)
	}
	if batch.Token != "USDC" {
		t.Fatalf("expected normalized token, got %q", batch.Token)
	}
	if batch.TotalAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected total 1000, got %s", batch.TotalAmount)
	}
	if batch.Status != StatusPending {
		t.Fatalf("expected pending, got %v", batch.Status)
	}
	if batch.NextExecution != 1600 {
		t.Fatalf("expected next execution 1600, got %d", batch.NextExecution)
	}
	if batch.DataHash == ([32]byte{}) {
		t.Fatalf("expected data hash to be set")
	}

	if got := state.balance("USDC", state.vault); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("vault deposit mismatch: %s", got)
	}
	if got := state.balance("MRT", state.vault); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("vault fee mismatch: %s", got)
	}
	if got := state.pendingCounter["USDC"]; got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("pending counter mismatch: %s", got)
	}
	if got := state.feesCounter["MRT"]; got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("fee counter mismatch: %s", got)
	}
	evt := emitter.lastOfType(EventTypeTaskCreated)
	if evt == nil || evt.Attributes["batchId"] != "1" || evt.Attributes["kind"] != "yield_distribution" {
		t.Fatalf("unexpected created event: %v", evt)
	}
}

func TestExecuteHappyPath(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	recipients, amounts := threeRecipients()
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done, err := engine.Execute(testExecutor, batch.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", done.Status)
	}
	if done.ExecutedAt != 1000 {
		t.Fatalf("expected executedAt 1000, got %d", done.ExecutedAt)
	}
	for i, recipient := range recipients {
		if got := state.balance("MRT", recipient); got.Cmp(amounts[i]) != 0 {
			t.Fatalf("recipient %d balance mismatch: %s", i, got)
		}
	}
	if got := state.balance("MRT", state.vault); got.Sign() != 0 {
		t.Fatalf("vault must be drained, got %s", got)
	}
	if got := state.pendingCounter["MRT"]; got.Sign() != 0 {
		t.Fatalf("pending counter must be zero, got %s", got)
	}
	if ids, _ := state.BatchPendingList(); len(ids) != 0 {
		t.Fatalf("pending index must be empty, got %v", ids)
	}
	evt := emitter.lastOfType(EventTypeTaskExecuted)
	if evt == nil || evt.Attributes["status"] != "completed" {
		t.Fatalf("unexpected executed event: %v", evt)
	}

	if _, err := engine.Execute(testExecutor, batch.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on re-execute, got %v", err)
	}
}

func TestExecuteFailedRecipientRefundsAll(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	recipients, amounts := threeRecipients()
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	initiatorAfterDeposit := state.balance("MRT", testInitiator)
	state.rejectCredit[recipients[1]] = true

	done, err := engine.Execute(testExecutor, batch.ID)
	if err != nil {
		t.Fatalf("execute must recover locally: %v", err)
	}
	if done.Status != StatusFailed {
		t.Fatalf("expected failed, got %v", done.Status)
	}
	for i, recipient := range recipients {
		if got := state.balance("MRT", recipient); got.Sign() != 0 {
			t.Fatalf("recipient %d must retain nothing, got %s", i, got)
		}
	}
	want := new(big.Int).Add(initiatorAfterDeposit, batch.TotalAmount)
	if got := state.balance("MRT", testInitiator); got.Cmp(want) != 0 {
		t.Fatalf("initiator refund mismatch: got %s want %s", got, want)
	}
	if got := state.pendingCounter["MRT"]; got.Sign() != 0 {
		t.Fatalf("pending counter must be zero after refund, got %s", got)
	}
	evt := emitter.lastOfType(EventTypeTaskExecuted)
	if evt == nil || evt.Attributes["status"] != "failed" {
		t.Fatalf("expected failed executed event, got %v", evt)
	}
}

func TestExecuteTimingBoundaries(t *testing.T) {
	engine, _, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1001, 1002, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := engine.Execute(testExecutor, batch.ID); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly one second before window, got %v", err)
	}
	engine.SetNowFunc(func() int64 { return 1001 })
	if _, err := engine.Execute(testExecutor, batch.ID); err != nil {
		t.Fatalf("execution at executionTime must pass: %v", err)
	}

	atDeadline, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1001, 1500, "", false, 0)
	if err != nil {
		t.Fatalf("create at-deadline batch: %v", err)
	}
	engine.SetNowFunc(func() int64 { return 1500 })
	if _, err := engine.Execute(testExecutor, atDeadline.ID); err != nil {
		t.Fatalf("execution at deadline must pass: %v", err)
	}

	late, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1501, 1600, "", false, 0)
	if err != nil {
		t.Fatalf("create late: %v", err)
	}
	engine.SetNowFunc(func() int64 { return 1601 })
	if _, err := engine.Execute(testExecutor, late.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past deadline, got %v", err)
	}
}

func TestExecuteAuthorization(t *testing.T) {
	engine, _, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Execute(testInitiator, batch.ID); !errors.Is(err, ErrNotExecutor) {
		t.Fatalf("expected ErrNotExecutor, got %v", err)
	}
	if _, err := engine.Execute(testExecutor, 404); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestCancelRefundsDeposit(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	recipients, amounts := threeRecipients()
	state.params[ParamExecutionFee] = big.NewInt(10)
	start := state.balance("MRT", testInitiator)

	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1500, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Cancel(newTestAddress(0x77), batch.ID); !errors.Is(err, ErrNotInitiator) {
		t.Fatalf("expected ErrNotInitiator, got %v", err)
	}
	cancelled, err := engine.Cancel(testInitiator, batch.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %v", cancelled.Status)
	}

	// The deposit comes back in full; the execution fee does not.
	want := new(big.Int).Sub(start, big.NewInt(10))
	if got := state.balance("MRT", testInitiator); got.Cmp(want) != 0 {
		t.Fatalf("refund mismatch: got %s want %s", got, want)
	}
	if got := state.pendingCounter["MRT"]; got.Sign() != 0 {
		t.Fatalf("pending counter must be zero, got %s", got)
	}
	evt := emitter.lastOfType(EventTypeTaskCancelled)
	if evt == nil || evt.Attributes["forced"] == "true" {
		t.Fatalf("unexpected cancel event: %v", evt)
	}
	if _, err := engine.Cancel(testInitiator, batch.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on double cancel, got %v", err)
	}

	// Ids are never reused, even after cancellation.
	second, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1500, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.ID != batch.ID+1 {
		t.Fatalf("expected strictly increasing id, got %d after %d", second.ID, batch.ID)
	}
}

func TestCancelWindowCloses(t *testing.T) {
	engine, _, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1500, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	engine.SetNowFunc(func() int64 { return 1500 })
	if _, err := engine.Cancel(testInitiator, batch.ID); !errors.Is(err, ErrCancelWindowClosed) {
		t.Fatalf("expected ErrCancelWindowClosed at executionTime, got %v", err)
	}
}

func TestRecurringClone(t *testing.T) {
	engine, state, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	const day = int64(86400)
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 1000+3600, "", true, day)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done, err := engine.Execute(testExecutor, batch.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", done.Status)
	}

	clone, ok := state.BatchGet(batch.ID + 1)
	if !ok {
		t.Fatalf("expected recurring clone at id %d", batch.ID+1)
	}
	if clone.Status != StatusPending {
		t.Fatalf("clone must be pending, got %v", clone.Status)
	}
	if clone.ExecutionTime != batch.ExecutionTime+day {
		t.Fatalf("clone executionTime: got %d want %d", clone.ExecutionTime, batch.ExecutionTime+day)
	}
	if clone.Deadline != clone.ExecutionTime+3600 {
		t.Fatalf("clone deadline: got %d want %d", clone.Deadline, clone.ExecutionTime+3600)
	}
	if clone.NextExecution != clone.ExecutionTime+day {
		t.Fatalf("clone nextExecution: got %d want %d", clone.NextExecution, clone.ExecutionTime+day)
	}
	if clone.ParentID != batch.ID {
		t.Fatalf("clone parent: got %d want %d", clone.ParentID, batch.ID)
	}
	if len(clone.Recipients) != len(recipients) || clone.TotalAmount.Cmp(batch.TotalAmount) != 0 {
		t.Fatalf("clone must copy the payout table")
	}
	// The clone is funded by a fresh deposit.
	if got := state.balance("MRT", state.vault); got.Cmp(batch.TotalAmount) != 0 {
		t.Fatalf("clone deposit missing from vault: %s", got)
	}
	if got := state.pendingCounter["MRT"]; got.Cmp(batch.TotalAmount) != 0 {
		t.Fatalf("pending counter mismatch: %s", got)
	}
	if ids, _ := state.BatchPendingList(); len(ids) != 1 || ids[0] != clone.ID {
		t.Fatalf("pending index mismatch: %v", ids)
	}
}

func TestRecurringCloneSkippedWhenUnfunded(t *testing.T) {
	engine, state, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	state.setBalance("MRT", testInitiator, big.NewInt(1000))
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 2000, "", true, 3600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := engine.Execute(testExecutor, batch.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", done.Status)
	}
	if _, ok := state.BatchGet(batch.ID + 1); ok {
		t.Fatalf("unfunded clone must not be created")
	}
	if got := state.pendingCounter["MRT"]; got.Sign() != 0 {
		t.Fatalf("pending counter must be zero, got %s", got)
	}
}

func TestForceCancel(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	recipients, amounts := threeRecipients()
	batch, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1001, 1500, "", false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Past the deadline the batch is stuck in pending; only the admin path
	// can release the deposit.
	engine.SetNowFunc(func() int64 { return 9000 })
	if _, err := engine.Execute(testExecutor, batch.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := engine.ForceCancel(testExecutor, batch.ID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	cancelled, err := engine.ForceCancel(testAdmin, batch.ID)
	if err != nil {
		t.Fatalf("force cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %v", cancelled.Status)
	}
	if got := state.balance("MRT", state.vault); got.Sign() != 0 {
		t.Fatalf("vault must be empty after refund, got %s", got)
	}
	evt := emitter.lastOfType(EventTypeTaskCancelled)
	if evt == nil || evt.Attributes["forced"] != "true" {
		t.Fatalf("expected forced cancel event, got %v", evt)
	}
}

func TestListDue(t *testing.T) {
	engine, _, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	early, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 2000, "", false, 0)
	if err != nil {
		t.Fatalf("create early: %v", err)
	}
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1800, 2000, "", false, 0); err != nil {
		t.Fatalf("create later: %v", err)
	}

	due, err := engine.ListDue()
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != early.ID {
		t.Fatalf("expected only the early batch due, got %v", due)
	}
	pending, err := engine.ListPending()
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected two pending batches, got %v %v", pending, err)
	}
}

func TestPausedModuleRejectsWrites(t *testing.T) {
	engine, _, _ := setupEngine(t)
	recipients, amounts := threeRecipients()
	engine.SetPauses(stubPauses{paused: map[string]bool{moduleName: true}})
	if _, err := engine.CreateBatch(testInitiator, KindYieldDistribution, recipients, amounts, "MRT", 1000, 2000, "", false, 0); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

type stubPauses struct {
	paused map[string]bool
}

func (s stubPauses) IsPaused(module string) bool { return s.paused[module] }
