package settlement

import (
	"fmt"
	"math/big"
	"time"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
)

const moduleName = "settlement"

// ParamExecutionFee names the parameter holding the flat batch creation fee,
// charged in the native asset on top of the custody deposit.
const ParamExecutionFee = "settlement/executionFee"

type engineState interface {
	BatchPut(*PayoutBatch) error
	BatchGet(id uint64) (*PayoutBatch, bool)
	BatchNextID() (uint64, error)
	BatchPendingAdd(id uint64) error
	BatchPendingRemove(id uint64) error
	BatchPendingList() ([]uint64, error)
	TokenExists(symbol string) bool
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	CustodyVault() [20]byte
	AddPendingDeposits(symbol string, amount *big.Int) error
	SubPendingDeposits(symbol string, amount *big.Int) error
	AddFeesAccrued(symbol string, amount *big.Int) error
	ParamBig(name string, fallback *big.Int) (*big.Int, error)
	HasRole(role string, addr []byte) bool
}

type settlementEvent struct {
	evt *types.Event
}

func (e settlementEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e settlementEvent) Event() *types.Event { return e.evt }

// Engine owns the payout batch lifecycle: deposits into custody on creation,
// executor-driven fan-out, refunds on failure or cancellation, and recurring
// replay.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
}

// NewEngine creates a scheduler engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the admin pause switches consulted by write paths.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(settlementEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CreateBatch validates a payout request, charges the execution fee, pulls
// the total amount into custody, and stores the batch as pending.
func (e *Engine) CreateBatch(
	caller [20]byte,
	kind BatchKind,
	recipients [][20]byte,
	amounts []*big.Int,
	token string,
	executionTime, deadline int64,
	metadata string,
	isRecurring bool,
	recurringInterval int64,
) (*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if len(recipients) == 0 || len(recipients) != len(amounts) {
		return nil, ErrInvalidRecipients
	}
	total := new(big.Int)
	cloned := make([]*big.Int, len(amounts))
	for i, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		cloned[i] = new(big.Int).Set(amount)
		total.Add(total, amount)
	}
	now := e.now()
	if executionTime < now || deadline <= executionTime {
		return nil, ErrInvalidSchedule
	}
	if isRecurring && recurringInterval <= 0 {
		return nil, ErrInvalidInterval
	}
	normalized := common.NormalizeAsset(token)
	if !e.state.TokenExists(normalized) {
		return nil, ErrUnsupportedToken
	}

	vault := e.state.CustodyVault()
	fee, err := e.state.ParamBig(ParamExecutionFee, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := e.state.Transfer(common.NativeSymbol, caller, vault, fee); err != nil {
			return nil, fmt.Errorf("%w: fee: %v", ErrInsufficientCustody, err)
		}
		if err := e.state.AddFeesAccrued(common.NativeSymbol, fee); err != nil {
			return nil, err
		}
	}
	if err := e.state.Transfer(normalized, caller, vault, total); err != nil {
		return nil, fmt.Errorf("%w: deposit: %v", ErrInsufficientCustody, err)
	}
	if err := e.state.AddPendingDeposits(normalized, total); err != nil {
		return nil, err
	}

	id, err := e.state.BatchNextID()
	if err != nil {
		return nil, err
	}
	batch := &PayoutBatch{
		ID:                id,
		Kind:              kind,
		Initiator:         caller,
		Token:             normalized,
		Recipients:        append([][20]byte(nil), recipients...),
		Amounts:           cloned,
		TotalAmount:       total,
		ExecutionTime:     executionTime,
		Deadline:          deadline,
		Status:            StatusPending,
		DataHash:          ComputeDataHash(recipients, amounts),
		Metadata:          metadata,
		IsRecurring:       isRecurring,
		RecurringInterval: recurringInterval,
		CreatedAt:         now,
	}
	if isRecurring {
		batch.NextExecution = executionTime + recurringInterval
	}
	if err := e.state.BatchPut(batch); err != nil {
		return nil, err
	}
	if err := e.state.BatchPendingAdd(batch.ID); err != nil {
		return nil, err
	}
	e.emit(NewTaskCreatedEvent(batch))
	return batch.Clone(), nil
}

// Execute runs a pending batch inside its execution window. The returned
// batch carries the final status: Completed, or Failed with the deposit
// refunded to the initiator.
func (e *Engine) Execute(caller [20]byte, batchID uint64) (*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleExecutor, caller[:]) {
		return nil, ErrNotExecutor
	}
	batch, ok := e.state.BatchGet(batchID)
	if !ok {
		return nil, ErrBatchNotFound
	}
	if batch.Status != StatusPending {
		return nil, ErrNotPending
	}
	now := e.now()
	if now < batch.ExecutionTime {
		return nil, ErrTooEarly
	}
	if now > batch.Deadline {
		return nil, ErrExpired
	}
	return e.runBatch(batch, now)
}

// ExecuteImmediate runs a pending batch without the execution-time and
// executor checks. It exists for the royalty registry, which fans out a
// distribution in the call that created it.
func (e *Engine) ExecuteImmediate(batchID uint64) (*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	batch, ok := e.state.BatchGet(batchID)
	if !ok {
		return nil, ErrBatchNotFound
	}
	if batch.Status != StatusPending {
		return nil, ErrNotPending
	}
	now := e.now()
	if now > batch.Deadline {
		return nil, ErrExpired
	}
	return e.runBatch(batch, now)
}

// runBatch fans a batch out recipient by recipient. A failed transfer
// reverses the ones already applied and refunds the initiator; partial
// success is never externalized.
func (e *Engine) runBatch(batch *PayoutBatch, now int64) (*PayoutBatch, error) {
	batch.Status = StatusProcessing
	if err := e.state.BatchPut(batch); err != nil {
		return nil, err
	}
	vault := e.state.CustodyVault()

	applied := 0
	var transferErr error
	for i, recipient := range batch.Recipients {
		if err := e.state.Transfer(batch.Token, vault, recipient, batch.Amounts[i]); err != nil {
			transferErr = err
			break
		}
		applied++
	}
	if transferErr != nil {
		for j := applied - 1; j >= 0; j-- {
			if err := e.state.Transfer(batch.Token, batch.Recipients[j], vault, batch.Amounts[j]); err != nil {
				return nil, fmt.Errorf("%w: reversal: %v", ErrRefundFailed, err)
			}
		}
		if err := e.state.Transfer(batch.Token, vault, batch.Initiator, batch.TotalAmount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
		}
		batch.Status = StatusFailed
	} else {
		batch.Status = StatusCompleted
	}
	if err := e.state.SubPendingDeposits(batch.Token, batch.TotalAmount); err != nil {
		return nil, err
	}
	batch.ExecutedAt = now
	if err := e.state.BatchPut(batch); err != nil {
		return nil, err
	}
	if err := e.state.BatchPendingRemove(batch.ID); err != nil {
		return nil, err
	}
	e.emit(NewTaskExecutedEvent(batch))

	if batch.Status == StatusCompleted && batch.IsRecurring {
		if err := e.scheduleNext(batch, now); err != nil {
			return nil, err
		}
	}
	return batch.Clone(), nil
}

// scheduleNext enqueues the recurring follow-up of a completed batch. The
// clone keeps the original cadence and is funded by a fresh deposit from the
// initiator; when the initiator cannot cover it, no clone is created and the
// completed batch stands alone.
func (e *Engine) scheduleNext(original *PayoutBatch, now int64) error {
	vault := e.state.CustodyVault()
	if err := e.state.Transfer(original.Token, original.Initiator, vault, original.TotalAmount); err != nil {
		return nil
	}
	if err := e.state.AddPendingDeposits(original.Token, original.TotalAmount); err != nil {
		return err
	}
	id, err := e.state.BatchNextID()
	if err != nil {
		return err
	}
	window := original.Deadline - original.ExecutionTime
	next := original.Clone()
	next.ID = id
	next.Status = StatusPending
	next.ExecutionTime = original.NextExecution
	next.Deadline = original.NextExecution + window
	next.NextExecution = original.NextExecution + original.RecurringInterval
	next.ParentID = original.ID
	next.CreatedAt = now
	next.ExecutedAt = 0
	if err := e.state.BatchPut(next); err != nil {
		return err
	}
	if err := e.state.BatchPendingAdd(next.ID); err != nil {
		return err
	}
	e.emit(NewTaskCreatedEvent(next))
	return nil
}

// Cancel lets the initiator withdraw a pending batch before its execution
// window opens. The deposit is refunded in full; the execution fee is not.
func (e *Engine) Cancel(caller [20]byte, batchID uint64) (*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	batch, ok := e.state.BatchGet(batchID)
	if !ok {
		return nil, ErrBatchNotFound
	}
	if batch.Initiator != caller {
		return nil, ErrNotInitiator
	}
	if batch.Status != StatusPending {
		return nil, ErrNotPending
	}
	if e.now() >= batch.ExecutionTime {
		return nil, ErrCancelWindowClosed
	}
	return e.cancelBatch(batch, false)
}

// ForceCancel is the admin escape hatch for stuck or expired batches. It
// accepts pending and processing batches regardless of timing.
func (e *Engine) ForceCancel(caller [20]byte, batchID uint64) (*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotAdmin
	}
	batch, ok := e.state.BatchGet(batchID)
	if !ok {
		return nil, ErrBatchNotFound
	}
	if batch.Status != StatusPending && batch.Status != StatusProcessing {
		return nil, ErrNotPending
	}
	return e.cancelBatch(batch, true)
}

func (e *Engine) cancelBatch(batch *PayoutBatch, forced bool) (*PayoutBatch, error) {
	vault := e.state.CustodyVault()
	if err := e.state.Transfer(batch.Token, vault, batch.Initiator, batch.TotalAmount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	if err := e.state.SubPendingDeposits(batch.Token, batch.TotalAmount); err != nil {
		return nil, err
	}
	batch.Status = StatusCancelled
	if err := e.state.BatchPut(batch); err != nil {
		return nil, err
	}
	if err := e.state.BatchPendingRemove(batch.ID); err != nil {
		return nil, err
	}
	e.emit(NewTaskCancelledEvent(batch, forced))
	return batch.Clone(), nil
}

// Batch loads a batch by id.
func (e *Engine) Batch(batchID uint64) (*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	batch, ok := e.state.BatchGet(batchID)
	if !ok {
		return nil, ErrBatchNotFound
	}
	return batch.Clone(), nil
}

// ListPending returns every batch currently awaiting execution, in id order.
func (e *Engine) ListPending() ([]*PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.BatchPendingList()
	if err != nil {
		return nil, err
	}
	out := make([]*PayoutBatch, 0, len(ids))
	for _, id := range ids {
		if batch, ok := e.state.BatchGet(id); ok {
			out = append(out, batch.Clone())
		}
	}
	return out, nil
}

// ListDue filters the pending set down to batches inside their execution
// window right now. Keepers poll it to find work.
func (e *Engine) ListDue() ([]*PayoutBatch, error) {
	pending, err := e.ListPending()
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]*PayoutBatch, 0, len(pending))
	for _, batch := range pending {
		if batch.Status != StatusPending {
			continue
		}
		if now < batch.ExecutionTime || now > batch.Deadline {
			continue
		}
		out = append(out, batch)
	}
	return out, nil
}
