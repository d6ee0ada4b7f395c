package automation

import (
	"fmt"
	"math/big"
	"time"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
)

const moduleName = "automation"

type engineState interface {
	RulePut(*Rule) error
	RuleGet(id uint64) (*Rule, bool)
	RuleNextID() (uint64, error)
	RuleList() ([]uint64, error)
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	CustodyVault() [20]byte
	AddFeesAccrued(symbol string, amount *big.Int) error
	ParamBig(name string, fallback *big.Int) (*big.Int, error)
	HasRole(role string, addr []byte) bool
}

type automationEvent struct {
	evt *types.Event
}

func (e automationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e automationEvent) Event() *types.Event { return e.evt }

// Engine keeps the rule book read by off-chain keepers. It admits prepaid
// rules, records executions, and nothing else; the blobs stay opaque.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
}

// NewEngine creates an automation engine with default dependencies.
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
	e.emitter.Emit(automationEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// CreateRule admits a keeper work item. The creator prepays the execution
// fee in the native asset; the gas budget must fit under the configured
// maximum.
func (e *Engine) CreateRule(creator [20]byte, kind TriggerKind, condition, executionData []byte, gasBudget uint64) (*Rule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, ErrInvalidTrigger
	}
	maxGas, err := e.state.ParamBig(ParamMaxGasLimit, new(big.Int).SetUint64(DefaultMaxGasLimit))
	if err != nil {
		return nil, err
	}
	if new(big.Int).SetUint64(gasBudget).Cmp(maxGas) > 0 {
		return nil, ErrGasBudgetTooHigh
	}
	fee, err := e.state.ParamBig(ParamRuleFee, big.NewInt(DefaultRuleFee))
	if err != nil {
		return nil, err
	}
	if fee.Sign() <= 0 {
		return nil, ErrFeeRequired
	}
	if err := e.state.Transfer(common.NativeSymbol, creator, e.state.CustodyVault(), fee); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeeUnpaid, err)
	}
	if err := e.state.AddFeesAccrued(common.NativeSymbol, fee); err != nil {
		return nil, err
	}

	id, err := e.state.RuleNextID()
	if err != nil {
		return nil, err
	}
	rule := &Rule{
		ID:            id,
		Creator:       creator,
		TriggerKind:   kind,
		Condition:     append([]byte(nil), condition...),
		ExecutionData: append([]byte(nil), executionData...),
		GasBudget:     gasBudget,
		Active:        true,
		CreatedAt:     e.now(),
	}
	if err := e.state.RulePut(rule); err != nil {
		return nil, err
	}
	e.emit(NewRuleCreatedEvent(rule))
	return rule.Clone(), nil
}

// SetRuleActive toggles a rule. Only the creator or the admin may do so.
func (e *Engine) SetRuleActive(caller [20]byte, id uint64, active bool) (*Rule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	rule, ok := e.state.RuleGet(id)
	if !ok {
		return nil, ErrRuleNotFound
	}
	if rule.Creator != caller && !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotController
	}
	rule.Active = active
	if err := e.state.RulePut(rule); err != nil {
		return nil, err
	}
	e.emit(NewRuleUpdatedEvent(rule))
	return rule.Clone(), nil
}

// MarkExecuted records that a keeper ran the rule's work, bumping the
// execution counter and timestamp. Requires the executor role.
func (e *Engine) MarkExecuted(caller [20]byte, id uint64) (*Rule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleExecutor, caller[:]) {
		return nil, ErrNotExecutor
	}
	rule, ok := e.state.RuleGet(id)
	if !ok {
		return nil, ErrRuleNotFound
	}
	if !rule.Active {
		return nil, ErrRuleInactive
	}
	rule.ExecutionCount++
	rule.LastExecution = e.now()
	if err := e.state.RulePut(rule); err != nil {
		return nil, err
	}
	e.emit(NewRuleExecutedEvent(rule))
	return rule.Clone(), nil
}

// Rule loads a rule by id.
func (e *Engine) Rule(id uint64) (*Rule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	rule, ok := e.state.RuleGet(id)
	if !ok {
		return nil, ErrRuleNotFound
	}
	return rule.Clone(), nil
}

// ListRules returns rules in id order. With activeOnly set, deactivated
// rules are skipped.
func (e *Engine) ListRules(activeOnly bool) ([]*Rule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.RuleList()
	if err != nil {
		return nil, err
	}
	rules := make([]*Rule, 0, len(ids))
	for _, id := range ids {
		rule, ok := e.state.RuleGet(id)
		if !ok {
			continue
		}
		if activeOnly && !rule.Active {
			continue
		}
		rules = append(rules, rule.Clone())
	}
	return rules, nil
}
