package royalty

import (
	"math/big"
	"time"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
	"mrtcore/native/settlement"
)

const moduleName = "royalty"

// DistributionWindow is how long a distribution batch stays executable. The
// fan-out happens in the same call, so the window only matters for the
// unlikely case of a deferred retry.
const DistributionWindow = int64(3600)

type engineState interface {
	RoyaltySplitPut(*Split) error
	RoyaltySplitGet(contentID string) (*Split, bool)
	RoyaltySplitList() ([]string, error)
	HasRole(role string, addr []byte) bool
}

type royaltyEvent struct {
	evt *types.Event
}

func (e royaltyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e royaltyEvent) Event() *types.Event { return e.evt }

// Engine keeps the per-content royalty tables and turns revenue into payout
// batches that the scheduler fans out in the same call.
type Engine struct {
	state     engineState
	scheduler *settlement.Engine
	emitter   events.Emitter
	nowFn     func() int64
	pauses    common.PauseView
}

// NewEngine creates a royalty engine bound to the scheduler that will carry
// its distributions.
func NewEngine(scheduler *settlement.Engine) *Engine {
	return &Engine{
		scheduler: scheduler,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
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
	e.emitter.Emit(royaltyEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// RegisterSplit stores the royalty table of a content id. The original
// creator may re-register to replace the table; anyone else conflicts.
func (e *Engine) RegisterSplit(caller [20]byte, contentID string, beneficiaries [][20]byte, bps []uint32) (*Split, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	normalized, err := NormalizeContentID(contentID)
	if err != nil {
		return nil, err
	}
	if err := ValidateShares(beneficiaries, bps); err != nil {
		return nil, err
	}
	now := e.now()

	existing, ok := e.state.RoyaltySplitGet(normalized)
	if ok {
		if existing.Creator != caller {
			return nil, ErrAlreadyExists
		}
		existing.Beneficiaries = append([][20]byte(nil), beneficiaries...)
		existing.Bps = append([]uint32(nil), bps...)
		existing.UpdatedAt = now
		if err := e.state.RoyaltySplitPut(existing); err != nil {
			return nil, err
		}
		e.emit(NewSplitUpdatedEvent(existing))
		return existing.Clone(), nil
	}

	split := &Split{
		ContentID:        normalized,
		Creator:          caller,
		Beneficiaries:    append([][20]byte(nil), beneficiaries...),
		Bps:              append([]uint32(nil), bps...),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
		TotalRevenue:     big.NewInt(0),
		TotalDistributed: big.NewInt(0),
	}
	if err := e.state.RoyaltySplitPut(split); err != nil {
		return nil, err
	}
	e.emit(NewSplitRegisteredEvent(split))
	return split.Clone(), nil
}

// SetSplitActive toggles a split. Only the creator or the admin may do so;
// inactive splits refuse distributions but keep their history.
func (e *Engine) SetSplitActive(caller [20]byte, contentID string, active bool) (*Split, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	normalized, err := NormalizeContentID(contentID)
	if err != nil {
		return nil, err
	}
	split, ok := e.state.RoyaltySplitGet(normalized)
	if !ok {
		return nil, ErrSplitNotFound
	}
	if split.Creator != caller && !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotController
	}
	split.Active = active
	split.UpdatedAt = e.now()
	if err := e.state.RoyaltySplitPut(split); err != nil {
		return nil, err
	}
	e.emit(NewSplitUpdatedEvent(split))
	return split.Clone(), nil
}

// Distribute pulls revenue from the caller into custody and fans it out to
// the split's beneficiaries in the same call. The returned batch carries the
// outcome: Completed, or Failed with the revenue refunded to the caller.
func (e *Engine) Distribute(caller [20]byte, contentID string, revenue *big.Int, token string) (*settlement.PayoutBatch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.scheduler == nil {
		return nil, errNilScheduler
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	normalized, err := NormalizeContentID(contentID)
	if err != nil {
		return nil, err
	}
	split, ok := e.state.RoyaltySplitGet(normalized)
	if !ok {
		return nil, ErrSplitNotFound
	}
	if !split.Active {
		return nil, ErrSplitInactive
	}
	if revenue == nil || revenue.Sign() <= 0 {
		return nil, ErrInvalidRevenue
	}

	amounts := SplitAmounts(revenue, split.Bps)
	recipients := make([][20]byte, 0, len(amounts))
	positive := make([]*big.Int, 0, len(amounts))
	for i, amount := range amounts {
		// Very small revenues can floor a low share to zero; those
		// beneficiaries are omitted and the sum still equals revenue.
		if amount.Sign() <= 0 {
			continue
		}
		recipients = append(recipients, split.Beneficiaries[i])
		positive = append(positive, amount)
	}

	now := e.now()
	batch, err := e.scheduler.CreateBatch(
		caller,
		settlement.KindRoyaltyDistribution,
		recipients,
		positive,
		token,
		now,
		now+DistributionWindow,
		normalized,
		false,
		0,
	)
	if err != nil {
		return nil, err
	}
	executed, err := e.scheduler.ExecuteImmediate(batch.ID)
	if err != nil {
		return nil, err
	}

	if executed.Status == settlement.StatusCompleted {
		split.TotalRevenue = new(big.Int).Add(split.TotalRevenue, revenue)
		split.TotalDistributed = new(big.Int).Add(split.TotalDistributed, revenue)
		split.Distributions++
		split.UpdatedAt = now
		if err := e.state.RoyaltySplitPut(split); err != nil {
			return nil, err
		}
	}
	e.emit(NewDistributedEvent(normalized, revenue, executed.Token, executed.ID, executed.Status.String()))
	return executed, nil
}

// Split loads the royalty table of a content id.
func (e *Engine) Split(contentID string) (*Split, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeContentID(contentID)
	if err != nil {
		return nil, err
	}
	split, ok := e.state.RoyaltySplitGet(normalized)
	if !ok {
		return nil, ErrSplitNotFound
	}
	return split.Clone(), nil
}

// ListContent returns every registered content id in insertion order.
func (e *Engine) ListContent() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.RoyaltySplitList()
}
