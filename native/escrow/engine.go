package escrow

import (
	"fmt"
	"math/big"
	"time"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
)

const moduleName = "escrow"

type engineState interface {
	TradePut(*EscrowedTrade) error
	TradeGet([32]byte) (*EscrowedTrade, bool)
	TradeDelete([32]byte) error
	TokenExists(symbol string) bool
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	CustodyVault() [20]byte
	AddEscrowed(symbol string, amount *big.Int) error
	SubEscrowed(symbol string, amount *big.Int) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine keeps the digest-keyed escrow table and releases trades after
// their cooling-off window.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
}

// NewEngine creates an escrow engine with default dependencies.
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
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// CreateTrade stores a trade record keyed by its digest and, for escrowed
// trades, pulls the full cost from the buyer into custody. Re-submitting an
// identical trade within the same second returns the live record unchanged.
func (e *Engine) CreateTrade(buyer, seller [20]byte, assetID string, amount, price *big.Int, paymentToken string, isEscrow bool) (*EscrowedTrade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var zero [20]byte
	if buyer == zero || seller == zero || buyer == seller {
		return nil, ErrInvalidParty
	}
	normalizedAsset, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	normalizedToken := common.NormalizeAsset(paymentToken)
	if !e.state.TokenExists(normalizedToken) {
		return nil, ErrUnsupportedToken
	}

	now := e.now()
	hash := ComputeTradeHash(buyer, seller, normalizedAsset, amount, price, now)
	if existing, ok := e.state.TradeGet(hash); ok {
		if existing.PaymentToken == normalizedToken && existing.IsEscrow == isEscrow {
			return existing.Clone(), nil
		}
		return nil, ErrTradeExists
	}

	trade := &EscrowedTrade{
		Hash:           hash,
		Buyer:          buyer,
		Seller:         seller,
		AssetID:        normalizedAsset,
		Amount:         new(big.Int).Set(amount),
		Price:          new(big.Int).Set(price),
		PaymentToken:   normalizedToken,
		SettlementTime: now + SettlementDelay,
		IsEscrow:       isEscrow,
		CreatedAt:      now,
	}
	if isEscrow {
		cost := trade.Cost()
		if err := e.state.Transfer(normalizedToken, buyer, e.state.CustodyVault(), cost); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		if err := e.state.AddEscrowed(normalizedToken, cost); err != nil {
			return nil, err
		}
	}
	if err := e.state.TradePut(trade); err != nil {
		return nil, err
	}
	e.emit(NewTradeCreatedEvent(trade))
	return trade.Clone(), nil
}

// SettleTrade releases a trade once its cooling-off window has passed.
// Escrowed trades pay the seller out of custody; non-escrow trades pull the
// cost from the buyer in the same call. The record is cleared on success.
func (e *Engine) SettleTrade(tradeHash [32]byte) (*EscrowedTrade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	trade, ok := e.state.TradeGet(tradeHash)
	if !ok {
		return nil, ErrTradeNotFound
	}
	if e.now() < trade.SettlementTime {
		return nil, ErrTooEarly
	}

	cost := trade.Cost()
	if trade.IsEscrow {
		if err := e.state.Transfer(trade.PaymentToken, e.state.CustodyVault(), trade.Seller, cost); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		if err := e.state.SubEscrowed(trade.PaymentToken, cost); err != nil {
			return nil, err
		}
	} else {
		if err := e.state.Transfer(trade.PaymentToken, trade.Buyer, trade.Seller, cost); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
	}
	if err := e.state.TradeDelete(trade.Hash); err != nil {
		return nil, err
	}
	e.emit(NewTradeSettledEvent(trade))
	return trade.Clone(), nil
}

// Trade loads a live trade record by digest.
func (e *Engine) Trade(tradeHash [32]byte) (*EscrowedTrade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trade, ok := e.state.TradeGet(tradeHash)
	if !ok {
		return nil, ErrTradeNotFound
	}
	return trade.Clone(), nil
}
