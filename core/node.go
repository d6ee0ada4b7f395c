package core

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"mrtcore/core/events"
	"mrtcore/core/state"
	"mrtcore/core/types"
	"mrtcore/native/automation"
	"mrtcore/native/escrow"
	"mrtcore/native/oracle"
	"mrtcore/native/royalty"
	"mrtcore/native/settlement"
	"mrtcore/storage"
)

// Module names accepted by the admin pause switches.
const (
	ModuleOracle     = "oracle"
	ModuleSettlement = "settlement"
	ModuleRoyalty    = "royalty"
	ModuleEscrow     = "escrow"
	ModuleAutomation = "automation"
)

// ModuleNames lists every pausable module in presentation order.
var ModuleNames = []string{ModuleOracle, ModuleSettlement, ModuleRoyalty, ModuleEscrow, ModuleAutomation}

// Node is the central controller of the settlement core. It owns the state,
// wires the module engines to it, serializes calls so each one observes a
// consistent snapshot, and retains committed events for subscribers.
type Node struct {
	db    storage.Database
	state *state.CoreState

	oracle     *oracle.Engine
	settlement *settlement.Engine
	royalty    *royalty.Engine
	escrow     *escrow.Engine
	automation *automation.Engine

	stateMu sync.Mutex
	nowFn   func() int64

	// pending holds events emitted by the call in flight. They are published
	// to the log only after the call's state frame commits; a rolled-back
	// call never externalizes events.
	pending []*types.Event
	log     *eventLog
}

// NewNode opens the settlement core over the provided database and wires
// every module engine to the shared state. A fresh database is seeded from
// the genesis configuration; reopening an existing one leaves state
// untouched.
func NewNode(db storage.Database, genesis GenesisConfig) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	st := state.NewCoreState(db)
	n := &Node{
		db:    db,
		state: st,
		nowFn: func() int64 { return time.Now().Unix() },
		log:   newEventLog(DefaultEventBacklog),
	}
	emitter := nodeEmitter{node: n}

	n.oracle = oracle.NewEngine()
	n.oracle.SetState(st)
	n.oracle.SetEmitter(emitter)
	n.oracle.SetPauses(st)
	n.oracle.SetNowFunc(n.now)

	n.settlement = settlement.NewEngine()
	n.settlement.SetState(st)
	n.settlement.SetEmitter(emitter)
	n.settlement.SetPauses(st)
	n.settlement.SetNowFunc(n.now)

	n.royalty = royalty.NewEngine(n.settlement)
	n.royalty.SetState(st)
	n.royalty.SetEmitter(emitter)
	n.royalty.SetPauses(st)
	n.royalty.SetNowFunc(n.now)

	n.escrow = escrow.NewEngine()
	n.escrow.SetState(st)
	n.escrow.SetEmitter(emitter)
	n.escrow.SetPauses(st)
	n.escrow.SetNowFunc(n.now)

	n.automation = automation.NewEngine()
	n.automation.SetState(st)
	n.automation.SetEmitter(emitter)
	n.automation.SetPauses(st)
	n.automation.SetNowFunc(n.now)

	st.Begin()
	if err := st.EnsureStateVersion(); err != nil {
		st.Rollback()
		return nil, err
	}
	if err := applyGenesis(st, genesis); err != nil {
		st.Rollback()
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}
	return n, nil
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.db.Close()
}

// SetNowFunc overrides the node's time source, which all module engines and
// the event log share. Primarily intended for tests to provide deterministic
// timestamps.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.nowFn = now
}

// SetOracleConfig replaces the price aggregator tuning. Zero fields fall back
// to the defaults.
func (n *Node) SetOracleConfig(c oracle.Config) {
	n.oracle.SetConfig(c)
}

// SetEventBacklog resizes the retained event log. It must be applied during
// startup, before events are committed or subscribers attach; sequence
// numbering restarts on the new log.
func (n *Node) SetEventBacklog(capacity int) {
	n.log = newEventLog(capacity)
}

func (n *Node) now() int64 {
	return n.nowFn()
}

// writeOp runs fn inside a state frame under the node lock. On error the
// frame is rolled back and staged events are discarded; on success the frame
// commits and the events become visible to subscribers.
func (n *Node) writeOp(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.state.Begin()
	n.pending = n.pending[:0]
	if err := fn(); err != nil {
		n.state.Rollback()
		n.pending = n.pending[:0]
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.pending = n.pending[:0]
		return err
	}
	if len(n.pending) > 0 {
		n.log.append(n.now(), n.pending)
		n.pending = n.pending[:0]
	}
	return nil
}

type eventWithPayload interface {
	Event() *types.Event
}

// nodeEmitter collects engine events into the node's staging buffer. It runs
// under the node lock as part of the call in flight.
type nodeEmitter struct {
	node *Node
}

func (e nodeEmitter) Emit(evt events.Event) {
	if e.node == nil || evt == nil {
		return
	}
	payload, ok := evt.(eventWithPayload)
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	e.node.pending = append(e.node.pending, event)
}

// --- Oracle module ---

// OracleAuthorize registers a price source. Requires the admin role.
func (n *Node) OracleAuthorize(caller, source [20]byte, name string, weight uint32) (*oracle.DataSource, error) {
	var out *oracle.DataSource
	err := n.writeOp(func() error {
		var err error
		out, err = n.oracle.AuthorizeOracle(caller, source, name, weight)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OracleRevoke deactivates a price source. Requires the admin role.
func (n *Node) OracleRevoke(caller, source [20]byte) (*oracle.DataSource, error) {
	var out *oracle.DataSource
	err := n.writeOp(func() error {
		var err error
		out, err = n.oracle.RevokeOracle(caller, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OracleUpdateDataSource rewrites a source's name, weight, and active flag.
// Requires the admin role.
func (n *Node) OracleUpdateDataSource(caller, source [20]byte, name string, weight uint32, active bool) (*oracle.DataSource, error) {
	var out *oracle.DataSource
	err := n.writeOp(func() error {
		var err error
		out, err = n.oracle.UpdateDataSource(caller, source, name, weight, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OracleSetSampleActive suspends or resumes a single source's samples for one
// symbol. Requires the admin role.
func (n *Node) OracleSetSampleActive(caller [20]byte, symbol string, source [20]byte, active bool) (*oracle.PriceSample, error) {
	var out *oracle.PriceSample
	err := n.writeOp(func() error {
		var err error
		out, err = n.oracle.SetSampleActive(caller, symbol, source, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OracleSetCircuitBreaker overrides the per-symbol movement threshold.
// Requires the admin role.
func (n *Node) OracleSetCircuitBreaker(caller [20]byte, symbol string, bps uint32) error {
	return n.writeOp(func() error {
		return n.oracle.SetCircuitBreaker(caller, symbol, bps)
	})
}

// OracleUpdatePrice records a price sample and recomputes the symbol's
// aggregated quote. The caller must be an authorized source.
func (n *Node) OracleUpdatePrice(caller [20]byte, symbol string, price *big.Int, confidence uint32) (*oracle.AggregatedQuote, error) {
	var out *oracle.AggregatedQuote
	err := n.writeOp(func() error {
		var err error
		out, err = n.oracle.UpdatePrice(caller, symbol, price, confidence)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OracleUpdatePrices records a batch of samples from one source.
func (n *Node) OracleUpdatePrices(caller [20]byte, symbols []string, prices []*big.Int, confidences []uint32) ([]*oracle.AggregatedQuote, error) {
	var out []*oracle.AggregatedQuote
	err := n.writeOp(func() error {
		var err error
		out, err = n.oracle.UpdatePrices(caller, symbols, prices, confidences)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OracleListSources returns every registered data source.
func (n *Node) OracleListSources() ([]*oracle.DataSource, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.oracle.ListSources()
}

// OracleLatestPrice returns the current aggregated quote for a symbol along
// with its staleness classification.
func (n *Node) OracleLatestPrice(symbol string) (*oracle.LatestPrice, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.oracle.GetLatestPrice(symbol)
}

// OracleMultiplePrices returns quotes for a set of symbols in request order.
func (n *Node) OracleMultiplePrices(symbols []string) ([]*oracle.LatestPrice, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.oracle.GetMultiplePrices(symbols)
}

// OraclePriceAvailable reports whether a fresh quote exists for the symbol.
func (n *Node) OraclePriceAvailable(symbol string) bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.oracle.IsPriceAvailable(symbol)
}

// OraclePriceHistory returns up to limit retained aggregation points for the
// symbol, oldest first.
func (n *Node) OraclePriceHistory(symbol string, limit int) ([]*oracle.PricePoint, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.oracle.GetPriceHistory(symbol, limit)
}

// --- Settlement module ---

// SettlementCreateBatch schedules a payout batch, charging the execution fee
// and pulling the total amount into custody.
func (n *Node) SettlementCreateBatch(
	caller [20]byte,
	kind settlement.BatchKind,
	recipients [][20]byte,
	amounts []*big.Int,
	token string,
	executionTime, deadline int64,
	metadata string,
	isRecurring bool,
	recurringInterval int64,
) (*settlement.PayoutBatch, error) {
	var out *settlement.PayoutBatch
	err := n.writeOp(func() error {
		var err error
		out, err = n.settlement.CreateBatch(caller, kind, recipients, amounts, token, executionTime, deadline, metadata, isRecurring, recurringInterval)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SettlementExecute runs a pending batch inside its execution window. The
// caller must hold the executor role.
func (n *Node) SettlementExecute(caller [20]byte, batchID uint64) (*settlement.PayoutBatch, error) {
	var out *settlement.PayoutBatch
	err := n.writeOp(func() error {
		var err error
		out, err = n.settlement.Execute(caller, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SettlementCancel cancels a pending batch and refunds the deposit. Only the
// initiator may cancel before the execution window opens.
func (n *Node) SettlementCancel(caller [20]byte, batchID uint64) (*settlement.PayoutBatch, error) {
	var out *settlement.PayoutBatch
	err := n.writeOp(func() error {
		var err error
		out, err = n.settlement.Cancel(caller, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SettlementBatch returns a batch by id.
func (n *Node) SettlementBatch(batchID uint64) (*settlement.PayoutBatch, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.settlement.Batch(batchID)
}

// SettlementListPending returns every batch still awaiting execution.
func (n *Node) SettlementListPending() ([]*settlement.PayoutBatch, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.settlement.ListPending()
}

// SettlementListDue returns the pending batches whose execution window is
// open at the current time.
func (n *Node) SettlementListDue() ([]*settlement.PayoutBatch, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.settlement.ListDue()
}

// --- Royalty module ---

// RoyaltyRegisterSplit registers or replaces the revenue split table for a
// piece of content. Only the original creator may replace an existing table.
func (n *Node) RoyaltyRegisterSplit(caller [20]byte, contentID string, beneficiaries [][20]byte, bps []uint32) (*royalty.Split, error) {
	var out *royalty.Split
	err := n.writeOp(func() error {
		var err error
		out, err = n.royalty.RegisterSplit(caller, contentID, beneficiaries, bps)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RoyaltySetSplitActive toggles whether a split accepts distributions.
func (n *Node) RoyaltySetSplitActive(caller [20]byte, contentID string, active bool) (*royalty.Split, error) {
	var out *royalty.Split
	err := n.writeOp(func() error {
		var err error
		out, err = n.royalty.SetSplitActive(caller, contentID, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RoyaltyDistribute splits revenue across a content's beneficiaries and
// settles the resulting payout batch immediately. The returned batch carries
// the final execution status.
func (n *Node) RoyaltyDistribute(caller [20]byte, contentID string, revenue *big.Int, token string) (*settlement.PayoutBatch, error) {
	var out *settlement.PayoutBatch
	err := n.writeOp(func() error {
		var err error
		out, err = n.royalty.Distribute(caller, contentID, revenue, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RoyaltySplit returns the split table for a piece of content.
func (n *Node) RoyaltySplit(contentID string) (*royalty.Split, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.royalty.Split(contentID)
}

// RoyaltyListContent returns the content ids with registered splits in
// registration order.
func (n *Node) RoyaltyListContent() ([]string, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.royalty.ListContent()
}

// --- Escrow module ---

// EscrowCreateTrade opens a trade between buyer and seller. Escrowed trades
// pull the cost into custody immediately; direct trades settle from the
// buyer's balance at settlement time.
func (n *Node) EscrowCreateTrade(buyer, seller [20]byte, assetID string, amount, price *big.Int, paymentToken string, isEscrow bool) (*escrow.EscrowedTrade, error) {
	var out *escrow.EscrowedTrade
	err := n.writeOp(func() error {
		var err error
		out, err = n.escrow.CreateTrade(buyer, seller, assetID, amount, price, paymentToken, isEscrow)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EscrowSettleTrade settles a trade once its cooling-off window has elapsed,
// moving the cost to the seller and deleting the record.
func (n *Node) EscrowSettleTrade(tradeHash [32]byte) (*escrow.EscrowedTrade, error) {
	var out *escrow.EscrowedTrade
	err := n.writeOp(func() error {
		var err error
		out, err = n.escrow.SettleTrade(tradeHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EscrowTrade returns a live trade by hash.
func (n *Node) EscrowTrade(tradeHash [32]byte) (*escrow.EscrowedTrade, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.escrow.Trade(tradeHash)
}

// --- Automation module ---

// AutomationCreateRule registers an automation rule, charging the flat rule
// fee in the native token.
func (n *Node) AutomationCreateRule(creator [20]byte, kind automation.TriggerKind, condition, executionData []byte, gasBudget uint64) (*automation.Rule, error) {
	var out *automation.Rule
	err := n.writeOp(func() error {
		var err error
		out, err = n.automation.CreateRule(creator, kind, condition, executionData, gasBudget)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AutomationSetRuleActive toggles a rule. Only the rule's creator or an
// admin may flip it.
func (n *Node) AutomationSetRuleActive(caller [20]byte, id uint64, active bool) (*automation.Rule, error) {
	var out *automation.Rule
	err := n.writeOp(func() error {
		var err error
		out, err = n.automation.SetRuleActive(caller, id, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AutomationMarkExecuted records an off-core execution of an active rule.
// The caller must hold the executor role.
func (n *Node) AutomationMarkExecuted(caller [20]byte, id uint64) (*automation.Rule, error) {
	var out *automation.Rule
	err := n.writeOp(func() error {
		var err error
		out, err = n.automation.MarkExecuted(caller, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AutomationRule returns a rule by id.
func (n *Node) AutomationRule(id uint64) (*automation.Rule, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.automation.Rule(id)
}

// AutomationListRules returns registered rules in creation order, optionally
// restricted to active ones.
func (n *Node) AutomationListRules(activeOnly bool) ([]*automation.Rule, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.automation.ListRules(activeOnly)
}

// --- Accounts and custody ---

// Balance returns the address's balance for a token.
func (n *Node) Balance(addr [20]byte, token string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Balance(addr[:], token)
}

// Account assembles the address's balances across every registered token.
// Tokens the address never held are absent from the map.
func (n *Node) Account(addr [20]byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	tokens, err := n.state.TokenList()
	if err != nil {
		return nil, err
	}
	balances := make(map[string]*big.Int, len(tokens))
	for _, symbol := range tokens {
		amount, err := n.state.Balance(addr[:], symbol)
		if err != nil {
			return nil, err
		}
		if amount.Sign() > 0 {
			balances[symbol] = amount
		}
	}
	return &types.Account{Balances: balances}, nil
}

// Custody returns the custody vault breakdown for a token.
func (n *Node) Custody(token string) (*state.CustodyBreakdown, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Custody(token)
}

// Tokens returns metadata for every registered token in sorted symbol order.
func (n *Node) Tokens() ([]*state.TokenMetadata, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	symbols, err := n.state.TokenList()
	if err != nil {
		return nil, err
	}
	out := make([]*state.TokenMetadata, 0, len(symbols))
	for _, symbol := range symbols {
		meta, err := n.state.Token(symbol)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out = append(out, meta)
		}
	}
	return out, nil
}

// --- Events ---

// EventsSince pages the retained event log: up to limit committed events
// with a sequence strictly greater than after, oldest first.
func (n *Node) EventsSince(after uint64, limit int) []*StoredEvent {
	return n.log.since(after, limit)
}

// LatestEventSequence returns the sequence of the most recently committed
// event, or zero when nothing has been emitted yet.
func (n *Node) LatestEventSequence() uint64 {
	return n.log.latestSequence()
}

// SubscribeEvents attaches a live subscriber to the committed event stream.
// The caller must Close the subscription when done.
func (n *Node) SubscribeEvents(buffer int) *EventSubscription {
	return n.log.subscribe(buffer)
}
