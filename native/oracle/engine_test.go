package oracle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"testing"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
)

type mockState struct {
	sources     map[[20]byte]*DataSource
	sourceOrder [][20]byte
	samples     map[string]map[[20]byte]*PriceSample
	symbolOrder map[string][][20]byte
	quotes      map[string]*AggregatedQuote
	history     map[string][]*PricePoint
	thresholds  map[string]uint32
	roles       map[string]map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		sources:     make(map[[20]byte]*DataSource),
		samples:     make(map[string]map[[20]byte]*PriceSample),
		symbolOrder: make(map[string][][20]byte),
		quotes:      make(map[string]*AggregatedQuote),
		history:     make(map[string][]*PricePoint),
		thresholds:  make(map[string]uint32),
		roles:       make(map[string]map[[20]byte]bool),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) OracleSourcePut(source *DataSource) error {
	if source == nil {
		return fmt.Errorf("nil source")
	}
	if _, ok := m.sources[source.Address]; !ok {
		m.sourceOrder = append(m.sourceOrder, source.Address)
	}
	m.sources[source.Address] = source.Clone()
	return nil
}

func (m *mockState) OracleSourceGet(addr [20]byte) (*DataSource, bool) {
	source, ok := m.sources[addr]
	if !ok {
		return nil, false
	}
	return source.Clone(), true
}

func (m *mockState) OracleSourceList() ([][20]byte, error) {
	return append([][20]byte(nil), m.sourceOrder...), nil
}

func (m *mockState) OracleSamplePut(sample *PriceSample) error {
	if sample == nil {
		return fmt.Errorf("nil sample")
	}
	bySource, ok := m.samples[sample.Symbol]
	if !ok {
		bySource = make(map[[20]byte]*PriceSample)
		m.samples[sample.Symbol] = bySource
	}
	if _, ok := bySource[sample.Source]; !ok {
		m.symbolOrder[sample.Symbol] = append(m.symbolOrder[sample.Symbol], sample.Source)
	}
	bySource[sample.Source] = sample.Clone()
	return nil
}

func (m *mockState) OracleSampleGet(symbol string, addr [20]byte) (*PriceSample, bool) {
	bySource, ok := m.samples[symbol]
	if !ok {
		return nil, false
	}
	sample, ok := bySource[addr]
	if !ok {
		return nil, false
	}
	return sample.Clone(), true
}

func (m *mockState) OracleSymbolSources(symbol string) ([][20]byte, error) {
	return append([][20]byte(nil), m.symbolOrder[symbol]...), nil
}

func (m *mockState) OracleQuotePut(quote *AggregatedQuote) error {
	if quote == nil {
		return fmt.Errorf("nil quote")
	}
	m.quotes[quote.Symbol] = quote.Clone()
	return nil
}

func (m *mockState) OracleQuoteGet(symbol string) (*AggregatedQuote, bool) {
	quote, ok := m.quotes[symbol]
	if !ok {
		return nil, false
	}
	return quote.Clone(), true
}

func (m *mockState) OracleHistoryAppend(symbol string, point *PricePoint, capacity int) error {
	if point == nil {
		return fmt.Errorf("nil point")
	}
	entries := append(m.history[symbol], point.Clone())
	if capacity > 0 && len(entries) > capacity {
		entries = entries[len(entries)-capacity:]
	}
	m.history[symbol] = entries
	return nil
}

func (m *mockState) OracleHistory(symbol string, limit int) ([]*PricePoint, error) {
	entries := m.history[symbol]
	out := make([]*PricePoint, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, entries[i].Clone())
	}
	return out, nil
}

func (m *mockState) OracleThresholdPut(symbol string, bps uint32) error {
	m.thresholds[symbol] = bps
	return nil
}

func (m *mockState) OracleThresholdGet(symbol string) (uint32, bool) {
	bps, ok := m.thresholds[symbol]
	return bps, ok
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	if len(addr) != 20 {
		return false
	}
	var key [20]byte
	copy(key[:], addr)
	members, ok := m.roles[role]
	if !ok {
		return false
	}
	return members[key]
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

func (c *capturingEmitter) typesEvents() []*types.Event {
	out := make([]*types.Event, 0, len(c.events))
	for _, evt := range c.events {
		if wrapper, ok := evt.(oracleEvent); ok && wrapper.evt != nil {
			clone := &types.Event{Type: wrapper.evt.Type, Attributes: map[string]string{}}
			keys := make([]string, 0, len(wrapper.evt.Attributes))
			for k := range wrapper.evt.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				clone.Attributes[k] = wrapper.evt.Attributes[k]
			}
			out = append(out, clone)
		}
	}
	return out
}

func eventSeen(emitter *capturingEmitter, eventType string) bool {
	if emitter == nil {
		return false
	}
	for _, evt := range emitter.events {
		if evt.EventType() == eventType {
			return true
		}
	}
	return false
}

var testAdmin = newTestAddress(0xAD)

func setupEngine(t *testing.T) (*Engine, *mockState, *capturingEmitter) {
	t.Helper()
	state := newMockState()
	state.grantRole(common.RoleAdmin, testAdmin)
	engine := NewEngine()
	engine.SetState(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1000 })
	return engine, state, emitter
}

func authorizeThreeSources(t *testing.T, engine *Engine) ([20]byte, [20]byte, [20]byte) {
	t.Helper()
	srcA := newTestAddress(0x0A)
	srcB := newTestAddress(0x0B)
	srcC := newTestAddress(0x0C)
	if _, err := engine.AuthorizeOracle(testAdmin, srcA, "alpha", 50); err != nil {
		t.Fatalf("authorize A: %v", err)
	}
	if _, err := engine.AuthorizeOracle(testAdmin, srcB, "beta", 30); err != nil {
		t.Fatalf("authorize B: %v", err)
	}
	if _, err := engine.AuthorizeOracle(testAdmin, srcC, "gamma", 20); err != nil {
		t.Fatalf("authorize C: %v", err)
	}
	return srcA, srcB, srcC
}

func TestThreeSourceQuote(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)

	quote, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 100)
	if err != nil {
		t.Fatalf("update A: %v", err)
	}
	if quote != nil {
		t.Fatalf("expected no quote after one sample, got %v", quote)
	}
	if !eventSeen(emitter, EventTypeAggregationSkipped) {
		t.Fatalf("expected aggregation skipped event")
	}
	if quote, err = engine.UpdatePrice(srcB, "SONG-001", big.NewInt(1010), 100); err != nil {
		t.Fatalf("update B: %v", err)
	} else if quote != nil {
		t.Fatalf("expected no quote after two samples")
	}
	quote, err = engine.UpdatePrice(srcC, "SONG-001", big.NewInt(990), 100)
	if err != nil {
		t.Fatalf("update C: %v", err)
	}
	if quote == nil {
		t.Fatalf("expected published quote after three samples")
	}
	if quote.Price.Cmp(big.NewInt(1001)) != 0 {
		t.Fatalf("expected weighted mean 1001, got %s", quote.Price)
	}
	if quote.SourceCount != 3 {
		t.Fatalf("expected three contributing sources, got %d", quote.SourceCount)
	}
	if quote.DeviationBps != 81 {
		t.Fatalf("expected deviation 81 bps, got %d", quote.DeviationBps)
	}
	if !eventSeen(emitter, EventTypeAggregatedPrice) {
		t.Fatalf("expected aggregated price event")
	}
	stored, ok := state.OracleQuoteGet("SONG-001")
	if !ok || stored.Price.Cmp(big.NewInt(1001)) != 0 {
		t.Fatalf("quote not persisted: %v", stored)
	}

	latest, err := engine.GetLatestPrice("song-001")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Price.Cmp(big.NewInt(1001)) != 0 {
		t.Fatalf("latest price mismatch: %s", latest.Price)
	}
	if latest.Confidence != 100 {
		t.Fatalf("expected confidence proxy 100, got %d", latest.Confidence)
	}
	if !engine.IsPriceAvailable("SONG-001") {
		t.Fatalf("expected price availability")
	}
}

func TestCircuitBreakerRejectsJump(t *testing.T) {
	engine, state, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	for _, update := range []struct {
		src   [20]byte
		price int64
	}{{srcA, 1000}, {srcB, 1000}, {srcC, 1000}} {
		if _, err := engine.UpdatePrice(update.src, "SONG-001", big.NewInt(update.price), 100); err != nil {
			t.Fatalf("seed update: %v", err)
		}
	}
	quote, ok := state.OracleQuoteGet("SONG-001")
	if !ok || quote.Price.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected seeded quote at 1000, got %v", quote)
	}

	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1200), 100); !errors.Is(err, ErrCircuitBreaker) {
		t.Fatalf("expected ErrCircuitBreaker, got %v", err)
	}
	sample, ok := state.OracleSampleGet("SONG-001", srcA)
	if !ok {
		t.Fatalf("expected prior sample to remain")
	}
	if sample.Price.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("rejected sample must not be stored, got %s", sample.Price)
	}
	quote, _ = state.OracleQuoteGet("SONG-001")
	if quote.Price.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("aggregated quote must stay at 1000, got %s", quote.Price)
	}

	// A move inside the threshold still clears.
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1040), 100); err != nil {
		t.Fatalf("update within threshold: %v", err)
	}
}

func TestCircuitBreakerPerSymbolOverride(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	for _, src := range [][20]byte{srcA, srcB, srcC} {
		if _, err := engine.UpdatePrice(src, "SONG-002", big.NewInt(1000), 100); err != nil {
			t.Fatalf("seed update: %v", err)
		}
	}
	if err := engine.SetCircuitBreaker(testAdmin, "SONG-002", 3000); err != nil {
		t.Fatalf("set breaker: %v", err)
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-002", big.NewInt(1200), 100); err != nil {
		t.Fatalf("expected 20%% jump under 30%% override to pass, got %v", err)
	}
	if err := engine.SetCircuitBreaker(testAdmin, "SONG-002", 0); err == nil {
		t.Fatalf("expected invalid threshold error")
	}
	if err := engine.SetCircuitBreaker(srcA, "SONG-002", 100); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestConfidenceBoundary(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	if _, err := engine.UpdatePrice(srcA, "SONG-003", big.NewInt(1000), 49); !errors.Is(err, ErrInvalidConfidence) {
		t.Fatalf("expected ErrInvalidConfidence for 49, got %v", err)
	}
	for _, src := range [][20]byte{srcA, srcB, srcC} {
		if _, err := engine.UpdatePrice(src, "SONG-003", big.NewInt(1000), 50); err != nil {
			t.Fatalf("confidence 50 must be accepted: %v", err)
		}
	}
	if !engine.IsPriceAvailable("SONG-003") {
		t.Fatalf("expected quote from three confidence-50 samples")
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-003", big.NewInt(1000), 101); !errors.Is(err, ErrInvalidConfidence) {
		t.Fatalf("expected ErrInvalidConfidence for 101, got %v", err)
	}
}

func TestUpdateValidation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, _, _ := authorizeThreeSources(t, engine)
	if _, err := engine.UpdatePrice(newTestAddress(0x99), "SONG-001", big.NewInt(1000), 90); !errors.Is(err, ErrUnauthorizedSource) {
		t.Fatalf("expected ErrUnauthorizedSource, got %v", err)
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(0), 90); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero, got %v", err)
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(-5), 90); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for negative, got %v", err)
	}
	if _, err := engine.UpdatePrice(srcA, "", big.NewInt(1000), 90); !errors.Is(err, ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 90); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}
}

func TestBatchUpdates(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	for _, src := range [][20]byte{srcB, srcC} {
		for _, symbol := range []string{"SONG-001", "SONG-002"} {
			if _, err := engine.UpdatePrice(src, symbol, big.NewInt(500), 90); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
	}
	quotes, err := engine.UpdatePrices(srcA, []string{"SONG-001", "SONG-002"}, []*big.Int{big.NewInt(500), big.NewInt(505)}, []uint32{95, 95})
	if err != nil {
		t.Fatalf("batch update: %v", err)
	}
	if len(quotes) != 2 || quotes[0] == nil || quotes[1] == nil {
		t.Fatalf("expected two published quotes, got %v", quotes)
	}

	if _, err := engine.UpdatePrices(srcA, []string{"SONG-001"}, nil, nil); !errors.Is(err, ErrBatchLengthMismatch) {
		t.Fatalf("expected ErrBatchLengthMismatch, got %v", err)
	}
	engine.SetConfig(Config{MaxBatchSize: 2})
	if _, err := engine.UpdatePrices(srcA,
		[]string{"SONG-001", "SONG-002", "SONG-003"},
		[]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		[]uint32{90, 90, 90}); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestStaleSamplesDropFromAggregation(t *testing.T) {
	engine, state, emitter := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	now := int64(1000)
	engine.SetNowFunc(func() int64 { return now })
	for _, src := range [][20]byte{srcA, srcB, srcC} {
		if _, err := engine.UpdatePrice(src, "SONG-001", big.NewInt(1000), 100); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if !engine.IsPriceAvailable("SONG-001") {
		t.Fatalf("expected fresh quote")
	}

	// Beyond MaxAge the samples of B and C no longer count and the old
	// quote stops being served, though it stays stored.
	now = 1000 + DefaultMaxAge + 1
	if engine.IsPriceAvailable("SONG-001") {
		t.Fatalf("expected stale quote to be unavailable")
	}
	if _, ok := state.OracleQuoteGet("SONG-001"); !ok {
		t.Fatalf("stale quote must remain stored")
	}
	status, err := engine.SampleStatus("SONG-001", srcB)
	if err != nil {
		t.Fatalf("sample status: %v", err)
	}
	if status != SampleStale {
		t.Fatalf("expected stale status, got %v", status)
	}

	emitter.events = nil
	quote, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 100)
	if err != nil {
		t.Fatalf("refresh A: %v", err)
	}
	if quote != nil {
		t.Fatalf("one fresh sample must not publish, got %v", quote)
	}
	if !eventSeen(emitter, EventTypeAggregationSkipped) {
		t.Fatalf("expected skip event for insufficient fresh sources")
	}
}

func TestSampleSuspension(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	for _, src := range [][20]byte{srcA, srcB, srcC} {
		if _, err := engine.UpdatePrice(src, "SONG-001", big.NewInt(1000), 100); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := engine.SetSampleActive(testAdmin, "SONG-001", srcC, false); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	status, err := engine.SampleStatus("SONG-001", srcC)
	if err != nil || status != SampleSuspended {
		t.Fatalf("expected suspended, got %v %v", status, err)
	}

	// A fresh write from the suspended source keeps the suspension.
	if quote, err := engine.UpdatePrice(srcC, "SONG-001", big.NewInt(1000), 100); err != nil {
		t.Fatalf("suspended write: %v", err)
	} else if quote != nil {
		t.Fatalf("two active samples must not publish")
	}

	if _, err := engine.SetSampleActive(testAdmin, "SONG-001", srcC, true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	quote, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 100)
	if err != nil || quote == nil {
		t.Fatalf("expected publication after resume, got %v %v", quote, err)
	}
	if _, err := engine.SetSampleActive(testAdmin, "SONG-001", newTestAddress(0x77), false); !errors.Is(err, ErrSampleNotFound) {
		t.Fatalf("expected ErrSampleNotFound, got %v", err)
	}
}

func TestSourceLifecycle(t *testing.T) {
	engine, _, emitter := setupEngine(t)
	srcA := newTestAddress(0x0A)
	if _, err := engine.AuthorizeOracle(srcA, srcA, "alpha", 50); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if _, err := engine.AuthorizeOracle(testAdmin, srcA, "alpha", MaxWeight+1); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	record, err := engine.AuthorizeOracle(testAdmin, srcA, "alpha", 50)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !record.Active || record.Reliability != MaxConfidence {
		t.Fatalf("unexpected source record: %+v", record)
	}
	if !eventSeen(emitter, EventTypeOracleAuthorized) {
		t.Fatalf("expected authorized event")
	}
	if _, err := engine.AuthorizeOracle(testAdmin, srcA, "alpha", 50); !errors.Is(err, ErrSourceExists) {
		t.Fatalf("expected ErrSourceExists, got %v", err)
	}

	if _, err := engine.RevokeOracle(testAdmin, newTestAddress(0x55)); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	revoked, err := engine.RevokeOracle(testAdmin, srcA)
	if err != nil || revoked.Active {
		t.Fatalf("revoke failed: %v %v", revoked, err)
	}
	if !eventSeen(emitter, EventTypeOracleRevoked) {
		t.Fatalf("expected revoked event")
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 90); !errors.Is(err, ErrUnauthorizedSource) {
		t.Fatalf("revoked source must not write, got %v", err)
	}

	reauth, err := engine.AuthorizeOracle(testAdmin, srcA, "alpha-2", 40)
	if err != nil {
		t.Fatalf("re-authorize: %v", err)
	}
	if !reauth.Active || reauth.Weight != 40 || reauth.Name != "alpha-2" {
		t.Fatalf("unexpected reactivated record: %+v", reauth)
	}

	updated, err := engine.UpdateDataSource(testAdmin, srcA, "alpha-3", 25, true)
	if err != nil || updated.Weight != 25 || updated.Name != "alpha-3" {
		t.Fatalf("update source failed: %v %v", updated, err)
	}
	sources, err := engine.ListSources()
	if err != nil || len(sources) != 1 {
		t.Fatalf("expected one source, got %v %v", sources, err)
	}
}

func TestReliabilityTracksAcceptedUpdates(t *testing.T) {
	engine, state, _ := setupEngine(t)
	srcA := newTestAddress(0x0A)
	if _, err := engine.AuthorizeOracle(testAdmin, srcA, "alpha", 50); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	source, _ := state.OracleSourceGet(srcA)
	source.Reliability = 90
	if err := state.OracleSourcePut(source); err != nil {
		t.Fatalf("seed reliability: %v", err)
	}
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 90); err != nil {
		t.Fatalf("update: %v", err)
	}
	source, _ = state.OracleSourceGet(srcA)
	if source.Reliability != 91 {
		t.Fatalf("expected reliability 91, got %d", source.Reliability)
	}
	if source.LastUpdate != 1000 {
		t.Fatalf("expected last update 1000, got %d", source.LastUpdate)
	}
}

func TestPriceHistoryNewestFirst(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	now := int64(1000)
	engine.SetNowFunc(func() int64 { return now })
	for step := int64(0); step < 3; step++ {
		now = 1000 + step
		price := big.NewInt(1000 + step*10)
		for _, src := range [][20]byte{srcA, srcB, srcC} {
			if _, err := engine.UpdatePrice(src, "SONG-001", price, 100); err != nil {
				t.Fatalf("update step %d: %v", step, err)
			}
		}
	}
	history, err := engine.GetPriceHistory("SONG-001", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two entries, got %d", len(history))
	}
	if history[0].Timestamp < history[1].Timestamp {
		t.Fatalf("expected newest first ordering")
	}
	if history[0].Price.Cmp(big.NewInt(1020)) != 0 {
		t.Fatalf("expected newest price 1020, got %s", history[0].Price)
	}
}

func TestGetMultiplePrices(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	for _, src := range [][20]byte{srcA, srcB, srcC} {
		if _, err := engine.UpdatePrice(src, "SONG-001", big.NewInt(700), 100); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	prices, err := engine.GetMultiplePrices([]string{"SONG-001", "SONG-404"})
	if err != nil {
		t.Fatalf("multi: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected two entries, got %d", len(prices))
	}
	if prices[0] == nil || prices[0].Price.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected first entry at 700, got %v", prices[0])
	}
	if prices[1] != nil {
		t.Fatalf("expected nil entry for unknown symbol, got %v", prices[1])
	}
}

func TestPausedModuleRejectsWrites(t *testing.T) {
	engine, _, _ := setupEngine(t)
	srcA, _, _ := authorizeThreeSources(t, engine)
	engine.SetPauses(stubPauses{paused: map[string]bool{moduleName: true}})
	if _, err := engine.UpdatePrice(srcA, "SONG-001", big.NewInt(1000), 90); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := engine.AuthorizeOracle(testAdmin, newTestAddress(0x66), "delta", 10); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on admin write, got %v", err)
	}
}

type stubPauses struct {
	paused map[string]bool
}

func (s stubPauses) IsPaused(module string) bool { return s.paused[module] }

func TestAggregatedEventAttributes(t *testing.T) {
	engine, _, emitter := setupEngine(t)
	srcA, srcB, srcC := authorizeThreeSources(t, engine)
	for _, src := range [][20]byte{srcA, srcB, srcC} {
		if _, err := engine.UpdatePrice(src, "SONG-001", big.NewInt(1000), 100); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	var published *types.Event
	for _, evt := range emitter.typesEvents() {
		if evt.Type == EventTypeAggregatedPrice {
			published = evt
		}
	}
	if published == nil {
		t.Fatalf("expected aggregated price event")
	}
	if published.Attributes["symbol"] != "SONG-001" {
		t.Fatalf("unexpected symbol attr: %q", published.Attributes["symbol"])
	}
	if published.Attributes["price"] != "1000" {
		t.Fatalf("unexpected price attr: %q", published.Attributes["price"])
	}
	if published.Attributes["sourceCount"] != "3" {
		t.Fatalf("unexpected source count attr: %q", published.Attributes["sourceCount"])
	}
}
