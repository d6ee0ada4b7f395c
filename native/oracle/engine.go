package oracle

import (
	"errors"
	"math/big"
	"time"

	"mrtcore/core/events"
	"mrtcore/core/types"
	"mrtcore/native/common"
)

const moduleName = "oracle"

type engineState interface {
	OracleSourcePut(*DataSource) error
	OracleSourceGet(addr [20]byte) (*DataSource, bool)
	OracleSourceList() ([][20]byte, error)
	OracleSamplePut(*PriceSample) error
	OracleSampleGet(symbol string, source [20]byte) (*PriceSample, bool)
	OracleSymbolSources(symbol string) ([][20]byte, error)
	OracleQuotePut(*AggregatedQuote) error
	OracleQuoteGet(symbol string) (*AggregatedQuote, bool)
	OracleHistoryAppend(symbol string, point *PricePoint, capacity int) error
	OracleHistory(symbol string, limit int) ([]*PricePoint, error)
	OracleThresholdPut(symbol string, bps uint32) error
	OracleThresholdGet(symbol string) (uint32, bool)
	HasRole(role string, addr []byte) bool
}

type oracleEvent struct {
	evt *types.Event
}

func (e oracleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e oracleEvent) Event() *types.Event { return e.evt }

// Engine aggregates per-source price samples into a single published quote
// per symbol. Writes are restricted to authorized sources; source management
// is restricted to the admin role.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
	config  Config
}

// NewEngine creates a price aggregation engine with default tuning and a
// no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		config:  Config{}.Normalise(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the admin pause switches consulted by write paths.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetConfig replaces the aggregator tuning. Zero fields fall back to the
// defaults.
func (e *Engine) SetConfig(c Config) { e.config = c.Normalise() }

// Config returns the effective aggregator tuning.
func (e *Engine) Config() Config { return e.config }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
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
	e.emitter.Emit(oracleEvent{evt: event})
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

// --- Source management ---

// AuthorizeOracle registers source as an active data source. Re-authorizing
// a revoked source reactivates it with the provided name and weight; an
// already active source is a conflict.
func (e *Engine) AuthorizeOracle(caller, source [20]byte, name string, weight uint32) (*DataSource, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotAdmin
	}
	if weight > MaxWeight {
		return nil, ErrInvalidWeight
	}
	existing, ok := e.state.OracleSourceGet(source)
	if ok && existing.Active {
		return nil, ErrSourceExists
	}
	record := &DataSource{
		Address:     source,
		Name:        name,
		Weight:      weight,
		Active:      true,
		Reliability: MaxConfidence,
	}
	if ok {
		record.LastUpdate = existing.LastUpdate
	}
	if err := e.state.OracleSourcePut(record); err != nil {
		return nil, err
	}
	e.emit(NewAuthorizedEvent(record))
	return record.Clone(), nil
}

// RevokeOracle deactivates a source. The record is kept so its history and
// identity survive; its samples stop contributing to aggregation.
func (e *Engine) RevokeOracle(caller, source [20]byte) (*DataSource, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotAdmin
	}
	record, ok := e.state.OracleSourceGet(source)
	if !ok {
		return nil, ErrSourceNotFound
	}
	record.Active = false
	if err := e.state.OracleSourcePut(record); err != nil {
		return nil, err
	}
	e.emit(NewRevokedEvent(record))
	return record.Clone(), nil
}

// UpdateDataSource modifies an existing source's name, weight, and active
// flag in one admin call.
func (e *Engine) UpdateDataSource(caller, source [20]byte, name string, weight uint32, active bool) (*DataSource, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotAdmin
	}
	if weight > MaxWeight {
		return nil, ErrInvalidWeight
	}
	record, ok := e.state.OracleSourceGet(source)
	if !ok {
		return nil, ErrSourceNotFound
	}
	record.Name = name
	record.Weight = weight
	record.Active = active
	if err := e.state.OracleSourcePut(record); err != nil {
		return nil, err
	}
	e.emit(NewSourceUpdatedEvent(record))
	return record.Clone(), nil
}

// ListSources returns every source ever authorized, in the deterministic
// order of the state index.
func (e *Engine) ListSources() ([]*DataSource, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addrs, err := e.state.OracleSourceList()
	if err != nil {
		return nil, err
	}
	out := make([]*DataSource, 0, len(addrs))
	for _, addr := range addrs {
		if record, ok := e.state.OracleSourceGet(addr); ok {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}

// SetSampleActive suspends or resumes a single (symbol, source) sample.
// Suspended samples never contribute to aggregation, regardless of writes.
func (e *Engine) SetSampleActive(caller [20]byte, symbol string, source [20]byte, active bool) (*PriceSample, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return nil, ErrNotAdmin
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	sample, ok := e.state.OracleSampleGet(normalized, source)
	if !ok {
		return nil, ErrSampleNotFound
	}
	sample.Active = active
	if err := e.state.OracleSamplePut(sample); err != nil {
		return nil, err
	}
	return sample.Clone(), nil
}

// SetCircuitBreaker overrides the per-symbol circuit breaker threshold.
func (e *Engine) SetCircuitBreaker(caller [20]byte, symbol string, bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.state.HasRole(common.RoleAdmin, caller[:]) {
		return ErrNotAdmin
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if bps == 0 || bps > bpsDenominator {
		return ErrInvalidThreshold
	}
	return e.state.OracleThresholdPut(normalized, bps)
}

// --- Price writes ---

// UpdatePrice validates and stores a sample from caller, then recomputes the
// symbol's aggregated quote. A nil quote with a nil error means the sample
// was accepted but aggregation could not publish; the skip reason is emitted
// as an event and the prior quote, if any, stays untouched.
func (e *Engine) UpdatePrice(caller [20]byte, symbol string, price *big.Int, confidence uint32) (*AggregatedQuote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	source, ok := e.state.OracleSourceGet(caller)
	if !ok || !source.Active {
		return nil, ErrUnauthorizedSource
	}
	amount := cloneBigInt(price)
	if amount.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if confidence < MinConfidence || confidence > MaxConfidence {
		return nil, ErrInvalidConfidence
	}
	now := e.now()

	if prev, ok := e.state.OracleQuoteGet(normalized); ok && prev.Price != nil && prev.Price.Sign() > 0 {
		if jumpBps(amount, prev.Price) > uint64(e.breakerThreshold(normalized)) {
			return nil, ErrCircuitBreaker
		}
	}

	sample := &PriceSample{
		Symbol:     normalized,
		Source:     caller,
		Price:      amount,
		Timestamp:  now,
		Confidence: confidence,
		Active:     true,
	}
	if existing, ok := e.state.OracleSampleGet(normalized, caller); ok {
		// An admin suspension survives fresh writes until explicitly lifted.
		sample.Active = existing.Active
	}
	if err := e.state.OracleSamplePut(sample); err != nil {
		return nil, err
	}

	source.LastUpdate = now
	if source.Reliability < MaxConfidence {
		source.Reliability++
	}
	if err := e.state.OracleSourcePut(source); err != nil {
		return nil, err
	}
	e.emit(NewPriceUpdatedEvent(sample))

	quote, aggErr := e.recomputeQuote(normalized, now)
	if aggErr != nil {
		switch {
		case errors.Is(aggErr, ErrInsufficientSources):
			e.emit(NewAggregationSkippedEvent(normalized, SkipReasonInsufficientSources))
			return nil, nil
		case errors.Is(aggErr, ErrDeviationTooHigh):
			e.emit(NewAggregationSkippedEvent(normalized, SkipReasonDeviationTooHigh))
			return nil, nil
		default:
			return nil, aggErr
		}
	}
	if err := e.state.OracleQuotePut(quote); err != nil {
		return nil, err
	}
	point := &PricePoint{
		Price:        cloneBigInt(quote.Price),
		Timestamp:    quote.Timestamp,
		DeviationBps: quote.DeviationBps,
		SourceCount:  quote.SourceCount,
	}
	if err := e.state.OracleHistoryAppend(normalized, point, e.config.HistoryCapacity); err != nil {
		return nil, err
	}
	e.emit(NewAggregatedPriceEvent(quote))
	return quote.Clone(), nil
}

// UpdatePrices applies a bounded batch of updates from one source. The batch
// is atomic: the first hard failure aborts the whole call.
func (e *Engine) UpdatePrices(caller [20]byte, symbols []string, prices []*big.Int, confidences []uint32) ([]*AggregatedQuote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if len(symbols) == 0 || len(symbols) != len(prices) || len(symbols) != len(confidences) {
		return nil, ErrBatchLengthMismatch
	}
	if len(symbols) > e.config.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	out := make([]*AggregatedQuote, len(symbols))
	for i := range symbols {
		quote, err := e.UpdatePrice(caller, symbols[i], prices[i], confidences[i])
		if err != nil {
			return nil, err
		}
		out[i] = quote
	}
	return out, nil
}

func (e *Engine) breakerThreshold(symbol string) uint32 {
	if bps, ok := e.state.OracleThresholdGet(symbol); ok && bps > 0 {
		return bps
	}
	return e.config.CircuitBreakerBps
}

// jumpBps measures the relative deviation of price from prev in basis
// points, flooring the division.
func jumpBps(price, prev *big.Int) uint64 {
	diff := new(big.Int).Sub(price, prev)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(bpsDenominator))
	diff.Quo(diff, prev)
	if !diff.IsUint64() {
		return ^uint64(0)
	}
	return diff.Uint64()
}

// recomputeQuote collects the symbol's valid samples and derives the
// weighted mean and its deviation. Soft failures are reported as
// ErrInsufficientSources or ErrDeviationTooHigh and leave all state alone.
func (e *Engine) recomputeQuote(symbol string, now int64) (*AggregatedQuote, error) {
	addrs, err := e.state.OracleSymbolSources(symbol)
	if err != nil {
		return nil, err
	}
	var (
		prices  []*big.Int
		weights []uint64
	)
	for _, addr := range addrs {
		sample, ok := e.state.OracleSampleGet(symbol, addr)
		if !ok || !sample.Active || sample.Price == nil {
			continue
		}
		if sample.Confidence < MinConfidence {
			continue
		}
		if now-sample.Timestamp > e.config.MaxAge {
			continue
		}
		source, ok := e.state.OracleSourceGet(addr)
		if !ok || !source.Active || source.Weight == 0 {
			continue
		}
		prices = append(prices, sample.Price)
		weights = append(weights, uint64(source.Weight)*uint64(sample.Confidence))
	}
	if len(prices) < e.config.MinSources {
		return nil, ErrInsufficientSources
	}

	num := new(big.Int)
	den := new(big.Int)
	term := new(big.Int)
	for i, price := range prices {
		weight := new(big.Int).SetUint64(weights[i])
		num.Add(num, term.Mul(price, weight))
		den.Add(den, weight)
		term = new(big.Int)
	}
	if den.Sign() == 0 {
		return nil, ErrInsufficientSources
	}
	mean := new(big.Int).Quo(num, den)
	if mean.Sign() <= 0 {
		return nil, ErrInsufficientSources
	}

	deviation := deviationBps(prices, mean)
	if deviation.Cmp(new(big.Int).SetUint64(uint64(e.config.MaxDeviationBps))) > 0 {
		return nil, ErrDeviationTooHigh
	}

	return &AggregatedQuote{
		Symbol:       symbol,
		Price:        mean,
		Timestamp:    now,
		DeviationBps: uint32(deviation.Uint64()),
		SourceCount:  uint32(len(prices)),
	}, nil
}

// deviationBps computes the population standard deviation of the sample
// prices around their arithmetic mean, expressed in basis points of the
// weighted mean. All divisions floor.
func deviationBps(prices []*big.Int, weightedMean *big.Int) *big.Int {
	n := int64(len(prices))
	if n == 0 || weightedMean.Sign() <= 0 {
		return big.NewInt(0)
	}
	sum := new(big.Int)
	for _, price := range prices {
		sum.Add(sum, price)
	}
	acc := new(big.Int)
	term := new(big.Int)
	for _, price := range prices {
		term.Mul(price, big.NewInt(n))
		term.Sub(term, sum)
		term.Mul(term, term)
		acc.Add(acc, term)
		term = new(big.Int)
	}
	// stddev/mean in bps = sqrt(acc * 10^8 / n^3) / mean
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil)
	acc.Mul(acc, scale)
	acc.Quo(acc, new(big.Int).SetInt64(n*n*n))
	acc.Sqrt(acc)
	return acc.Quo(acc, weightedMean)
}

// --- Reads ---

// GetLatestPrice returns the published quote with a confidence proxy derived
// from its deviation. Stale or absent quotes report ErrPriceUnavailable; the
// stored quote is never cleared by reads.
func (e *Engine) GetLatestPrice(symbol string) (*LatestPrice, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	quote, ok := e.state.OracleQuoteGet(normalized)
	if !ok || quote.Price == nil {
		return nil, ErrPriceUnavailable
	}
	if e.now()-quote.Timestamp > e.config.MaxAge {
		return nil, ErrPriceUnavailable
	}
	return &LatestPrice{
		Symbol:     normalized,
		Price:      cloneBigInt(quote.Price),
		Timestamp:  quote.Timestamp,
		Confidence: confidenceProxy(quote.DeviationBps),
	}, nil
}

// GetMultiplePrices resolves a list of symbols in one call. Unavailable
// symbols yield nil entries in the returned slice.
func (e *Engine) GetMultiplePrices(symbols []string) ([]*LatestPrice, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	out := make([]*LatestPrice, len(symbols))
	for i, symbol := range symbols {
		latest, err := e.GetLatestPrice(symbol)
		if err != nil {
			if errors.Is(err, ErrPriceUnavailable) || errors.Is(err, ErrInvalidSymbol) {
				continue
			}
			return nil, err
		}
		out[i] = latest
	}
	return out, nil
}

// IsPriceAvailable reports whether a fresh aggregated quote exists.
func (e *Engine) IsPriceAvailable(symbol string) bool {
	_, err := e.GetLatestPrice(symbol)
	return err == nil
}

// GetPriceHistory returns up to limit most recent history records for the
// symbol, newest first. A non-positive limit returns the full retained ring.
func (e *Engine) GetPriceHistory(symbol string, limit int) ([]*PricePoint, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > e.config.HistoryCapacity {
		limit = e.config.HistoryCapacity
	}
	return e.state.OracleHistory(normalized, limit)
}

// SampleStatus reports the lifecycle state of a (symbol, source) pair.
func (e *Engine) SampleStatus(symbol string, source [20]byte) (SampleState, error) {
	if e == nil || e.state == nil {
		return SampleEmpty, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return SampleEmpty, err
	}
	sample, ok := e.state.OracleSampleGet(normalized, source)
	if !ok {
		return SampleEmpty, nil
	}
	if !sample.Active {
		return SampleSuspended, nil
	}
	if record, ok := e.state.OracleSourceGet(source); !ok || !record.Active {
		return SampleSuspended, nil
	}
	if e.now()-sample.Timestamp > e.config.MaxAge {
		return SampleStale, nil
	}
	return SampleFresh, nil
}

func confidenceProxy(deviationBps uint32) uint32 {
	reduced := deviationBps / 100
	if reduced >= MaxConfidence {
		return 0
	}
	return MaxConfidence - reduced
}
