package state

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"mrtcore/native/oracle"
)

func oracleSourceKey(addr [20]byte) []byte {
	return append([]byte("oracle/source/"), addr[:]...)
}

func oracleSourceIndexKey() []byte {
	return []byte("oracle/source-index")
}

func oracleSampleKey(symbol string, addr [20]byte) []byte {
	buf := append([]byte("oracle/sample/"), symbol...)
	buf = append(buf, '/')
	return append(buf, addr[:]...)
}

func oracleSymbolIndexKey(symbol string) []byte {
	return append([]byte("oracle/symbol-sources/"), symbol...)
}

func oracleQuoteKey(symbol string) []byte {
	return append([]byte("oracle/quote/"), symbol...)
}

func oracleHistoryHeadKey(symbol string) []byte {
	buf := append([]byte("oracle/history/"), symbol...)
	return append(buf, "/head"...)
}

func oracleHistorySlotKey(symbol string, slot uint64) []byte {
	buf := append([]byte("oracle/history/"), symbol...)
	buf = append(buf, '/')
	return strconv.AppendUint(buf, slot, 10)
}

func oracleThresholdKey(symbol string) []byte {
	return append([]byte("oracle/threshold/"), symbol...)
}

type storedOracleSource struct {
	Address     [20]byte
	Name        string
	Weight      uint32
	Active      bool
	LastUpdate  *big.Int
	Reliability uint32
}

func newStoredOracleSource(source *oracle.DataSource) storedOracleSource {
	stored := storedOracleSource{
		Address:     source.Address,
		Name:        source.Name,
		Weight:      source.Weight,
		Active:      source.Active,
		LastUpdate:  big.NewInt(source.LastUpdate),
		Reliability: source.Reliability,
	}
	return stored
}

func (s storedOracleSource) toSource() *oracle.DataSource {
	source := &oracle.DataSource{
		Address:     s.Address,
		Name:        s.Name,
		Weight:      s.Weight,
		Active:      s.Active,
		Reliability: s.Reliability,
	}
	if s.LastUpdate != nil {
		source.LastUpdate = s.LastUpdate.Int64()
	}
	return source
}

type storedOracleSample struct {
	Symbol     string
	Source     [20]byte
	Price      *big.Int
	Timestamp  *big.Int
	Confidence uint32
	Active     bool
}

func newStoredOracleSample(sample *oracle.PriceSample) storedOracleSample {
	stored := storedOracleSample{
		Symbol:     sample.Symbol,
		Source:     sample.Source,
		Price:      big.NewInt(0),
		Timestamp:  big.NewInt(sample.Timestamp),
		Confidence: sample.Confidence,
		Active:     sample.Active,
	}
	if sample.Price != nil {
		stored.Price = new(big.Int).Set(sample.Price)
	}
	return stored
}

func (s storedOracleSample) toSample() *oracle.PriceSample {
	sample := &oracle.PriceSample{
		Symbol:     s.Symbol,
		Source:     s.Source,
		Price:      big.NewInt(0),
		Confidence: s.Confidence,
		Active:     s.Active,
	}
	if s.Price != nil {
		sample.Price = new(big.Int).Set(s.Price)
	}
	if s.Timestamp != nil {
		sample.Timestamp = s.Timestamp.Int64()
	}
	return sample
}

type storedOracleQuote struct {
	Symbol       string
	Price        *big.Int
	Timestamp    *big.Int
	DeviationBps uint32
	SourceCount  uint32
}

func newStoredOracleQuote(quote *oracle.AggregatedQuote) storedOracleQuote {
	stored := storedOracleQuote{
		Symbol:       quote.Symbol,
		Price:        big.NewInt(0),
		Timestamp:    big.NewInt(quote.Timestamp),
		DeviationBps: quote.DeviationBps,
		SourceCount:  quote.SourceCount,
	}
	if quote.Price != nil {
		stored.Price = new(big.Int).Set(quote.Price)
	}
	return stored
}

func (s storedOracleQuote) toQuote() *oracle.AggregatedQuote {
	quote := &oracle.AggregatedQuote{
		Symbol:       s.Symbol,
		Price:        big.NewInt(0),
		DeviationBps: s.DeviationBps,
		SourceCount:  s.SourceCount,
	}
	if s.Price != nil {
		quote.Price = new(big.Int).Set(s.Price)
	}
	if s.Timestamp != nil {
		quote.Timestamp = s.Timestamp.Int64()
	}
	return quote
}

type storedOraclePoint struct {
	Price        *big.Int
	Timestamp    *big.Int
	DeviationBps uint32
	SourceCount  uint32
}

func newStoredOraclePoint(point *oracle.PricePoint) storedOraclePoint {
	stored := storedOraclePoint{
		Price:        big.NewInt(0),
		Timestamp:    big.NewInt(point.Timestamp),
		DeviationBps: point.DeviationBps,
		SourceCount:  point.SourceCount,
	}
	if point.Price != nil {
		stored.Price = new(big.Int).Set(point.Price)
	}
	return stored
}

func (s storedOraclePoint) toPoint() *oracle.PricePoint {
	point := &oracle.PricePoint{
		Price:        big.NewInt(0),
		DeviationBps: s.DeviationBps,
		SourceCount:  s.SourceCount,
	}
	if s.Price != nil {
		point.Price = new(big.Int).Set(s.Price)
	}
	if s.Timestamp != nil {
		point.Timestamp = s.Timestamp.Int64()
	}
	return point
}

type storedOracleHistoryHead struct {
	Total    uint64
	Capacity uint64
}

// OracleSourcePut validates and persists a data source record, keeping the
// source index current.
func (s *CoreState) OracleSourcePut(source *oracle.DataSource) error {
	if source == nil {
		return fmt.Errorf("oracle source: nil record")
	}
	if err := s.KVPut(oracleSourceKey(source.Address), newStoredOracleSource(source)); err != nil {
		return err
	}
	return s.KVAppend(oracleSourceIndexKey(), source.Address[:])
}

// OracleSourceGet loads a data source record by address.
func (s *CoreState) OracleSourceGet(addr [20]byte) (*oracle.DataSource, bool) {
	var stored storedOracleSource
	ok, err := s.KVGet(oracleSourceKey(addr), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toSource(), true
}

// OracleSourceList returns every source address ever registered, in insertion
// order.
func (s *CoreState) OracleSourceList() ([][20]byte, error) {
	var raw [][]byte
	if err := s.KVGetList(oracleSourceIndexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("oracle source index: malformed address")
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// OracleSamplePut validates and persists a price sample, keeping the
// per-symbol source index current.
func (s *CoreState) OracleSamplePut(sample *oracle.PriceSample) error {
	if sample == nil {
		return fmt.Errorf("oracle sample: nil record")
	}
	if strings.TrimSpace(sample.Symbol) == "" {
		return fmt.Errorf("oracle sample: symbol must not be empty")
	}
	if err := s.KVPut(oracleSampleKey(sample.Symbol, sample.Source), newStoredOracleSample(sample)); err != nil {
		return err
	}
	return s.KVAppend(oracleSymbolIndexKey(sample.Symbol), sample.Source[:])
}

// OracleSampleGet loads the sample a source last wrote for a symbol.
func (s *CoreState) OracleSampleGet(symbol string, addr [20]byte) (*oracle.PriceSample, bool) {
	var stored storedOracleSample
	ok, err := s.KVGet(oracleSampleKey(symbol, addr), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toSample(), true
}

// OracleSymbolSources returns the addresses that have ever written a sample
// for the symbol, in insertion order.
func (s *CoreState) OracleSymbolSources(symbol string) ([][20]byte, error) {
	var raw [][]byte
	if err := s.KVGetList(oracleSymbolIndexKey(symbol), &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("oracle symbol index: malformed address")
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// OracleQuotePut persists the published aggregated quote for a symbol.
func (s *CoreState) OracleQuotePut(quote *oracle.AggregatedQuote) error {
	if quote == nil {
		return fmt.Errorf("oracle quote: nil record")
	}
	if strings.TrimSpace(quote.Symbol) == "" {
		return fmt.Errorf("oracle quote: symbol must not be empty")
	}
	return s.KVPut(oracleQuoteKey(quote.Symbol), newStoredOracleQuote(quote))
}

// OracleQuoteGet loads the published aggregated quote for a symbol.
func (s *CoreState) OracleQuoteGet(symbol string) (*oracle.AggregatedQuote, bool) {
	var stored storedOracleQuote
	ok, err := s.KVGet(oracleQuoteKey(symbol), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toQuote(), true
}

// OracleHistoryAppend pushes a history point into the symbol's bounded ring.
// The capacity is fixed on the first append; later appends reuse it so slots
// written under the original layout stay addressable.
func (s *CoreState) OracleHistoryAppend(symbol string, point *oracle.PricePoint, capacity int) error {
	if point == nil {
		return fmt.Errorf("oracle history: nil point")
	}
	if capacity <= 0 {
		return fmt.Errorf("oracle history: capacity must be positive")
	}
	var head storedOracleHistoryHead
	ok, err := s.KVGet(oracleHistoryHeadKey(symbol), &head)
	if err != nil {
		return err
	}
	if !ok || head.Capacity == 0 {
		head.Capacity = uint64(capacity)
	}
	slot := head.Total % head.Capacity
	if err := s.KVPut(oracleHistorySlotKey(symbol, slot), newStoredOraclePoint(point)); err != nil {
		return err
	}
	head.Total++
	return s.KVPut(oracleHistoryHeadKey(symbol), head)
}

// OracleHistory returns up to limit retained history points for the symbol,
// newest first.
func (s *CoreState) OracleHistory(symbol string, limit int) ([]*oracle.PricePoint, error) {
	var head storedOracleHistoryHead
	ok, err := s.KVGet(oracleHistoryHeadKey(symbol), &head)
	if err != nil {
		return nil, err
	}
	if !ok || head.Total == 0 || head.Capacity == 0 {
		return []*oracle.PricePoint{}, nil
	}
	retained := head.Total
	if retained > head.Capacity {
		retained = head.Capacity
	}
	if limit > 0 && uint64(limit) < retained {
		retained = uint64(limit)
	}
	out := make([]*oracle.PricePoint, 0, retained)
	for i := uint64(0); i < retained; i++ {
		slot := (head.Total - 1 - i) % head.Capacity
		var stored storedOraclePoint
		ok, err := s.KVGet(oracleHistorySlotKey(symbol, slot), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("oracle history: missing slot %d for %s", slot, symbol)
		}
		out = append(out, stored.toPoint())
	}
	return out, nil
}

// OracleThresholdPut stores a per-symbol circuit breaker override in basis
// points.
func (s *CoreState) OracleThresholdPut(symbol string, bps uint32) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("oracle threshold: symbol must not be empty")
	}
	return s.KVPut(oracleThresholdKey(symbol), bps)
}

// OracleThresholdGet loads a per-symbol circuit breaker override.
func (s *CoreState) OracleThresholdGet(symbol string) (uint32, bool) {
	var bps uint32
	ok, err := s.KVGet(oracleThresholdKey(symbol), &bps)
	if err != nil || !ok {
		return 0, false
	}
	return bps, true
}
