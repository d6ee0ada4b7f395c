package oracle

import (
	"math/big"
	"strings"
)

const (
	// MinConfidence is the lowest confidence a sample may carry and still
	// be eligible for aggregation.
	MinConfidence uint32 = 50
	// MaxConfidence is the upper bound of the confidence scale.
	MaxConfidence uint32 = 100
	// MaxWeight is the upper bound of a source weight.
	MaxWeight uint32 = 100

	// DefaultMaxAge is the age in seconds past which a sample or quote is
	// stale.
	DefaultMaxAge int64 = 3600
	// DefaultMinSources is the minimum number of valid samples required to
	// publish an aggregated quote.
	DefaultMinSources = 3
	// DefaultMaxDeviationBps caps the dispersion of the valid samples.
	DefaultMaxDeviationBps uint32 = 1000
	// DefaultCircuitBreakerBps caps the jump of a new sample relative to
	// the previous aggregated price.
	DefaultCircuitBreakerBps uint32 = 500
	// DefaultMaxBatchSize bounds updatePrices work per call.
	DefaultMaxBatchSize = 50
	// DefaultHistoryCapacity bounds the per-symbol price history ring.
	DefaultHistoryCapacity = 1000

	maxSymbolLength = 64
	bpsDenominator  = 10_000
)

// SampleState describes the lifecycle of a (symbol, source) observation.
type SampleState uint8

const (
	SampleEmpty SampleState = iota
	SampleFresh
	SampleStale
	SampleSuspended
)

// String renders the state for logs and RPC responses.
func (s SampleState) String() string {
	switch s {
	case SampleEmpty:
		return "empty"
	case SampleFresh:
		return "fresh"
	case SampleStale:
		return "stale"
	case SampleSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// DataSource represents an authorized oracle account. Sources are created by
// the admin and may be deactivated but never deleted.
type DataSource struct {
	Address     [20]byte
	Name        string
	Weight      uint32
	Active      bool
	LastUpdate  int64
	Reliability uint32
}

// Clone returns a deep copy of the data source.
func (d *DataSource) Clone() *DataSource {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// PriceSample is the most recent observation of one source for one symbol.
type PriceSample struct {
	Symbol     string
	Source     [20]byte
	Price      *big.Int
	Timestamp  int64
	Confidence uint32
	Active     bool
}

// Clone returns a deep copy of the sample.
func (p *PriceSample) Clone() *PriceSample {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return &clone
}

// AggregatedQuote is the published per-symbol price with its quality metrics.
type AggregatedQuote struct {
	Symbol       string
	Price        *big.Int
	Timestamp    int64
	DeviationBps uint32
	SourceCount  uint32
}

// Clone returns a deep copy of the quote.
func (q *AggregatedQuote) Clone() *AggregatedQuote {
	if q == nil {
		return nil
	}
	clone := *q
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return &clone
}

// PricePoint is one history record pushed whenever a quote is published.
type PricePoint struct {
	Price        *big.Int
	Timestamp    int64
	DeviationBps uint32
	SourceCount  uint32
}

// Clone returns a deep copy of the history record.
func (p *PricePoint) Clone() *PricePoint {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return &clone
}

// LatestPrice is the read-side answer of getLatestPrice: the published price,
// its timestamp, and a confidence proxy derived from the deviation.
type LatestPrice struct {
	Symbol     string
	Price      *big.Int
	Timestamp  int64
	Confidence uint32
}

// Config tunes the aggregator. Zero values fall back to the defaults.
type Config struct {
	MaxAge            int64
	MinSources        int
	MaxDeviationBps   uint32
	CircuitBreakerBps uint32
	MaxBatchSize      int
	HistoryCapacity   int
}

// Normalise applies defaults to unset fields and returns the effective
// configuration.
func (c Config) Normalise() Config {
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.MinSources <= 0 {
		c.MinSources = DefaultMinSources
	}
	if c.MaxDeviationBps == 0 {
		c.MaxDeviationBps = DefaultMaxDeviationBps
	}
	if c.CircuitBreakerBps == 0 {
		c.CircuitBreakerBps = DefaultCircuitBreakerBps
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	return c
}

// NormalizeSymbol canonicalizes a price symbol to its uppercase form.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" || len(trimmed) > maxSymbolLength {
		return "", ErrInvalidSymbol
	}
	return trimmed, nil
}
