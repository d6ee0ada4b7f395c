package oracle

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"mrtcore/core/types"
)

const (
	EventTypePriceUpdated       = "oracle.price_updated"
	EventTypeAggregatedPrice    = "oracle.aggregated_price_updated"
	EventTypeAggregationSkipped = "oracle.aggregation_skipped"
	EventTypeOracleAuthorized   = "oracle.authorized"
	EventTypeOracleRevoked      = "oracle.revoked"
	EventTypeSourceUpdated      = "oracle.source_updated"
)

// Reasons carried by aggregation skip events.
const (
	SkipReasonInsufficientSources = "insufficient_sources"
	SkipReasonDeviationTooHigh    = "deviation_too_high"
)

// NewPriceUpdatedEvent returns the canonical payload for an accepted sample.
func NewPriceUpdatedEvent(s *PriceSample) *types.Event {
	attrs := make(map[string]string)
	if s != nil {
		attrs["symbol"] = s.Symbol
		attrs["source"] = hex.EncodeToString(s.Source[:])
		attrs["price"] = bigString(s.Price)
		attrs["confidence"] = strconv.FormatUint(uint64(s.Confidence), 10)
		attrs["timestamp"] = strconv.FormatInt(s.Timestamp, 10)
	}
	return &types.Event{Type: EventTypePriceUpdated, Attributes: attrs}
}

// NewAggregatedPriceEvent returns the canonical payload for a published quote.
func NewAggregatedPriceEvent(q *AggregatedQuote) *types.Event {
	attrs := make(map[string]string)
	if q != nil {
		attrs["symbol"] = q.Symbol
		attrs["price"] = bigString(q.Price)
		attrs["deviationBps"] = strconv.FormatUint(uint64(q.DeviationBps), 10)
		attrs["sourceCount"] = strconv.FormatUint(uint64(q.SourceCount), 10)
		attrs["timestamp"] = strconv.FormatInt(q.Timestamp, 10)
	}
	return &types.Event{Type: EventTypeAggregatedPrice, Attributes: attrs}
}

// NewAggregationSkippedEvent reports that a sample was accepted but no quote
// could be published.
func NewAggregationSkippedEvent(symbol, reason string) *types.Event {
	return &types.Event{Type: EventTypeAggregationSkipped, Attributes: map[string]string{
		"symbol": symbol,
		"reason": reason,
	}}
}

// NewAuthorizedEvent returns the canonical payload for a newly authorized
// source.
func NewAuthorizedEvent(d *DataSource) *types.Event {
	return newSourceEvent(EventTypeOracleAuthorized, d)
}

// NewRevokedEvent returns the canonical payload emitted when a source is
// deactivated.
func NewRevokedEvent(d *DataSource) *types.Event {
	return newSourceEvent(EventTypeOracleRevoked, d)
}

// NewSourceUpdatedEvent returns the canonical payload for an admin update of
// a source.
func NewSourceUpdatedEvent(d *DataSource) *types.Event {
	return newSourceEvent(EventTypeSourceUpdated, d)
}

func newSourceEvent(eventType string, d *DataSource) *types.Event {
	attrs := make(map[string]string)
	if d != nil {
		attrs["source"] = hex.EncodeToString(d.Address[:])
		attrs["name"] = d.Name
		attrs["weight"] = strconv.FormatUint(uint64(d.Weight), 10)
		attrs["active"] = strconv.FormatBool(d.Active)
		attrs["reliability"] = strconv.FormatUint(uint64(d.Reliability), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
