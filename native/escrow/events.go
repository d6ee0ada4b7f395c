package escrow

import (
	"encoding/hex"
	"strconv"

	"mrtcore/core/types"
)

const (
	EventTypeTradeCreated = "escrow.trade_created"
	EventTypeTradeSettled = "escrow.trade_settled"
)

// NewTradeCreatedEvent returns the canonical payload for a stored trade.
func NewTradeCreatedEvent(t *EscrowedTrade) *types.Event {
	attrs := make(map[string]string)
	if t != nil {
		attrs["tradeHash"] = hex.EncodeToString(t.Hash[:])
		attrs["buyer"] = hex.EncodeToString(t.Buyer[:])
		attrs["seller"] = hex.EncodeToString(t.Seller[:])
		attrs["asset"] = t.AssetID
		attrs["cost"] = t.Cost().String()
		attrs["paymentToken"] = t.PaymentToken
		attrs["escrowed"] = strconv.FormatBool(t.IsEscrow)
		attrs["settlementTime"] = strconv.FormatInt(t.SettlementTime, 10)
	}
	return &types.Event{Type: EventTypeTradeCreated, Attributes: attrs}
}

// NewTradeSettledEvent returns the canonical payload for a released trade.
func NewTradeSettledEvent(t *EscrowedTrade) *types.Event {
	attrs := make(map[string]string)
	if t != nil {
		attrs["tradeHash"] = hex.EncodeToString(t.Hash[:])
		attrs["seller"] = hex.EncodeToString(t.Seller[:])
		attrs["cost"] = t.Cost().String()
		attrs["paymentToken"] = t.PaymentToken
		attrs["escrowed"] = strconv.FormatBool(t.IsEscrow)
	}
	return &types.Event{Type: EventTypeTradeSettled, Attributes: attrs}
}
