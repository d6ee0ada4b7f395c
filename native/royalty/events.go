package royalty

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"mrtcore/core/types"
)

const (
	EventTypeSplitRegistered = "royalty.split_registered"
	EventTypeSplitUpdated    = "royalty.split_updated"
	EventTypeDistributed     = "royalty.distributed"
)

// NewSplitRegisteredEvent returns the canonical payload for a new split.
func NewSplitRegisteredEvent(s *Split) *types.Event {
	return newSplitEvent(EventTypeSplitRegistered, s)
}

// NewSplitUpdatedEvent returns the canonical payload for a replaced or
// toggled split.
func NewSplitUpdatedEvent(s *Split) *types.Event {
	return newSplitEvent(EventTypeSplitUpdated, s)
}

func newSplitEvent(eventType string, s *Split) *types.Event {
	attrs := make(map[string]string)
	if s != nil {
		attrs["contentId"] = s.ContentID
		attrs["creator"] = hex.EncodeToString(s.Creator[:])
		attrs["beneficiaries"] = strconv.Itoa(len(s.Beneficiaries))
		attrs["active"] = strconv.FormatBool(s.Active)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewDistributedEvent returns the canonical payload for a distribution run,
// carrying the id and final status of the batch that fanned it out.
func NewDistributedEvent(contentID string, revenue *big.Int, token string, batchID uint64, status string) *types.Event {
	revenueStr := "0"
	if revenue != nil {
		revenueStr = revenue.String()
	}
	return &types.Event{Type: EventTypeDistributed, Attributes: map[string]string{
		"contentId": contentID,
		"revenue":   revenueStr,
		"token":     token,
		"batchId":   strconv.FormatUint(batchID, 10),
		"status":    status,
	}}
}
