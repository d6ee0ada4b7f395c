package settlement

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"mrtcore/core/types"
)

const (
	EventTypeTaskCreated   = "settlement.task_created"
	EventTypeTaskExecuted  = "settlement.executed"
	EventTypeTaskCancelled = "settlement.cancelled"
)

// NewTaskCreatedEvent returns the canonical payload for a stored batch.
func NewTaskCreatedEvent(b *PayoutBatch) *types.Event {
	attrs := make(map[string]string)
	if b != nil {
		attrs["batchId"] = strconv.FormatUint(b.ID, 10)
		attrs["kind"] = b.Kind.String()
		attrs["initiator"] = hex.EncodeToString(b.Initiator[:])
		attrs["token"] = b.Token
		attrs["totalAmount"] = bigString(b.TotalAmount)
		attrs["recipients"] = strconv.Itoa(len(b.Recipients))
		attrs["executionTime"] = strconv.FormatInt(b.ExecutionTime, 10)
		attrs["deadline"] = strconv.FormatInt(b.Deadline, 10)
		if b.IsRecurring {
			attrs["recurringInterval"] = strconv.FormatInt(b.RecurringInterval, 10)
		}
		if b.ParentID != 0 {
			attrs["parentId"] = strconv.FormatUint(b.ParentID, 10)
		}
	}
	return &types.Event{Type: EventTypeTaskCreated, Attributes: attrs}
}

// NewTaskExecutedEvent returns the canonical payload for a finished
// execution attempt, successful or locally recovered.
func NewTaskExecutedEvent(b *PayoutBatch) *types.Event {
	attrs := make(map[string]string)
	if b != nil {
		attrs["batchId"] = strconv.FormatUint(b.ID, 10)
		attrs["kind"] = b.Kind.String()
		attrs["status"] = b.Status.String()
		attrs["token"] = b.Token
		attrs["totalAmount"] = bigString(b.TotalAmount)
		attrs["executedAt"] = strconv.FormatInt(b.ExecutedAt, 10)
	}
	return &types.Event{Type: EventTypeTaskExecuted, Attributes: attrs}
}

// NewTaskCancelledEvent returns the canonical payload for a cancelled batch.
// Forced cancellations by the admin are flagged.
func NewTaskCancelledEvent(b *PayoutBatch, forced bool) *types.Event {
	attrs := make(map[string]string)
	if b != nil {
		attrs["batchId"] = strconv.FormatUint(b.ID, 10)
		attrs["token"] = b.Token
		attrs["refund"] = bigString(b.TotalAmount)
	}
	if forced {
		attrs["forced"] = "true"
	}
	return &types.Event{Type: EventTypeTaskCancelled, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
