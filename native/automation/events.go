package automation

import (
	"encoding/hex"
	"strconv"

	"mrtcore/core/types"
)

const (
	EventTypeRuleCreated  = "automation.rule_created"
	EventTypeRuleUpdated  = "automation.rule_updated"
	EventTypeRuleExecuted = "automation.rule_executed"
)

// NewRuleCreatedEvent returns the canonical payload for a stored rule.
func NewRuleCreatedEvent(r *Rule) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["ruleId"] = strconv.FormatUint(r.ID, 10)
		attrs["creator"] = hex.EncodeToString(r.Creator[:])
		attrs["trigger"] = r.TriggerKind.String()
		attrs["gasBudget"] = strconv.FormatUint(r.GasBudget, 10)
	}
	return &types.Event{Type: EventTypeRuleCreated, Attributes: attrs}
}

// NewRuleUpdatedEvent returns the canonical payload for a toggled rule.
func NewRuleUpdatedEvent(r *Rule) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["ruleId"] = strconv.FormatUint(r.ID, 10)
		attrs["active"] = strconv.FormatBool(r.Active)
	}
	return &types.Event{Type: EventTypeRuleUpdated, Attributes: attrs}
}

// NewRuleExecutedEvent returns the canonical payload for a recorded keeper
// execution.
func NewRuleExecutedEvent(r *Rule) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["ruleId"] = strconv.FormatUint(r.ID, 10)
		attrs["executionCount"] = strconv.FormatUint(r.ExecutionCount, 10)
		attrs["lastExecution"] = strconv.FormatInt(r.LastExecution, 10)
	}
	return &types.Event{Type: EventTypeRuleExecuted, Attributes: attrs}
}
