package state

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"

	"mrtcore/native/automation"
)

const automationRuleSequence = "automation/rule"

func automationRuleKey(id uint64) []byte {
	return strconv.AppendUint([]byte("automation/rule/"), id, 10)
}

func automationRuleIndexKey() []byte {
	return []byte("automation/rule-index")
}

type storedAutomationRule struct {
	ID             uint64
	Creator        [20]byte
	TriggerKind    uint8
	Condition      []byte
	ExecutionData  []byte
	GasBudget      uint64
	Active         bool
	LastExecution  *big.Int
	ExecutionCount uint64
	CreatedAt      *big.Int
}

func newStoredAutomationRule(rule *automation.Rule) storedAutomationRule {
	return storedAutomationRule{
		ID:             rule.ID,
		Creator:        rule.Creator,
		TriggerKind:    uint8(rule.TriggerKind),
		Condition:      append([]byte(nil), rule.Condition...),
		ExecutionData:  append([]byte(nil), rule.ExecutionData...),
		GasBudget:      rule.GasBudget,
		Active:         rule.Active,
		LastExecution:  big.NewInt(rule.LastExecution),
		ExecutionCount: rule.ExecutionCount,
		CreatedAt:      big.NewInt(rule.CreatedAt),
	}
}

func (s storedAutomationRule) toRule() *automation.Rule {
	rule := &automation.Rule{
		ID:             s.ID,
		Creator:        s.Creator,
		TriggerKind:    automation.TriggerKind(s.TriggerKind),
		Condition:      append([]byte(nil), s.Condition...),
		ExecutionData:  append([]byte(nil), s.ExecutionData...),
		GasBudget:      s.GasBudget,
		Active:         s.Active,
		ExecutionCount: s.ExecutionCount,
	}
	if s.LastExecution != nil {
		rule.LastExecution = s.LastExecution.Int64()
	}
	if s.CreatedAt != nil {
		rule.CreatedAt = s.CreatedAt.Int64()
	}
	return rule
}

// RulePut validates and persists an automation rule, keeping the id index
// current.
func (s *CoreState) RulePut(rule *automation.Rule) error {
	if rule == nil {
		return fmt.Errorf("automation rule: nil record")
	}
	if rule.ID == 0 {
		return fmt.Errorf("automation rule: id must be set")
	}
	if err := s.KVPut(automationRuleKey(rule.ID), newStoredAutomationRule(rule)); err != nil {
		return err
	}
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], rule.ID)
	return s.KVAppend(automationRuleIndexKey(), encoded[:])
}

// RuleGet loads an automation rule by id.
func (s *CoreState) RuleGet(id uint64) (*automation.Rule, bool) {
	var stored storedAutomationRule
	ok, err := s.KVGet(automationRuleKey(id), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toRule(), true
}

// RuleNextID allocates the next monotonic rule id. Ids are never reused.
func (s *CoreState) RuleNextID() (uint64, error) {
	return s.NextSequence(automationRuleSequence)
}

// RuleList returns every rule id ever created, in creation order.
func (s *CoreState) RuleList() ([]uint64, error) {
	var raw [][]byte
	if err := s.KVGetList(automationRuleIndexKey(), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("automation rule index: malformed id")
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	return ids, nil
}
