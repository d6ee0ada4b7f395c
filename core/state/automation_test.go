package state

import (
	"bytes"
	"testing"

	"mrtcore/native/automation"
)

func TestAutomationRuleRoundTrip(t *testing.T) {
	st := newTestState(t)
	rule := &automation.Rule{
		ID:             1,
		Creator:        testAddr(0x01),
		TriggerKind:    automation.TriggerPriceThreshold,
		Condition:      []byte(`{"symbol":"SONG-001"}`),
		ExecutionData:  []byte{0x01, 0x02},
		GasBudget:      200_000,
		Active:         true,
		LastExecution:  1700000000,
		ExecutionCount: 3,
		CreatedAt:      1699990000,
	}
	if err := st.RulePut(rule); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := st.RuleGet(1)
	if !ok {
		t.Fatalf("rule not found")
	}
	if loaded.Creator != rule.Creator || loaded.TriggerKind != automation.TriggerPriceThreshold {
		t.Fatalf("unexpected rule: %+v", loaded)
	}
	if !bytes.Equal(loaded.Condition, rule.Condition) || !bytes.Equal(loaded.ExecutionData, rule.ExecutionData) {
		t.Fatalf("expected blobs preserved")
	}
	if loaded.GasBudget != 200_000 || !loaded.Active {
		t.Fatalf("unexpected rule detail: %+v", loaded)
	}
	if loaded.LastExecution != 1700000000 || loaded.ExecutionCount != 3 || loaded.CreatedAt != 1699990000 {
		t.Fatalf("unexpected execution record: %+v", loaded)
	}
}

func TestAutomationRuleValidationAndIndex(t *testing.T) {
	st := newTestState(t)
	if err := st.RulePut(nil); err == nil {
		t.Fatalf("expected error for nil rule")
	}
	if err := st.RulePut(&automation.Rule{}); err == nil {
		t.Fatalf("expected error for zero id")
	}
	if _, ok := st.RuleGet(7); ok {
		t.Fatalf("expected miss for unknown id")
	}

	for i := uint64(1); i <= 3; i++ {
		id, err := st.RuleNextID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if id != i {
			t.Fatalf("expected sequential id %d, got %d", i, id)
		}
		if err := st.RulePut(&automation.Rule{ID: id, Active: true}); err != nil {
			t.Fatalf("put %d: %v", id, err)
		}
	}
	// Updating a rule must not duplicate its index entry.
	if err := st.RulePut(&automation.Rule{ID: 2, Active: false}); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	ids, err := st.RuleList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected index: %v", ids)
	}
}
