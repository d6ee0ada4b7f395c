package rpc

import (
	"net/http"

	"mrtcore/native/automation"
)

type automationCreateParams struct {
	Creator       string `json:"creator"`
	Trigger       string `json:"trigger"`
	Condition     string `json:"condition,omitempty"`
	ExecutionData string `json:"executionData,omitempty"`
	GasBudget     uint64 `json:"gasBudget"`
}

type automationListParams struct {
	ActiveOnly bool `json:"activeOnly,omitempty"`
}

type automationRuleParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type automationIDParams struct {
	ID uint64 `json:"id"`
}

type ruleJSON struct {
	ID             uint64 `json:"id"`
	Creator        string `json:"creator"`
	Trigger        string `json:"trigger"`
	Condition      string `json:"condition,omitempty"`
	ExecutionData  string `json:"executionData,omitempty"`
	GasBudget      uint64 `json:"gasBudget"`
	Active         bool   `json:"active"`
	LastExecution  int64  `json:"lastExecution,omitempty"`
	ExecutionCount uint64 `json:"executionCount"`
	CreatedAt      int64  `json:"createdAt"`
}

func ruleToJSON(rule *automation.Rule) *ruleJSON {
	if rule == nil {
		return nil
	}
	return &ruleJSON{
		ID:             rule.ID,
		Creator:        formatAddress(rule.Creator),
		Trigger:        rule.TriggerKind.String(),
		Condition:      formatBlob(rule.Condition),
		ExecutionData:  formatBlob(rule.ExecutionData),
		GasBudget:      rule.GasBudget,
		Active:         rule.Active,
		LastExecution:  rule.LastExecution,
		ExecutionCount: rule.ExecutionCount,
		CreatedAt:      rule.CreatedAt,
	}
}

func (s *Server) handleAutomationCreateRule(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params automationCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	creator, err := parseBech32Address(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	kind, err := automation.ParseTriggerKind(params.Trigger)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	condition, err := parseHexBlob(params.Condition)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	executionData, err := parseHexBlob(params.ExecutionData)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rule, err := s.node.AutomationCreateRule(creator, kind, condition, executionData, params.GasBudget)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ruleToJSON(rule))
}

func (s *Server) handleAutomationListRules(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := automationListParams{ActiveOnly: true}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	rules, err := s.node.AutomationListRules(params.ActiveOnly)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]*ruleJSON, len(rules))
	for i, rule := range rules {
		out[i] = ruleToJSON(rule)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAutomationGetRule(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params automationIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rule, err := s.node.AutomationRule(params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ruleToJSON(rule))
}

func (s *Server) handleAutomationDeactivateRule(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params automationRuleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rule, err := s.node.AutomationSetRuleActive(caller, params.ID, false)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ruleToJSON(rule))
}

// handleAutomationMarkExecuted records a keeper-driven execution against a
// rule. The caller must hold the executor role.
func (s *Server) handleAutomationMarkExecuted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params automationRuleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rule, err := s.node.AutomationMarkExecuted(caller, params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ruleToJSON(rule))
}
