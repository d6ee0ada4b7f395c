package rpc

import (
	"net/http"

	"mrtcore/native/settlement"
)

type settlementCreateParams struct {
	Caller            string   `json:"caller"`
	Kind              string   `json:"kind"`
	Recipients        []string `json:"recipients"`
	Amounts           []string `json:"amounts"`
	Token             string   `json:"token"`
	ExecutionTime     int64    `json:"executionTime"`
	Deadline          int64    `json:"deadline"`
	Metadata          string   `json:"metadata,omitempty"`
	IsRecurring       bool     `json:"isRecurring,omitempty"`
	RecurringInterval int64    `json:"recurringInterval,omitempty"`
}

type settlementBatchParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type settlementIDParams struct {
	ID uint64 `json:"id"`
}

type batchJSON struct {
	ID                uint64   `json:"id"`
	Kind              string   `json:"kind"`
	Initiator         string   `json:"initiator"`
	Token             string   `json:"token"`
	Recipients        []string `json:"recipients"`
	Amounts           []string `json:"amounts"`
	TotalAmount       string   `json:"totalAmount"`
	ExecutionTime     int64    `json:"executionTime"`
	Deadline          int64    `json:"deadline"`
	Status            string   `json:"status"`
	DataHash          string   `json:"dataHash"`
	Metadata          string   `json:"metadata,omitempty"`
	IsRecurring       bool     `json:"isRecurring,omitempty"`
	RecurringInterval int64    `json:"recurringInterval,omitempty"`
	NextExecution     int64    `json:"nextExecution,omitempty"`
	ParentID          uint64   `json:"parentId,omitempty"`
	CreatedAt         int64    `json:"createdAt"`
	ExecutedAt        int64    `json:"executedAt,omitempty"`
}

func batchToJSON(batch *settlement.PayoutBatch) *batchJSON {
	if batch == nil {
		return nil
	}
	amounts := make([]string, len(batch.Amounts))
	for i, amount := range batch.Amounts {
		amounts[i] = formatAmount(amount)
	}
	return &batchJSON{
		ID:                batch.ID,
		Kind:              batch.Kind.String(),
		Initiator:         formatAddress(batch.Initiator),
		Token:             batch.Token,
		Recipients:        formatAddresses(batch.Recipients),
		Amounts:           amounts,
		TotalAmount:       formatAmount(batch.TotalAmount),
		ExecutionTime:     batch.ExecutionTime,
		Deadline:          batch.Deadline,
		Status:            batch.Status.String(),
		DataHash:          formatHash32(batch.DataHash),
		Metadata:          batch.Metadata,
		IsRecurring:       batch.IsRecurring,
		RecurringInterval: batch.RecurringInterval,
		NextExecution:     batch.NextExecution,
		ParentID:          batch.ParentID,
		CreatedAt:         batch.CreatedAt,
		ExecutedAt:        batch.ExecutedAt,
	}
}

func (s *Server) handleSettlementCreateBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params settlementCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	kind, err := settlement.ParseBatchKind(params.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	recipients := make([][20]byte, len(params.Recipients))
	for i, raw := range params.Recipients {
		addr, parseErr := parseBech32Address(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", parseErr.Error())
			return
		}
		recipients[i] = addr
	}
	amounts, err := parsePriceList(params.Amounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	batch, err := s.node.SettlementCreateBatch(
		caller, kind, recipients, amounts, params.Token,
		params.ExecutionTime, params.Deadline, params.Metadata,
		params.IsRecurring, params.RecurringInterval,
	)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, batchToJSON(batch))
}

func (s *Server) handleSettlementExecute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params settlementBatchParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	batch, err := s.node.SettlementExecute(caller, params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, batchToJSON(batch))
}

func (s *Server) handleSettlementCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params settlementBatchParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	batch, err := s.node.SettlementCancel(caller, params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, batchToJSON(batch))
}

func (s *Server) handleSettlementGetBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params settlementIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	batch, err := s.node.SettlementBatch(params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, batchToJSON(batch))
}

func (s *Server) handleSettlementListPending(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	batches, err := s.node.SettlementListPending()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]*batchJSON, len(batches))
	for i, batch := range batches {
		out[i] = batchToJSON(batch)
	}
	writeResult(w, req.ID, out)
}

// handleSettlementListDue returns the ids of pending batches inside their
// execution window, the keeper's work discovery call.
func (s *Server) handleSettlementListDue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	batches, err := s.node.SettlementListDue()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	ids := make([]uint64, len(batches))
	for i, batch := range batches {
		ids[i] = batch.ID
	}
	writeResult(w, req.ID, ids)
}
