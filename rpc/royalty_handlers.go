package rpc

import (
	"net/http"

	"mrtcore/native/royalty"
)

type royaltyRegisterParams struct {
	Caller        string   `json:"caller"`
	ContentID     string   `json:"contentId"`
	Beneficiaries []string `json:"beneficiaries"`
	Bps           []uint32 `json:"bps"`
}

type royaltyActiveParams struct {
	Caller    string `json:"caller"`
	ContentID string `json:"contentId"`
	Active    bool   `json:"active"`
}

type royaltyDistributeParams struct {
	Caller    string `json:"caller"`
	ContentID string `json:"contentId"`
	Revenue   string `json:"revenue"`
	Token     string `json:"token"`
}

type royaltyContentParams struct {
	ContentID string `json:"contentId"`
}

type splitJSON struct {
	ContentID        string   `json:"contentId"`
	Creator          string   `json:"creator"`
	Beneficiaries    []string `json:"beneficiaries"`
	Bps              []uint32 `json:"bps"`
	Active           bool     `json:"active"`
	CreatedAt        int64    `json:"createdAt"`
	UpdatedAt        int64    `json:"updatedAt"`
	TotalRevenue     string   `json:"totalRevenue"`
	TotalDistributed string   `json:"totalDistributed"`
	Distributions    uint64   `json:"distributions"`
}

func splitToJSON(split *royalty.Split) *splitJSON {
	if split == nil {
		return nil
	}
	return &splitJSON{
		ContentID:        split.ContentID,
		Creator:          formatAddress(split.Creator),
		Beneficiaries:    formatAddresses(split.Beneficiaries),
		Bps:              append([]uint32(nil), split.Bps...),
		Active:           split.Active,
		CreatedAt:        split.CreatedAt,
		UpdatedAt:        split.UpdatedAt,
		TotalRevenue:     formatAmount(split.TotalRevenue),
		TotalDistributed: formatAmount(split.TotalDistributed),
		Distributions:    split.Distributions,
	}
}

func (s *Server) handleRoyaltyRegisterSplit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyRegisterParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	beneficiaries := make([][20]byte, len(params.Beneficiaries))
	for i, raw := range params.Beneficiaries {
		addr, parseErr := parseBech32Address(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", parseErr.Error())
			return
		}
		beneficiaries[i] = addr
	}
	split, err := s.node.RoyaltyRegisterSplit(caller, params.ContentID, beneficiaries, params.Bps)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, splitToJSON(split))
}

func (s *Server) handleRoyaltySetSplitActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyActiveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	split, err := s.node.RoyaltySetSplitActive(caller, params.ContentID, params.Active)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, splitToJSON(split))
}

// handleRoyaltyDistribute resolves the split, runs the payout and returns
// the completed batch.
func (s *Server) handleRoyaltyDistribute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyDistributeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	revenue, err := parsePositiveBigInt(params.Revenue)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	batch, err := s.node.RoyaltyDistribute(caller, params.ContentID, revenue, params.Token)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, batchToJSON(batch))
}

func (s *Server) handleRoyaltyGetSplit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyContentParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	split, err := s.node.RoyaltySplit(params.ContentID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, splitToJSON(split))
}

func (s *Server) handleRoyaltyListContent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	content, err := s.node.RoyaltyListContent()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, content)
}
