package rpc

import (
	"net/http"

	"mrtcore/core"
)

type balanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type accountParams struct {
	Address string `json:"address"`
}

type custodyParams struct {
	Token string `json:"token"`
}

type eventsParams struct {
	After uint64 `json:"after,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type balanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type tokenJSON struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type eventsResult struct {
	Events         []*core.StoredEvent `json:"events"`
	LatestSequence uint64              `json:"latestSequence"`
}

func (s *Server) handleCoreGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.Balance(addr, params.Token)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address: params.Address,
		Token:   params.Token,
		Balance: formatAmount(balance),
	})
}

func (s *Server) handleCoreGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.Account(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, account)
}

func (s *Server) handleCoreListTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	tokens, err := s.node.Tokens()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]tokenJSON, 0, len(tokens))
	for _, token := range tokens {
		if token == nil {
			continue
		}
		out = append(out, tokenJSON{Symbol: token.Symbol, Name: token.Name, Decimals: token.Decimals})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleCoreCustody(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params custodyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	breakdown, err := s.node.Custody(params.Token)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, breakdown)
}

// handleCoreGetEvents pages the retained event log. The after cursor is the
// last sequence the caller already holds; zero starts from the oldest
// retained event.
func (s *Server) handleCoreGetEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params eventsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	events := s.node.EventsSince(params.After, params.Limit)
	writeResult(w, req.ID, eventsResult{
		Events:         events,
		LatestSequence: s.node.LatestEventSequence(),
	})
}

func (s *Server) handleCorePauses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Pauses())
}
