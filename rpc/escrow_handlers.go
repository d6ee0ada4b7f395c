package rpc

import (
	"net/http"

	"mrtcore/native/escrow"
)

type escrowCreateParams struct {
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	AssetID      string `json:"assetId"`
	Amount       string `json:"amount"`
	Price        string `json:"price"`
	PaymentToken string `json:"paymentToken"`
	IsEscrow     bool   `json:"isEscrow"`
}

type escrowHashParams struct {
	Hash string `json:"hash"`
}

type tradeJSON struct {
	Hash           string `json:"hash"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	AssetID        string `json:"assetId"`
	Amount         string `json:"amount"`
	Price          string `json:"price"`
	Cost           string `json:"cost"`
	PaymentToken   string `json:"paymentToken"`
	SettlementTime int64  `json:"settlementTime"`
	IsEscrow       bool   `json:"isEscrow"`
	CreatedAt      int64  `json:"createdAt"`
}

func tradeToJSON(trade *escrow.EscrowedTrade) *tradeJSON {
	if trade == nil {
		return nil
	}
	return &tradeJSON{
		Hash:           formatHash32(trade.Hash),
		Buyer:          formatAddress(trade.Buyer),
		Seller:         formatAddress(trade.Seller),
		AssetID:        trade.AssetID,
		Amount:         formatAmount(trade.Amount),
		Price:          formatAmount(trade.Price),
		Cost:           trade.Cost().String(),
		PaymentToken:   trade.PaymentToken,
		SettlementTime: trade.SettlementTime,
		IsEscrow:       trade.IsEscrow,
		CreatedAt:      trade.CreatedAt,
	}
}

func (s *Server) handleEscrowCreateTrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseBech32Address(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	trade, err := s.node.EscrowCreateTrade(buyer, seller, params.AssetID, amount, price, params.PaymentToken, params.IsEscrow)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tradeToJSON(trade))
}

func (s *Server) handleEscrowSettleTrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowHashParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	hash, err := parseHash32(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	trade, err := s.node.EscrowSettleTrade(hash)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tradeToJSON(trade))
}

func (s *Server) handleEscrowGetTrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowHashParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	hash, err := parseHash32(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	trade, err := s.node.EscrowTrade(hash)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tradeToJSON(trade))
}
