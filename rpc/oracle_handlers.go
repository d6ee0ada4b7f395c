package rpc

import (
	"fmt"
	"math/big"
	"net/http"

	"mrtcore/native/oracle"
)

type oracleUpdatePriceParams struct {
	Source     string `json:"source"`
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	Confidence uint32 `json:"confidence"`
}

type oracleUpdatePricesParams struct {
	Source      string   `json:"source"`
	Symbols     []string `json:"symbols"`
	Prices      []string `json:"prices"`
	Confidences []uint32 `json:"confidences"`
}

type oracleSymbolParams struct {
	Symbol string `json:"symbol"`
}

type oracleHistoryParams struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit,omitempty"`
}

type oracleSymbolsParams struct {
	Symbols []string `json:"symbols"`
}

type oracleAuthorizeParams struct {
	Caller string `json:"caller"`
	Source string `json:"source"`
	Name   string `json:"name"`
	Weight uint32 `json:"weight"`
}

type oracleRevokeParams struct {
	Caller string `json:"caller"`
	Source string `json:"source"`
}

type oracleUpdateSourceParams struct {
	Caller string `json:"caller"`
	Source string `json:"source"`
	Name   string `json:"name"`
	Weight uint32 `json:"weight"`
	Active bool   `json:"active"`
}

type oracleSampleActiveParams struct {
	Caller string `json:"caller"`
	Symbol string `json:"symbol"`
	Source string `json:"source"`
	Active bool   `json:"active"`
}

type oracleCircuitBreakerParams struct {
	Caller       string `json:"caller"`
	Symbol       string `json:"symbol"`
	ThresholdBps uint32 `json:"thresholdBps"`
}

type dataSourceJSON struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Weight      uint32 `json:"weight"`
	Active      bool   `json:"active"`
	LastUpdate  int64  `json:"lastUpdate"`
	Reliability uint32 `json:"reliability"`
}

type quoteJSON struct {
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Timestamp    int64  `json:"timestamp"`
	DeviationBps uint32 `json:"deviationBps"`
	SourceCount  uint32 `json:"sourceCount"`
}

type latestPriceJSON struct {
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	Timestamp  int64  `json:"timestamp"`
	Confidence uint32 `json:"confidence"`
}

type pricePointJSON struct {
	Price        string `json:"price"`
	Timestamp    int64  `json:"timestamp"`
	DeviationBps uint32 `json:"deviationBps"`
	SourceCount  uint32 `json:"sourceCount"`
}

type sampleJSON struct {
	Symbol     string `json:"symbol"`
	Source     string `json:"source"`
	Price      string `json:"price"`
	Timestamp  int64  `json:"timestamp"`
	Confidence uint32 `json:"confidence"`
	Active     bool   `json:"active"`
}

// priceUpdateResult distinguishes a sample that refreshed the aggregate from
// one that was recorded while aggregation was skipped.
type priceUpdateResult struct {
	Recorded   bool       `json:"recorded"`
	Aggregated bool       `json:"aggregated"`
	Quote      *quoteJSON `json:"quote,omitempty"`
}

func dataSourceToJSON(source *oracle.DataSource) *dataSourceJSON {
	if source == nil {
		return nil
	}
	return &dataSourceJSON{
		Address:     formatAddress(source.Address),
		Name:        source.Name,
		Weight:      source.Weight,
		Active:      source.Active,
		LastUpdate:  source.LastUpdate,
		Reliability: source.Reliability,
	}
}

func quoteToJSON(quote *oracle.AggregatedQuote) *quoteJSON {
	if quote == nil {
		return nil
	}
	return &quoteJSON{
		Symbol:       quote.Symbol,
		Price:        formatAmount(quote.Price),
		Timestamp:    quote.Timestamp,
		DeviationBps: quote.DeviationBps,
		SourceCount:  quote.SourceCount,
	}
}

func latestPriceToJSON(latest *oracle.LatestPrice) *latestPriceJSON {
	if latest == nil {
		return nil
	}
	return &latestPriceJSON{
		Symbol:     latest.Symbol,
		Price:      formatAmount(latest.Price),
		Timestamp:  latest.Timestamp,
		Confidence: latest.Confidence,
	}
}

func priceUpdateResultFrom(quote *oracle.AggregatedQuote) priceUpdateResult {
	result := priceUpdateResult{Recorded: true}
	if quote != nil {
		result.Aggregated = true
		result.Quote = quoteToJSON(quote)
	}
	return result
}

func parsePriceList(raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(raw))
	for i, value := range raw {
		parsed, err := parsePositiveBigInt(value)
		if err != nil {
			return nil, fmt.Errorf("price %d: %w", i, err)
		}
		out[i] = parsed
	}
	return out, nil
}

func (s *Server) handleOracleUpdatePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUpdatePriceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	source, err := parseBech32Address(params.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	quote, err := s.node.OracleUpdatePrice(source, params.Symbol, price, params.Confidence)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, priceUpdateResultFrom(quote))
}

func (s *Server) handleOracleUpdatePrices(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUpdatePricesParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	source, err := parseBech32Address(params.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	values, err := parsePriceList(params.Prices)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	quotes, err := s.node.OracleUpdatePrices(source, params.Symbols, values, params.Confidences)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	results := make([]priceUpdateResult, len(quotes))
	for i, quote := range quotes {
		results[i] = priceUpdateResultFrom(quote)
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleOracleGetLatestPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleSymbolParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	latest, err := s.node.OracleLatestPrice(params.Symbol)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, latestPriceToJSON(latest))
}

func (s *Server) handleOracleGetPriceHistory(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleHistoryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	points, err := s.node.OraclePriceHistory(params.Symbol, params.Limit)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]*pricePointJSON, len(points))
	for i, point := range points {
		if point == nil {
			continue
		}
		out[i] = &pricePointJSON{
			Price:        formatAmount(point.Price),
			Timestamp:    point.Timestamp,
			DeviationBps: point.DeviationBps,
			SourceCount:  point.SourceCount,
		}
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleOracleGetMultiplePrices(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleSymbolsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	latest, err := s.node.OracleMultiplePrices(params.Symbols)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]*latestPriceJSON, len(latest))
	for i := range latest {
		out[i] = latestPriceToJSON(latest[i])
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleOracleIsPriceAvailable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleSymbolParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	available := s.node.OraclePriceAvailable(params.Symbol)
	writeResult(w, req.ID, map[string]bool{"available": available})
}

func (s *Server) handleOracleAuthorize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleAuthorizeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	source, err := parseBech32Address(params.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	created, err := s.node.OracleAuthorize(caller, source, params.Name, params.Weight)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, dataSourceToJSON(created))
}

func (s *Server) handleOracleRevoke(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleRevokeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	source, err := parseBech32Address(params.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	revoked, err := s.node.OracleRevoke(caller, source)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, dataSourceToJSON(revoked))
}

func (s *Server) handleOracleUpdateDataSource(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUpdateSourceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	source, err := parseBech32Address(params.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	updated, err := s.node.OracleUpdateDataSource(caller, source, params.Name, params.Weight, params.Active)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, dataSourceToJSON(updated))
}

func (s *Server) handleOracleSetSampleActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleSampleActiveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	source, err := parseBech32Address(params.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sample, err := s.node.OracleSetSampleActive(caller, params.Symbol, source, params.Active)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	result := &sampleJSON{
		Symbol:     sample.Symbol,
		Source:     formatAddress(sample.Source),
		Price:      formatAmount(sample.Price),
		Timestamp:  sample.Timestamp,
		Confidence: sample.Confidence,
		Active:     sample.Active,
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleOracleSetCircuitBreaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleCircuitBreakerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.OracleSetCircuitBreaker(caller, params.Symbol, params.ThresholdBps); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"symbol":       params.Symbol,
		"thresholdBps": params.ThresholdBps,
	})
}

func (s *Server) handleOracleListSources(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	sources, err := s.node.OracleListSources()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]*dataSourceJSON, len(sources))
	for i, source := range sources {
		out[i] = dataSourceToJSON(source)
	}
	writeResult(w, req.ID, out)
}
