package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mrtcore/core"
	"mrtcore/crypto"
	"mrtcore/native/oracle"
	"mrtcore/storage"
)

const testToken = "rpc-test-token"

var (
	testAdmin    = fillAddress(0xAD)
	testExecutor = fillAddress(0xEE)
	testLabel    = fillAddress(0x01)
	testArtist   = fillAddress(0x02)
	testProducer = fillAddress(0x03)
	testSeller   = fillAddress(0x05)
	testSourceA  = fillAddress(0x0A)
	testSourceB  = fillAddress(0x0B)
)

func fillAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(addr[:]).String()
}

func testGenesis() core.GenesisConfig {
	return core.GenesisConfig{
		Admins:    [][20]byte{testAdmin},
		Executors: [][20]byte{testExecutor},
		Tokens: []core.GenesisToken{
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		},
		Accounts: []core.GenesisAccount{
			{Address: testLabel, Token: "USDC", Amount: big.NewInt(1_000_000)},
		},
	}
}

func newTestEnv(t *testing.T) (*httptest.Server, *core.Node, *int64) {
	t.Helper()
	t.Setenv("MRTCORE_RPC_TOKEN", testToken)
	db := storage.NewMemDB()
	node, err := core.NewNode(db, testGenesis())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	t.Cleanup(node.Close)
	now := new(int64)
	*now = 1_000
	node.SetNowFunc(func() int64 { return *now })

	server := NewServer(node, nil, ServerConfig{})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, node, now
}

func rpcCall(t *testing.T, url, token, method string, params interface{}) (json.RawMessage, *RPCError, int) {
	t.Helper()
	var rawParams []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("rpc %s: %v", method, err)
	}
	defer resp.Body.Close()
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s response: %v", method, err)
	}
	return decoded.Result, decoded.Error, resp.StatusCode
}

func mustCall(t *testing.T, url, method string, params interface{}) json.RawMessage {
	t.Helper()
	result, rpcErr, _ := rpcCall(t, url, testToken, method, params)
	if rpcErr != nil {
		t.Fatalf("%s failed: code=%d message=%q data=%v", method, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return result
}

func decodeInto(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	ts, _, _ := newTestEnv(t)

	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("post empty body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", resp.StatusCode)
	}

	_, rpcErr, _ := rpcCall(t, ts.URL, "", "", nil)
	if rpcErr == nil || rpcErr.Code != codeInvalidRequest {
		t.Fatalf("missing method should fail with invalid request, got %+v", rpcErr)
	}

	resp, err = http.Post(ts.URL, "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post bad json: %v", err)
	}
	var parseResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&parseResp); err != nil {
		t.Fatalf("decode parse error response: %v", err)
	}
	resp.Body.Close()
	if parseResp.Error == nil || parseResp.Error.Code != codeParseError {
		t.Fatalf("bad json should map to parse error, got %+v", parseResp.Error)
	}

	_, rpcErr, status := rpcCall(t, ts.URL, "", "no_such_method", nil)
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound || status != http.StatusNotFound {
		t.Fatalf("unknown method should 404, got %+v status %d", rpcErr, status)
	}
}

func TestWriteMethodsRequireBearerToken(t *testing.T) {
	ts, _, _ := newTestEnv(t)

	params := royaltyRegisterParams{
		Caller:        bech(testLabel),
		ContentID:     "song-001",
		Beneficiaries: []string{bech(testArtist)},
		Bps:           []uint32{10_000},
	}

	_, rpcErr, status := rpcCall(t, ts.URL, "", "royalty_registerSplit", params)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized || status != http.StatusUnauthorized {
		t.Fatalf("missing token should be unauthorized, got %+v status %d", rpcErr, status)
	}

	_, rpcErr, _ = rpcCall(t, ts.URL, "wrong-token", "royalty_registerSplit", params)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("wrong token should be unauthorized, got %+v", rpcErr)
	}

	// Reads stay open.
	if _, rpcErr, _ = rpcCall(t, ts.URL, "", "core_listTokens", nil); rpcErr != nil {
		t.Fatalf("open read failed: %+v", rpcErr)
	}
}

func TestRoyaltyLifecycleOverRPC(t *testing.T) {
	ts, _, _ := newTestEnv(t)

	registered := mustCall(t, ts.URL, "royalty_registerSplit", royaltyRegisterParams{
		Caller:        bech(testLabel),
		ContentID:     "song-001",
		Beneficiaries: []string{bech(testArtist), bech(testProducer)},
		Bps:           []uint32{7_000, 3_000},
	})
	var split splitJSON
	decodeInto(t, registered, &split)
	if split.ContentID != "song-001" || split.Creator != bech(testLabel) || !split.Active {
		t.Fatalf("unexpected split: %+v", split)
	}

	fetched := mustCall(t, ts.URL, "royalty_getSplit", royaltyContentParams{ContentID: "song-001"})
	decodeInto(t, fetched, &split)
	if len(split.Beneficiaries) != 2 || split.Bps[0] != 7_000 {
		t.Fatalf("fetched split diverges: %+v", split)
	}

	distributed := mustCall(t, ts.URL, "royalty_distribute", royaltyDistributeParams{
		Caller:    bech(testLabel),
		ContentID: "song-001",
		Revenue:   "10000",
		Token:     "USDC",
	})
	var batch batchJSON
	decodeInto(t, distributed, &batch)
	if batch.Status != "completed" || batch.Kind != "royalty_distribution" {
		t.Fatalf("distribution batch not completed: %+v", batch)
	}

	var balance balanceResult
	decodeInto(t, mustCall(t, ts.URL, "core_getBalance", balanceParams{Address: bech(testArtist), Token: "USDC"}), &balance)
	if balance.Balance != "7000" {
		t.Fatalf("artist balance = %s, want 7000", balance.Balance)
	}
	decodeInto(t, mustCall(t, ts.URL, "core_getBalance", balanceParams{Address: bech(testLabel), Token: "USDC"}), &balance)
	if balance.Balance != "990000" {
		t.Fatalf("label balance = %s, want 990000", balance.Balance)
	}

	var content []string
	decodeInto(t, mustCall(t, ts.URL, "royalty_listContent", nil), &content)
	if len(content) != 1 || content[0] != "song-001" {
		t.Fatalf("content listing = %v", content)
	}
}

func TestSettlementFlowOverRPC(t *testing.T) {
	ts, _, now := newTestEnv(t)

	created := mustCall(t, ts.URL, "settlement_createBatch", settlementCreateParams{
		Caller:        bech(testLabel),
		Kind:          "royalty_distribution",
		Recipients:    []string{bech(testArtist)},
		Amounts:       []string{"2500"},
		Token:         "USDC",
		ExecutionTime: 1_500,
		Deadline:      2_500,
	})
	var batch batchJSON
	decodeInto(t, created, &batch)
	if batch.Status != "pending" {
		t.Fatalf("fresh batch status = %s", batch.Status)
	}

	var due []uint64
	decodeInto(t, mustCall(t, ts.URL, "settlement_listDue", nil), &due)
	if len(due) != 0 {
		t.Fatalf("batch due before its window: %v", due)
	}

	*now = 1_500
	decodeInto(t, mustCall(t, ts.URL, "settlement_listDue", nil), &due)
	if len(due) != 1 || due[0] != batch.ID {
		t.Fatalf("due listing = %v, want [%d]", due, batch.ID)
	}

	executed := mustCall(t, ts.URL, "settlement_execute", settlementBatchParams{
		Caller: bech(testExecutor),
		ID:     batch.ID,
	})
	decodeInto(t, executed, &batch)
	if batch.Status != "completed" {
		t.Fatalf("executed batch status = %s", batch.Status)
	}

	var balance balanceResult
	decodeInto(t, mustCall(t, ts.URL, "core_getBalance", balanceParams{Address: bech(testArtist), Token: "USDC"}), &balance)
	if balance.Balance != "2500" {
		t.Fatalf("recipient balance = %s, want 2500", balance.Balance)
	}

	_, rpcErr, status := rpcCall(t, ts.URL, "", "settlement_getBatch", settlementIDParams{ID: 999})
	if rpcErr == nil || rpcErr.Code != codeNotFound || status != http.StatusNotFound {
		t.Fatalf("missing batch should map to not_found, got %+v status %d", rpcErr, status)
	}
}

func TestEscrowConflictMapping(t *testing.T) {
	ts, _, now := newTestEnv(t)

	created := mustCall(t, ts.URL, "escrow_createTrade", escrowCreateParams{
		Buyer:        bech(testLabel),
		Seller:       bech(testSeller),
		AssetID:      "track-7",
		Amount:       "50",
		Price:        "20",
		PaymentToken: "USDC",
		IsEscrow:     true,
	})
	var trade tradeJSON
	decodeInto(t, created, &trade)
	if trade.Cost != "1000" {
		t.Fatalf("trade cost = %s, want 1000", trade.Cost)
	}

	_, rpcErr, status := rpcCall(t, ts.URL, testToken, "escrow_settleTrade", escrowHashParams{Hash: trade.Hash})
	if rpcErr == nil || rpcErr.Code != codeConflict || status != http.StatusConflict {
		t.Fatalf("early settle should map to conflict, got %+v status %d", rpcErr, status)
	}

	*now = trade.SettlementTime
	settled := mustCall(t, ts.URL, "escrow_settleTrade", escrowHashParams{Hash: trade.Hash})
	decodeInto(t, settled, &trade)

	var balance balanceResult
	decodeInto(t, mustCall(t, ts.URL, "core_getBalance", balanceParams{Address: bech(testSeller), Token: "USDC"}), &balance)
	if balance.Balance != "1000" {
		t.Fatalf("seller balance = %s, want 1000", balance.Balance)
	}
}

func TestOracleFlowOverRPC(t *testing.T) {
	ts, node, _ := newTestEnv(t)
	node.SetOracleConfig(oracle.Config{MinSources: 2})

	for _, source := range []struct {
		addr [20]byte
		name string
	}{
		{testSourceA, "feed-a"},
		{testSourceB, "feed-b"},
	} {
		mustCall(t, ts.URL, "oracle_authorizeOracle", oracleAuthorizeParams{
			Caller: bech(testAdmin),
			Source: bech(source.addr),
			Name:   source.name,
			Weight: 100,
		})
	}

	var sources []dataSourceJSON
	decodeInto(t, mustCall(t, ts.URL, "oracle_listSources", nil), &sources)
	if len(sources) != 2 {
		t.Fatalf("source listing = %+v", sources)
	}

	var update priceUpdateResult
	decodeInto(t, mustCall(t, ts.URL, "oracle_updatePrice", oracleUpdatePriceParams{
		Source:     bech(testSourceA),
		Symbol:     "MRT",
		Price:      "1000000",
		Confidence: 95,
	}), &update)
	if !update.Recorded || update.Aggregated {
		t.Fatalf("single sample should not aggregate: %+v", update)
	}

	decodeInto(t, mustCall(t, ts.URL, "oracle_updatePrice", oracleUpdatePriceParams{
		Source:     bech(testSourceB),
		Symbol:     "MRT",
		Price:      "1010000",
		Confidence: 90,
	}), &update)
	if !update.Aggregated || update.Quote == nil {
		t.Fatalf("second sample should aggregate: %+v", update)
	}

	var available map[string]bool
	decodeInto(t, mustCall(t, ts.URL, "oracle_isPriceAvailable", oracleSymbolParams{Symbol: "MRT"}), &available)
	if !available["available"] {
		t.Fatalf("price should be available after aggregation")
	}

	var latest latestPriceJSON
	decodeInto(t, mustCall(t, ts.URL, "oracle_getLatestPrice", oracleSymbolParams{Symbol: "MRT"}), &latest)
	if latest.Symbol != "MRT" || latest.Price == "0" {
		t.Fatalf("unexpected latest price: %+v", latest)
	}

	_, rpcErr, _ := rpcCall(t, ts.URL, "", "oracle_getLatestPrice", oracleSymbolParams{Symbol: "UNKNOWN"})
	if rpcErr == nil || rpcErr.Code != codePriceUnavailable {
		t.Fatalf("unknown symbol should map to price_unavailable, got %+v", rpcErr)
	}
}

func TestPausedModuleMapping(t *testing.T) {
	ts, _, _ := newTestEnv(t)

	mustCall(t, ts.URL, "admin_setPaused", adminPauseParams{
		Caller: bech(testAdmin),
		Module: "settlement",
		Paused: true,
	})

	_, rpcErr, status := rpcCall(t, ts.URL, testToken, "settlement_createBatch", settlementCreateParams{
		Caller:        bech(testLabel),
		Kind:          "royalty_distribution",
		Recipients:    []string{bech(testArtist)},
		Amounts:       []string{"10"},
		Token:         "USDC",
		ExecutionTime: 1_500,
		Deadline:      2_500,
	})
	if rpcErr == nil || rpcErr.Code != codeModulePaused || status != http.StatusServiceUnavailable {
		t.Fatalf("paused module should map to module_paused, got %+v status %d", rpcErr, status)
	}

	var pauses map[string]bool
	decodeInto(t, mustCall(t, ts.URL, "core_pauses", nil), &pauses)
	if !pauses["settlement"] {
		t.Fatalf("pause view should show settlement paused: %v", pauses)
	}
}

func TestAdminRejectsNonAdminCaller(t *testing.T) {
	ts, _, _ := newTestEnv(t)

	_, rpcErr, status := rpcCall(t, ts.URL, testToken, "admin_addSupportedToken", adminTokenParams{
		Caller:   bech(testLabel),
		Symbol:   "EURC",
		Name:     "Euro Coin",
		Decimals: 6,
	})
	if rpcErr == nil || rpcErr.Code != codeForbidden || status != http.StatusForbidden {
		t.Fatalf("non-admin caller should be forbidden, got %+v status %d", rpcErr, status)
	}
}

func TestRateLimiterBoundsWrites(t *testing.T) {
	server := NewServer(nil, nil, ServerConfig{WritesPerMinute: 3})
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !server.allowSource("198.51.100.1", now) {
			t.Fatalf("write %d should pass", i)
		}
	}
	if server.allowSource("198.51.100.1", now) {
		t.Fatalf("fourth write in the window should be limited")
	}
	if !server.allowSource("198.51.100.2", now) {
		t.Fatalf("distinct source should not share the budget")
	}
}

func TestClientSourcePrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	if source := clientSource(req); source != "10.0.0.5" {
		t.Fatalf("expected remote host, got %q", source)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.5")
	if source := clientSource(req); source != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", source)
	}
}
