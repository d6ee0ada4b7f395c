package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mrtcore/core"
	"mrtcore/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	defaultWritesPerMinute = 120
	limiterIdleTTL         = 10 * time.Minute
)

// writeMethods lists every state-changing method. They require a bearer
// token and count against the per-source rate limit; everything else is an
// open read.
var writeMethods = map[string]bool{
	"oracle_updatePrice":         true,
	"oracle_updatePrices":        true,
	"oracle_authorizeOracle":     true,
	"oracle_revokeOracle":        true,
	"oracle_updateDataSource":    true,
	"oracle_setSampleActive":     true,
	"oracle_setCircuitBreaker":   true,
	"royalty_registerSplit":      true,
	"royalty_setSplitActive":     true,
	"royalty_distribute":         true,
	"settlement_createBatch":     true,
	"settlement_execute":         true,
	"settlement_cancel":          true,
	"escrow_createTrade":         true,
	"escrow_settleTrade":         true,
	"automation_createRule":      true,
	"automation_deactivateRule":  true,
	"automation_markExecuted":    true,
	"admin_addSupportedToken":    true,
	"admin_removeSupportedToken": true,
	"admin_addExecutor":          true,
	"admin_removeExecutor":       true,
	"admin_grantRole":            true,
	"admin_revokeRole":           true,
	"admin_setExecutionFee":      true,
	"admin_setMaxGasLimit":       true,
	"admin_forceCancel":          true,
	"admin_withdrawFees":         true,
	"admin_setPaused":            true,
}

// ServerConfig tunes the JSON-RPC surface.
type ServerConfig struct {
	// AuthTokenEnv names the environment variable holding the bearer token
	// for write methods. Empty falls back to MRTCORE_RPC_TOKEN.
	AuthTokenEnv string
	// WritesPerMinute caps state-changing calls per source per minute.
	// Zero applies the default.
	WritesPerMinute int
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	node *core.Node
	log  *slog.Logger

	mu         sync.Mutex
	limiters   map[string]*sourceLimiter
	authToken  string
	writeRate  rate.Limit
	writeBurst int
}

func NewServer(node *core.Node, log *slog.Logger, cfg ServerConfig) *Server {
	envName := strings.TrimSpace(cfg.AuthTokenEnv)
	if envName == "" {
		envName = "MRTCORE_RPC_TOKEN"
	}
	perMinute := cfg.WritesPerMinute
	if perMinute <= 0 {
		perMinute = defaultWritesPerMinute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		node:       node,
		log:        log,
		limiters:   make(map[string]*sourceLimiter),
		authToken:  strings.TrimSpace(os.Getenv(envName)),
		writeRate:  rate.Every(time.Minute / time.Duration(perMinute)),
		writeBurst: perMinute,
	}
}

// Handler returns the HTTP handler serving JSON-RPC on / and the event
// stream on /ws/events. Callers own the http.Server wrapping it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

// Start serves the handler on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the HTTP status so the dispatcher can label the
// request metrics after the handler wrote its response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) errorCode() int {
	if r.status == http.StatusOK {
		return 0
	}
	return r.status
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
			observability.RPC().RecordThrottle("body_too_large")
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(recorder, r, req)
	observability.RPC().Observe(req.Method, recorder.errorCode(), time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if writeMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r), time.Now()) {
			observability.RPC().RecordThrottle("rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	switch req.Method {
	case "oracle_updatePrice":
		s.handleOracleUpdatePrice(w, r, req)
	case "oracle_updatePrices":
		s.handleOracleUpdatePrices(w, r, req)
	case "oracle_getLatestPrice":
		s.handleOracleGetLatestPrice(w, r, req)
	case "oracle_getPriceHistory":
		s.handleOracleGetPriceHistory(w, r, req)
	case "oracle_getMultiplePrices":
		s.handleOracleGetMultiplePrices(w, r, req)
	case "oracle_isPriceAvailable":
		s.handleOracleIsPriceAvailable(w, r, req)
	case "oracle_authorizeOracle":
		s.handleOracleAuthorize(w, r, req)
	case "oracle_revokeOracle":
		s.handleOracleRevoke(w, r, req)
	case "oracle_updateDataSource":
		s.handleOracleUpdateDataSource(w, r, req)
	case "oracle_setSampleActive":
		s.handleOracleSetSampleActive(w, r, req)
	case "oracle_setCircuitBreaker":
		s.handleOracleSetCircuitBreaker(w, r, req)
	case "oracle_listSources":
		s.handleOracleListSources(w, r, req)
	case "royalty_registerSplit":
		s.handleRoyaltyRegisterSplit(w, r, req)
	case "royalty_setSplitActive":
		s.handleRoyaltySetSplitActive(w, r, req)
	case "royalty_distribute":
		s.handleRoyaltyDistribute(w, r, req)
	case "royalty_getSplit":
		s.handleRoyaltyGetSplit(w, r, req)
	case "royalty_listContent":
		s.handleRoyaltyListContent(w, r, req)
	case "settlement_createBatch":
		s.handleSettlementCreateBatch(w, r, req)
	case "settlement_execute":
		s.handleSettlementExecute(w, r, req)
	case "settlement_cancel":
		s.handleSettlementCancel(w, r, req)
	case "settlement_getBatch":
		s.handleSettlementGetBatch(w, r, req)
	case "settlement_listPending":
		s.handleSettlementListPending(w, r, req)
	case "settlement_listDue":
		s.handleSettlementListDue(w, r, req)
	case "escrow_createTrade":
		s.handleEscrowCreateTrade(w, r, req)
	case "escrow_settleTrade":
		s.handleEscrowSettleTrade(w, r, req)
	case "escrow_getTrade":
		s.handleEscrowGetTrade(w, r, req)
	case "automation_createRule":
		s.handleAutomationCreateRule(w, r, req)
	case "automation_listRules":
		s.handleAutomationListRules(w, r, req)
	case "automation_getRule":
		s.handleAutomationGetRule(w, r, req)
	case "automation_deactivateRule":
		s.handleAutomationDeactivateRule(w, r, req)
	case "automation_markExecuted":
		s.handleAutomationMarkExecuted(w, r, req)
	case "admin_addSupportedToken":
		s.handleAdminAddSupportedToken(w, r, req)
	case "admin_removeSupportedToken":
		s.handleAdminRemoveSupportedToken(w, r, req)
	case "admin_addExecutor":
		s.handleAdminAddExecutor(w, r, req)
	case "admin_removeExecutor":
		s.handleAdminRemoveExecutor(w, r, req)
	case "admin_grantRole":
		s.handleAdminGrantRole(w, r, req)
	case "admin_revokeRole":
		s.handleAdminRevokeRole(w, r, req)
	case "admin_setExecutionFee":
		s.handleAdminSetExecutionFee(w, r, req)
	case "admin_setMaxGasLimit":
		s.handleAdminSetMaxGasLimit(w, r, req)
	case "admin_forceCancel":
		s.handleAdminForceCancel(w, r, req)
	case "admin_withdrawFees":
		s.handleAdminWithdrawFees(w, r, req)
	case "admin_setPaused":
		s.handleAdminSetPaused(w, r, req)
	case "core_getBalance":
		s.handleCoreGetBalance(w, r, req)
	case "core_getAccount":
		s.handleCoreGetAccount(w, r, req)
	case "core_listTokens":
		s.handleCoreListTokens(w, r, req)
	case "core_custody":
		s.handleCoreCustody(w, r, req)
	case "core_getEvents":
		s.handleCoreGetEvents(w, r, req)
	case "core_pauses":
		s.handleCorePauses(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for src, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, src)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		entry = &sourceLimiter{limiter: rate.NewLimiter(s.writeRate, s.writeBurst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
