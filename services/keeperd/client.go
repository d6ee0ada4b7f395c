package keeperd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// BatchResult carries the slice of the settlement batch object the keeper
// journals after an execution.
type BatchResult struct {
	ID          uint64 `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Token       string `json:"token"`
	TotalAmount string `json:"totalAmount"`
}

// RuleRecord mirrors the automation rule fields the keeper reads.
type RuleRecord struct {
	ID             uint64 `json:"id"`
	Trigger        string `json:"trigger"`
	ExecutionData  string `json:"executionData"`
	GasBudget      uint64 `json:"gasBudget"`
	Active         bool   `json:"active"`
	ExecutionCount uint64 `json:"executionCount"`
}

// RPCStatusError is returned when the node answers with a JSON-RPC error
// object rather than a transport failure.
type RPCStatusError struct {
	Code    int
	Message string
}

func (e *RPCStatusError) Error() string {
	return fmt.Sprintf("keeperd: rpc error %d %s", e.Code, e.Message)
}

// Client provides a thin JSON-RPC wrapper over the node methods the keeper
// depends on.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	nextID     atomic.Int64
}

// ClientConfig represents the client configuration.
type ClientConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// NewClient constructs a JSON-RPC client targeting the supplied URL. The
// token is attached as a bearer credential on every call.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:   strings.TrimSpace(cfg.URL),
		token: strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DueBatches returns the pending batch ids inside their execution window.
func (c *Client) DueBatches(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := c.call(ctx, "settlement_listDue", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ExecuteBatch submits the batch for execution under the supplied executor
// address.
func (c *Client) ExecuteBatch(ctx context.Context, caller string, id uint64) (BatchResult, error) {
	params := []interface{}{map[string]interface{}{
		"caller": caller,
		"id":     id,
	}}
	var result BatchResult
	if err := c.call(ctx, "settlement_execute", params, &result); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

// ActiveRules returns the active automation rules.
func (c *Client) ActiveRules(ctx context.Context) ([]RuleRecord, error) {
	params := []interface{}{map[string]interface{}{"activeOnly": true}}
	var rules []RuleRecord
	if err := c.call(ctx, "automation_listRules", params, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// MarkRuleExecuted records a rule execution on the node.
func (c *Client) MarkRuleExecuted(ctx context.Context, caller string, id uint64) error {
	params := []interface{}{map[string]interface{}{
		"caller": caller,
		"id":     id,
	}}
	return c.call(ctx, "automation_markExecuted", params, nil)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("keeperd: client not configured")
	}
	if params == nil {
		params = []interface{}{}
	}
	id := c.nextID.Add(1)
	reqBody := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("keeperd: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &RPCStatusError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("keeperd: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("keeperd: empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
