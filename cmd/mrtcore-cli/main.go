package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"mrtcore/cmd/internal/passphrase"
	"mrtcore/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("MRT_RPC_TOKEN")

const keystorePassEnv = "MRT_KEYSTORE_PASS"

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		path := "signer.keystore.json"
		if len(args) > 1 {
			path = args[1]
		}
		generateKey(path)
	case "address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore file.")
			printUsage()
			return
		}
		showAddress(args[1])
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		token := "MRT"
		if len(args) > 2 {
			token = args[2]
		}
		getBalance(args[1], token)
	case "price":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a symbol.")
			printUsage()
			return
		}
		getPrice(args[1])
	case "batch":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a batch id.")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid batch id.")
			return
		}
		getBatch(id)
	case "attest":
		code := runAttestCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println(strings.TrimSpace(`Usage:
  mrtcore-cli [--rpc <url>] <command> [args]

Commands:
  generate-key [file]        Generate a signer key into an encrypted keystore
  address <keystore>         Print the address held by a keystore file
  balance <address> [token]  Query a token balance (default MRT)
  price <symbol>             Query the latest aggregated price for a symbol
  batch <id>                 Query a settlement batch by id
  attest [flags]             Sign a price attestation for an oracle source

Environment:
  RPC_URL            Node JSON-RPC endpoint (default http://localhost:8080)
  MRT_RPC_TOKEN      Bearer token for privileged methods
  MRT_KEYSTORE_PASS  Keystore passphrase (prompted when unset)`))
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey(path string) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		fmt.Printf("Error resolving passphrase: %v\n", err)
		return
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		return
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		return
	}
	fmt.Printf("Generated new key and saved to %s\n", path)
	fmt.Printf("Your address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file and its passphrase securely.")
}

func showAddress(path string) {
	key, err := loadKeystore(path)
	if err != nil {
		fmt.Printf("Error loading keystore: %v\n", err)
		return
	}
	fmt.Println(key.PubKey().Address().String())
}

func loadKeystore(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// --- RPC HELPER FUNCTIONS ---

type balanceResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type latestPriceResponse struct {
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	Timestamp  int64  `json:"timestamp"`
	Confidence uint32 `json:"confidence"`
}

type batchResponse struct {
	ID            uint64   `json:"id"`
	Kind          string   `json:"kind"`
	Initiator     string   `json:"initiator"`
	Token         string   `json:"token"`
	Recipients    []string `json:"recipients"`
	Amounts       []string `json:"amounts"`
	TotalAmount   string   `json:"totalAmount"`
	ExecutionTime int64    `json:"executionTime"`
	Deadline      int64    `json:"deadline"`
	Status        string   `json:"status"`
	IsRecurring   bool     `json:"isRecurring"`
	NextExecution int64    `json:"nextExecution"`
	CreatedAt     int64    `json:"createdAt"`
	ExecutedAt    int64    `json:"executedAt"`
}

func getBalance(addr, token string) {
	raw, err := callRPC("core_getBalance", map[string]interface{}{"address": addr, "token": token}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	var balance balanceResponse
	if err := json.Unmarshal(raw, &balance); err != nil {
		fmt.Printf("Error decoding balance: %v\n", err)
		return
	}
	fmt.Printf("Balance for: %s\n", balance.Address)
	fmt.Printf("  %s: %s\n", balance.Token, balance.Balance)
}

func getPrice(symbol string) {
	raw, err := callRPC("oracle_getLatestPrice", map[string]interface{}{"symbol": symbol}, false)
	if err != nil {
		fmt.Printf("Error fetching price: %v\n", err)
		return
	}
	var latest latestPriceResponse
	if err := json.Unmarshal(raw, &latest); err != nil {
		fmt.Printf("Error decoding price: %v\n", err)
		return
	}
	fmt.Printf("Latest price for %s\n", latest.Symbol)
	fmt.Printf("  Price:      %s\n", latest.Price)
	fmt.Printf("  Confidence: %d\n", latest.Confidence)
	fmt.Printf("  Updated:    %s\n", time.Unix(latest.Timestamp, 0).UTC().Format(time.RFC3339))
}

func getBatch(id uint64) {
	raw, err := callRPC("settlement_getBatch", map[string]interface{}{"id": id}, false)
	if err != nil {
		fmt.Printf("Error fetching batch: %v\n", err)
		return
	}
	var batch batchResponse
	if err := json.Unmarshal(raw, &batch); err != nil {
		fmt.Printf("Error decoding batch: %v\n", err)
		return
	}
	fmt.Printf("Batch %d (%s)\n", batch.ID, batch.Kind)
	fmt.Printf("  Status:     %s\n", batch.Status)
	fmt.Printf("  Initiator:  %s\n", batch.Initiator)
	fmt.Printf("  Token:      %s\n", batch.Token)
	fmt.Printf("  Total:      %s across %d recipients\n", batch.TotalAmount, len(batch.Recipients))
	fmt.Printf("  Executable: %s\n", time.Unix(batch.ExecutionTime, 0).UTC().Format(time.RFC3339))
	fmt.Printf("  Deadline:   %s\n", time.Unix(batch.Deadline, 0).UTC().Format(time.RFC3339))
	if batch.IsRecurring && batch.NextExecution > 0 {
		fmt.Printf("  Next run:   %s\n", time.Unix(batch.NextExecution, 0).UTC().Format(time.RFC3339))
	}
	if batch.ExecutedAt > 0 {
		fmt.Printf("  Executed:   %s\n", time.Unix(batch.ExecutedAt, 0).UTC().Format(time.RFC3339))
	}
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires MRT_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}
