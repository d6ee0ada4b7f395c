package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"mrtcore/crypto"
)

// decodeSingleParam unmarshals the single object parameter every method of
// this API takes.
func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBech32Address(addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Array(), nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(addr[:]).String()
}

func formatAddresses(addrs [][20]byte) []string {
	out := make([]string, len(addrs))
	for i := range addrs {
		out[i] = formatAddress(addrs[i])
	}
	return out
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("value required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("value must not be negative")
	}
	return amount, nil
}

// parseHexBlob decodes an optional 0x-prefixed hex string. Empty input maps
// to a nil blob.
func parseHexBlob(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	trimmed = strings.TrimPrefix(trimmed, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return decoded, nil
}

func formatBlob(blob []byte) string {
	if len(blob) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(blob)
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid hash: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("hash must be 32 bytes")
	}
	copy(out[:], decoded)
	return out, nil
}

func formatHash32(hash [32]byte) string {
	return "0x" + hex.EncodeToString(hash[:])
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
