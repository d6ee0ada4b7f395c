package common

import "strings"

// NativeSymbol is the sentinel symbol of the platform's native asset. Module
// operations accept the empty string as an alias for it.
const NativeSymbol = "MRT"

// NormalizeAsset canonicalizes a token symbol, mapping the empty string to
// the native sentinel.
func NormalizeAsset(symbol string) string {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return NativeSymbol
	}
	return normalized
}
