package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder substituted for sensitive log fields.
const RedactedValue = "[REDACTED]"

// MaskSecret returns a slog.Attr carrying the placeholder instead of the
// value. Use it for bearer tokens, keystore passphrases, and signing keys so
// a misconfigured log sink never leaks credentials.
func MaskSecret(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
