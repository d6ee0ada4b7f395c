package state

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var pausePrefix = []byte("pause:")

func pauseKey(module string) []byte {
	buf := make([]byte, len(pausePrefix)+len(module))
	copy(buf, pausePrefix)
	copy(buf[len(pausePrefix):], module)
	return ethcrypto.Keccak256(buf)
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

// SetPaused flips the admin pause switch for the named module. Paused modules
// reject state-changing calls while reads keep working.
func (s *CoreState) SetPaused(module string, paused bool) error {
	normalized := normalizeModule(module)
	if normalized == "" {
		return fmt.Errorf("module must not be empty")
	}
	if paused {
		s.put(pauseKey(normalized), []byte{1})
		return nil
	}
	s.del(pauseKey(normalized))
	return nil
}

// IsPaused reports whether the named module is currently paused. Errors while
// reading the underlying state read as unpaused, matching the best-effort
// semantics required by the callers.
func (s *CoreState) IsPaused(module string) bool {
	normalized := normalizeModule(module)
	if normalized == "" {
		return false
	}
	data, ok, err := s.get(pauseKey(normalized))
	if err != nil || !ok {
		return false
	}
	return len(data) == 1 && data[0] == 1
}
