package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the expected on-disk schema layout for the core
// state. Increment this constant whenever breaking changes are made to the
// stored structure.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records the provided schema version in state. Callers should
// invoke this after performing any required migrations.
func (s *CoreState) SetStateVersion(version uint32) error {
	if s == nil {
		return fmt.Errorf("state: store unavailable")
	}
	return s.KVPut(stateVersionKey, uint64(version))
}

// StateVersionStored returns the stored schema version and a boolean
// indicating whether the value was present.
func (s *CoreState) StateVersionStored() (uint32, bool, error) {
	if s == nil {
		return 0, false, fmt.Errorf("state: store unavailable")
	}
	var stored uint64
	ok, err := s.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion stamps a fresh database with the supported schema version
// and rejects databases written under a different layout.
func (s *CoreState) EnsureStateVersion() error {
	version, ok, err := s.StateVersionStored()
	if err != nil {
		return err
	}
	if !ok {
		return s.SetStateVersion(StateVersion)
	}
	if version != StateVersion {
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
	}
	return nil
}
