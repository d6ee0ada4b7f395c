package state

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"mrtcore/native/common"
	"mrtcore/storage"
)

// NativeToken is the sentinel asset symbol. An empty token string on any
// operation normalizes to it.
const NativeToken = common.NativeSymbol

// ErrInsufficientBalance is returned when a debit exceeds the available
// balance of the source account.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// CoreState is the single owned state of the settlement core. All reads and
// writes go through a call-scoped write buffer so a failed call can be rolled
// back without touching the backing store; Commit flushes the buffer after a
// call completes.
type CoreState struct {
	db    storage.Database
	dirty map[string]dirtyEntry
}

type dirtyEntry struct {
	value   []byte
	deleted bool
}

// NewCoreState creates a core state over the provided database.
func NewCoreState(db storage.Database) *CoreState {
	return &CoreState{db: db, dirty: make(map[string]dirtyEntry)}
}

// Begin discards any staged writes and opens a fresh call frame.
func (s *CoreState) Begin() {
	s.dirty = make(map[string]dirtyEntry)
}

// Commit flushes the staged writes of the current call frame to the backing
// store in deterministic key order.
func (s *CoreState) Commit() error {
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entry := s.dirty[k]
		if entry.deleted {
			if err := s.db.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := s.db.Put([]byte(k), entry.value); err != nil {
			return err
		}
	}
	s.dirty = make(map[string]dirtyEntry)
	return nil
}

// Rollback discards the staged writes of the current call frame.
func (s *CoreState) Rollback() {
	s.dirty = make(map[string]dirtyEntry)
}

func (s *CoreState) get(key []byte) ([]byte, bool, error) {
	if entry, ok := s.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *CoreState) put(key, value []byte) {
	s.dirty[string(key)] = dirtyEntry{value: value}
}

func (s *CoreState) del(key []byte) {
	s.dirty[string(key)] = dirtyEntry{deleted: true}
}

// --- Key derivation ---

var (
	tokenPrefix    = []byte("token:")
	tokenListKey   = ethcrypto.Keccak256([]byte("token-list"))
	balancePrefix  = []byte("balance:")
	rolePrefix     = []byte("role:")
	sequencePrefix = []byte("seq:")
	counterPrefix  = []byte("custody:")
	paramPrefix    = []byte("param:")
)

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr []byte, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr)
	return ethcrypto.Keccak256(buf)
}

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func sequenceKey(name string) []byte {
	buf := make([]byte, len(sequencePrefix)+len(name))
	copy(buf, sequencePrefix)
	copy(buf[len(sequencePrefix):], name)
	return ethcrypto.Keccak256(buf)
}

func counterKey(name, symbol string) []byte {
	buf := make([]byte, len(counterPrefix)+len(name)+1+len(symbol))
	copy(buf, counterPrefix)
	copy(buf[len(counterPrefix):], name)
	buf[len(counterPrefix)+len(name)] = ':'
	copy(buf[len(counterPrefix)+len(name)+1:], symbol)
	return ethcrypto.Keccak256(buf)
}

func paramKey(name string) []byte {
	buf := make([]byte, len(paramPrefix)+len(name))
	copy(buf, paramPrefix)
	copy(buf[len(paramPrefix):], name)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// NormalizeToken canonicalizes a token symbol. The empty string maps to the
// native sentinel.
func NormalizeToken(symbol string) string {
	return common.NormalizeAsset(symbol)
}

// --- Token registry ---

type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

func (s *CoreState) loadTokenList() ([]string, error) {
	data, ok, err := s.get(tokenListKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *CoreState) writeTokenList(list []string) error {
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	s.put(tokenListKey, encoded)
	return nil
}

func (s *CoreState) loadTokenMetadata(symbol string) (*TokenMetadata, error) {
	data, ok, err := s.get(tokenMetadataKey(symbol))
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *CoreState) writeTokenMetadata(symbol string, meta *TokenMetadata) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	s.put(tokenMetadataKey(symbol), encoded)
	return nil
}

// RegisterToken stores the metadata for a supported token and records it in
// the token index.
func (s *CoreState) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := NormalizeToken(symbol)
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	if existing, err := s.loadTokenMetadata(normalized); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("token %s already registered", normalized)
	}

	list, err := s.loadTokenList()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := s.writeTokenList(list); err != nil {
		return err
	}

	meta := &TokenMetadata{
		Symbol:   normalized,
		Name:     name,
		Decimals: decimals,
	}
	return s.writeTokenMetadata(normalized, meta)
}

// RemoveToken drops a token from the supported set. Balances already held in
// the token are untouched; only admission of new work is affected.
func (s *CoreState) RemoveToken(symbol string) error {
	normalized := NormalizeToken(symbol)
	if normalized == NativeToken {
		return fmt.Errorf("token %s cannot be removed", NativeToken)
	}
	meta, err := s.loadTokenMetadata(normalized)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("token %s not registered", normalized)
	}
	list, err := s.loadTokenList()
	if err != nil {
		return err
	}
	filtered := list[:0]
	for _, entry := range list {
		if entry != normalized {
			filtered = append(filtered, entry)
		}
	}
	if err := s.writeTokenList(append([]string(nil), filtered...)); err != nil {
		return err
	}
	s.del(tokenMetadataKey(normalized))
	return nil
}

// Token retrieves metadata for a registered token.
func (s *CoreState) Token(symbol string) (*TokenMetadata, error) {
	return s.loadTokenMetadata(NormalizeToken(symbol))
}

// TokenList returns all registered token symbols in sorted order.
func (s *CoreState) TokenList() ([]string, error) {
	return s.loadTokenList()
}

// TokenExists reports whether the provided token symbol is registered.
func (s *CoreState) TokenExists(symbol string) bool {
	meta, err := s.loadTokenMetadata(NormalizeToken(symbol))
	if err != nil || meta == nil {
		return false
	}
	return true
}

// --- Balances ---

// Balance retrieves a token balance for the provided account.
func (s *CoreState) Balance(addr []byte, symbol string) (*big.Int, error) {
	data, ok, err := s.get(balanceKey(addr, NormalizeToken(symbol)))
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SetBalance stores an account balance for the provided token. Used by
// genesis seeding and tests; regular flows move funds via Transfer.
func (s *CoreState) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	normalized := NormalizeToken(symbol)
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	s.put(balanceKey(addr, normalized), encoded)
	return nil
}

// Credit adds amount to the account's balance for the token.
func (s *CoreState) Credit(addr []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit amount must not be negative")
	}
	current, err := s.Balance(addr, symbol)
	if err != nil {
		return err
	}
	return s.SetBalance(addr, symbol, new(big.Int).Add(current, amount))
}

// Debit subtracts amount from the account's balance for the token, failing
// with ErrInsufficientBalance when the balance does not cover it.
func (s *CoreState) Debit(addr []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("debit amount must not be negative")
	}
	current, err := s.Balance(addr, symbol)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return s.SetBalance(addr, symbol, new(big.Int).Sub(current, amount))
}

// Transfer moves amount of token between two accounts.
func (s *CoreState) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	if from == to {
		return nil
	}
	if err := s.Debit(from[:], symbol, amount); err != nil {
		return err
	}
	return s.Credit(to[:], symbol, amount)
}

// --- Roles ---

// SetRole associates an address with the specified role. Duplicate assignments
// are ignored while the stored list remains sorted for determinism.
func (s *CoreState) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	members, err := s.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	s.put(roleKey(trimmed), encoded)
	return nil
}

// UnsetRole removes an address from the specified role. Removing an address
// that is not a member is a no-op.
func (s *CoreState) UnsetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	members, err := s.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	filtered := make([][]byte, 0, len(members))
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(members) {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	s.put(roleKey(trimmed), encoded)
	return nil
}

// RoleMembers returns all addresses assigned to the provided role.
func (s *CoreState) RoleMembers(role string) ([][]byte, error) {
	data, ok, err := s.get(roleKey(strings.TrimSpace(role)))
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return, matching the best-effort semantics required by the callers.
func (s *CoreState) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := s.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// --- Sequences ---

// NextSequence increments and returns the named monotonic counter. The first
// call returns 1; values are never reused.
func (s *CoreState) NextSequence(name string) (uint64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("sequence name must not be empty")
	}
	key := sequenceKey(name)
	data, ok, err := s.get(key)
	if err != nil {
		return 0, err
	}
	current := new(big.Int)
	if ok && len(data) > 0 {
		if err := rlp.DecodeBytes(data, current); err != nil {
			return 0, err
		}
	}
	next := new(big.Int).Add(current, big.NewInt(1))
	if !next.IsUint64() {
		return 0, fmt.Errorf("sequence %s overflow", name)
	}
	encoded, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, err
	}
	s.put(key, encoded)
	return next.Uint64(), nil
}

// --- Custody vault and counters ---

// CustodyVaultAddress returns the address the core itself holds batch
// deposits, escrowed trade funds, and accumulated fees under.
func CustodyVaultAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte("mrtcore/vault/custody"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// CustodyBreakdown is the per-token view of the custody vault composition.
type CustodyBreakdown struct {
	Token           string   `json:"token"`
	VaultBalance    *big.Int `json:"vaultBalance"`
	PendingDeposits *big.Int `json:"pendingDeposits"`
	Escrowed        *big.Int `json:"escrowed"`
	FeesAccrued     *big.Int `json:"feesAccrued"`
	FeesWithdrawn   *big.Int `json:"feesWithdrawn"`
}

func (s *CoreState) counter(name, symbol string) (*big.Int, error) {
	data, ok, err := s.get(counterKey(name, NormalizeToken(symbol)))
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *CoreState) adjustCounter(name, symbol string, delta *big.Int) error {
	if delta == nil {
		return fmt.Errorf("counter delta must not be nil")
	}
	current, err := s.counter(name, symbol)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("custody counter %s:%s underflow", name, NormalizeToken(symbol))
	}
	encoded, err := rlp.EncodeToBytes(next)
	if err != nil {
		return err
	}
	s.put(counterKey(name, NormalizeToken(symbol)), encoded)
	return nil
}

const (
	counterPending   = "pending"
	counterEscrowed  = "escrowed"
	counterFees      = "fees"
	counterWithdrawn = "withdrawn"
)

// AddPendingDeposits records a batch deposit entering custody.
func (s *CoreState) AddPendingDeposits(symbol string, amount *big.Int) error {
	return s.adjustCounter(counterPending, symbol, amount)
}

// SubPendingDeposits records a batch deposit leaving custody on execution,
// refund, or cancellation.
func (s *CoreState) SubPendingDeposits(symbol string, amount *big.Int) error {
	return s.adjustCounter(counterPending, symbol, new(big.Int).Neg(amount))
}

// AddEscrowed records escrowed trade funds entering custody.
func (s *CoreState) AddEscrowed(symbol string, amount *big.Int) error {
	return s.adjustCounter(counterEscrowed, symbol, amount)
}

// SubEscrowed records escrowed trade funds leaving custody.
func (s *CoreState) SubEscrowed(symbol string, amount *big.Int) error {
	return s.adjustCounter(counterEscrowed, symbol, new(big.Int).Neg(amount))
}

// AddFeesAccrued records an execution fee credited to custody. The counter is
// cumulative and never decreases.
func (s *CoreState) AddFeesAccrued(symbol string, amount *big.Int) error {
	return s.adjustCounter(counterFees, symbol, amount)
}

// AddFeesWithdrawn records a fee withdrawal by the admin. The counter is
// cumulative and never decreases.
func (s *CoreState) AddFeesWithdrawn(symbol string, amount *big.Int) error {
	return s.adjustCounter(counterWithdrawn, symbol, amount)
}

// Custody assembles the custody breakdown for a token. For every reachable
// state the vault balance equals pending deposits plus escrowed funds plus
// accrued minus withdrawn fees.
func (s *CoreState) Custody(symbol string) (*CustodyBreakdown, error) {
	normalized := NormalizeToken(symbol)
	vault := CustodyVaultAddress()
	balance, err := s.Balance(vault[:], normalized)
	if err != nil {
		return nil, err
	}
	pending, err := s.counter(counterPending, normalized)
	if err != nil {
		return nil, err
	}
	escrowed, err := s.counter(counterEscrowed, normalized)
	if err != nil {
		return nil, err
	}
	fees, err := s.counter(counterFees, normalized)
	if err != nil {
		return nil, err
	}
	withdrawn, err := s.counter(counterWithdrawn, normalized)
	if err != nil {
		return nil, err
	}
	return &CustodyBreakdown{
		Token:           normalized,
		VaultBalance:    balance,
		PendingDeposits: pending,
		Escrowed:        escrowed,
		FeesAccrued:     fees,
		FeesWithdrawn:   withdrawn,
	}, nil
}

// --- Parameters ---

// SetParamBig stores a named big integer parameter.
func (s *CoreState) SetParamBig(name string, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return fmt.Errorf("param %s must not be negative", name)
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.put(paramKey(name), encoded)
	return nil
}

// ParamBig retrieves a named big integer parameter, returning fallback when
// the parameter was never set.
func (s *CoreState) ParamBig(name string, fallback *big.Int) (*big.Int, error) {
	data, ok, err := s.get(paramKey(name))
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		if fallback == nil {
			return big.NewInt(0), nil
		}
		return new(big.Int).Set(fallback), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

// --- Generic KV ---

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 so all stored keys share a uniform shape.
func (s *CoreState) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.put(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (s *CoreState) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := s.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (s *CoreState) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	s.del(kvKey(key))
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list
// stored under the supplied key. Duplicate values are ignored to keep the
// index deterministic.
func (s *CoreState) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if err := s.KVGetList(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	s.put(kvKey(key), encoded)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (s *CoreState) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := s.get(kvKey(key))
	if err != nil {
		return err
	}
	if !ok || len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
