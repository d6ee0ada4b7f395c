package core

import (
	"fmt"
	"math/big"
	"sort"

	"mrtcore/core/state"
	"mrtcore/native/automation"
	"mrtcore/native/common"
)

// genesisAppliedKey marks a database whose genesis has already been applied.
// Booting the node against such a database skips seeding entirely.
var genesisAppliedKey = []byte("core/genesis-applied")

// GenesisToken describes a token registered while seeding an empty database.
type GenesisToken struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// GenesisAccount seeds an initial token balance for an address.
type GenesisAccount struct {
	Address [20]byte
	Token   string
	Amount  *big.Int
}

// GenesisConfig captures the initial state applied exactly once to an empty
// database: role assignments, the token registry, funded accounts, and module
// parameter overrides.
type GenesisConfig struct {
	Admins    [][20]byte
	Executors [][20]byte
	Tokens    []GenesisToken
	Accounts  []GenesisAccount
	Params    map[string]*big.Int
}

// DefaultGenesis returns the boot configuration used when no explicit genesis
// is supplied. It registers the native token and seeds the automation module
// parameters with their defaults.
func DefaultGenesis() GenesisConfig {
	return GenesisConfig{
		Tokens: []GenesisToken{
			{Symbol: common.NativeSymbol, Name: "Music Royalty Token", Decimals: 18},
		},
		Params: map[string]*big.Int{
			automation.ParamMaxGasLimit: new(big.Int).SetUint64(automation.DefaultMaxGasLimit),
			automation.ParamRuleFee:     big.NewInt(automation.DefaultRuleFee),
		},
	}
}

// withDefaults folds the default token registry and parameters into cfg so a
// partial genesis never boots a node without the native token.
func (cfg GenesisConfig) withDefaults() GenesisConfig {
	base := DefaultGenesis()
	haveNative := false
	for _, token := range cfg.Tokens {
		if state.NormalizeToken(token.Symbol) == common.NativeSymbol {
			haveNative = true
			break
		}
	}
	if !haveNative {
		cfg.Tokens = append(base.Tokens, cfg.Tokens...)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]*big.Int, len(base.Params))
	}
	for name, value := range base.Params {
		if _, ok := cfg.Params[name]; !ok {
			cfg.Params[name] = value
		}
	}
	return cfg
}

// applyGenesis seeds st from cfg. The caller is responsible for the
// surrounding call frame.
func applyGenesis(st *state.CoreState, cfg GenesisConfig) error {
	applied := false
	if ok, err := st.KVGet(genesisAppliedKey, nil); err != nil {
		return err
	} else if ok {
		applied = true
	}
	if applied {
		return nil
	}

	cfg = cfg.withDefaults()
	for _, token := range cfg.Tokens {
		if err := st.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("genesis token %s: %w", token.Symbol, err)
		}
	}
	for _, admin := range cfg.Admins {
		if err := st.SetRole(common.RoleAdmin, admin[:]); err != nil {
			return fmt.Errorf("genesis admin: %w", err)
		}
	}
	for _, executor := range cfg.Executors {
		if err := st.SetRole(common.RoleExecutor, executor[:]); err != nil {
			return fmt.Errorf("genesis executor: %w", err)
		}
	}
	for _, account := range cfg.Accounts {
		if account.Amount == nil || account.Amount.Sign() < 0 {
			return fmt.Errorf("genesis balance must not be negative")
		}
		if err := st.Credit(account.Address[:], account.Token, account.Amount); err != nil {
			return fmt.Errorf("genesis balance: %w", err)
		}
	}
	names := make([]string, 0, len(cfg.Params))
	for name := range cfg.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := st.SetParamBig(name, cfg.Params[name]); err != nil {
			return fmt.Errorf("genesis param %s: %w", name, err)
		}
	}
	return st.KVPut(genesisAppliedKey, []byte{1})
}
