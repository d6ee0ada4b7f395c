package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"mrtcore/core"
	"mrtcore/crypto"
)

type genesisFile struct {
	Admins    []string              `toml:"Admins"`
	Executors []string              `toml:"Executors"`
	Tokens    []genesisTokenEntry   `toml:"Token"`
	Accounts  []genesisAccountEntry `toml:"Account"`
	Params    map[string]string     `toml:"Params"`
}

type genesisTokenEntry struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

type genesisAccountEntry struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

// LoadGenesis parses a TOML genesis file into the seeding configuration
// applied to a fresh database. Addresses are bech32 strings and amounts are
// base-10 integers.
func LoadGenesis(path string) (core.GenesisConfig, error) {
	var file genesisFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return core.GenesisConfig{}, fmt.Errorf("genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return core.GenesisConfig{}, fmt.Errorf("genesis: unknown key %q", undecoded[0].String())
	}

	cfg := core.GenesisConfig{}
	for _, raw := range file.Admins {
		addr, err := decodeGenesisAddress(raw)
		if err != nil {
			return core.GenesisConfig{}, fmt.Errorf("genesis: admin %q: %w", raw, err)
		}
		cfg.Admins = append(cfg.Admins, addr)
	}
	for _, raw := range file.Executors {
		addr, err := decodeGenesisAddress(raw)
		if err != nil {
			return core.GenesisConfig{}, fmt.Errorf("genesis: executor %q: %w", raw, err)
		}
		cfg.Executors = append(cfg.Executors, addr)
	}
	for _, entry := range file.Tokens {
		symbol := strings.TrimSpace(entry.Symbol)
		if symbol == "" {
			return core.GenesisConfig{}, fmt.Errorf("genesis: token entry missing symbol")
		}
		cfg.Tokens = append(cfg.Tokens, core.GenesisToken{
			Symbol:   symbol,
			Name:     strings.TrimSpace(entry.Name),
			Decimals: entry.Decimals,
		})
	}
	for _, entry := range file.Accounts {
		addr, err := decodeGenesisAddress(entry.Address)
		if err != nil {
			return core.GenesisConfig{}, fmt.Errorf("genesis: account %q: %w", entry.Address, err)
		}
		amount, err := parseGenesisAmount(entry.Amount)
		if err != nil {
			return core.GenesisConfig{}, fmt.Errorf("genesis: account %q: %w", entry.Address, err)
		}
		cfg.Accounts = append(cfg.Accounts, core.GenesisAccount{
			Address: addr,
			Token:   strings.TrimSpace(entry.Token),
			Amount:  amount,
		})
	}
	if len(file.Params) > 0 {
		cfg.Params = make(map[string]*big.Int, len(file.Params))
		for name, raw := range file.Params {
			value, err := parseGenesisAmount(raw)
			if err != nil {
				return core.GenesisConfig{}, fmt.Errorf("genesis: param %q: %w", name, err)
			}
			cfg.Params[name] = value
		}
	}
	return cfg, nil
}

func decodeGenesisAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func parseGenesisAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}
