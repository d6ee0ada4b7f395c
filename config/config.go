package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from a TOML file.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	GenesisFile    string `toml:"GenesisFile"`
	NetworkName    string `toml:"NetworkName"`

	RPC       RPC       `toml:"rpc"`
	Oracle    Oracle    `toml:"oracle"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
}

// RPC tunes the JSON-RPC surface.
type RPC struct {
	// AuthTokenEnv names the environment variable holding the bearer token
	// required for privileged methods. Empty disables those methods.
	AuthTokenEnv string `toml:"AuthTokenEnv"`
	// WriteRateLimitPerMin caps state-changing requests per source address
	// per minute. Zero applies the default.
	WriteRateLimitPerMin int `toml:"WriteRateLimitPerMin"`
	// EventBacklog bounds the retained event log served by core_getEvents
	// and the websocket stream. Zero applies the default.
	EventBacklog int `toml:"EventBacklog"`
}

// Oracle overrides the price aggregator tuning. Zero fields keep the engine
// defaults.
type Oracle struct {
	MaxAgeSeconds     int64  `toml:"MaxAgeSeconds"`
	MinSources        int    `toml:"MinSources"`
	MaxDeviationBps   uint32 `toml:"MaxDeviationBps"`
	CircuitBreakerBps uint32 `toml:"CircuitBreakerBps"`
	MaxBatchSize      int    `toml:"MaxBatchSize"`
	HistoryCapacity   int    `toml:"HistoryCapacity"`
}

// Log tunes structured logging.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Env        string `toml:"Env"`
}

// Telemetry wires the OTLP exporters.
type Telemetry struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Environment string `toml:"Environment"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9091"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = filepath.Join(filepath.Dir(path), "mrt-data")
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "mrt-local"
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Oracle.MaxAgeSeconds < 0 {
		return fmt.Errorf("oracle: MaxAgeSeconds must not be negative")
	}
	if c.Oracle.MinSources < 0 {
		return fmt.Errorf("oracle: MinSources must not be negative")
	}
	if c.Oracle.MaxBatchSize < 0 {
		return fmt.Errorf("oracle: MaxBatchSize must not be negative")
	}
	if c.Oracle.HistoryCapacity < 0 {
		return fmt.Errorf("oracle: HistoryCapacity must not be negative")
	}
	if c.RPC.WriteRateLimitPerMin < 0 {
		return fmt.Errorf("rpc: WriteRateLimitPerMin must not be negative")
	}
	if c.RPC.EventBacklog < 0 {
		return fmt.Errorf("rpc: EventBacklog must not be negative")
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9091",
		DataDir:        filepath.Join(filepath.Dir(path), "mrt-data"),
		GenesisFile:    "",
		NetworkName:    "mrt-local",
		RPC: RPC{
			AuthTokenEnv: "MRTCORE_RPC_TOKEN",
		},
		Log: Log{
			Level: "info",
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
