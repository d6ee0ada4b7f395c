package keeperd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mrtcore/crypto"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for keeperd.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	Executor      string        `yaml:"executor"`
	PauseOnStart  bool          `yaml:"pause"`
	PollInterval  Duration      `yaml:"poll_interval"`
	RetryBackoff  Duration      `yaml:"retry_backoff"`
	Node          NodeConfig    `yaml:"node"`
	Journal       JournalConfig `yaml:"journal"`
	Report        ReportConfig  `yaml:"report"`
	Admin         AdminConfig   `yaml:"admin"`
}

// NodeConfig locates the settlement node RPC and the bearer token its write
// methods require.
type NodeConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	Token     string   `yaml:"token"`
	TokenFile string   `yaml:"token_file"`
	TokenEnv  string   `yaml:"token_env"`
	Timeout   Duration `yaml:"timeout"`
}

// JournalConfig selects the execution journal backend.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ReportConfig tunes the daily settlement report writer.
type ReportConfig struct {
	Disabled  bool     `yaml:"disabled"`
	OutputDir string   `yaml:"output_dir"`
	Window    Duration `yaml:"window"`
	RunHour   int      `yaml:"run_hour"`
	RunMinute int      `yaml:"run_minute"`
	Timezone  string   `yaml:"timezone"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Node.normalise(); err != nil {
		return cfg, fmt.Errorf("node credentials: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.PollInterval.Duration == 0 {
		cfg.PollInterval.Duration = 5 * time.Second
	}
	if cfg.RetryBackoff.Duration == 0 {
		cfg.RetryBackoff.Duration = 30 * time.Second
	}
	if cfg.Node.Timeout.Duration == 0 {
		cfg.Node.Timeout.Duration = 15 * time.Second
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = JournalDriverSQLite
	}
	if cfg.Journal.DSN == "" {
		cfg.Journal.DSN = "keeperd.db"
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = filepath.Join("mrt-data", "reports")
	}
	if cfg.Report.Window.Duration == 0 {
		cfg.Report.Window.Duration = 24 * time.Hour
	}
	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = "UTC"
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Node.Endpoint) == "" {
		return fmt.Errorf("node endpoint must be configured")
	}
	executor := strings.TrimSpace(cfg.Executor)
	if executor == "" {
		return fmt.Errorf("executor address must be configured")
	}
	if _, err := crypto.DecodeAddress(executor); err != nil {
		return fmt.Errorf("executor address: %w", err)
	}
	switch cfg.Journal.Driver {
	case JournalDriverSQLite, JournalDriverPostgres:
	default:
		return fmt.Errorf("journal driver must be %q or %q", JournalDriverSQLite, JournalDriverPostgres)
	}
	if cfg.Report.RunHour < 0 || cfg.Report.RunHour > 23 {
		return fmt.Errorf("report run_hour must be between 0 and 23")
	}
	if cfg.Report.RunMinute < 0 || cfg.Report.RunMinute > 59 {
		return fmt.Errorf("report run_minute must be between 0 and 59")
	}
	if _, err := time.LoadLocation(cfg.Report.Timezone); err != nil {
		return fmt.Errorf("report timezone: %w", err)
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("admin bearer_token must be configured")
	}
	return nil
}

func (n *NodeConfig) normalise() error {
	if n == nil {
		return fmt.Errorf("node configuration missing")
	}
	n.Token = strings.TrimSpace(n.Token)
	n.TokenEnv = strings.TrimSpace(n.TokenEnv)
	n.TokenFile = strings.TrimSpace(n.TokenFile)
	if n.Token != "" {
		return nil
	}
	switch {
	case n.TokenEnv != "":
		value := strings.TrimSpace(os.Getenv(n.TokenEnv))
		if value == "" {
			return fmt.Errorf("token_env %s is empty", n.TokenEnv)
		}
		n.Token = value
	case n.TokenFile != "":
		contents, err := os.ReadFile(n.TokenFile)
		if err != nil {
			return fmt.Errorf("read token_file: %w", err)
		}
		n.Token = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("token is required")
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}
