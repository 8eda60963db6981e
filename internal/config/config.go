package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Oracle kinds.
const (
	OracleRule    = "rule"
	OracleLLM     = "llm"
	OracleProcess = "process"
)

// Cache kinds.
const (
	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

type RunConfig struct {
	OutputDir        string `toml:"output_dir" yaml:"output_dir"`
	InputDir         string `toml:"input_dir" yaml:"input_dir"`
	UseCachedGroups  bool   `toml:"use_cached_groups" yaml:"use_cached_groups"`
	UseCachedMatches bool   `toml:"use_cached_matches" yaml:"use_cached_matches"`
	CachedOnly       bool   `toml:"cached_only" yaml:"cached_only"`
	LogLevel         string `toml:"log_level" yaml:"log_level"`
}

type SourceConfig struct {
	Name             string  `toml:"name" yaml:"name"`
	ReliabilityScore float64 `toml:"reliability_score" yaml:"reliability_score"`
	AggregatedUnits  bool    `toml:"aggregated_units" yaml:"aggregated_units"`
	FullyIncluded    bool    `toml:"fully_included" yaml:"fully_included"`
	LowReliability   bool    `toml:"low_reliability" yaml:"low_reliability"`
}

type MatchingConfig struct {
	TargetCountries     []string `toml:"target_countries" yaml:"target_countries"`
	MaxConcurrency      int      `toml:"max_concurrency" yaml:"max_concurrency"`
	OracleTimeoutSecs   int      `toml:"oracle_timeout_secs" yaml:"oracle_timeout_secs"`
	RatePerSecond       float64  `toml:"rate_per_second" yaml:"rate_per_second"`
	AllowedCountries    []string `toml:"allowed_countries" yaml:"allowed_countries"`
	RemoveMissingCoords bool     `toml:"remove_missing_coords" yaml:"remove_missing_coords"`
}

type LLMConfig struct {
	Provider  string `toml:"provider" yaml:"provider"`
	Model     string `toml:"model" yaml:"model"`
	APIKey    string `toml:"api_key" yaml:"api_key"`
	BaseURL   string `toml:"base_url" yaml:"base_url"`
	BatchSize int    `toml:"batch_size" yaml:"batch_size"`
}

type ProcessConfig struct {
	Command string   `toml:"command" yaml:"command"`
	Args    []string `toml:"args" yaml:"args"`
	WorkDir string   `toml:"work_dir" yaml:"work_dir"`
}

type OracleConfig struct {
	Kind      string        `toml:"kind" yaml:"kind"`
	Threshold float64       `toml:"threshold" yaml:"threshold"`
	LLM       LLMConfig     `toml:"llm" yaml:"llm"`
	Process   ProcessConfig `toml:"process" yaml:"process"`
}

type CacheConfig struct {
	Kind string `toml:"kind" yaml:"kind"`
	Dir  string `toml:"dir" yaml:"dir"`
}

type StoreConfig struct {
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
}

type MemgraphConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	URI      string `toml:"uri" yaml:"uri"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
}

type ServerConfig struct {
	Port string `toml:"port" yaml:"port"`
}

type Config struct {
	Run      RunConfig      `toml:"run" yaml:"run"`
	Sources  []SourceConfig `toml:"sources" yaml:"sources"`
	Matching MatchingConfig `toml:"matching" yaml:"matching"`
	Oracle   OracleConfig   `toml:"oracle" yaml:"oracle"`
	Cache    CacheConfig    `toml:"cache" yaml:"cache"`
	Store    StoreConfig    `toml:"store" yaml:"store"`
	Memgraph MemgraphConfig `toml:"memgraph" yaml:"memgraph"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
}

// Default returns a configuration that runs the rule oracle with a file cache and no sources.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			OutputDir:        "out",
			InputDir:         "data",
			UseCachedGroups:  true,
			UseCachedMatches: true,
			LogLevel:         "info",
		},
		Matching: MatchingConfig{
			MaxConcurrency:    4,
			OracleTimeoutSecs: 120,
		},
		Oracle: OracleConfig{
			Kind:      OracleRule,
			Threshold: 0.85,
			LLM: LLMConfig{
				Provider:  "ollama",
				Model:     "gpt-oss:latest",
				BaseURL:   "http://localhost:11434",
				BatchSize: 40,
			},
		},
		Cache: CacheConfig{
			Kind: CacheFile,
			Dir:  ".powermatch-cache",
		},
		Store: StoreConfig{
			SQLitePath: "powermatch.db",
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load reads a TOML or YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and source uniqueness.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("source name cannot be empty")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source %q", s.Name)
		}
		seen[s.Name] = true
		if s.ReliabilityScore < 0 {
			return fmt.Errorf("source %q: reliability_score cannot be negative (got %.2f)", s.Name, s.ReliabilityScore)
		}
	}
	if c.Matching.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive (got %d)", c.Matching.MaxConcurrency)
	}
	if c.Matching.OracleTimeoutSecs <= 0 {
		return fmt.Errorf("oracle_timeout_secs must be positive (got %d)", c.Matching.OracleTimeoutSecs)
	}
	if c.Matching.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second cannot be negative (got %.2f)", c.Matching.RatePerSecond)
	}
	if c.Oracle.Threshold < 0 || c.Oracle.Threshold > 1 {
		return fmt.Errorf("oracle threshold must be between 0.0 and 1.0 (got %.2f)", c.Oracle.Threshold)
	}
	switch c.Oracle.Kind {
	case OracleRule, OracleLLM:
	case OracleProcess:
		if c.Oracle.Process.Command == "" {
			return fmt.Errorf("process oracle requires a command")
		}
	default:
		return fmt.Errorf("unsupported oracle kind: %s", c.Oracle.Kind)
	}
	switch c.Cache.Kind {
	case CacheFile, CacheSQLite, CacheMemory:
	default:
		return fmt.Errorf("unsupported cache kind: %s", c.Cache.Kind)
	}
	return nil
}

// SourceNames returns the configured source labels sorted ascending.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// OracleSignature identifies the oracle settings that shape duplicate and link judgments.
func (c *Config) OracleSignature() string {
	o := c.Oracle
	kind := o.Kind
	if kind == "" {
		kind = OracleRule
	}
	parts := []string{kind, strconv.FormatFloat(o.Threshold, 'g', -1, 64)}
	switch kind {
	case OracleLLM:
		parts = append(parts, o.LLM.Provider, o.LLM.Model, strconv.Itoa(o.LLM.BatchSize))
	case OracleProcess:
		parts = append(parts, o.Process.Command)
		parts = append(parts, o.Process.Args...)
	}
	return strings.Join(parts, "|")
}

// Source looks a source up by name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Reliability maps each source to its reliability score.
func (c *Config) Reliability() map[string]float64 {
	out := make(map[string]float64, len(c.Sources))
	for _, s := range c.Sources {
		out[s.Name] = s.ReliabilityScore
	}
	return out
}
