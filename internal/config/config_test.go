package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[run]
output_dir = "build"
cached_only = true

[[sources]]
name = "OPSD"
reliability_score = 6

[[sources]]
name = "ENTSOE"
reliability_score = 7
aggregated_units = true

[[sources]]
name = "GEO"
reliability_score = 3
low_reliability = true

[matching]
target_countries = ["DE", "FR"]
max_concurrency = 2
oracle_timeout_secs = 30
allowed_countries = ["AL"]

[oracle]
kind = "rule"
threshold = 0.9
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.toml", sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "build", cfg.Run.OutputDir)
	assert.True(t, cfg.Run.CachedOnly)
	assert.Equal(t, []string{"ENTSOE", "GEO", "OPSD"}, cfg.SourceNames())
	assert.Equal(t, 2, cfg.Matching.MaxConcurrency)
	assert.Equal(t, []string{"DE", "FR"}, cfg.Matching.TargetCountries)
	assert.Equal(t, 0.9, cfg.Oracle.Threshold)

	entsoe, ok := cfg.Source("ENTSOE")
	require.True(t, ok)
	assert.True(t, entsoe.AggregatedUnits)
	assert.Equal(t, 3.0, cfg.Reliability()["GEO"])

	// Defaults survive for keys the file does not set.
	assert.Equal(t, CacheFile, cfg.Cache.Kind)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadYAML(t *testing.T) {
	yml := `
sources:
  - name: JRC
    reliability_score: 5
matching:
  max_concurrency: 3
  oracle_timeout_secs: 10
oracle:
  kind: llm
  threshold: 0.7
`
	cfg, err := Load(writeFile(t, "config.yaml", yml))
	require.NoError(t, err)
	assert.Equal(t, []string{"JRC"}, cfg.SourceNames())
	assert.Equal(t, OracleLLM, cfg.Oracle.Kind)
	assert.Equal(t, 3, cfg.Matching.MaxConcurrency)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"duplicate source", func(c *Config) {
			c.Sources = []SourceConfig{{Name: "A"}, {Name: "A"}}
		}},
		{"empty source name", func(c *Config) { c.Sources = []SourceConfig{{Name: " "}} }},
		{"zero concurrency", func(c *Config) { c.Matching.MaxConcurrency = 0 }},
		{"threshold out of range", func(c *Config) { c.Oracle.Threshold = 1.5 }},
		{"unknown oracle", func(c *Config) { c.Oracle.Kind = "magic" }},
		{"process without command", func(c *Config) { c.Oracle.Kind = OracleProcess }},
		{"unknown cache", func(c *Config) { c.Cache.Kind = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestOracleSignature(t *testing.T) {
	cfg := Default()
	base := cfg.OracleSignature()
	assert.Equal(t, "rule|0.85", base)

	cfg.Oracle.Kind = ""
	assert.Equal(t, base, cfg.OracleSignature())

	cfg.Oracle.Threshold = 0.9
	assert.NotEqual(t, base, cfg.OracleSignature())

	cfg.Oracle.Kind = OracleLLM
	llm := cfg.OracleSignature()
	cfg.Oracle.LLM.Model = "other"
	assert.NotEqual(t, llm, cfg.OracleSignature())

	cfg.Oracle.Kind = OracleProcess
	cfg.Oracle.Process.Command = "duke"
	assert.Equal(t, "process|0.9|duke", cfg.OracleSignature())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("POWERMATCH_MAX_CONCURRENCY", "9")
	t.Setenv("POWERMATCH_CACHED_ONLY", "true")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("MEMGRAPH_URI", "bolt://graph:7687")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 9, cfg.Matching.MaxConcurrency)
	assert.True(t, cfg.Run.CachedOnly)
	assert.Equal(t, "openai", cfg.Oracle.LLM.Provider)
	assert.Equal(t, "bolt://graph:7687", cfg.Memgraph.URI)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("POWERMATCH_MAX_CONCURRENCY", "many")
	assert.Error(t, Default().ApplyEnv())
}
