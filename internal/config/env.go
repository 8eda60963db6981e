package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overrides configuration values from POWERMATCH_* environment variables.
//
// Environment variables:
//   - POWERMATCH_LOG_LEVEL
//   - POWERMATCH_CACHED_ONLY
//   - POWERMATCH_MAX_CONCURRENCY
//   - POWERMATCH_ORACLE_TIMEOUT_SECS
//   - POWERMATCH_RATE_PER_SECOND
//   - POWERMATCH_ORACLE_KIND, POWERMATCH_ORACLE_THRESHOLD
//   - LLM_PROVIDER, LLM_MODEL, LLM_API_KEY, LLM_BASE_URL
//   - MEMGRAPH_URI, MEMGRAPH_USER, MEMGRAPH_PASSWORD
//   - POWERMATCH_SQLITE_PATH, POWERMATCH_CACHE_DIR, PORT
func (c *Config) ApplyEnv() error {
	overrideString("POWERMATCH_LOG_LEVEL", &c.Run.LogLevel)
	overrideString("POWERMATCH_ORACLE_KIND", &c.Oracle.Kind)
	overrideString("LLM_PROVIDER", &c.Oracle.LLM.Provider)
	overrideString("LLM_MODEL", &c.Oracle.LLM.Model)
	overrideString("LLM_API_KEY", &c.Oracle.LLM.APIKey)
	overrideString("LLM_BASE_URL", &c.Oracle.LLM.BaseURL)
	overrideString("MEMGRAPH_URI", &c.Memgraph.URI)
	overrideString("MEMGRAPH_USER", &c.Memgraph.User)
	overrideString("MEMGRAPH_PASSWORD", &c.Memgraph.Password)
	overrideString("POWERMATCH_SQLITE_PATH", &c.Store.SQLitePath)
	overrideString("POWERMATCH_CACHE_DIR", &c.Cache.Dir)
	overrideString("PORT", &c.Server.Port)

	if err := parseEnvBool("POWERMATCH_CACHED_ONLY", &c.Run.CachedOnly); err != nil {
		return err
	}
	if err := parseEnvInt("POWERMATCH_MAX_CONCURRENCY", &c.Matching.MaxConcurrency); err != nil {
		return err
	}
	if err := parseEnvInt("POWERMATCH_ORACLE_TIMEOUT_SECS", &c.Matching.OracleTimeoutSecs); err != nil {
		return err
	}
	if err := parseEnvFloat("POWERMATCH_RATE_PER_SECOND", &c.Matching.RatePerSecond); err != nil {
		return err
	}
	if err := parseEnvFloat("POWERMATCH_ORACLE_THRESHOLD", &c.Oracle.Threshold); err != nil {
		return err
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return nil
}

func overrideString(key string, dest *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dest = v
	}
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
