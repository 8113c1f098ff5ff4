package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Retrieval.TopK, cfg.Retrieval.TopK)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  top_k: 8
  alpha: 0.5
  expansion:
    max_variants: 2
agent:
  max_iterations: 3
redis:
  addr: localhost:6379
  session_ttl: 1h
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 0.5, cfg.Retrieval.Alpha)
	assert.Equal(t, 2, cfg.Retrieval.Expansion.MaxVariants)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Memory.MaxHistory, cfg.Memory.MaxHistory)
	assert.Equal(t, Default().Provider.Model, cfg.Provider.Model)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	// t.Setenv is incompatible with t.Parallel.
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 8\n"), 0o644))

	t.Setenv("RAGTUTOR_RETRIEVAL_TOP_K", "12")
	t.Setenv("RAGTUTOR_RETRIEVAL_ALPHA", "0.9")
	t.Setenv("RAGTUTOR_AGENT_USE_MODEL_INTENT", "true")
	t.Setenv("RAGTUTOR_PROVIDER_API_KEY", "sk-test")
	t.Setenv("RAGTUTOR_REDIS_SESSION_TTL", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, 0.9, cfg.Retrieval.Alpha)
	assert.True(t, cfg.Agent.UseModelIntent)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.Redis.SessionTTL)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoadRejectsBadEnvValue(t *testing.T) {
	t.Setenv("RAGTUTOR_RETRIEVAL_TOP_K", "not-a-number")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAGTUTOR_RETRIEVAL_TOP_K")
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"alpha out of range", func(c *Config) { c.Retrieval.Alpha = 1.5 }, "retrieval.alpha"},
		{"non-positive top_k", func(c *Config) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"non-positive iterations", func(c *Config) { c.Agent.MaxIterations = -1 }, "agent.max_iterations"},
		{"non-positive history", func(c *Config) { c.Memory.MaxHistory = 0 }, "memory.max_history"},
		{"threshold below history", func(c *Config) {
			c.Memory.MaxHistory = 10
			c.Memory.SummarizationThreshold = 5
		}, "memory.summarization_threshold"},
		{"non-positive dimensions", func(c *Config) { c.Provider.Dimensions = 0 }, "provider.dimensions"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"json", "console"} {
		for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
			logger := NewLogger(LogConfig{Level: level, Format: format})
			require.NotNil(t, logger)
		}
	}
}
