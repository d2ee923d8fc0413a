package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	// A missing explicit config path is an error.
	_, err := Load()
	require.Error(t, err)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
http:
  address: ":9090"
llm:
  model: gpt-4o-2024-08-06
postgres:
  dsn: postgres://localhost/app
pipeline:
  similarityThreshold: 0.2
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_ADDRESS", ":7070")
	t.Setenv("PIPELINE_CANDIDATE_LIMIT", "8")
	t.Setenv("TRENDING_REDIS_ENABLED", "true")
	t.Setenv("TRENDING_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	// env overrides beat the file
	require.Equal(t, ":7070", cfg.HTTP.Address)
	require.Equal(t, 0.2, cfg.Pipeline.SimilarityThreshold)
	require.Equal(t, 8, cfg.Pipeline.CandidateLimit)
	require.Equal(t, "postgres://localhost/app", cfg.Postgres.DSN)
	require.True(t, cfg.Trending.Redis.Enabled)

	// untouched values keep their defaults
	require.Equal(t, 384, cfg.Embedding.Dimensions)
	require.Equal(t, 120*time.Second, cfg.HTTP.WriteTimeout)
	require.Contains(t, cfg.HTTP.Retry.Exclude, "/api/v1/queries")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.HTTP.Address = "" }},
		{"empty model", func(c *Config) { c.LLM.Model = " " }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"negative threshold", func(c *Config) { c.Pipeline.SimilarityThreshold = -0.1 }},
		{"zero candidate limit", func(c *Config) { c.Pipeline.CandidateLimit = 0 }},
		{"redis enabled without addr", func(c *Config) { c.Trending.Redis.Enabled = true; c.Trending.Redis.Addr = "" }},
		{"auth enabled without secret", func(c *Config) { c.HTTP.Auth.Enabled = true; c.HTTP.Auth.Secret = "" }},
	}
	for _, tc := range cases {
		cfg := defaultConfig()
		tc.mutate(cfg)
		require.Error(t, cfg.Validate(), tc.name)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, defaultConfig().Validate())
}
