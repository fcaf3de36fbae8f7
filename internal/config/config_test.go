package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/hazmat/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestLoadProTierFromEnv(t *testing.T) {
	t.Setenv("HAZMAT_TIER", "pro")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, uint32(5), cfg.Cache.BreakerMaxFailures)
	assert.Equal(t, "nats", cfg.EventBus.Type)
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hazmat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
lexicon:
  path: /etc/hazmat/lexicon.toml
  watch: true
limits:
  maxBatchRecords: 500
batch:
  workers: 2
  budget: 30s
logging:
  format: text
`), 0o644))

	t.Setenv("HAZMAT_SERVER_PORT", "9090")
	t.Setenv("HAZMAT_CACHE_JOBTTL", "15m")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "/etc/hazmat/lexicon.toml", cfg.Lexicon.Path)
	assert.True(t, cfg.Lexicon.Watch)
	assert.Equal(t, 500, cfg.Limits.MaxBatchRecords)
	assert.Equal(t, int64(120<<20), cfg.Limits.MaxBodyBytes, "untouched keys keep defaults")
	assert.Equal(t, 2, cfg.Batch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Batch.Budget)
	assert.Equal(t, 15*time.Minute, cfg.Cache.JobTTL)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("UnknownTier", func(t *testing.T) {
		t.Setenv("HAZMAT_TIER", "enterprise")
		_, err := Load(New(), "")
		assert.ErrorContains(t, err, "unknown tier")
	})

	t.Run("InvalidValues", func(t *testing.T) {
		t.Setenv("HAZMAT_SERVER_PORT", "70000")
		t.Setenv("HAZMAT_CACHE_TYPE", "memcached")
		_, err := Load(New(), "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "server.port")
		assert.ErrorContains(t, err, "cache.type")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*domain.Config)
		want   string
	}{
		{"FileSourceNeedsPath", func(c *domain.Config) { c.Lexicon.Path = "" }, "lexicon.path"},
		{"UnknownSource", func(c *domain.Config) { c.Lexicon.Source = "s3" }, "lexicon.source"},
		{"WatchNeedsFile", func(c *domain.Config) {
			c.Lexicon.Source = domain.LexiconSourceRepository
			c.Lexicon.Watch = true
		}, "lexicon.watch"},
		{"ZeroBatchLimit", func(c *domain.Config) { c.Limits.MaxBatchRecords = 0 }, "limits.maxBatchRecords"},
		{"RateLimitWithoutRate", func(c *domain.Config) { c.RateLimit.RequestsPerSecond = 0 }, "rateLimit.requestsPerSecond"},
		{"UnknownDriver", func(c *domain.Config) { c.Repository.Driver = "mysql" }, "repository.driver"},
		{"UnknownLogLevel", func(c *domain.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	require.NoError(t, Validate(domain.DefaultConfig()))
	require.NoError(t, Validate(domain.ProConfig()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.modify(cfg)
			assert.ErrorContains(t, Validate(cfg), tt.want)
		})
	}
}
