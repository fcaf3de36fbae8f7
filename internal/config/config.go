// Package config layers tier defaults, a config file, HAZMAT_* environment
// variables and bound flags into a domain.Config.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. HAZMAT_SERVER_PORT.
// Nested keys join with "_" and camelCase keys are matched case-insensitively:
// limits.maxBatchRecords is HAZMAT_LIMITS_MAXBATCHRECORDS.
const EnvPrefix = "HAZMAT"

// New returns a viper instance reading HAZMAT_* variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. path may be empty; its extension picks
// the format (yaml, json or toml).
func Load(v *viper.Viper, path string) (*domain.Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	base := domain.DefaultConfig()
	switch domain.Tier(strings.ToLower(v.GetString("tier"))) {
	case "", domain.TierCommunity:
	case domain.TierPro:
		base = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", v.GetString("tier"))
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.readTimeout", c.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", c.Server.WriteTimeout)

	v.SetDefault("lexicon.source", c.Lexicon.Source)
	v.SetDefault("lexicon.path", c.Lexicon.Path)
	v.SetDefault("lexicon.watch", c.Lexicon.Watch)
	v.SetDefault("lexicon.lazyRegex", c.Lexicon.LazyRegex)

	v.SetDefault("limits.maxBatchRecords", c.Limits.MaxBatchRecords)
	v.SetDefault("limits.maxBodyBytes", c.Limits.MaxBodyBytes)

	v.SetDefault("batch.workers", c.Batch.Workers)
	v.SetDefault("batch.budget", c.Batch.Budget)

	v.SetDefault("rateLimit.enabled", c.RateLimit.Enabled)
	v.SetDefault("rateLimit.requestsPerSecond", c.RateLimit.RequestsPerSecond)
	v.SetDefault("rateLimit.burst", c.RateLimit.Burst)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlitePath", c.Repository.SQLitePath)
	v.SetDefault("repository.postgresHost", c.Repository.PostgresHost)
	v.SetDefault("repository.postgresPort", c.Repository.PostgresPort)
	v.SetDefault("repository.postgresUser", c.Repository.PostgresUser)
	v.SetDefault("repository.postgresPassword", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgresDb", c.Repository.PostgresDB)
	v.SetDefault("repository.postgresSslMode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.maxOpenConns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.maxIdleConns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.connMaxLifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.jobTtl", c.Cache.JobTTL)
	v.SetDefault("cache.localMaxSize", c.Cache.LocalMaxSize)
	v.SetDefault("cache.localMaxBytes", c.Cache.LocalMaxBytes)
	v.SetDefault("cache.localTtl", c.Cache.LocalTTL)
	v.SetDefault("cache.redisAddr", c.Cache.RedisAddr)
	v.SetDefault("cache.redisPassword", c.Cache.RedisPassword)
	v.SetDefault("cache.redisDb", c.Cache.RedisDB)
	v.SetDefault("cache.redisKeyPrefix", c.Cache.RedisKeyPrefix)
	v.SetDefault("cache.enableTwoPhase", c.Cache.EnableTwoPhase)
	v.SetDefault("cache.breakerMaxFailures", c.Cache.BreakerMaxFailures)
	v.SetDefault("cache.breakerTimeout", c.Cache.BreakerTimeout)

	v.SetDefault("eventBus.type", c.EventBus.Type)
	v.SetDefault("eventBus.channelBufferSize", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventBus.natsUrl", c.EventBus.NATSUrl)
	v.SetDefault("eventBus.natsToken", c.EventBus.NATSToken)
	v.SetDefault("eventBus.natsMaxReconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventBus.natsReconnectWait", c.EventBus.NATSReconnectWait)
	v.SetDefault("eventBus.natsQueueGroup", c.EventBus.NATSQueueGroup)

	v.SetDefault("worker.enabled", c.Worker.Enabled)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
}

// Validate rejects configurations the service cannot start with.
func Validate(c *domain.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port %d out of range", c.Server.Port)

	switch c.Lexicon.Source {
	case domain.LexiconSourceFile:
		check(c.Lexicon.Path != "", "lexicon.path is required for the file source")
	case domain.LexiconSourceRepository:
		check(!c.Lexicon.Watch, "lexicon.watch only applies to the file source")
	default:
		check(false, "unknown lexicon.source %q", c.Lexicon.Source)
	}

	check(c.Limits.MaxBatchRecords > 0, "limits.maxBatchRecords must be positive")
	check(c.Limits.MaxBodyBytes > 0, "limits.maxBodyBytes must be positive")
	check(c.Batch.Workers >= 0, "batch.workers must not be negative")
	check(c.Batch.Budget >= 0, "batch.budget must not be negative")
	if c.RateLimit.Enabled {
		check(c.RateLimit.RequestsPerSecond > 0, "rateLimit.requestsPerSecond must be positive")
		check(c.RateLimit.Burst > 0, "rateLimit.burst must be positive")
	}

	check(slices.Contains([]string{"sqlite", "postgres"}, c.Repository.Driver), "unknown repository.driver %q", c.Repository.Driver)
	check(slices.Contains([]string{"memory", "redis"}, c.Cache.Type), "unknown cache.type %q", c.Cache.Type)
	check(slices.Contains([]string{"channel", "nats"}, c.EventBus.Type), "unknown eventBus.type %q", c.EventBus.Type)
	check(slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)), "unknown logging.level %q", c.Logging.Level)
	check(slices.Contains([]string{"json", "text"}, c.Logging.Format), "unknown logging.format %q", c.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
