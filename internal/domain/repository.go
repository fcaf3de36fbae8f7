// Package domain defines the core interfaces and types for hazmat.
package domain

import (
	"context"
	"time"
)

// LexiconRecord is a stored lexicon document version.
type LexiconRecord struct {
	Version   string    `json:"version"`
	Notes     string    `json:"notes,omitempty"`
	Format    string    `json:"format"` // json, yaml or toml
	Document  []byte    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository stores versioned lexicon documents. At most one version is
// active at a time; the active version is what the service loads.
type Repository interface {
	// Lexicon operations
	SaveLexicon(ctx context.Context, rec *LexiconRecord) error
	GetLexicon(ctx context.Context, version string) (*LexiconRecord, error)
	GetActiveLexicon(ctx context.Context) (*LexiconRecord, error)
	ListLexicons(ctx context.Context) ([]*LexiconRecord, error)
	ActivateLexicon(ctx context.Context, version string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
