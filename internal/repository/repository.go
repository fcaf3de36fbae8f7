// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/hazmat/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveLexicon inserts or replaces a lexicon version. The active flag of an
// existing version is preserved unless rec.Active asks to activate it.
func (r *SQLRepository) SaveLexicon(ctx context.Context, rec *domain.LexiconRecord) error {
	if rec == nil || rec.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidInput)
	}
	if len(rec.Document) == 0 {
		return fmt.Errorf("%w: document is required", ErrInvalidInput)
	}
	if rec.Format == "" {
		rec.Format = "json"
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO lexicons (version, notes, format, document, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			notes = excluded.notes,
			format = excluded.format,
			document = excluded.document,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		rec.Version, rec.Notes, rec.Format, string(rec.Document), rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return err
	}

	if rec.Active {
		if err := r.activate(ctx, tx, rec.Version); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetLexicon retrieves one version.
func (r *SQLRepository) GetLexicon(ctx context.Context, version string) (*domain.LexiconRecord, error) {
	query := `
		SELECT version, notes, format, document, active, created_at, updated_at
		FROM lexicons
		WHERE version = ?
	`
	rec, err := scanLexicon(r.db.QueryRowContext(ctx, r.rebind(query), version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// GetActiveLexicon retrieves the active version, or nil, nil if none is active.
func (r *SQLRepository) GetActiveLexicon(ctx context.Context) (*domain.LexiconRecord, error) {
	query := `
		SELECT version, notes, format, document, active, created_at, updated_at
		FROM lexicons
		WHERE active = 1
		LIMIT 1
	`
	rec, err := scanLexicon(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListLexicons lists every version, newest first, without documents.
func (r *SQLRepository) ListLexicons(ctx context.Context) ([]*domain.LexiconRecord, error) {
	query := `
		SELECT version, notes, format, active, created_at, updated_at
		FROM lexicons
		ORDER BY created_at DESC, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.LexiconRecord, 0)
	for rows.Next() {
		var rec domain.LexiconRecord
		var notes sql.NullString
		var active int

		if err := rows.Scan(&rec.Version, &notes, &rec.Format, &active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Notes = notes.String
		rec.Active = active == 1
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// ActivateLexicon makes version the only active one.
func (r *SQLRepository) ActivateLexicon(ctx context.Context, version string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.activate(ctx, tx, version); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLRepository) activate(ctx context.Context, tx *sql.Tx, version string) error {
	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, r.rebind(`UPDATE lexicons SET active = 1, updated_at = ? WHERE version = ?`), now, version)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, r.rebind(`UPDATE lexicons SET active = 0 WHERE version <> ? AND active = 1`), version)
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func scanLexicon(row *sql.Row) (*domain.LexiconRecord, error) {
	var rec domain.LexiconRecord
	var notes sql.NullString
	var document string
	var active int

	if err := row.Scan(&rec.Version, &notes, &rec.Format, &document, &active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Notes = notes.String
	rec.Document = []byte(document)
	rec.Active = active == 1
	return &rec, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var _ domain.Repository = (*SQLRepository)(nil)
