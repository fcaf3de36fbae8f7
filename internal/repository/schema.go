package repository

// Schema definitions for the hazmat database.
// Compatible with both SQLite and PostgreSQL.

// schemaLexicons stores every imported lexicon document by version.
// At most one row has active = 1.
const schemaLexicons = `
CREATE TABLE IF NOT EXISTS lexicons (
    version TEXT PRIMARY KEY,
    notes TEXT,
    format TEXT NOT NULL,
    document TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lexicons_active ON lexicons(active);
CREATE INDEX IF NOT EXISTS idx_lexicons_created ON lexicons(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLexicons,
	}
}
