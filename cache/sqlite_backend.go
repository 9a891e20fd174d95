package cache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists entries to a single-table sqlite database at the
// path configured by Config.Database.Path (default .cache/data.db),
// grounded in the teacher's CockroachStore but adapted to the embedded,
// single-process sqlite driver the rest of the retrieval pack favors for
// local key-value persistence.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) a sqlite-backed cache at
// path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("cache: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// The cache is written from a single Cache goroutine-safe mutex; sqlite
	// only needs one writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint   TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	parameters    TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	user_prompt   TEXT NOT NULL,
	output        TEXT NOT NULL,
	iteration     INTEGER NOT NULL,
	timestamp     INTEGER NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(fingerprint string) (Entry, bool) {
	row := b.db.QueryRow(`
		SELECT model, parameters, system_prompt, user_prompt, output, iteration, timestamp
		FROM cache_entries WHERE fingerprint = ?`, fingerprint)

	var e Entry
	if err := row.Scan(&e.Model, &e.Parameters, &e.SystemPrompt, &e.UserPrompt, &e.Output, &e.Iteration, &e.Timestamp); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (b *SQLiteBackend) Put(fingerprint string, entry Entry) error {
	_, err := b.db.Exec(`
		INSERT INTO cache_entries (fingerprint, model, parameters, system_prompt, user_prompt, output, iteration, timestamp)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			output = excluded.output,
			timestamp = excluded.timestamp`,
		fingerprint, entry.Model, entry.Parameters, entry.SystemPrompt, entry.UserPrompt, entry.Output, entry.Iteration, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", fingerprint, err)
	}
	return nil
}

func (b *SQLiteBackend) All() (map[string]Entry, error) {
	rows, err := b.db.Query(`SELECT fingerprint, model, parameters, system_prompt, user_prompt, output, iteration, timestamp FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var fp string
		var e Entry
		if err := rows.Scan(&fp, &e.Model, &e.Parameters, &e.SystemPrompt, &e.UserPrompt, &e.Output, &e.Iteration, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("cache: scan: %w", err)
		}
		out[fp] = e
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
