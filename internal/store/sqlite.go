package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const schema = `
CREATE TABLE IF NOT EXISTS playlists (
	idx   INTEGER PRIMARY KEY,
	key   TEXT NOT NULL UNIQUE,
	entry TEXT NOT NULL
);`

// sqliteBackend stores one row per entry, the entry itself as a JSON document.
type sqliteBackend struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the SQLite database at path.
func NewSQLite(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	// One writer; the Store mutex already serializes us.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return newStore(&sqliteBackend{db: db}), nil
}

func (b *sqliteBackend) name() string { return "sqlite" }
func (b *sqliteBackend) close() error { return b.db.Close() }

func (b *sqliteBackend) load(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT entry FROM playlists ORDER BY idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("sqlite: decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// save replaces the table contents in one transaction.
func (b *sqliteBackend) save(ctx context.Context, entries []Entry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlists`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO playlists (idx, key, entry) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		doc, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.Session.Index, e.Session.Key().String(), string(doc)); err != nil {
			return fmt.Errorf("insert %s: %w", e.Session.Key(), err)
		}
	}
	return tx.Commit()
}
