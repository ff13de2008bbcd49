package persona

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCache keeps the last persona resolved per identity key so a bot
// can keep its character when the remote source is unreachable.
type SQLiteCache struct {
	db *sql.DB
}

func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create persona cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCache{db: db}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS personas (
			identity_key TEXT PRIMARY KEY,
			persona_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("init persona cache: %w", err)
		}
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *SQLiteCache) Get(ctx context.Context, identityKey string) (*Persona, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT persona_json
FROM personas
WHERE identity_key = ?`, normalizeKey(identityKey))
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cached persona %q: %w", identityKey, ErrNotFound)
		}
		return nil, fmt.Errorf("get cached persona: %w", err)
	}
	var p Persona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode cached persona: %w", err)
	}
	return &p, nil
}

func (c *SQLiteCache) Save(ctx context.Context, identityKey string, p Persona) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO personas(identity_key, persona_json, updated_at_ms)
VALUES(?, ?, ?)
ON CONFLICT(identity_key) DO UPDATE SET
	persona_json = excluded.persona_json,
	updated_at_ms = excluded.updated_at_ms`,
		normalizeKey(identityKey),
		string(raw),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save persona: %w", err)
	}
	return nil
}
