package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"kanban-sync/domain"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS boards (
	id         TEXT NOT NULL PRIMARY KEY,
	version    INTEGER NOT NULL,
	content    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite persists the latest snapshot of each board in a single row.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and ensures the schema.
//
// The database runs in WAL mode with a single connection since SQLite only
// supports one writer at a time.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error) {
	var (
		version int64
		content string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, content FROM boards WHERE id = ?`, boardID).Scan(&version, &content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, false, nil
		}
		return domain.Snapshot{}, false, fmt.Errorf("failed to query board %s: %w", boardID, err)
	}
	var b domain.Board
	if err := json.Unmarshal([]byte(content), &b); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("failed to decode board %s: %w", boardID, err)
	}
	return domain.Snapshot{Version: uint64(version), Board: b}, true, nil
}

func (s *SQLite) Save(ctx context.Context, boardID string, snap domain.Snapshot) error {
	content, err := json.Marshal(snap.Board)
	if err != nil {
		return fmt.Errorf("failed to encode board %s: %w", boardID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO boards (id, version, content, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, content = excluded.content, updated_at = excluded.updated_at`,
		boardID, int64(snap.Version), string(content), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save board %s: %w", boardID, err)
	}
	return nil
}
