// Package sqlitestore persists configuration trees in SQLite.
package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-stored/pkg/state"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS stored_trees (
	ref         TEXT PRIMARY KEY,
	data_json   TEXT NOT NULL,
	snapshot_id TEXT NOT NULL DEFAULT '',
	etag        TEXT NOT NULL DEFAULT '',
	extra_json  TEXT NOT NULL DEFAULT '{}',
	updated_at  INTEGER NOT NULL
)`

// Store is a state.Store backed by one SQLite row per ref.
type Store struct {
	sqlDB *sql.DB
}

var _ state.Store = (*Store)(nil)

// Open opens (creating when needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state: sqlite: storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: sqlite: create storage dir: %w", err)
		}
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: sqlite: open db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("state: sqlite: ping db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("state: sqlite: create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Load(ctx context.Context, ref state.Ref) (map[string]any, state.Meta, bool, error) {
	if s == nil || s.sqlDB == nil {
		return nil, state.Meta{}, false, fmt.Errorf("state: sqlite: storage is not configured")
	}
	key, err := ref.Identifier()
	if err != nil {
		return nil, state.Meta{}, false, err
	}
	return s.load(ctx, s.sqlDB, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) load(ctx context.Context, q queryer, key string) (map[string]any, state.Meta, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT data_json, snapshot_id, etag, extra_json, updated_at FROM stored_trees WHERE ref = ?`,
		key,
	)

	var (
		dataJSON  string
		extraJSON string
		updatedAt int64
		meta      state.Meta
	)
	if err := row.Scan(&dataJSON, &meta.SnapshotID, &meta.ETag, &extraJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, state.Meta{}, false, nil
		}
		return nil, state.Meta{}, false, fmt.Errorf("state: sqlite: load tree: %w", err)
	}

	data, err := decodeTree(dataJSON)
	if err != nil {
		return nil, state.Meta{}, false, fmt.Errorf("state: sqlite: decode tree %s: %w", key, err)
	}
	if extraJSON != "" && extraJSON != "{}" {
		if err := json.Unmarshal([]byte(extraJSON), &meta.Extra); err != nil {
			return nil, state.Meta{}, false, fmt.Errorf("state: sqlite: decode meta %s: %w", key, err)
		}
	}
	meta.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return data, meta, true, nil
}

// Save upserts the tree inside a transaction so the ETag check and the write
// see the same row.
func (s *Store) Save(ctx context.Context, ref state.Ref, data map[string]any, meta state.Meta) (state.Meta, error) {
	if s == nil || s.sqlDB == nil {
		return state.Meta{}, fmt.Errorf("state: sqlite: storage is not configured")
	}
	key, err := ref.Identifier()
	if err != nil {
		return state.Meta{}, err
	}
	if data == nil {
		data = map[string]any{}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return state.Meta{}, fmt.Errorf("state: sqlite: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, current, ok, err := s.load(ctx, tx, key)
	if err != nil {
		return state.Meta{}, err
	}
	if ok {
		if err := state.CheckETag(meta.ETag, current.ETag); err != nil {
			return state.Meta{}, err
		}
	}

	etag, err := state.ComputeETag(data)
	if err != nil {
		return state.Meta{}, err
	}
	saved := meta
	saved.ETag = etag
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = time.Now().UTC()
	}
	saved.UpdatedAt = saved.UpdatedAt.Truncate(time.Millisecond)

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return state.Meta{}, fmt.Errorf("state: sqlite: encode tree %s: %w", key, err)
	}
	extraJSON := []byte("{}")
	if len(saved.Extra) > 0 {
		if extraJSON, err = json.Marshal(saved.Extra); err != nil {
			return state.Meta{}, fmt.Errorf("state: sqlite: encode meta %s: %w", key, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO stored_trees (ref, data_json, snapshot_id, etag, extra_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET
		    data_json = excluded.data_json,
		    snapshot_id = excluded.snapshot_id,
		    etag = excluded.etag,
		    extra_json = excluded.extra_json,
		    updated_at = excluded.updated_at`,
		key, string(dataJSON), saved.SnapshotID, saved.ETag, string(extraJSON), saved.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return state.Meta{}, fmt.Errorf("state: sqlite: save tree: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return state.Meta{}, fmt.Errorf("state: sqlite: commit save: %w", err)
	}
	return saved, nil
}

func decodeTree(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
