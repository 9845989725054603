package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// language=SQL
const (
	upsertSessionSQL = `
INSERT INTO sessions (id, title, created_at, updated_at, scale, origin_x, origin_y)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	updated_at = excluded.updated_at,
	scale = excluded.scale,
	origin_x = excluded.origin_x,
	origin_y = excluded.origin_y`

	insertImageSQL = `
INSERT INTO session_images (session_id, id, ord, title, prompt, aspect_ratio, x, y, mime_type, data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id, title, created_at, updated_at, scale, origin_x, origin_y
FROM sessions WHERE id = ?`

	selectImagesSQL = `
SELECT id, title, prompt, aspect_ratio, x, y, mime_type, data
FROM session_images WHERE session_id = ? ORDER BY ord`

	listSessionsSQL = `
SELECT s.id, s.title, s.created_at, s.updated_at, COUNT(i.id)
FROM sessions s LEFT JOIN session_images i ON i.session_id = s.id
GROUP BY s.id, s.title, s.created_at, s.updated_at
ORDER BY s.updated_at DESC`

	deleteImagesSQL  = `DELETE FROM session_images WHERE session_id = ?`
	deleteSessionSQL = `DELETE FROM sessions WHERE id = ?`
)

// dialect はドライバーごとに異なる型名です。
type dialect struct {
	real string
	blob string
}

func (s *Store) dialect() dialect {
	if s.driver == DriverPostgres {
		return dialect{real: "DOUBLE PRECISION", blob: "BYTEA"}
	}
	return dialect{real: "REAL", blob: "BLOB"}
}

// migrations[v] はスキーマを v-1 から v に上げる DDL です。
func (s *Store) migrations() map[int][]string {
	d := s.dialect()
	return map[int][]string{
		1: {
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	scale      %[1]s NOT NULL DEFAULT 1,
	origin_x   %[1]s NOT NULL DEFAULT 0,
	origin_y   %[1]s NOT NULL DEFAULT 0
)`, d.real),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_images (
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	id           TEXT NOT NULL,
	ord          INTEGER NOT NULL,
	title        TEXT NOT NULL,
	prompt       TEXT NOT NULL,
	aspect_ratio TEXT NOT NULL,
	x            %[1]s NOT NULL,
	y            %[1]s NOT NULL,
	mime_type    TEXT NOT NULL,
	data         %[2]s NOT NULL,
	PRIMARY KEY (session_id, id)
)`, d.real, d.blob),
		},
		2: {
			`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at)`,
		},
	}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var cur int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		cur = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", cur, schemaVersion)
	}

	steps := s.migrations()
	for next := cur + 1; next <= schemaVersion; next++ {
		if err := s.applyMigration(ctx, next, steps[next], cur == 0 && next == 1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, stmts []string, insert bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}
	now := formatTime(time.Now())
	q := `UPDATE schema_version SET version = ?, updated_at = ? WHERE id = 1`
	args := []any{version, now}
	if insert {
		q = `INSERT INTO schema_version (id, version, updated_at) VALUES (1, ?, ?)`
	}
	if _, err := tx.ExecContext(ctx, s.rebind(q), args...); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}
