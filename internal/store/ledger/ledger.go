package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"deltabot/internal/model"
)

// DB wraps the SQLite database holding the award ledger. Deltaboard
// counts are never stored; they are recomputed from the ledger on every
// read, so a crash between a ledger write and a document publish cannot
// corrupt ranks.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS deltas (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  username TEXT NOT NULL,
	  source_comment_id TEXT NOT NULL UNIQUE,
	  awarded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deltas_awarded_at ON deltas(awarded_at);
	CREATE INDEX IF NOT EXISTS idx_deltas_username ON deltas(username);
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

// AddDelta appends a ledger entry for username keyed by the awarding
// comment's id. Inserting the same source comment twice is a no-op;
// the UNIQUE constraint is the double-count guard. Returns whether a
// new entry was written.
func (d *DB) AddDelta(ctx context.Context, username, sourceCommentID string, awardedAt time.Time) (bool, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO deltas(username, source_comment_id, awarded_at) VALUES(?,?,?)
		 ON CONFLICT(source_comment_id) DO NOTHING`,
		username, sourceCommentID, awardedAt.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveDelta deletes the ledger entry for a source comment. Returns
// whether an entry existed.
func (d *DB) RemoveDelta(ctx context.Context, sourceCommentID string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM deltas WHERE source_comment_id=?`, sourceCommentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasDelta reports whether a ledger entry exists for a source comment.
func (d *DB) HasDelta(ctx context.Context, sourceCommentID string) (bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT 1 FROM deltas WHERE source_comment_id=?`, sourceCommentID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountsWithin returns per-user award counts for awarded_at in
// [start, end), ordered by count descending then username ascending so
// callers get a deterministic ranking order.
func (d *DB) CountsWithin(ctx context.Context, start, end time.Time) ([]model.UserCount, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT username, COUNT(*) FROM deltas WHERE awarded_at>=? AND awarded_at<?
		 GROUP BY username ORDER BY COUNT(*) DESC, username ASC`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserCount
	for rows.Next() {
		var uc model.UserCount
		if err := rows.Scan(&uc.Username, &uc.Count); err != nil {
			return nil, err
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}

// SaveCursor stores an opaque resume marker under key.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO cursors(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}

// LoadCursor returns the stored value for key, or an error if absent.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}
