package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	bucket TEXT NOT NULL,
	key    BLOB NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (bucket, key)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS kv_sequence (
	bucket TEXT PRIMARY KEY,
	value  INTEGER NOT NULL
);
`

// SQLite stores every bucket in one table. BLOB keys compare with memcmp,
// which gives the same ordering as bbolt.
type SQLite struct {
	db   *sql.DB
	path string
}

func openSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't handle multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating kv schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) View(fn func(Tx) error) error {
	return s.run(false, fn)
}

func (s *SQLite) Update(fn func(Tx) error) error {
	return s.run(true, fn)
}

func (s *SQLite) run(writable bool, fn func(Tx) error) (err error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{ctx: ctx, tx: tx, writable: writable}); err != nil {
		return err
	}

	if !writable {
		return tx.Rollback()
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

type sqliteTx struct {
	ctx      context.Context
	tx       *sql.Tx
	writable bool
}

func (t *sqliteTx) Writable() bool {
	return t.writable
}

func (t *sqliteTx) Get(bucket string, key []byte) ([]byte, error) {
	var value []byte

	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM kv WHERE bucket = ? AND key = ?`, bucket, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if value == nil {
		value = []byte{}
	}

	return value, nil
}

func (t *sqliteTx) Put(bucket string, key, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}

	if value == nil {
		value = []byte{}
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO kv (bucket, key, value) VALUES (?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value
	`, bucket, key, value)

	return err
}

func (t *sqliteTx) Delete(bucket string, key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}

	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, bucket, key)

	return err
}

func (t *sqliteTx) Seek(bucket string, key []byte) ([]byte, []byte, error) {
	var row *sql.Row
	if len(key) == 0 {
		row = t.tx.QueryRowContext(t.ctx,
			`SELECT key, value FROM kv WHERE bucket = ? ORDER BY key LIMIT 1`, bucket)
	} else {
		row = t.tx.QueryRowContext(t.ctx,
			`SELECT key, value FROM kv WHERE bucket = ? AND key >= ? ORDER BY key LIMIT 1`, bucket, key)
	}

	var k, v []byte
	if err := row.Scan(&k, &v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}

		return nil, nil, err
	}

	if v == nil {
		v = []byte{}
	}

	return k, v, nil
}

func (t *sqliteTx) Sequence(bucket string) (uint64, error) {
	var seq int64

	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM kv_sequence WHERE bucket = ?`, bucket).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	return uint64(seq), nil
}

func (t *sqliteTx) SetSequence(bucket string, seq uint64) error {
	if !t.writable {
		return ErrReadOnly
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO kv_sequence (bucket, value) VALUES (?, ?)
		ON CONFLICT(bucket) DO UPDATE SET value = excluded.value
	`, bucket, int64(seq))

	return err
}

func (t *sqliteTx) DropBucket(bucket string) error {
	if !t.writable {
		return ErrReadOnly
	}

	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv WHERE bucket = ?`, bucket); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv_sequence WHERE bucket = ?`, bucket)

	return err
}
