package flowstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/c360/eipcanvas/errors"
)

// SQLiteBackend stores records in the flows table of a SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	ownsDB bool
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLiteBackend opens the database file at path and prepares the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "OpenSQLiteBackend", "open database")
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	b, err := NewSQLiteBackend(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	b.ownsDB = true
	return b, nil
}

// NewSQLiteBackend prepares the schema in db. The caller keeps ownership of
// db and must import a SQLite driver.
func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*SQLiteBackend, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS flows (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "NewSQLiteBackend", "create schema")
	}
	return &SQLiteBackend{db: db}, nil
}

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return "sqlite" }

// Put implements Backend.
func (b *SQLiteBackend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO flows (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.WrapTransient(err, "flowstore", "SQLiteBackend.Put", "upsert "+key)
	}
	return nil
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM flows WHERE key = ?`, key).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "SQLiteBackend.Get", "select "+key)
	}
	return data, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM flows WHERE key = ?`, key); err != nil {
		return errors.WrapTransient(err, "flowstore", "SQLiteBackend.Delete", "delete "+key)
	}
	return nil
}

// Close closes the database when the backend opened it.
func (b *SQLiteBackend) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}
