package pagestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores page bodies as rows in a single-table, cgo-free
// SQLite database. Grounded on the teacher's benchmarks/storage_benchmark_test.go
// openSQLite helper (database/sql over the modernc.org/sqlite driver, WAL
// journal mode plus relaxed synchronous for throughput) — the teacher only
// exercised modernc.org/sqlite as a benchmark comparison point, never wired
// it into tinySQL's own storage-backend interface; this backend gives it
// that home against PageStorage instead.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) a SQLite database at path
// and ensures its pages table exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pagestore: sqlite backend: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pagestore: sqlite backend: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pagestore: sqlite backend: set synchronous mode: %w", err)
	}
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS pages (key TEXT PRIMARY KEY, data BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pagestore: sqlite backend: create pages table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) Save(key string, data []byte) error {
	cp := append([]byte(nil), data...)
	if _, err := b.db.Exec(
		"INSERT INTO pages(key, data) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET data = excluded.data",
		key, cp,
	); err != nil {
		return fmt.Errorf("pagestore: sqlite backend: save %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Load(key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow("SELECT data FROM pages WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pagestore: sqlite backend: %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("pagestore: sqlite backend: load %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("pagestore: sqlite backend: %s returned empty body", key)
	}
	return append([]byte(nil), data...), nil
}

func (b *SQLiteBackend) Delete(key string) error {
	if _, err := b.db.Exec("DELETE FROM pages WHERE key = ?", key); err != nil {
		return fmt.Errorf("pagestore: sqlite backend: delete %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Exists(key string) (bool, error) {
	var n int
	err := b.db.QueryRow("SELECT 1 FROM pages WHERE key = ?", key).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pagestore: sqlite backend: exists %s: %w", key, err)
	}
	return true, nil
}
