package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend is a Backend over a SQLite file, with writes buffered
// through an async, key-coalescing queue and reads/deletes served
// directly so callers always observe their own writes.
type SQLiteBackend struct {
	db    *sql.DB
	queue *writeQueue
}

// Config configures a SQLiteBackend.
type Config struct {
	DBPath        string
	FlushInterval time.Duration
	BatchSize     int
}

// NewSQLiteBackend opens (creating if absent) the SQLite file at
// cfg.DBPath, runs migrations, and starts the write queue.
func NewSQLiteBackend(cfg Config) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	queue := newWriteQueue(db, cfg.FlushInterval, cfg.BatchSize)
	if err := queue.Start(); err != nil {
		db.Close()
		return nil, fmt.Errorf("start write queue: %w", err)
	}

	return &SQLiteBackend{db: db, queue: queue}, nil
}

// Put enqueues an upsert of key to value.
func (s *SQLiteBackend) Put(key string, value []byte) error {
	s.queue.Put(key, value)
	return nil
}

// Get reads key, checking the pending write overlay first so a Put
// followed immediately by a Get never misses.
func (s *SQLiteBackend) Get(key string) ([]byte, bool, error) {
	if v, ok := s.queue.Overlay(key); ok {
		return v, true, nil
	}

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query blob: %w", err)
	}
	return value, true, nil
}

// Delete removes key from both the database and the pending overlay.
func (s *SQLiteBackend) Delete(key string) error {
	return s.queue.Delete(key)
}

// List returns every key with the given prefix, from the database and
// the pending write overlay combined.
func (s *SQLiteBackend) List(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM blobs WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, k := range s.queue.OverlayKeys(prefix) {
		if strings.HasPrefix(k, prefix) && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close stops the write queue, flushing pending writes, then closes
// the database.
func (s *SQLiteBackend) Close() error {
	if s.queue != nil {
		s.queue.Stop()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
