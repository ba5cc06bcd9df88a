package storage

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"
)

// writeQueue batches Put calls into periodic transactions against
// SQLite. Unlike a time-series append queue, a blob write queue
// coalesces by key: two Puts to the same key before a flush produce
// one row write, keeping the configuration-churn case (a report
// rewriting its own blob on every update) cheap.
type writeQueue struct {
	db            *sql.DB
	flushInterval time.Duration
	batchSize     int

	mu      sync.Mutex
	pending map[string][]byte
	deleted map[string]bool

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

func newWriteQueue(db *sql.DB, flushInterval time.Duration, batchSize int) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &writeQueue{
		db:            db,
		flushInterval: flushInterval,
		batchSize:     batchSize,
		pending:       make(map[string][]byte),
		deleted:       make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (q *writeQueue) Start() error {
	upsert, err := q.db.Prepare(`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	q.upsertStmt = upsert

	del, err := q.db.Prepare(`DELETE FROM blobs WHERE key = ?`)
	if err != nil {
		return err
	}
	q.deleteStmt = del

	q.wg.Add(1)
	go q.run()
	return nil
}

func (q *writeQueue) Stop() {
	q.cancel()
	q.wg.Wait()
	q.flush()
	if q.upsertStmt != nil {
		q.upsertStmt.Close()
	}
	if q.deleteStmt != nil {
		q.deleteStmt.Close()
	}
}

func (q *writeQueue) run() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.flush()
		}
	}
}

// Put enqueues key for an eventual upsert, flushing early if the
// pending batch has grown to batchSize.
func (q *writeQueue) Put(key string, value []byte) {
	q.mu.Lock()
	cp := make([]byte, len(value))
	copy(cp, value)
	q.pending[key] = cp
	delete(q.deleted, key)
	size := len(q.pending)
	q.mu.Unlock()

	if size >= q.batchSize {
		q.flush()
	}
}

// Delete removes key synchronously, so a caller that deletes a report
// and immediately lists reports never observes a stale entry.
func (q *writeQueue) Delete(key string) error {
	q.mu.Lock()
	delete(q.pending, key)
	q.deleted[key] = true
	q.mu.Unlock()

	_, err := q.deleteStmt.Exec(key)
	return err
}

// Overlay returns the pending (not yet flushed) Put value for key and
// whether one exists. Deletes apply synchronously, so none is pending.
func (q *writeQueue) Overlay(key string) (value []byte, has bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.pending[key]
	return v, ok
}

// OverlayKeys returns the pending keys with the given prefix.
func (q *writeQueue) OverlayKeys(prefix string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var keys []string
	for k := range q.pending {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys
}

func (q *writeQueue) flush() {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.pending
	q.pending = make(map[string][]byte)
	q.mu.Unlock()

	if err := q.flushBatch(batch); err != nil {
		log.Printf("storage: failed to flush blob write queue: %v", err)
	}
}

func (q *writeQueue) flushBatch(batch map[string][]byte) error {
	tx, err := q.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := tx.Stmt(q.upsertStmt)
	defer stmt.Close()

	now := time.Now().Unix()
	for key, value := range batch {
		if _, err := stmt.Exec(key, value, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ForceFlush immediately writes every pending Put (for testing).
func (q *writeQueue) ForceFlush() {
	q.flush()
}
