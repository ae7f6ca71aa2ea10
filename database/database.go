package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"imagededup/logging"
	"imagededup/types"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorage marks failures of the index storage itself. A run cannot
// continue without a durable index, so callers treat it as fatal.
var ErrStorage = errors.New("index storage failure")

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS fingerprints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL UNIQUE,
		path TEXT NOT NULL
	);`

// A uniqueness conflict is the expected outcome for a duplicate, not an error.
const insertSQL = `
	INSERT INTO fingerprints (fingerprint, path) VALUES (?, ?)
	ON CONFLICT(fingerprint) DO NOTHING`

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Index is the durable fingerprint -> path table
type Index struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the index at dbPath and ensures its schema.
// The connection pool is limited to one connection so all writes go through a
// single writer.
func Open(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open "+dbPath, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("open "+dbPath, err)
	}

	idx := &Index{db: db, path: dbPath}
	if err := idx.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// OpenWithRetry retries Open with a linearly growing delay, for indexes on
// slow or briefly locked storage
func OpenWithRetry(dbPath string, attempts int, delay time.Duration) (*Index, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		idx, err := Open(dbPath)
		if err == nil {
			return idx, nil
		}
		lastErr = err
		if i < attempts-1 {
			logging.LogWarning("Error opening index (attempt %d/%d): %v - retrying...", i+1, attempts, err)
			time.Sleep(delay * time.Duration(i+1))
		}
	}
	return nil, lastErr
}

// EnsureSchema creates the fingerprints table if it does not exist
func (idx *Index) EnsureSchema(ctx context.Context) error {
	if _, err := idx.db.ExecContext(ctx, createTableSQL); err != nil {
		return storageErr("create schema", err)
	}
	return nil
}

// Path returns the database file the index lives in
func (idx *Index) Path() string { return idx.path }

// Close closes the underlying database
func (idx *Index) Close() error {
	return idx.db.Close()
}

// TryInsert records fp -> path in its own transaction unless fp is already present
func (idx *Index) TryInsert(ctx context.Context, fp types.Fingerprint, path string) (types.InsertResult, error) {
	batch, err := idx.BeginBatch(ctx)
	if err != nil {
		return types.AlreadyPresent, err
	}
	defer batch.Rollback()

	result, err := batch.TryInsert(ctx, fp, path)
	if err != nil {
		return result, err
	}
	if err := batch.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// Lookup returns the path recorded for fp
func (idx *Index) Lookup(ctx context.Context, fp types.Fingerprint) (string, bool, error) {
	var path string
	err := idx.db.QueryRowContext(ctx, "SELECT path FROM fingerprints WHERE fingerprint = ?", string(fp)).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("lookup", err)
	}
	return path, true, nil
}

// AllEntries returns every entry in insertion order
func (idx *Index) AllEntries(ctx context.Context) ([]types.IndexEntry, error) {
	rows, err := idx.db.QueryContext(ctx, "SELECT id, fingerprint, path FROM fingerprints ORDER BY id")
	if err != nil {
		return nil, storageErr("list entries", err)
	}
	defer rows.Close()

	var entries []types.IndexEntry
	for rows.Next() {
		var entry types.IndexEntry
		var fp string
		if err := rows.Scan(&entry.ID, &fp, &entry.Path); err != nil {
			return nil, storageErr("scan entry", err)
		}
		entry.Fingerprint = types.Fingerprint(fp)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list entries", err)
	}
	return entries, nil
}

// IndexStats contains statistics about the index
type IndexStats struct {
	Entries            int
	UniqueFingerprints int
}

// Stats counts the entries of the index
func (idx *Index) Stats(ctx context.Context) (*IndexStats, error) {
	var stats IndexStats
	err := idx.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT fingerprint) FROM fingerprints",
	).Scan(&stats.Entries, &stats.UniqueFingerprints)
	if err != nil {
		return nil, storageErr("stats", err)
	}
	return &stats, nil
}

// Batch groups insert attempts into one all-or-nothing transaction
type Batch struct {
	tx   *sql.Tx
	stmt *sql.Stmt
	done bool

	Inserted   int
	Duplicates int
}

// BeginBatch starts a write transaction. Only one batch can be open at a time;
// other writers wait for it to finish.
func (idx *Index) BeginBatch(ctx context.Context) (*Batch, error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return nil, storageErr("prepare insert", err)
	}

	return &Batch{tx: tx, stmt: stmt}, nil
}

// TryInsert records fp -> path unless fp is already in the index or earlier
// in this batch
func (b *Batch) TryInsert(ctx context.Context, fp types.Fingerprint, path string) (types.InsertResult, error) {
	res, err := b.stmt.ExecContext(ctx, string(fp), path)
	if err != nil {
		return types.AlreadyPresent, storageErr("insert "+path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return types.AlreadyPresent, storageErr("insert "+path, err)
	}

	if n == 0 {
		b.Duplicates++
		return types.AlreadyPresent, nil
	}
	b.Inserted++
	return types.Inserted, nil
}

// Commit makes every insert of the batch durable
func (b *Batch) Commit() error {
	if b.done {
		return fmt.Errorf("batch already finished")
	}
	b.done = true
	b.stmt.Close()
	if err := b.tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// Rollback discards the batch. It is a no-op after Commit.
func (b *Batch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	b.stmt.Close()
	if err := b.tx.Rollback(); err != nil {
		return storageErr("rollback", err)
	}
	return nil
}
