// Package cache implements the local persistent cache: a normalized,
// query-addressable object store backed by an embedded SQLite database.
// It is the single source of truth for rendering and the substrate the
// offline resolvers and the reconciliation routine operate on.
//
// Two address spaces exist: query results (signature + variables) and
// fragments (per-entity cache keys built by noteid.CacheKey). Writes are
// whole-row replacements; a reader sees an entity entirely before or
// entirely after a write, never a mix. The store is opened with a single
// writer connection so fragment writes serialize per key.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Store is the local cache store contract consumed by the resolvers, the
// connectivity state machine, and the reconciliation routine.
type Store interface {
	ReadQuery(ctx context.Context, sig, vars string) (json.RawMessage, error)
	WriteQuery(ctx context.Context, sig, vars string, data json.RawMessage) error
	EvictQueries(ctx context.Context, sigPrefix string) (int64, error)

	ReadFragment(ctx context.Context, key string) (json.RawMessage, error)
	WriteFragment(ctx context.Context, key string, data json.RawMessage) error
	DeleteFragment(ctx context.Context, key string) error
	ListFragmentKeys(ctx context.Context, keyPrefix string) ([]string, error)

	Restored() <-chan struct{}
	Close() error
}

// SQLiteStore implements Store over an embedded SQLite database with WAL
// mode. Use ":memory:" as the path in tests.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	queryStmts    queryStatements
	fragmentStmts fragmentStatements

	restored chan struct{}
	closed   atomic.Bool
}

type queryStatements struct {
	read, write *sql.Stmt
}

type fragmentStatements struct {
	read, write, delete, listKeys *sql.Stmt
}

// Open creates a SQLiteStore at dbPath, applies migrations, and prepares
// all repeated statements. The returned store's Restored channel is already
// closed: startup restore completes before Open returns. Callers that model
// an asynchronous restore (the watch loop) gate on Restored anyway.
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening local cache database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}

	// Sole-writer: fragment writes must serialize per key, and SQLite's
	// single connection gives that for free.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger, restored: make(chan struct{})}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: prepare statements: %w", err)
	}

	close(s.restored)
	logger.Info("local cache database ready", "path", dbPath)

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("cache: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// --- SQL query constants ---

const (
	sqlReadQuery = `SELECT data FROM query_results WHERE sig = ? AND vars = ?`

	sqlWriteQuery = `INSERT INTO query_results (sig, vars, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sig, vars) DO UPDATE
		SET data = excluded.data, updated_at = excluded.updated_at`

	sqlReadFragment = `SELECT data FROM fragments WHERE key = ?`

	sqlWriteFragment = `INSERT INTO fragments (key, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE
		SET data = excluded.data, updated_at = excluded.updated_at`

	sqlDeleteFragment = `DELETE FROM fragments WHERE key = ?`

	sqlListFragmentKeys = `SELECT key FROM fragments
		WHERE key LIKE ? ESCAPE '\' ORDER BY updated_at, key`
)

// stmtDef maps a SQL string to the prepared statement pointer it should populate.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *SQLiteStore) prepareStatements(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.queryStmts.read, sqlReadQuery, "readQuery"},
		{&s.queryStmts.write, sqlWriteQuery, "writeQuery"},
		{&s.fragmentStmts.read, sqlReadFragment, "readFragment"},
		{&s.fragmentStmts.write, sqlWriteFragment, "writeFragment"},
		{&s.fragmentStmts.delete, sqlDeleteFragment, "deleteFragment"},
		{&s.fragmentStmts.listKeys, sqlListFragmentKeys, "listFragmentKeys"},
	})
}

// --- Query result methods ---

// ReadQuery retrieves a cached query result by signature and variables.
// Returns (nil, nil) if nothing is cached — callers use the nil data to
// distinguish "never fetched" from "cached empty result".
func (s *SQLiteStore) ReadQuery(ctx context.Context, sig, vars string) (json.RawMessage, error) {
	s.logger.Debug("reading cached query", "sig", sig, "vars", vars)

	var data []byte

	err := s.queryStmts.read.QueryRowContext(ctx, sig, vars).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("cache: read query %s: %w", sig, err)
	}

	return json.RawMessage(data), nil
}

// WriteQuery stores a query result, replacing any previous value for the
// same signature and variables.
func (s *SQLiteStore) WriteQuery(ctx context.Context, sig, vars string, data json.RawMessage) error {
	s.logger.Debug("writing cached query", "sig", sig, "vars", vars, "bytes", len(data))

	_, err := s.queryStmts.write.ExecContext(ctx, sig, vars, []byte(data), nowNano())
	if err != nil {
		return fmt.Errorf("cache: write query %s: %w", sig, err)
	}

	return nil
}

// EvictQueries removes all cached query results whose signature starts with
// sigPrefix. Used when a one-shot prefetch query's result must not linger.
// Returns the number of rows evicted.
func (s *SQLiteStore) EvictQueries(ctx context.Context, sigPrefix string) (int64, error) {
	s.logger.Debug("evicting cached queries", "sig_prefix", sigPrefix)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM query_results WHERE sig LIKE ? ESCAPE '\'`,
		likePrefixPattern(sigPrefix))
	if err != nil {
		return 0, fmt.Errorf("cache: evict queries %q: %w", sigPrefix, err)
	}

	affected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		s.logger.Warn("could not read rows affected", "error", rowsErr)
	}

	s.logger.Debug("evicted cached queries", "sig_prefix", sigPrefix, "evicted", affected)

	return affected, nil
}

// --- Fragment methods ---

// ReadFragment retrieves an entity fragment by cache key. Returns (nil, nil)
// if the key is absent — the resolver layer maps that to its NotFound error.
func (s *SQLiteStore) ReadFragment(ctx context.Context, key string) (json.RawMessage, error) {
	s.logger.Debug("reading fragment", "key", key)

	var data []byte

	err := s.fragmentStmts.read.QueryRowContext(ctx, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("cache: read fragment %s: %w", key, err)
	}

	return json.RawMessage(data), nil
}

// WriteFragment stores an entity fragment, replacing the whole row. Partial
// field updates are not supported: callers construct the full new value.
func (s *SQLiteStore) WriteFragment(ctx context.Context, key string, data json.RawMessage) error {
	s.logger.Debug("writing fragment", "key", key, "bytes", len(data))

	_, err := s.fragmentStmts.write.ExecContext(ctx, key, []byte(data), nowNano())
	if err != nil {
		return fmt.Errorf("cache: write fragment %s: %w", key, err)
	}

	return nil
}

// DeleteFragment removes an entity fragment. Deleting an absent key is not
// an error.
func (s *SQLiteStore) DeleteFragment(ctx context.Context, key string) error {
	s.logger.Debug("deleting fragment", "key", key)

	_, err := s.fragmentStmts.delete.ExecContext(ctx, key)
	if err != nil {
		return fmt.Errorf("cache: delete fragment %s: %w", key, err)
	}

	return nil
}

// ListFragmentKeys returns all fragment keys with the given prefix, in
// insertion order. The unsynced-set scan uses this with a type-name prefix.
func (s *SQLiteStore) ListFragmentKeys(ctx context.Context, keyPrefix string) ([]string, error) {
	s.logger.Debug("listing fragment keys", "key_prefix", keyPrefix)

	rows, err := s.fragmentStmts.listKeys.QueryContext(ctx, likePrefixPattern(keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("cache: list fragment keys %q: %w", keyPrefix, err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("cache: scan fragment key: %w", err)
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterate fragment keys: %w", err)
	}

	return keys, nil
}

// likePrefixPattern escapes LIKE metacharacters in prefix and appends the
// wildcard, so "exp_" matches literally rather than as a single-char pattern.
func likePrefixPattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

// --- Lifecycle ---

// Restored returns a channel closed once the startup restore has finished.
// Reads issued before restore completes would observe an empty cache, so
// the connectivity state machine waits on this before CachePersisted.
func (s *SQLiteStore) Restored() <-chan struct{} {
	return s.restored
}

// Checkpoint forces a WAL checkpoint to consolidate the WAL file into the
// main database.
func (s *SQLiteStore) Checkpoint() error {
	s.logger.Debug("running WAL checkpoint")

	_, err := s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("cache: wal checkpoint: %w", err)
	}

	return nil
}

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.logger.Info("closing local cache database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("cache: close database: %w", err)
	}

	return nil
}

// closeStatements closes all prepared statements, collecting errors.
func (s *SQLiteStore) closeStatements() error {
	stmts := []*sql.Stmt{
		s.queryStmts.read, s.queryStmts.write,
		s.fragmentStmts.read, s.fragmentStmts.write,
		s.fragmentStmts.delete, s.fragmentStmts.listKeys,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cache: close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}

// nowNano returns the current time as Unix nanoseconds, the timestamp
// representation used throughout the store.
func nowNano() int64 {
	return time.Now().UnixNano()
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
