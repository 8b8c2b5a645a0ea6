package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection pool backing the tournament cache.
type Store struct {
	conn *sql.DB
	path string

	// writeMu serializes every mutation in this process.
	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}

	now    func() time.Time
	logger *log.Logger

	closeOnce sync.Once
}

// Open opens (or creates) the cache database at path and migrates the schema
// to the latest version.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	st, err := store.Open("/home/me/.local/share/tourney/tourney.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support for the initial migration.
func OpenContext(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		subs:   make(map[*Subscription]struct{}),
		now:    time.Now,
		logger: log.New(os.Stderr, "[store] ", log.LstdFlags),
	}

	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// SetLogger replaces the logger used for non-fatal warnings.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close checkpoints the WAL, ends every subscription and closes the pool.
// Calling Close more than once is a no-op.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.subsMu.Lock()
		for sub := range s.subs {
			sub.closeLocked()
		}
		s.subs = make(map[*Subscription]struct{})
		s.subsMu.Unlock()

		// Checkpoint WAL before closing
		if _, cerr := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); cerr != nil {
			s.logger.Printf("Warning: failed to checkpoint WAL: %v", cerr)
		}

		if cerr := s.conn.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	})
	return err
}

// Shutdown is Close under the name dependency containers call on release.
func (s *Store) Shutdown() error {
	return s.Close()
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, wrap("schema version", err)
	}
	return v, nil
}

// migrations are applied in order; entry i upgrades version i to i+1.
// Only ever append to this list.
var migrations = []string{
	// 1: base table
	`
	CREATE TABLE IF NOT EXISTS tournaments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_date INTEGER NOT NULL,  -- unix millis
		end_date INTEGER NOT NULL,
		participants_count INTEGER NOT NULL DEFAULT 0,
		prize_pool REAL NOT NULL DEFAULT 0,
		is_registration_open INTEGER NOT NULL DEFAULT 0,
		winner TEXT,
		status TEXT NOT NULL DEFAULT 'UPCOMING',
		user_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		last_updated INTEGER NOT NULL
	);
	`,
	// 2: pending flag
	`ALTER TABLE tournaments ADD COLUMN has_pending_changes INTEGER NOT NULL DEFAULT 0;`,
	// 3: device-side location
	`
	ALTER TABLE tournaments ADD COLUMN latitude REAL;
	ALTER TABLE tournaments ADD COLUMN longitude REAL;
	`,
	// 4: draft flag and query indexes
	`
	ALTER TABLE tournaments ADD COLUMN local_only INTEGER NOT NULL DEFAULT 0;
	CREATE INDEX IF NOT EXISTS idx_tournaments_pending ON tournaments(has_pending_changes);
	CREATE INDEX IF NOT EXISTS idx_tournaments_order ON tournaments(start_date DESC, name ASC);
	`,
	// 5: delivered notification log
	`
	CREATE TABLE IF NOT EXISTS notification_log (
		dedupe_id TEXT PRIMARY KEY,
		tournament_key TEXT NOT NULL,
		category TEXT NOT NULL,
		notified_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notification_log_key ON notification_log(tournament_key);
	`,
}

// LatestSchemaVersion is the version a freshly opened store ends up at.
var LatestSchemaVersion = len(migrations)

func (s *Store) migrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return wrap("migrate", fmt.Errorf("failed to begin transaction: %w", err))
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return wrap("migrate", fmt.Errorf("failed to apply migration %d: %w", v+1, err))
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			_ = tx.Rollback()
			return wrap("migrate", fmt.Errorf("failed to record schema version %d: %w", v+1, err))
		}
		if err := tx.Commit(); err != nil {
			return wrap("migrate", fmt.Errorf("failed to commit migration %d: %w", v+1, err))
		}
	}

	return nil
}
