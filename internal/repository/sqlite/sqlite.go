// Package sqlite implements the repository interfaces using SQLite as the
// persistent record store for users, credentials, and photos.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no C compiler, no CGo, and the same
// driver works on every platform the server is built for.
//
// CONNECTION POOL SIZE:
// The pool is capped at a single connection. SQLite serialises writers anyway,
// and one connection means ":memory:" databases are shared by every query
// (each new connection to ":memory:" would otherwise see an empty database).
// The conditional quota UPDATE relies on this serialisation only for
// throughput, not for correctness: its WHERE clause is what keeps quota >= 0.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sakif/photo-wall/internal/clock"
	"github.com/sakif/photo-wall/internal/repository/sqlite/migrations"
)

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn  *sql.DB
	clock clock.Clock
	ids   clock.IDGenerator
}

// Option customises a DB at construction time.
type Option func(*DB)

// WithClock overrides the clock used for created_at/updated_at stamps.
func WithClock(c clock.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// WithIDGenerator overrides how user and photo IDs are generated.
func WithIDGenerator(g clock.IDGenerator) Option {
	return func(db *DB) { db.ids = g }
}

// New opens the SQLite database at dbPath and brings its schema up to date.
//
// dbPath examples:
//   - "data/wall.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while the admission pipeline writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	db := &DB{
		conn:  conn,
		clock: clock.RealClock{},
		ids:   clock.XIDGenerator{},
	}
	for _, opt := range opts {
		opt(db)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SchemaStatus reports the applied schema version against the embedded one.
func (db *DB) SchemaStatus() (migrations.Status, error) {
	return migrations.CheckStatus(db.conn)
}

// now returns the current time in UTC so stored DATETIME text sorts correctly.
func (db *DB) now() time.Time {
	return db.clock.Now().UTC()
}
