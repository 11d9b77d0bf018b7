// Package dbconn wraps a single *sql.DB handle with the liveness check and
// close-and-reopen reset the monitoring loop and election engine need; the
// asynchronous sample insert and its cancellation are tracked by
// internal/daemon, not here. repmgrd never pools more than the one
// connection each role requires, so Conn owns exactly one *sql.DB per
// instance, never a pool of peers.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"

	// lib/pq registers the "postgres" sql.DB driver.
	_ "github.com/lib/pq"
)

// Conn is a single database connection, identified by its conninfo so it can
// be closed and reopened (Reset) without the caller needing to remember the
// DSN.
type Conn struct {
	conninfo string
	db       *sql.DB
}

// Open dials conninfo and verifies it is reachable.
func Open(ctx context.Context, conninfo string) (*Conn, error) {
	db, err := sql.Open("postgres", conninfo)
	if err != nil {
		return nil, fmt.Errorf("dbconn: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbconn: ping: %w", err)
	}

	return &Conn{conninfo: conninfo, db: db}, nil
}

// DB exposes the underlying *sql.DB for queries.
func (c *Conn) DB() *sql.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Conninfo returns the DSN this connection was (re)opened with, so callers
// that must close and later reopen it — the election engine, notably —
// don't need to remember it separately.
func (c *Conn) Conninfo() string {
	if c == nil {
		return ""
	}
	return c.conninfo
}

// IsOK reports whether the connection currently answers a ping.
func (c *Conn) IsOK(ctx context.Context) bool {
	if c == nil || c.db == nil {
		return false
	}
	return c.db.PingContext(ctx) == nil
}

// Reset closes and reopens the connection against the same conninfo,
// returning an error if the fresh connection is not reachable. The
// monitoring loop calls it on each primary reconnect attempt.
func (c *Conn) Reset(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("dbconn: reset on nil connection")
	}

	if c.db != nil {
		c.db.Close()
	}

	db, err := sql.Open("postgres", c.conninfo)
	if err != nil {
		return fmt.Errorf("dbconn: reset open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("dbconn: reset ping: %w", err)
	}

	c.db = db
	return nil
}

// Close releases the underlying connection. Closing a nil Conn, or a Conn
// whose db is already closed, is a no-op.
func (c *Conn) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
