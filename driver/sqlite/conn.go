// Package sqlite wraps github.com/mattn/go-sqlite3's exported
// database/sql/driver-compatible types directly, with no database/sql
// in between, the same way driver/postgres and driver/mysql own their
// wire protocols end to end rather than going through a generic driver
// registry. go-sqlite3 links against cgo SQLite, so this package's
// "wire protocol" is a C function-call boundary instead of a socket;
// the shape of Conn/Tx/PreparedStatement stays identical to the
// network drivers regardless.
package sqlite

import (
	"database/sql/driver"
	"fmt"
	"net/url"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
)

// Conn is one SQLite connection (SQLite has no server process to pool
// connections against; each Conn owns its own database handle).
type Conn struct {
	mu  sync.Mutex
	raw *sqlite3.SQLiteConn
	cfg conn.SQLiteConfig
}

// Open opens the database file (or in-memory database) named by
// cfg.Path and applies cfg's pragmas via DSN query parameters, the way
// go-sqlite3 itself expects them rather than as follow-up PRAGMA
// statements.
func Open(c cx.Cx, cfg conn.SQLiteConfig) cx.Outcome[*Conn] {
	if c.Cancelled() {
		return cx.Cancelled[*Conn](c.Err().Error())
	}
	drv := &sqlite3.SQLiteDriver{}
	rawConn, err := drv.Open(buildDSN(cfg))
	if err != nil {
		return cx.Err[*Conn](translateOpenError(err))
	}
	sc, ok := rawConn.(*sqlite3.SQLiteConn)
	if !ok {
		rawConn.Close()
		return cx.Err[*Conn](dberr.New(dberr.KindConnectionNetwork, "sqlite: unexpected driver.Conn implementation"))
	}
	return cx.Ok(&Conn{raw: sc, cfg: cfg})
}

// buildDSN renders go-sqlite3's recognised query-string pragmas for the
// options this module's SQLiteConfig exposes, plus any caller-supplied
// passthrough Options.
func buildDSN(cfg conn.SQLiteConfig) string {
	params := url.Values{}
	if cfg.ReadOnly {
		params.Set("mode", "ro")
	}
	if cfg.ForeignKeys {
		params.Set("_foreign_keys", "1")
	}
	if cfg.JournalMode != "" {
		params.Set("_journal_mode", cfg.JournalMode)
	}
	if cfg.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", cfg.BusyTimeout.Milliseconds()))
	}
	for k, v := range cfg.Options {
		params.Set(k, v)
	}
	dsn := cfg.Path
	if len(params) > 0 {
		dsn += "?" + params.Encode()
	}
	return dsn
}

func translateOpenError(err error) error {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return dberr.FromSQLiteExtendedCode(int(sqliteErr.ExtendedCode), sqliteErr.Error())
	}
	return dberr.Wrap(dberr.KindConnectionNetwork, "sqlite: open", err)
}

// translateExecError maps a go-sqlite3 execution error to this
// module's taxonomy, distinguishing it from a dial/open failure.
func translateExecError(err error) error {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return dberr.FromSQLiteExtendedCode(int(sqliteErr.ExtendedCode), sqliteErr.Error())
	}
	return dberr.Wrap(dberr.KindProtocol, "sqlite: execute", err)
}

func (sc *Conn) Ping(c cx.Cx) cx.Outcome[struct{}] {
	if c.Cancelled() {
		return cx.Cancelled[struct{}](c.Err().Error())
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rows, err := sc.raw.QueryContext(c.Context(), "SELECT 1", nil)
	if err != nil {
		return cx.Err[struct{}](translateExecError(err))
	}
	rows.Close()
	return cx.Ok(struct{}{})
}

func (sc *Conn) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.raw.Close()
}

// namedValues converts positional driver.Values into the
// driver.NamedValue slice the *Context methods require.
func namedValues(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

var _ conn.Connection = (*Conn)(nil)
