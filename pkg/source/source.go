// Package source provides read access to a SQLite database: prepared
// statements, streaming one-row-lookahead cursors over raw storage-class
// values, and the schema introspection the inference layer feeds on.
//
// The package deliberately exposes SQLite's dynamic typing: every cell
// comes back as a Value tagged with its storage class, never as a Go
// scalar chosen by declared column type.
package source

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/logger"
)

// DB is a read-only handle on a SQLite database file.
type DB struct {
	sql *sql.DB
	log *zap.Logger
}

// Open opens the SQLite database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	return OpenWithLogger(ctx, path, logger.Get())
}

// OpenWithLogger opens the SQLite database at path with an injected logger.
func OpenWithLogger(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeQuery, "open database %s", path)
	}
	// The write pipeline drives N cursors over one connection's view of
	// the database; a single connection keeps every cursor on the same
	// snapshot.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, errors.TypeQuery, "open database %s", path)
	}
	return &DB{sql: db, log: log}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Exec runs a statement that returns no rows. Intended for fixtures and
// tooling; the converter itself never writes to the source.
func (d *DB) Exec(ctx context.Context, query string, args ...interface{}) error {
	if _, err := d.sql.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, errors.TypeQuery, "exec %q", query)
	}
	return nil
}

// Stmt is a prepared statement that can be executed into a Cursor.
type Stmt struct {
	stmt  *sql.Stmt
	query string
}

// Prepare compiles a query for execution.
func (d *DB) Prepare(ctx context.Context, query string) (*Stmt, error) {
	stmt, err := d.sql.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeQuery, "prepare %q", query)
	}
	return &Stmt{stmt: stmt, query: query}, nil
}

// Execute runs the statement and returns a cursor positioned before the
// first row; call Advance once to reach it.
func (s *Stmt) Execute(ctx context.Context) (*Cursor, error) {
	rows, err := s.stmt.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeQuery, "execute %q", s.query)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, errors.Wrapf(err, errors.TypeQuery, "execute %q", s.query)
	}
	return &Cursor{rows: rows, width: len(cols), query: s.query}, nil
}

// Close releases the prepared statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

// Query prepares and executes in one step.
func (d *DB) Query(ctx context.Context, query string) (*Cursor, error) {
	stmt, err := d.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	cur, err := stmt.Execute(ctx)
	if err != nil {
		_ = stmt.Close()
		return nil, err
	}
	cur.stmt = stmt
	return cur, nil
}

// Cursor streams rows with one row of lookahead: Current returns the row
// the cursor rests on (nil once exhausted) and Advance moves to the next.
type Cursor struct {
	rows  *sql.Rows
	stmt  *Stmt // owned when created via Query
	query string
	width int
	cur   *Row
	done  bool
}

// Current returns the row under the cursor, or nil at end-of-data.
func (c *Cursor) Current() *Row {
	return c.cur
}

// Advance moves the cursor to the next row. At end-of-data it leaves
// Current nil and keeps returning nil.
func (c *Cursor) Advance() error {
	if c.done {
		c.cur = nil
		return nil
	}
	if !c.rows.Next() {
		c.done = true
		c.cur = nil
		if err := c.rows.Err(); err != nil {
			return errors.Wrapf(err, errors.TypeQuery, "advance %q", c.query)
		}
		return nil
	}

	raw := make([]interface{}, c.width)
	ptrs := make([]interface{}, c.width)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return errors.Wrapf(err, errors.TypeQuery, "scan %q", c.query)
	}

	vals := make([]Value, c.width)
	for i, r := range raw {
		v, err := valueOf(r)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	c.cur = &Row{vals: vals}
	return nil
}

// Close releases the cursor and its statement, if owned.
func (c *Cursor) Close() error {
	err := c.rows.Close()
	if c.stmt != nil {
		if serr := c.stmt.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// Row is one result row of raw storage-class values.
type Row struct {
	vals []Value
}

// GetRaw returns the cell at the given column index.
func (r *Row) GetRaw(i int) Value {
	return r.vals[i]
}

// Width returns the number of columns in the row.
func (r *Row) Width() int {
	return len(r.vals)
}

// QuoteIdent quotes a SQL identifier for interpolation into introspection
// and per-column queries.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
