package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sq2pq/sq2pq/pkg/errors"
)

// ColumnInfo describes one column of a table as declared in the source
// schema.
type ColumnInfo struct {
	Name         string
	DeclaredType string
	NotNull      bool
}

// TableColumns returns the declared columns of a table in declaration
// order.
func (d *DB) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT name, type, \"notnull\" FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeIntrospection, "read schema of table %s", table)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var notNull int
		if err := rows.Scan(&c.Name, &c.DeclaredType, &notNull); err != nil {
			return nil, errors.Wrapf(err, errors.TypeIntrospection, "read schema of table %s", table)
		}
		c.NotNull = notNull != 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.TypeIntrospection, "read schema of table %s", table)
	}
	if len(cols) == 0 {
		return nil, errors.Newf(errors.TypeIntrospection, "table %s does not exist or has no columns", table)
	}
	return cols, nil
}

// Tables lists the user tables of the database, excluding SQLite's
// internal bookkeeping tables.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT name FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeIntrospection, "list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.TypeIntrospection, "list tables")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.TypeIntrospection, "list tables")
	}
	return tables, nil
}

// CountRows returns the number of rows in a table.
func (d *DB) CountRows(ctx context.Context, table string) (int64, error) {
	return d.queryInt64(ctx, fmt.Sprintf("SELECT COUNT(1) FROM %s", QuoteIdent(table)))
}

// CountQueryRows returns the number of rows a query yields.
func (d *DB) CountQueryRows(ctx context.Context, query string) (int64, error) {
	return d.queryInt64(ctx, fmt.Sprintf("SELECT COUNT(1) FROM (%s)", query))
}

// CountNulls returns the number of NULLs in a column over the whole table.
func (d *DB) CountNulls(ctx context.Context, table, column string) (int64, error) {
	return d.queryInt64(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL",
		QuoteIdent(table), QuoteIdent(column)))
}

// IntRange returns the MIN and MAX of an integer column. ok is false when
// the column holds no non-NULL values.
func (d *DB) IntRange(ctx context.Context, table, column string) (min, max int64, ok bool, err error) {
	q := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s",
		QuoteIdent(column), QuoteIdent(column), QuoteIdent(table))
	var minN, maxN sql.NullInt64
	if err := d.sql.QueryRowContext(ctx, q).Scan(&minN, &maxN); err != nil {
		return 0, 0, false, errors.Wrapf(err, errors.TypeIntrospection, "scan range of %s.%s", table, column)
	}
	if !minN.Valid || !maxN.Valid {
		return 0, 0, false, nil
	}
	return minN.Int64, maxN.Int64, true, nil
}

// SampleUniqueness samples up to limit rows of a column uniformly at
// random and returns the number sampled and the number of distinct values
// among them.
func (d *DB) SampleUniqueness(ctx context.Context, table, column string, limit int) (sampled, distinct int64, err error) {
	q := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(DISTINCT v) FROM (SELECT %s AS v FROM %s ORDER BY random() LIMIT %d)",
		QuoteIdent(column), QuoteIdent(table), limit)
	if err := d.sql.QueryRowContext(ctx, q).Scan(&sampled, &distinct); err != nil {
		return 0, 0, errors.Wrapf(err, errors.TypeIntrospection, "sample %s.%s", table, column)
	}
	return sampled, distinct, nil
}

func (d *DB) queryInt64(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := d.sql.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, errors.TypeIntrospection, "query %q", query)
	}
	return n, nil
}
