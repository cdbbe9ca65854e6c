package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sq2pq/sq2pq/pkg/schema"
	"github.com/sq2pq/sq2pq/pkg/testutil"
)

func TestInferNullability(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewDB(t, ctx,
		`CREATE TABLE t (declared INTEGER NOT NULL, clean INTEGER, dirty INTEGER)`,
		`INSERT INTO t VALUES (1, 1, 1), (2, 2, NULL)`,
	)

	plans, err := schema.NewInferencer(db, testutil.Logger(t)).InferTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, plans, 3)

	// NOT NULL in the schema settles it without scanning.
	assert.True(t, plans[0].Required)
	// Nullable but holding no NULLs tightens to required.
	assert.True(t, plans[1].Required)
	// An actual NULL keeps the column optional.
	assert.False(t, plans[2].Required)
}

func TestInferIntegerWidth(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewDB(t, ctx,
		`CREATE TABLE t (narrow INTEGER, wide INTEGER, negwide BIGINT, empty INT)`,
		`INSERT INTO t (narrow, wide, negwide) VALUES (-2147483648, 2147483648, -2147483649)`,
		`INSERT INTO t (narrow, wide, negwide) VALUES (2147483647, 0, 0)`,
	)

	plans, err := schema.NewInferencer(db, testutil.Logger(t)).InferTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, plans, 4)

	// Both bounds inside int32 range.
	assert.Equal(t, schema.PhysicalInt32, plans[0].Physical)
	// Max exceeds int32.
	assert.Equal(t, schema.PhysicalInt64, plans[1].Physical)
	// Min exceeds int32.
	assert.Equal(t, schema.PhysicalInt64, plans[2].Physical)
	// No data fits trivially.
	assert.Equal(t, schema.PhysicalInt32, plans[3].Physical)
}

func TestInferTypeMappings(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewDB(t, ctx,
		`CREATE TABLE t (
			flag BOOLEAN,
			day DATE,
			clock TIME,
			at DATETIME,
			ident UUID,
			span INTERVAL,
			note TEXT,
			payload BLOB,
			doc JSON,
			ratio FLOAT,
			amount DOUBLE PRECISION
		)`,
	)

	plans, err := schema.NewInferencer(db, testutil.Logger(t)).InferTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, plans, 11)

	byName := map[string]schema.ColumnPlan{}
	for _, p := range plans {
		byName[p.Name] = p
	}

	assert.Equal(t, schema.PhysicalBoolean, byName["flag"].Physical)

	assert.Equal(t, schema.PhysicalInt32, byName["day"].Physical)
	assert.Equal(t, schema.LogicalDate, byName["day"].Logical.Kind)

	assert.Equal(t, schema.PhysicalInt64, byName["clock"].Physical)
	assert.Equal(t, schema.LogicalTime, byName["clock"].Logical.Kind)
	assert.False(t, byName["clock"].Logical.UTC)
	assert.Equal(t, schema.UnitNanos, byName["clock"].Logical.Unit)

	assert.Equal(t, schema.PhysicalInt64, byName["at"].Physical)
	assert.Equal(t, schema.LogicalTimestamp, byName["at"].Logical.Kind)
	assert.True(t, byName["at"].Logical.UTC)

	assert.Equal(t, schema.PhysicalFixedLenByteArray, byName["ident"].Physical)
	assert.Equal(t, 16, byName["ident"].TypeLength)
	assert.Equal(t, schema.LogicalUUID, byName["ident"].Logical.Kind)

	assert.Equal(t, schema.PhysicalFixedLenByteArray, byName["span"].Physical)
	assert.Equal(t, 12, byName["span"].TypeLength)
	assert.True(t, byName["span"].Logical.IsNone())

	assert.Equal(t, schema.PhysicalByteArray, byName["note"].Physical)
	assert.Equal(t, schema.LogicalString, byName["note"].Logical.Kind)

	assert.Equal(t, schema.PhysicalByteArray, byName["payload"].Physical)
	assert.True(t, byName["payload"].Logical.IsNone())

	assert.Equal(t, schema.PhysicalByteArray, byName["doc"].Physical)
	assert.Equal(t, schema.LogicalJSON, byName["doc"].Logical.Kind)

	assert.Equal(t, schema.PhysicalFloat32, byName["ratio"].Physical)
	assert.Equal(t, schema.PhysicalFloat64, byName["amount"].Physical)
}

func TestInferUnknownTypeDefaults(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewDB(t, ctx,
		`CREATE TABLE t (price MONEY)`,
		`INSERT INTO t VALUES ('12.50')`,
	)

	log, logs := testutil.ObservedLogger()
	plans, err := schema.NewInferencer(db, log).InferTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, plans, 1)

	assert.Equal(t, schema.PhysicalByteArray, plans[0].Physical)
	assert.True(t, plans[0].Logical.IsNone())
	require.Len(t, logs.FilterMessageSnippet("unknown declared type").All(), 1)
}

func TestInferLengthAnnotations(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewDB(t, ctx,
		`CREATE TABLE t (name VARCHAR(255), ident UUID(20), digest BLOB(16))`,
	)

	log, logs := testutil.ObservedLogger()
	plans, err := schema.NewInferencer(db, log).InferTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, plans, 3)

	// varchar stays variable-length; the annotation is advisory only.
	assert.Equal(t, schema.PhysicalByteArray, plans[0].Physical)
	assert.Zero(t, plans[0].TypeLength)
	require.Len(t, logs.FilterMessageSnippet("discarding length annotation").All(), 1)

	// uuid's conventional 16 bytes beat the annotation.
	assert.Equal(t, 16, plans[1].TypeLength)
	require.Len(t, logs.FilterMessageSnippet("inferred length wins").All(), 1)

	// blob annotations pin the length.
	assert.Equal(t, schema.PhysicalFixedLenByteArray, plans[2].Physical)
	assert.Equal(t, 16, plans[2].TypeLength)
}

func TestInferDictionary(t *testing.T) {
	ctx := testutil.Context(t)
	stmts := []string{
		`CREATE TABLE t (repetitive TEXT, unique_vals INTEGER, boundary INTEGER, flag BOOLEAN)`,
	}
	// 250 distinct values over 1000 rows for repetitive, all-distinct for
	// unique_vals, exactly 750 distinct over 1000 for boundary.
	stmts = append(stmts, `
		WITH RECURSIVE seq(n) AS (SELECT 0 UNION ALL SELECT n+1 FROM seq WHERE n < 999)
		INSERT INTO t SELECT
			'v' || (n % 250),
			n,
			CASE WHEN n < 750 THEN n ELSE n - 750 END,
			n % 2
		FROM seq`)
	db := testutil.NewDB(t, ctx, stmts...)

	plans, err := schema.NewInferencer(db, testutil.Logger(t)).InferTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, plans, 4)

	// 250/1000 distinct: dictionary pays off.
	assert.True(t, plans[0].Dictionary)
	// 1000/1000 distinct: it cannot.
	assert.False(t, plans[1].Dictionary)
	// Exactly at the 0.75 ratio the dictionary stays off.
	assert.False(t, plans[2].Dictionary)
	// Booleans never get a dictionary however repetitive.
	assert.False(t, plans[3].Dictionary)
}

func TestInferQueryShape(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewDB(t, ctx, `CREATE TABLE orders (total REAL)`)

	plans, err := schema.NewInferencer(db, testutil.Logger(t)).InferTable(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, `SELECT "total" FROM "orders" ORDER BY rowid`, plans[0].Query)
}
