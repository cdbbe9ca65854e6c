package exporter_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sq2pq/sq2pq/internal/exporter"
	"github.com/sq2pq/sq2pq/pkg/config"
	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/source"
	"github.com/sq2pq/sq2pq/pkg/testutil"
)

func fixtureDB(t *testing.T) *source.DB {
	return testutil.NewDB(t, testutil.Context(t),
		`CREATE TABLE users (id INTEGER NOT NULL, name TEXT, joined DATE)`,
		`INSERT INTO users (id, name, joined) VALUES (1, 'ada', 1000), (2, NULL, 2000), (3, 'grace', NULL)`,
		`CREATE TABLE tags (label TEXT NOT NULL)`,
		`INSERT INTO tags VALUES ('red'), ('blue'), ('red')`,
	)
}

func rowCount(t *testing.T, path string) int64 {
	t.Helper()
	rdr, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer rdr.Close()
	return rdr.NumRows()
}

func TestRunExportsAllTables(t *testing.T) {
	ctx := testutil.Context(t)
	db := fixtureDB(t)
	outDir := t.TempDir()

	cfg := config.New("fixture", outDir)
	cfg.GroupSize = 2
	ex := exporter.New(db, cfg, testutil.Logger(t))
	var buf bytes.Buffer
	ex.SetOutput(&buf)

	require.NoError(t, ex.Run(ctx))

	assert.Equal(t, int64(3), rowCount(t, filepath.Join(outDir, "users.parquet")))
	assert.Equal(t, int64(3), rowCount(t, filepath.Join(outDir, "tags.parquet")))

	out := buf.String()
	assert.Contains(t, out, "users: 3 rows in 2 row groups")
	assert.Contains(t, out, "tags: 3 rows in 2 row groups")
	assert.Contains(t, out, "total")
}

func TestRunSelectsTables(t *testing.T) {
	ctx := testutil.Context(t)
	db := fixtureDB(t)
	outDir := t.TempDir()

	cfg := config.New("fixture", outDir)
	cfg.Tables = []string{"tags"}
	ex := exporter.New(db, cfg, testutil.Logger(t))
	ex.SetOutput(&bytes.Buffer{})

	require.NoError(t, ex.Run(ctx))

	assert.FileExists(t, filepath.Join(outDir, "tags.parquet"))
	assert.NoFileExists(t, filepath.Join(outDir, "users.parquet"))
}

func TestRunIncludeSchema(t *testing.T) {
	ctx := testutil.Context(t)
	db := fixtureDB(t)
	outDir := t.TempDir()

	cfg := config.New("fixture", outDir)
	cfg.Tables = []string{"tags"}
	cfg.IncludeSchema = true
	ex := exporter.New(db, cfg, testutil.Logger(t))
	ex.SetOutput(&bytes.Buffer{})

	require.NoError(t, ex.Run(ctx))

	// Two CREATE TABLE entries in the schema catalog.
	assert.Equal(t, int64(2), rowCount(t, filepath.Join(outDir, "sqlite_schema.parquet")))
}

func TestRunWithPlanFile(t *testing.T) {
	ctx := testutil.Context(t)
	db := fixtureDB(t)
	outDir := t.TempDir()

	planPath := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`
users:
  - name: id
    required: true
    physical_type: int64
    query: SELECT "id" FROM "users" WHERE "id" > 1 ORDER BY rowid
`), 0o644))

	cfg := config.New("fixture", outDir)
	cfg.PlanFile = planPath
	ex := exporter.New(db, cfg, testutil.Logger(t))
	ex.SetOutput(&bytes.Buffer{})

	// Without an explicit table list the plan file picks the tables.
	require.NoError(t, ex.Run(ctx))

	assert.Equal(t, int64(2), rowCount(t, filepath.Join(outDir, "users.parquet")))
	assert.NoFileExists(t, filepath.Join(outDir, "tags.parquet"))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	ctx := testutil.Context(t)
	db := fixtureDB(t)

	cfg := config.New("fixture", "")
	ex := exporter.New(db, cfg, testutil.Logger(t))

	err := ex.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.TypeConfig, errors.TypeOf(err))
}

func TestRunMissingTableFails(t *testing.T) {
	ctx := testutil.Context(t)
	db := fixtureDB(t)

	cfg := config.New("fixture", t.TempDir())
	cfg.Tables = []string{"nope"}
	ex := exporter.New(db, cfg, testutil.Logger(t))
	ex.SetOutput(&bytes.Buffer{})

	err := ex.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.TypeIntrospection, errors.TypeOf(err))
}
