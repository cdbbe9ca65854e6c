package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sq2pq/sq2pq/pkg/config"
	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/schema"
)

func TestNewDefaults(t *testing.T) {
	cfg := config.New("data.db", "out")
	assert.Equal(t, "data.db", cfg.Database)
	assert.Equal(t, "out", cfg.OutDir)
	assert.Equal(t, config.DefaultGroupSize, cfg.GroupSize)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no database", func(c *config.Config) { c.Database = "" }},
		{"no out dir", func(c *config.Config) { c.OutDir = "" }},
		{"zero group size", func(c *config.Config) { c.GroupSize = 0 }},
		{"negative group size", func(c *config.Config) { c.GroupSize = -5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.New("data.db", "out")
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
events:
  - name: id
    required: true
    physical_type: int64
    query: SELECT "id" FROM "events" ORDER BY rowid
  - name: kind
    physical_type: byte_array
    logical_type: {kind: string}
    dictionary: true
    encoding: delta_byte_array
    query: SELECT "kind" FROM "events" ORDER BY rowid
`), 0o644))

	plans, err := config.LoadPlans(path)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	cols := plans["events"]
	require.Len(t, cols, 2)

	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].Required)
	assert.Equal(t, schema.PhysicalInt64, cols[0].Physical)

	assert.Equal(t, "kind", cols[1].Name)
	assert.False(t, cols[1].Required)
	assert.Equal(t, schema.PhysicalByteArray, cols[1].Physical)
	assert.Equal(t, schema.LogicalString, cols[1].Logical.Kind)
	assert.True(t, cols[1].Dictionary)
	assert.Equal(t, schema.EncodingDeltaByteArray, cols[1].Encoding)
}

func TestLoadPlansSubstitutesEnv(t *testing.T) {
	t.Setenv("PLANS_TABLE", "events")
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
events:
  - name: id
    physical_type: int64
    query: SELECT "id" FROM "${PLANS_TABLE}" ORDER BY rowid
`), 0o644))

	plans, err := config.LoadPlans(path)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "events" ORDER BY rowid`, plans["events"][0].Query)
}

func TestLoadPlansRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty table", "events: []\n"},
		{"missing query", "events:\n  - name: id\n    physical_type: int64\n"},
		{"unknown physical type", "events:\n  - name: id\n    physical_type: int128\n    query: q\n"},
		{"fixed len without length", "events:\n  - name: id\n    physical_type: fixed_len_byte_array\n    query: q\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plans.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			_, err := config.LoadPlans(path)
			require.Error(t, err)
			assert.Equal(t, errors.TypeConfig, errors.TypeOf(err))
		})
	}
}

func TestSavePlansRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	in := map[string][]schema.ColumnPlan{
		"ids": {{
			Name:       "ident",
			Required:   true,
			Physical:   schema.PhysicalFixedLenByteArray,
			TypeLength: 16,
			Logical:    schema.LogicalType{Kind: schema.LogicalUUID},
			Query:      `SELECT "ident" FROM "ids" ORDER BY rowid`,
		}},
	}
	require.NoError(t, config.SavePlans(path, in))

	out, err := config.LoadPlans(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
