// Package testutil provides shared helpers for tests: per-test loggers
// and scratch SQLite databases seeded with fixture statements.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sq2pq/sq2pq/pkg/source"
)

// Logger returns a zap logger that writes through t.Log.
func Logger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger whose entries can be asserted on.
func ObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.WarnLevel)
	return zap.New(core), logs
}

// Context returns a context that is cancelled when the test ends.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewDB creates a scratch SQLite database in a temp directory and runs
// the given fixture statements against it. The database is closed when
// the test ends.
func NewDB(t *testing.T, ctx context.Context, stmts ...string) *source.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scratch.db")
	db, err := source.OpenWithLogger(ctx, path, Logger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range stmts {
		require.NoError(t, db.Exec(ctx, stmt))
	}
	return db
}
