package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sq2pq/sq2pq/internal/exporter"
	"github.com/sq2pq/sq2pq/pkg/config"
	"github.com/sq2pq/sq2pq/pkg/logger"
	"github.com/sq2pq/sq2pq/pkg/schema"
	"github.com/sq2pq/sq2pq/pkg/source"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "sq2pq",
		Short: "sq2pq - compress SQLite databases into parquet files",
		Long: `sq2pq extracts data from a SQLite database and writes one parquet file
per table. It guesses a good physical type, nullability contract and
encoding for each column from the SQL schema plus sampling of the data,
and writes in fixed-size row groups so memory stays constant regardless
of table size.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sq2pq v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var tables []string
	var groupSize int
	var planFile, compression, logLevel string
	var includeSchema bool

	convertCmd := &cobra.Command{
		Use:   "convert <database> <out-dir>",
		Short: "Convert tables of a SQLite database to parquet files",
		Long: `Convert extracts data from a SQLite database and writes one parquet
file per table into the output directory, creating it if needed and
overwriting parquet files with conflicting names.

Without --table, all user tables are extracted; --table can be passed
multiple times to select a subset. A plan file (--plans) supplies
explicit column definitions per table and bypasses schema inference
for the tables it names.

Rows are written in row groups of --group-size rows. Larger groups
compress better but cost memory, and in parquet the row group is the
unit of random access: a reader must decompress a group from its start
to reach any row inside it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New(args[0], args[1])
			cfg.Tables = tables
			cfg.GroupSize = groupSize
			cfg.PlanFile = planFile
			cfg.Compression = compression
			cfg.IncludeSchema = includeSchema
			cfg.LogLevel = logLevel
			return runConvert(cmd.Context(), cfg)
		},
	}
	convertCmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "Table(s) to extract; repeatable, default all")
	convertCmd.Flags().IntVarP(&groupSize, "group-size", "g", config.DefaultGroupSize, "Rows per row group")
	convertCmd.Flags().StringVar(&planFile, "plans", "", "YAML file of explicit column plans")
	convertCmd.Flags().StringVar(&compression, "compression", "zstd", "Output compression (zstd, snappy, gzip, brotli, lz4, none)")
	convertCmd.Flags().BoolVar(&includeSchema, "include-schema", false, "Also extract the sqlite_schema table")
	convertCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(convertCmd)

	var inspectLogLevel string
	inspectCmd := &cobra.Command{
		Use:   "inspect <database> <table>",
		Short: "Print the inferred column plan for a table without writing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0], args[1], inspectLogLevel)
		},
	}
	inspectCmd.Flags().StringVar(&inspectLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConvert(ctx context.Context, cfg *config.Config) error {
	if err := initLogger(cfg.LogLevel); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("database", cfg.Database))

	db, err := source.OpenWithLogger(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return exporter.New(db, cfg, log).Run(ctx)
}

func runInspect(ctx context.Context, database, table, logLevel string) error {
	if err := initLogger(logLevel); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := source.Open(ctx, database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	plans, err := schema.NewInferencer(db, logger.Get()).InferTable(ctx, table)
	if err != nil {
		return err
	}
	for _, plan := range plans {
		fmt.Println(plan)
	}
	return nil
}

func initLogger(level string) error {
	return logger.Init(logger.Config{
		Level:    level,
		Encoding: "console",
	})
}
