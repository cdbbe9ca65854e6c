// Package exporter orchestrates a whole-database export: table discovery,
// plan loading or inference, the per-table write, and the size summary.
package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/parquet/compress"
	"go.uber.org/zap"

	"github.com/sq2pq/sq2pq/pkg/config"
	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/logger"
	"github.com/sq2pq/sq2pq/pkg/report"
	"github.com/sq2pq/sq2pq/pkg/schema"
	"github.com/sq2pq/sq2pq/pkg/source"
	"github.com/sq2pq/sq2pq/pkg/writer"
)

// progressInterval throttles progress logging during long writes.
const progressInterval = 500 * time.Millisecond

// Exporter converts the tables of one SQLite database into parquet files.
type Exporter struct {
	db  *source.DB
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

// New creates an Exporter. A nil logger falls back to the global one;
// summaries and plan listings go to out (defaulting to stdout).
func New(db *source.DB, cfg *config.Config, log *zap.Logger) *Exporter {
	if log == nil {
		log = logger.Get()
	}
	return &Exporter{db: db, cfg: cfg, log: log, out: os.Stdout}
}

// SetOutput redirects the human-readable output stream.
func (e *Exporter) SetOutput(w io.Writer) {
	e.out = w
}

// Run exports every requested table. Table selection order of
// precedence: the explicit table list, then the plan file's keys, then
// every user table in the database.
func (e *Exporter) Run(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.TypeConfig, "invalid configuration")
	}

	plansByTable := map[string][]schema.ColumnPlan{}
	if e.cfg.PlanFile != "" {
		var err error
		plansByTable, err = config.LoadPlans(e.cfg.PlanFile)
		if err != nil {
			return err
		}
	}

	tables := e.cfg.Tables
	if len(tables) == 0 && len(plansByTable) > 0 {
		for table := range plansByTable {
			tables = append(tables, table)
		}
		sort.Strings(tables)
	}
	if len(tables) == 0 {
		var err error
		tables, err = e.db.Tables(ctx)
		if err != nil {
			return err
		}
	}
	if e.cfg.IncludeSchema {
		tables = append(tables, "sqlite_schema")
	}

	codec, err := writer.CompressionFromName(e.cfg.Compression)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.cfg.OutDir, 0o755); err != nil {
		return errors.Wrapf(err, errors.TypeConfig, "create output directory %s", e.cfg.OutDir)
	}

	for _, table := range tables {
		if err := e.exportTable(ctx, table, plansByTable[table], codec); err != nil {
			return errors.Wrapf(err, errors.TypeOf(err), "table %s", table)
		}
	}
	return nil
}

func (e *Exporter) exportTable(ctx context.Context, table string, plans []schema.ColumnPlan, codec compress.Compression) error {
	log := e.log.With(zap.String("table", table))
	outPath := filepath.Join(e.cfg.OutDir, table+".parquet")
	explicit := plans != nil

	if plans == nil {
		log.Info("inferring schema")
		start := time.Now()
		inferred, err := schema.NewInferencer(e.db, log).InferTable(ctx, table)
		if err != nil {
			return err
		}
		plans = inferred
		log.Info("schema inferred", zap.Duration("elapsed", time.Since(start)))
	}
	for _, plan := range plans {
		fmt.Fprintf(e.out, "    %s\n", plan)
	}

	var totalRows int64
	var err error
	if explicit {
		// Explicit plans may select from anywhere; count what the first
		// query actually yields.
		totalRows, err = e.db.CountQueryRows(ctx, plans[0].Query)
	} else {
		totalRows, err = e.db.CountRows(ctx, table)
	}
	if err != nil {
		return err
	}

	groupSize := e.cfg.GroupSize
	totalCols := int64(len(plans))
	start := time.Now()
	var lastLog time.Time
	progressFn := func(p writer.Progress) error {
		if time.Since(lastLog) < progressInterval {
			return nil
		}
		lastLog = time.Now()
		// Attribute a partial group's share by columns already committed.
		thisGroup := totalRows - p.Rows
		if g := int64(groupSize); thisGroup > g {
			thisGroup = g
		}
		pct := 0.0
		if totalRows > 0 {
			pct = (float64(p.Rows) + float64(thisGroup)*float64(p.ColumnsInGroup)/float64(totalCols)) /
				float64(totalRows) * 100
		}
		log.Info("writing",
			zap.String("progress", fmt.Sprintf("%.2f%%", pct)),
			zap.Int64("rows", p.Rows),
			zap.Int64("groups", p.Groups),
			zap.Duration("elapsed", time.Since(start).Round(100*time.Millisecond)))
		return nil
	}

	coord := writer.NewCoordinator(e.db, log).WithCompression(codec)
	md, err := coord.WriteTable(ctx, table, plans, outPath, groupSize, progressFn)
	if err != nil {
		log.Error("write aborted, partial file left behind",
			zap.String("path", outPath), zap.Error(err))
		return err
	}

	log.Info("table written",
		zap.String("path", outPath),
		zap.Int64("rows", md.NumRows),
		zap.Int("row_groups", len(md.RowGroups)),
		zap.Duration("elapsed", time.Since(start).Round(10*time.Millisecond)))

	summary := report.Summarize(plans, md)
	fmt.Fprintf(e.out, "%s: %d rows in %d row groups\n", table, summary.NumRows, summary.NumGroups)
	summary.Render(e.out)
	return nil
}
