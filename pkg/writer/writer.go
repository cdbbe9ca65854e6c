// Package writer drives the batched write pipeline: N per-column cursors
// advanced in lock-step, each row's cells coerced into statically-typed
// batches with presence markers, committed to the parquet sink one row
// group at a time. Memory stays bounded by group size times column count
// regardless of table size.
//
// The pipeline is single-threaded and synchronous by contract. Nothing
// here may be shared between concurrent invocations; each call owns its
// cursors and its sink exclusively.
package writer

import (
	"context"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"go.uber.org/zap"

	"github.com/sq2pq/sq2pq/pkg/coerce"
	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/logger"
	"github.com/sq2pq/sq2pq/pkg/schema"
	"github.com/sq2pq/sq2pq/pkg/source"
)

// State is the coordinator's lifecycle state.
type State int32

const (
	// StateIdle means no write has started
	StateIdle State = iota
	// StateWriting means row groups are being committed
	StateWriting
	// StateFinalizing means the footer is being written
	StateFinalizing
	// StateClosed is the success terminal state
	StateClosed
	// StateAborted is the failure terminal state; the output file is
	// incomplete and should be discarded
	StateAborted
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Progress is the cumulative position of an in-flight write.
type Progress struct {
	// ColumnsInGroup counts columns committed within the current row group
	ColumnsInGroup int64
	// Rows counts rows fully written across closed row groups
	Rows int64
	// Groups counts row groups fully written
	Groups int64
}

// ProgressFunc is called after every committed column. Returning an
// error aborts the write immediately, leaving a partial output file for
// the caller to discard.
type ProgressFunc func(Progress) error

// Coordinator writes tables to parquet files.
type Coordinator struct {
	db    *source.DB
	log   *zap.Logger
	codec compress.Compression
	state atomic.Int32
}

// NewCoordinator creates a Coordinator with zstd compression. A nil
// logger falls back to the global one.
func NewCoordinator(db *source.DB, log *zap.Logger) *Coordinator {
	if log == nil {
		log = logger.Get()
	}
	return &Coordinator{db: db, log: log, codec: compress.Codecs.Zstd}
}

// WithCompression overrides the output compression codec.
func (c *Coordinator) WithCompression(codec compress.Compression) *Coordinator {
	c.codec = codec
	return c
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// WriteTable is a convenience wrapper around a one-shot Coordinator.
func WriteTable(ctx context.Context, db *source.DB, tableName string, plans []schema.ColumnPlan, outPath string, groupSize int, progress ProgressFunc) (*FileMetadata, error) {
	return NewCoordinator(db, nil).WriteTable(ctx, tableName, plans, outPath, groupSize, progress)
}

// WriteTable executes every plan's query and writes the results to
// outPath in row groups of groupSize rows. tableName is schema metadata
// only. It returns the finished file's footer metadata.
//
// All plans must yield the same number of rows in the same row order;
// disagreement is fatal and leaves the output file unfinalized.
func (c *Coordinator) WriteTable(ctx context.Context, tableName string, plans []schema.ColumnPlan, outPath string, groupSize int, progress ProgressFunc) (*FileMetadata, error) {
	if len(plans) == 0 {
		return nil, errors.New(errors.TypeConfig, "no column plans")
	}
	for _, plan := range plans {
		if err := plan.Validate(); err != nil {
			return nil, err
		}
	}
	if groupSize < 1 {
		groupSize = 1
	}
	if progress == nil {
		progress = func(Progress) error { return nil }
	}

	c.setState(StateWriting)
	md, err := c.writeTable(ctx, tableName, plans, outPath, groupSize, progress)
	if err != nil {
		c.setState(StateAborted)
		return nil, err
	}
	c.setState(StateClosed)
	return md, nil
}

func (c *Coordinator) writeTable(ctx context.Context, tableName string, plans []schema.ColumnPlan, outPath string, groupSize int, progress ProgressFunc) (*FileMetadata, error) {
	snk, err := openSink(tableName, plans, outPath, c.codec)
	if err != nil {
		return nil, err
	}

	cursors := make([]*source.Cursor, len(plans))
	defer func() {
		for _, cur := range cursors {
			if cur != nil {
				_ = cur.Close()
			}
		}
	}()
	for i, plan := range plans {
		cur, err := c.db.Query(ctx, plan.Query)
		if err != nil {
			snk.abort()
			return nil, err
		}
		cursors[i] = cur
		if err := cur.Advance(); err != nil {
			snk.abort()
			return nil, err
		}
	}

	var prog Progress
	for cursors[0].Current() != nil {
		if err := c.writeGroup(snk, plans, cursors, groupSize, &prog, progress); err != nil {
			snk.abort()
			return nil, err
		}
	}

	// The loop stops when the first column runs dry; a longer sibling
	// column violates the same invariant the per-group check enforces.
	for i := 1; i < len(cursors); i++ {
		if cursors[i].Current() != nil {
			snk.abort()
			return nil, errors.Newf(errors.TypeRowCountMismatch,
				"row group %d: column %s yields more rows than column %s",
				prog.Groups, plans[i].Name, plans[0].Name).
				WithDetail("group", prog.Groups).
				WithDetail("column", plans[i].Name)
		}
	}

	c.setState(StateFinalizing)
	md, err := snk.close()
	if err != nil {
		return nil, err
	}
	c.log.Debug("table written",
		zap.String("table", tableName),
		zap.String("path", outPath),
		zap.Int64("rows", md.NumRows),
		zap.Int("row_groups", len(md.RowGroups)))
	return md, nil
}

// writeGroup commits one row group: up to groupSize rows of every column,
// in plan order, with the progress callback invoked after each column.
func (c *Coordinator) writeGroup(snk *sink, plans []schema.ColumnPlan, cursors []*source.Cursor, groupSize int, prog *Progress, progress ProgressFunc) error {
	rg := snk.nextRowGroup()

	firstRows := 0
	for i, plan := range plans {
		cw, err := rg.NextColumn()
		if err != nil {
			return errors.Wrapf(err, errors.TypeSink, "row group %d: open column %s", prog.Groups, plan.Name)
		}
		n, err := writeColumn(cw, plan, cursors[i], groupSize)
		if err != nil {
			return errors.Wrapf(err, errors.TypeOf(err), "row group %d: column %s", prog.Groups, plan.Name)
		}
		if err := cw.Close(); err != nil {
			return errors.Wrapf(err, errors.TypeSink, "row group %d: close column %s", prog.Groups, plan.Name)
		}

		if i == 0 {
			firstRows = n
		} else if n != firstRows {
			return errors.Newf(errors.TypeRowCountMismatch,
				"row group %d: column %s yielded %d rows, expected %d (from column %s)",
				prog.Groups, plan.Name, n, firstRows, plans[0].Name).
				WithDetail("group", prog.Groups).
				WithDetail("column", plan.Name)
		}

		if err := progress(Progress{ColumnsInGroup: int64(i + 1), Rows: prog.Rows, Groups: prog.Groups}); err != nil {
			return err
		}
	}

	if err := rg.Close(); err != nil {
		return errors.Wrapf(err, errors.TypeSink, "close row group %d", prog.Groups)
	}
	prog.Rows += int64(firstRows)
	prog.Groups++
	prog.ColumnsInGroup = 0
	return nil
}

// writeColumn dispatches on the sink's typed column writer and streams up
// to groupSize cells from the cursor into it as one batch. It returns the
// number of rows consumed, which is also the cursor's step count.
func writeColumn(cw file.ColumnChunkWriter, plan schema.ColumnPlan, cur *source.Cursor, groupSize int) (int, error) {
	switch w := cw.(type) {
	case *file.BooleanColumnChunkWriter:
		return writeTyped(cur, plan, groupSize, coerce.Bool, w.WriteBatch)
	case *file.Int32ColumnChunkWriter:
		return writeTyped(cur, plan, groupSize, coerce.Int32, w.WriteBatch)
	case *file.Int64ColumnChunkWriter:
		return writeTyped(cur, plan, groupSize, coerce.Int64, w.WriteBatch)
	case *file.Float32ColumnChunkWriter:
		return writeTyped(cur, plan, groupSize, coerce.Float32, w.WriteBatch)
	case *file.Float64ColumnChunkWriter:
		return writeTyped(cur, plan, groupSize, coerce.Float64, w.WriteBatch)
	case *file.ByteArrayColumnChunkWriter:
		return writeTyped(cur, plan, groupSize, coerce.ByteArray, w.WriteBatch)
	case *file.FixedLenByteArrayColumnChunkWriter:
		conv := func(v source.Value) (parquet.FixedLenByteArray, error) {
			return coerce.FixedLenByteArray(v, plan.TypeLength)
		}
		return writeTyped(cur, plan, groupSize, conv, w.WriteBatch)
	default:
		return 0, errors.Newf(errors.TypeSink, "unsupported column writer %T", cw)
	}
}

func writeTyped[T any](cur *source.Cursor, plan schema.ColumnPlan, groupSize int, conv func(source.Value) (T, error), write func([]T, []int16, []int16) (int64, error)) (int, error) {
	vals := make([]T, 0, groupSize)
	var defs []int16
	if !plan.Required {
		defs = make([]int16, 0, groupSize)
	}

	n := 0
	for n < groupSize {
		row := cur.Current()
		if row == nil {
			break
		}
		cell := row.GetRaw(0)
		if cell.IsNull() {
			if plan.Required {
				// A NULL here means nullability inference was wrong, not
				// that the data is bad at runtime.
				return n, errors.Newf(errors.TypeInternal,
					"NULL in required column %s", plan.Name)
			}
			// Max definition level of a single-level optional column is 1;
			// 0 marks a null with no accompanying value.
			defs = append(defs, 0)
		} else {
			v, err := conv(cell)
			if err != nil {
				return n, err
			}
			if !plan.Required {
				defs = append(defs, 1)
			}
			vals = append(vals, v)
		}
		if err := cur.Advance(); err != nil {
			return n, err
		}
		n++
	}

	if _, err := write(vals, defs, nil); err != nil {
		return n, errors.Wrap(err, errors.TypeSink, "write batch")
	}
	return n, nil
}
