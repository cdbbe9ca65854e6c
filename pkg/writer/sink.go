package writer

import (
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"

	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/schema"
)

// FileMetadata is the footer-level result of a finished write: total row
// count plus per-row-group, per-column byte sizes.
type FileMetadata struct {
	NumRows   int64
	RowGroups []RowGroupMetadata
}

// RowGroupMetadata describes one row group of the output file.
type RowGroupMetadata struct {
	NumRows       int64
	TotalByteSize int64
	Columns       []ColumnChunkMetadata
}

// ColumnChunkMetadata carries one column chunk's byte sizes.
type ColumnChunkMetadata struct {
	CompressedSize   int64
	UncompressedSize int64
}

// CompressionFromName maps a config string onto the sink's codec enum.
func CompressionFromName(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return compress.Codecs.Zstd, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, errors.Newf(errors.TypeConfig, "unknown compression codec %q", name)
	}
}

// sink wraps the parquet serial file writer for one output file.
type sink struct {
	f    *os.File
	fw   *file.Writer
	path string
	cols int
}

// openSink builds the parquet schema and writer properties from the
// column plans and opens the output file. tableName is metadata only; it
// becomes the schema's root group name.
func openSink(tableName string, plans []schema.ColumnPlan, path string, codec compress.Compression) (*sink, error) {
	fields := make(pqschema.FieldList, 0, len(plans))
	for _, plan := range plans {
		node, err := plan.ParquetNode()
		if err != nil {
			return nil, err
		}
		fields = append(fields, node)
	}
	root, err := pqschema.NewGroupNode(tableName, parquet.Repetitions.Required, fields, -1)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeSink, "build parquet schema")
	}

	opts := []parquet.WriterProperty{
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(false),
		parquet.WithCreatedBy("sq2pq"),
	}
	for _, plan := range plans {
		if plan.Dictionary {
			opts = append(opts, parquet.WithDictionaryFor(plan.Name, true))
		}
		if enc, ok := plan.Encoding.Parquet(); ok {
			opts = append(opts, parquet.WithEncodingFor(plan.Name, enc))
		}
	}
	props := parquet.NewWriterProperties(opts...)

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeSink, "create %s", path)
	}
	fw := file.NewParquetWriter(f, root, file.WithWriterProps(props))
	return &sink{f: f, fw: fw, path: path, cols: len(plans)}, nil
}

// nextRowGroup opens a new serial row group.
func (s *sink) nextRowGroup() file.SerialRowGroupWriter {
	return s.fw.AppendRowGroup()
}

// close finalizes the file and reads the resulting footer back, so the
// reported sizes are exactly what a reader will see.
func (s *sink) close() (*FileMetadata, error) {
	if err := s.fw.Close(); err != nil {
		_ = s.f.Close()
		return nil, errors.Wrapf(err, errors.TypeSink, "finalize %s", s.path)
	}
	_ = s.f.Close()
	return readFileMetadata(s.path, s.cols)
}

// abort tears the sink down without finalizing; the partial file is left
// in place for the caller to discard.
func (s *sink) abort() {
	_ = s.f.Close()
}

func readFileMetadata(path string, cols int) (*FileMetadata, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeSink, "reopen %s for metadata", path)
	}
	defer rdr.Close()

	md := rdr.MetaData()
	out := &FileMetadata{
		NumRows:   rdr.NumRows(),
		RowGroups: make([]RowGroupMetadata, 0, rdr.NumRowGroups()),
	}
	for i := 0; i < rdr.NumRowGroups(); i++ {
		rg := md.RowGroup(i)
		group := RowGroupMetadata{
			NumRows:       rg.NumRows(),
			TotalByteSize: rg.TotalByteSize(),
			Columns:       make([]ColumnChunkMetadata, 0, cols),
		}
		for c := 0; c < rg.NumColumns(); c++ {
			chunk, err := rg.ColumnChunk(c)
			if err != nil {
				return nil, errors.Wrapf(err, errors.TypeSink, "read column chunk metadata %d/%d", i, c)
			}
			group.Columns = append(group.Columns, ColumnChunkMetadata{
				CompressedSize:   chunk.TotalCompressedSize(),
				UncompressedSize: chunk.TotalUncompressedSize(),
			})
		}
		out.RowGroups = append(out.RowGroups, group)
	}
	return out, nil
}
