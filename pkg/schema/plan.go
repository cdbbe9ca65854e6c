// Package schema defines the column plans that describe a parquet output
// file, and infers them from a SQLite table's declared schema plus
// statistical sampling of its data.
package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/parquet"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"

	"github.com/sq2pq/sq2pq/pkg/errors"
)

// PhysicalType is the on-disk parquet value representation.
type PhysicalType int

const (
	// PhysicalBoolean is a 1-bit boolean
	PhysicalBoolean PhysicalType = iota
	// PhysicalInt32 is a 32-bit signed integer
	PhysicalInt32
	// PhysicalInt64 is a 64-bit signed integer
	PhysicalInt64
	// PhysicalFloat32 is a 32-bit float
	PhysicalFloat32
	// PhysicalFloat64 is a 64-bit float
	PhysicalFloat64
	// PhysicalByteArray is a variable-length byte sequence
	PhysicalByteArray
	// PhysicalFixedLenByteArray is a fixed-length byte sequence; the
	// length lives in ColumnPlan.TypeLength
	PhysicalFixedLenByteArray
)

var physicalNames = map[PhysicalType]string{
	PhysicalBoolean:           "boolean",
	PhysicalInt32:             "int32",
	PhysicalInt64:             "int64",
	PhysicalFloat32:           "float32",
	PhysicalFloat64:           "float64",
	PhysicalByteArray:         "byte_array",
	PhysicalFixedLenByteArray: "fixed_len_byte_array",
}

// String returns the yaml/display name of the physical type
func (p PhysicalType) String() string {
	if s, ok := physicalNames[p]; ok {
		return s
	}
	return fmt.Sprintf("PhysicalType(%d)", int(p))
}

// HasLength reports whether the physical type carries an inherent length
func (p PhysicalType) HasLength() bool {
	return p == PhysicalFixedLenByteArray
}

func (p PhysicalType) parquet() parquet.Type {
	switch p {
	case PhysicalBoolean:
		return parquet.Types.Boolean
	case PhysicalInt32:
		return parquet.Types.Int32
	case PhysicalInt64:
		return parquet.Types.Int64
	case PhysicalFloat32:
		return parquet.Types.Float
	case PhysicalFloat64:
		return parquet.Types.Double
	case PhysicalByteArray:
		return parquet.Types.ByteArray
	case PhysicalFixedLenByteArray:
		return parquet.Types.FixedLenByteArray
	default:
		return parquet.Types.Undefined
	}
}

// MarshalYAML implements yaml.Marshaler
func (p PhysicalType) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (p *PhysicalType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	for k, v := range physicalNames {
		if v == strings.ToLower(strings.TrimSpace(s)) {
			*p = k
			return nil
		}
	}
	return errors.Newf(errors.TypeConfig, "unknown physical type %q", s)
}

// TimeUnit is the resolution of a Time or Timestamp logical type.
type TimeUnit int

const (
	// UnitMillis is millisecond resolution
	UnitMillis TimeUnit = iota
	// UnitMicros is microsecond resolution
	UnitMicros
	// UnitNanos is nanosecond resolution
	UnitNanos
)

var timeUnitNames = map[TimeUnit]string{
	UnitMillis: "millis",
	UnitMicros: "micros",
	UnitNanos:  "nanos",
}

// String returns the yaml/display name of the unit
func (u TimeUnit) String() string {
	if s, ok := timeUnitNames[u]; ok {
		return s
	}
	return fmt.Sprintf("TimeUnit(%d)", int(u))
}

func (u TimeUnit) parquet() pqschema.TimeUnitType {
	switch u {
	case UnitMillis:
		return pqschema.TimeUnitMillis
	case UnitMicros:
		return pqschema.TimeUnitMicros
	default:
		return pqschema.TimeUnitNanos
	}
}

// LogicalKind names a semantic annotation layered on a physical type.
type LogicalKind int

const (
	// LogicalNone means no annotation
	LogicalNone LogicalKind = iota
	// LogicalString marks UTF-8 text
	LogicalString
	// LogicalDate marks days since the Unix epoch
	LogicalDate
	// LogicalTime marks a time of day
	LogicalTime
	// LogicalTimestamp marks an instant
	LogicalTimestamp
	// LogicalUUID marks a 16-byte UUID
	LogicalUUID
	// LogicalJSON marks a JSON document
	LogicalJSON
	// LogicalBSON marks a BSON document
	LogicalBSON
	// LogicalInt marks a fixed-precision integer
	LogicalInt
)

var logicalNames = map[LogicalKind]string{
	LogicalNone:      "",
	LogicalString:    "string",
	LogicalDate:      "date",
	LogicalTime:      "time",
	LogicalTimestamp: "timestamp",
	LogicalUUID:      "uuid",
	LogicalJSON:      "json",
	LogicalBSON:      "bson",
	LogicalInt:       "int",
}

// LogicalType is an optional semantic tag with its sub-attributes. The
// zero value means "no logical type".
type LogicalType struct {
	Kind LogicalKind `yaml:"kind"`
	// UTC and Unit apply to Time and Timestamp
	UTC  bool     `yaml:"utc,omitempty"`
	Unit TimeUnit `yaml:"unit,omitempty"`
	// BitWidth and Signed apply to Int
	BitWidth int  `yaml:"bit_width,omitempty"`
	Signed   bool `yaml:"signed,omitempty"`
}

// IsNone reports whether no logical type is set
func (l LogicalType) IsNone() bool { return l.Kind == LogicalNone }

// String renders the logical type for plan display
func (l LogicalType) String() string {
	switch l.Kind {
	case LogicalTime, LogicalTimestamp:
		return fmt.Sprintf("%s{utc:%t,%s}", logicalNames[l.Kind], l.UTC, l.Unit)
	case LogicalInt:
		return fmt.Sprintf("int{%d,signed:%t}", l.BitWidth, l.Signed)
	default:
		return logicalNames[l.Kind]
	}
}

func (l LogicalType) parquet() pqschema.LogicalType {
	switch l.Kind {
	case LogicalString:
		return pqschema.StringLogicalType{}
	case LogicalDate:
		return pqschema.DateLogicalType{}
	case LogicalTime:
		return pqschema.NewTimeLogicalType(l.UTC, l.Unit.parquet())
	case LogicalTimestamp:
		return pqschema.NewTimestampLogicalType(l.UTC, l.Unit.parquet())
	case LogicalUUID:
		return pqschema.UUIDLogicalType{}
	case LogicalJSON:
		return pqschema.JSONLogicalType{}
	case LogicalBSON:
		return pqschema.BSONLogicalType{}
	case LogicalInt:
		return pqschema.NewIntLogicalType(int8(l.BitWidth), l.Signed)
	default:
		return pqschema.NoLogicalType{}
	}
}

// MarshalYAML implements yaml.Marshaler
func (l LogicalKind) MarshalYAML() (interface{}, error) {
	return logicalNames[l], nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (l *LogicalKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for k, v := range logicalNames {
		if v == s {
			*l = k
			return nil
		}
	}
	return errors.Newf(errors.TypeConfig, "unknown logical type %q", s)
}

// MarshalYAML implements yaml.Marshaler
func (u TimeUnit) MarshalYAML() (interface{}, error) {
	return u.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (u *TimeUnit) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	for k, v := range timeUnitNames {
		if v == strings.ToLower(strings.TrimSpace(s)) {
			*u = k
			return nil
		}
	}
	return errors.Newf(errors.TypeConfig, "unknown time unit %q", s)
}

// Encoding is an explicit per-column encoding hint. EncodingUnset lets
// the sink pick its own default.
type Encoding int

const (
	// EncodingUnset defers to the sink's defaults
	EncodingUnset Encoding = iota
	// EncodingPlain is unencoded values
	EncodingPlain
	// EncodingRLE is run-length encoding
	EncodingRLE
	// EncodingBitPacked is the legacy bit-packed encoding
	EncodingBitPacked
	// EncodingDeltaBinaryPacked is delta encoding for integers
	EncodingDeltaBinaryPacked
	// EncodingDeltaByteArray is incremental encoding for byte arrays
	EncodingDeltaByteArray
	// EncodingRLEDictionary is dictionary indices with run-length encoding
	EncodingRLEDictionary
	// EncodingByteStreamSplit is byte-stream splitting for floats
	EncodingByteStreamSplit
)

var encodingNames = map[Encoding]string{
	EncodingUnset:             "",
	EncodingPlain:             "plain",
	EncodingRLE:               "rle",
	EncodingBitPacked:         "bit_packed",
	EncodingDeltaBinaryPacked: "delta_binary_packed",
	EncodingDeltaByteArray:    "delta_byte_array",
	EncodingRLEDictionary:     "rle_dictionary",
	EncodingByteStreamSplit:   "byte_stream_split",
}

// String returns the yaml/display name of the encoding
func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// Parquet maps the hint onto the sink's encoding enum. ok is false for
// EncodingUnset.
func (e Encoding) Parquet() (parquet.Encoding, bool) {
	switch e {
	case EncodingPlain:
		return parquet.Encodings.Plain, true
	case EncodingRLE:
		return parquet.Encodings.RLE, true
	case EncodingBitPacked:
		return parquet.Encodings.BitPacked, true
	case EncodingDeltaBinaryPacked:
		return parquet.Encodings.DeltaBinaryPacked, true
	case EncodingDeltaByteArray:
		return parquet.Encodings.DeltaByteArray, true
	case EncodingRLEDictionary:
		return parquet.Encodings.RLEDict, true
	case EncodingByteStreamSplit:
		return parquet.Encodings.ByteStreamSplit, true
	default:
		return parquet.Encodings.Plain, false
	}
}

// MarshalYAML implements yaml.Marshaler
func (e Encoding) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (e *Encoding) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for k, v := range encodingNames {
		if v == s {
			*e = k
			return nil
		}
	}
	return errors.Newf(errors.TypeConfig, "unknown encoding %q", s)
}

// ColumnPlan describes one output column: its physical representation,
// nullability contract, encoding hints and the query that yields its
// values. Plans are immutable value objects; the writer only reads them.
//
// A plan comes either out of the Inferencer or out of a plan config file.
// The writer makes no distinction.
type ColumnPlan struct {
	// Name is the output column name, unique within a table
	Name string `yaml:"name"`
	// Required guarantees the column holds no NULLs
	Required bool `yaml:"required"`
	// Physical is the on-disk representation
	Physical PhysicalType `yaml:"physical_type"`
	// TypeLength is the byte length for fixed_len_byte_array
	TypeLength int `yaml:"type_length,omitempty"`
	// Logical is the optional semantic annotation
	Logical LogicalType `yaml:"logical_type,omitempty"`
	// Encoding is the optional explicit encoding hint
	Encoding Encoding `yaml:"encoding,omitempty"`
	// Dictionary requests a value-dictionary page, independent of Encoding
	Dictionary bool `yaml:"dictionary"`
	// Query yields exactly this column's values in stable row order
	Query string `yaml:"query"`
}

// Validate checks the plan's internal invariants.
func (p ColumnPlan) Validate() error {
	if p.Name == "" {
		return errors.New(errors.TypeConfig, "column plan has no name")
	}
	if p.Query == "" {
		return errors.Newf(errors.TypeConfig, "column %s has no query", p.Name)
	}
	if p.Physical == PhysicalFixedLenByteArray && p.TypeLength <= 0 {
		return errors.Newf(errors.TypeConfig, "column %s: fixed_len_byte_array requires a positive type_length", p.Name)
	}
	if p.Physical != PhysicalFixedLenByteArray && p.TypeLength != 0 {
		return errors.Newf(errors.TypeConfig, "column %s: type_length is only valid for fixed_len_byte_array", p.Name)
	}
	switch p.Logical.Kind {
	case LogicalString, LogicalJSON, LogicalBSON:
		if p.Physical != PhysicalByteArray && p.Physical != PhysicalFixedLenByteArray {
			return errors.Newf(errors.TypeConfig,
				"column %s: logical type %s requires a byte-array physical type, got %s",
				p.Name, p.Logical, p.Physical)
		}
	case LogicalUUID:
		if p.Physical != PhysicalFixedLenByteArray || p.TypeLength != 16 {
			return errors.Newf(errors.TypeConfig,
				"column %s: logical type uuid requires fixed_len_byte_array(16)", p.Name)
		}
	case LogicalDate:
		if p.Physical != PhysicalInt32 {
			return errors.Newf(errors.TypeConfig,
				"column %s: logical type date requires int32, got %s", p.Name, p.Physical)
		}
	case LogicalTime, LogicalTimestamp:
		if p.Physical != PhysicalInt32 && p.Physical != PhysicalInt64 {
			return errors.Newf(errors.TypeConfig,
				"column %s: logical type %s requires an integer physical type, got %s",
				p.Name, p.Logical, p.Physical)
		}
	case LogicalInt:
		if p.Physical != PhysicalInt32 && p.Physical != PhysicalInt64 {
			return errors.Newf(errors.TypeConfig,
				"column %s: logical type int requires an integer physical type, got %s",
				p.Name, p.Physical)
		}
	}
	return nil
}

// ParquetNode maps the plan onto the sink's native column descriptor.
func (p ColumnPlan) ParquetNode() (pqschema.Node, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rep := parquet.Repetitions.Optional
	if p.Required {
		rep = parquet.Repetitions.Required
	}
	node, err := pqschema.NewPrimitiveNodeLogical(
		p.Name, rep, p.Logical.parquet(), p.Physical.parquet(), p.TypeLength, -1)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeConfig, "build parquet node for column %s", p.Name)
	}
	return node, nil
}

// String renders the plan on one line, in the order the inspect command
// prints column tables.
func (p ColumnPlan) String() string {
	rep := "OPTIONAL"
	if p.Required {
		rep = "REQUIRED"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-8s %s", p.Name, rep, p.Physical)
	if p.TypeLength > 0 {
		fmt.Fprintf(&b, "[%d]", p.TypeLength)
	}
	if !p.Logical.IsNone() {
		fmt.Fprintf(&b, " (%s)", p.Logical)
	}
	if p.Encoding != EncodingUnset {
		fmt.Fprintf(&b, " (%s)", p.Encoding)
	}
	if p.Dictionary {
		b.WriteString(" +dictionary")
	}
	fmt.Fprintf(&b, " %s", p.Query)
	return b.String()
}
