package schema

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sq2pq/sq2pq/pkg/logger"
	"github.com/sq2pq/sq2pq/pkg/source"
)

// dictionarySampleSize bounds the random sample used for the dictionary
// decision.
const dictionarySampleSize = 1000

// dictionaryThreshold is the uniqueness ratio at or above which a
// dictionary stops paying off.
const dictionaryThreshold = 0.75

// Inferencer derives column plans from a table's declared schema plus
// statistical sampling of its data.
//
// The goal is the schema that best fits the data actually present, not
// the one the SQL schema allows for. A column declared nullable that
// holds no NULLs today becomes REQUIRED; an INTEGER column whose values
// all fit 32 bits becomes int32.
type Inferencer struct {
	db  *source.DB
	log *zap.Logger
}

// NewInferencer creates an Inferencer. A nil logger falls back to the
// global one; tests inject an observed logger to assert on warnings.
func NewInferencer(db *source.DB, log *zap.Logger) *Inferencer {
	if log == nil {
		log = logger.Get()
	}
	return &Inferencer{db: db, log: log}
}

// InferTable produces one plan per column of the table, in declared
// column order.
func (in *Inferencer) InferTable(ctx context.Context, table string) ([]ColumnPlan, error) {
	cols, err := in.db.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	plans := make([]ColumnPlan, 0, len(cols))
	for _, col := range cols {
		plan, err := in.inferColumn(ctx, table, col)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// declaredType is a parsed SQL type name: the base name uppercased, plus
// an optional bracketed or parenthesized length annotation.
type declaredType struct {
	base      string
	length    int
	hasLength bool
}

var typeLengthRe = regexp.MustCompile(`^\s*([^([\]]+?)\s*[(\[]\s*(\d+)\s*[)\]]\s*$`)

func parseDeclaredType(decl string) declaredType {
	if m := typeLengthRe.FindStringSubmatch(decl); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			return declaredType{base: normalizeTypeName(m[1]), length: n, hasLength: true}
		}
	}
	return declaredType{base: normalizeTypeName(decl)}
}

func normalizeTypeName(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// integerFamily reports whether a declared type name belongs to SQLite's
// integer affinity family.
func integerFamily(base string) bool {
	switch base {
	case "INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT",
		"UNSIGNED BIG INT", "INT2", "INT8", "INT32", "INT64":
		return true
	}
	return strings.HasPrefix(base, "INT")
}

func (in *Inferencer) inferColumn(ctx context.Context, table string, col source.ColumnInfo) (ColumnPlan, error) {
	log := in.log.With(zap.String("table", table), zap.String("column", col.Name))
	decl := parseDeclaredType(col.DeclaredType)

	// The schema saying NOT NULL settles nullability; otherwise scan for
	// NULLs that are actually present.
	required := col.NotNull
	if !required {
		nulls, err := in.db.CountNulls(ctx, table, col.Name)
		if err != nil {
			return ColumnPlan{}, err
		}
		required = nulls == 0
	}

	physical, typeLength, logical, known, err := in.resolveType(ctx, table, col.Name, decl)
	if err != nil {
		return ColumnPlan{}, err
	}
	if !known {
		log.Warn("unknown declared type, defaulting to byte_array",
			zap.String("declared_type", col.DeclaredType))
	}

	// Length-annotation reconciliation. An annotation on a type with no
	// inherent length is dropped; an annotation disagreeing with a
	// convention-fixed length (uuid, interval) loses to the inferred one.
	if decl.hasLength {
		switch {
		case physical != PhysicalFixedLenByteArray:
			log.Warn("discarding length annotation on variable-length type",
				zap.String("declared_type", col.DeclaredType),
				zap.Int("annotated_length", decl.length))
		case decl.length != typeLength:
			log.Warn("length annotation conflicts with inferred length, inferred length wins",
				zap.String("declared_type", col.DeclaredType),
				zap.Int("annotated_length", decl.length),
				zap.Int("inferred_length", typeLength))
		}
	}

	dictionary := false
	if physical != PhysicalBoolean {
		sampled, distinct, err := in.db.SampleUniqueness(ctx, table, col.Name, dictionarySampleSize)
		if err != nil {
			return ColumnPlan{}, err
		}
		if sampled > 0 {
			ratio := float64(distinct) / float64(sampled)
			dictionary = ratio < dictionaryThreshold
		}
	}

	return ColumnPlan{
		Name:       col.Name,
		Required:   required,
		Physical:   physical,
		TypeLength: typeLength,
		Logical:    logical,
		Encoding:   EncodingUnset,
		Dictionary: dictionary,
		Query: fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid",
			source.QuoteIdent(col.Name), source.QuoteIdent(table)),
	}, nil
}

// resolveType maps a declared type name to physical and logical types.
// known is false when the name was not recognized and the byte_array
// default applied.
func (in *Inferencer) resolveType(ctx context.Context, table, column string, decl declaredType) (PhysicalType, int, LogicalType, bool, error) {
	none := LogicalType{}
	switch decl.base {
	case "BOOL", "BOOLEAN":
		return PhysicalBoolean, 0, none, true, nil
	case "DATE":
		return PhysicalInt32, 0, LogicalType{Kind: LogicalDate}, true, nil
	case "TIME":
		return PhysicalInt64, 0, LogicalType{Kind: LogicalTime, UTC: false, Unit: UnitNanos}, true, nil
	case "DATETIME", "TIMESTAMP":
		return PhysicalInt64, 0, LogicalType{Kind: LogicalTimestamp, UTC: true, Unit: UnitNanos}, true, nil
	case "UUID":
		return PhysicalFixedLenByteArray, 16, LogicalType{Kind: LogicalUUID}, true, nil
	case "INTERVAL":
		return PhysicalFixedLenByteArray, 12, none, true, nil
	case "TEXT", "CHAR", "VARCHAR":
		return PhysicalByteArray, 0, LogicalType{Kind: LogicalString}, true, nil
	case "BLOB", "BINARY", "VARBINARY":
		if decl.hasLength {
			return PhysicalFixedLenByteArray, decl.length, none, true, nil
		}
		return PhysicalByteArray, 0, none, true, nil
	case "JSON":
		return PhysicalByteArray, 0, LogicalType{Kind: LogicalJSON}, true, nil
	case "BSON":
		return PhysicalByteArray, 0, LogicalType{Kind: LogicalBSON}, true, nil
	case "FLOAT":
		return PhysicalFloat32, 0, none, true, nil
	case "REAL", "DOUBLE", "DOUBLE PRECISION":
		return PhysicalFloat64, 0, none, true, nil
	}

	if integerFamily(decl.base) {
		physical, err := in.integerWidth(ctx, table, column)
		if err != nil {
			return 0, 0, none, false, err
		}
		return physical, 0, none, true, nil
	}

	return PhysicalByteArray, 0, none, false, nil
}

// integerWidth scans the column's MIN and MAX and picks int32 when both
// bounds fit a signed 32-bit range. An empty column fits trivially.
func (in *Inferencer) integerWidth(ctx context.Context, table, column string) (PhysicalType, error) {
	min, max, ok, err := in.db.IntRange(ctx, table, column)
	if err != nil {
		return 0, err
	}
	if !ok || (min >= math.MinInt32 && max <= math.MaxInt32) {
		return PhysicalInt32, nil
	}
	return PhysicalInt64, nil
}
