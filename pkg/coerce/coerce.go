// Package coerce converts one dynamically-typed SQLite cell into one
// statically-typed parquet value.
//
// NULL interception is the writer's job: by the time a Value reaches this
// package it must not be NULL, and a NULL here is reported as an internal
// invariant violation rather than a recoverable conversion error.
package coerce

import (
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/parquet"

	"github.com/sq2pq/sq2pq/pkg/errors"
	"github.com/sq2pq/sq2pq/pkg/source"
)

func nullPrecondition(target string) error {
	return errors.Newf(errors.TypeInternal, "NULL cell reached coercion to %s; nulls must be intercepted by the writer", target)
}

func mismatch(v source.Value, target string) error {
	return errors.Newf(errors.TypeTypeMismatch, "cannot convert %s value to %s", v.Kind(), target).
		WithDetail("source_kind", v.Kind().String()).
		WithDetail("target_type", target)
}

// Bool converts an INTEGER cell to a boolean: 1 is true, anything else
// is false.
func Bool(v source.Value) (bool, error) {
	switch v.Kind() {
	case source.KindInteger:
		return v.Int64() == 1, nil
	case source.KindNull:
		return false, nullPrecondition("boolean")
	default:
		return false, mismatch(v, "boolean")
	}
}

// Int32 converts an INTEGER cell, range-checked against int32.
func Int32(v source.Value) (int32, error) {
	switch v.Kind() {
	case source.KindInteger:
		n := v.Int64()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, errors.Newf(errors.TypeOverflow, "value %d does not fit int32", n).
				WithDetail("value", n)
		}
		return int32(n), nil
	case source.KindNull:
		return 0, nullPrecondition("int32")
	default:
		return 0, mismatch(v, "int32")
	}
}

// Int64 converts an INTEGER cell.
func Int64(v source.Value) (int64, error) {
	switch v.Kind() {
	case source.KindInteger:
		return v.Int64(), nil
	case source.KindNull:
		return 0, nullPrecondition("int64")
	default:
		return 0, mismatch(v, "int64")
	}
}

// Float32 converts a REAL cell with a narrowing cast.
func Float32(v source.Value) (float32, error) {
	switch v.Kind() {
	case source.KindReal:
		return float32(v.Float64()), nil
	case source.KindNull:
		return 0, nullPrecondition("float32")
	default:
		return 0, mismatch(v, "float32")
	}
}

// Float64 converts a REAL cell.
func Float64(v source.Value) (float64, error) {
	switch v.Kind() {
	case source.KindReal:
		return v.Float64(), nil
	case source.KindNull:
		return 0, nullPrecondition("float64")
	default:
		return 0, mismatch(v, "float64")
	}
}

// ByteArray converts TEXT and BLOB cells verbatim. INTEGER and REAL
// cells are rendered as their canonical decimal text, which lets numeric
// source columns feed a text-typed output column.
func ByteArray(v source.Value) (parquet.ByteArray, error) {
	switch v.Kind() {
	case source.KindText, source.KindBlob:
		return parquet.ByteArray(v.Bytes()), nil
	case source.KindInteger:
		return parquet.ByteArray(strconv.AppendInt(nil, v.Int64(), 10)), nil
	case source.KindReal:
		return parquet.ByteArray(strconv.AppendFloat(nil, v.Float64(), 'g', -1, 64)), nil
	case source.KindNull:
		return nil, nullPrecondition("byte_array")
	default:
		return nil, mismatch(v, "byte_array")
	}
}

// FixedLenByteArray converts TEXT and BLOB cells whose length equals the
// column's fixed length exactly.
func FixedLenByteArray(v source.Value, length int) (parquet.FixedLenByteArray, error) {
	switch v.Kind() {
	case source.KindText, source.KindBlob:
		b := v.Bytes()
		if len(b) != length {
			return nil, errors.Newf(errors.TypeLengthMismatch,
				"value of %d bytes does not fit fixed_len_byte_array(%d)", len(b), length).
				WithDetail("value_length", len(b)).
				WithDetail("type_length", length)
		}
		return parquet.FixedLenByteArray(b), nil
	case source.KindNull:
		return nil, nullPrecondition("fixed_len_byte_array")
	default:
		return nil, mismatch(v, "fixed_len_byte_array")
	}
}
