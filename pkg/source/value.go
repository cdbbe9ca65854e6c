package source

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sq2pq/sq2pq/pkg/errors"
)

// Kind identifies the storage class of a raw SQLite cell.
type Kind int

const (
	// KindNull is the SQL NULL storage class
	KindNull Kind = iota
	// KindInteger is a 64-bit signed integer
	KindInteger
	// KindReal is a 64-bit float
	KindReal
	// KindText is a text value
	KindText
	// KindBlob is a binary value
	KindBlob
)

// String returns the SQLite name of the storage class
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is one dynamically-typed SQLite cell. It is a closed tagged union
// over NULL, INTEGER, REAL, TEXT and BLOB. Values are immutable; byte
// payloads are owned by the Value and must not be mutated by callers.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    []byte
}

// Null returns the NULL value
func Null() Value { return Value{kind: KindNull} }

// Integer returns an INTEGER value
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Real returns a REAL value
func Real(f float64) Value { return Value{kind: KindReal, f: f} }

// Text returns a TEXT value
func Text(b []byte) Value { return Value{kind: KindText, b: b} }

// Blob returns a BLOB value
func Blob(b []byte) Value { return Value{kind: KindBlob, b: b} }

// Kind returns the storage class tag
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is NULL
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload. Valid only for KindInteger.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the real payload. Valid only for KindReal.
func (v Value) Float64() float64 { return v.f }

// Bytes returns the byte payload. Valid only for KindText and KindBlob.
func (v Value) Bytes() []byte { return v.b }

// String renders the value for diagnostics
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(string(v.b))
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "?"
	}
}

// valueOf normalizes a database/sql scan result into a Value. The sqlite
// driver hands back int64, float64, string, []byte or nil; time.Time can
// appear when a driver applies decltype conversions, and is folded back
// into its canonical SQLite text form.
func valueOf(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case int64:
		return Integer(x), nil
	case float64:
		return Real(x), nil
	case string:
		return Text([]byte(x)), nil
	case []byte:
		b := make([]byte, len(x))
		copy(b, x)
		return Blob(b), nil
	case bool:
		if x {
			return Integer(1), nil
		}
		return Integer(0), nil
	case time.Time:
		return Text([]byte(x.UTC().Format("2006-01-02 15:04:05.999999999"))), nil
	default:
		return Null(), errors.Newf(errors.TypeQuery, "unsupported driver value of type %T", raw)
	}
}
