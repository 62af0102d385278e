package tlaval

import (
	"fmt"
	"hash/fnv"
	"math"
)

type boolVal bool

// NewBool constructs a Bool value.
func NewBool(b bool) Value { return boolVal(b) }

func (v boolVal) Kind() Kind { return KindBool }

func (v boolVal) Equal(other Value) bool {
	o, ok := other.(boolVal)
	return ok && v == o
}

func (v boolVal) Less(other Value) bool {
	if less, eq := compareKind(v, other); !eq {
		return less
	}
	o := other.(boolVal)
	return !bool(v) && bool(o)
}

func (v boolVal) Hash() uint64 {
	if v {
		return 1
	}
	return 0
}

func (v boolVal) String() string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// AsBool extracts the Go bool, failing with a TypeError if v is not Bool.
func AsBool(v Value) (bool, error) {
	b, ok := v.(boolVal)
	if !ok {
		return false, typeErr("AsBool", v)
	}
	return bool(b), nil
}

// numberVal is a signed, arbitrary-width-within-int64 TLA+ Number. Overflow
// on arithmetic is a failure rather than silent wraparound (spec.md §4.1).
type numberVal int64

// NewNumber constructs a Number value.
func NewNumber(n int64) Value { return numberVal(n) }

func (v numberVal) Kind() Kind { return KindNumber }

func (v numberVal) Equal(other Value) bool {
	o, ok := other.(numberVal)
	return ok && v == o
}

func (v numberVal) Less(other Value) bool {
	if less, eq := compareKind(v, other); !eq {
		return less
	}
	return v < other.(numberVal)
}

func (v numberVal) Hash() uint64 {
	h := fnv.New64a()
	var b [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	h.Write(b[:])
	return h.Sum64()
}

func (v numberVal) String() string { return fmt.Sprintf("%d", int64(v)) }

// AsNumber extracts the Go int64, failing with a TypeError if v is not Number.
func AsNumber(v Value) (int64, error) {
	n, ok := v.(numberVal)
	if !ok {
		return 0, typeErr("AsNumber", v)
	}
	return int64(n), nil
}

func addOverflows(a, b int64) bool {
	if b > 0 && a > math.MaxInt64-b {
		return true
	}
	if b < 0 && a < math.MinInt64-b {
		return true
	}
	return false
}

func subOverflows(a, b int64) bool {
	if b == math.MinInt64 {
		return a >= 0
	}
	return addOverflows(a, -b)
}

func mulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return true
	}
	r := a * b
	return r/b != a
}

// Add returns a+b, failing on overflow.
func Add(a, b Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return nil, err
	}
	if addOverflows(x, y) {
		return nil, typeErr("Add(overflow)", a, b)
	}
	return numberVal(x + y), nil
}

// Sub returns a-b, failing on overflow.
func Sub(a, b Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return nil, err
	}
	if subOverflows(x, y) {
		return nil, typeErr("Sub(overflow)", a, b)
	}
	return numberVal(x - y), nil
}

// Mul returns a*b, failing on overflow.
func Mul(a, b Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return nil, err
	}
	if mulOverflows(x, y) {
		return nil, typeErr("Mul(overflow)", a, b)
	}
	return numberVal(x * y), nil
}

// Neg returns -a.
func Neg(a Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	if x == math.MinInt64 {
		return nil, typeErr("Neg(overflow)", a)
	}
	return numberVal(-x), nil
}

// FloorDiv returns the mathematical (floored) quotient of a and b.
func FloorDiv(a, b Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return nil, err
	}
	if y == 0 {
		return nil, typeErr("FloorDiv(by zero)", a, b)
	}
	if x == math.MinInt64 && y == -1 {
		return nil, typeErr("FloorDiv(overflow)", a, b)
	}
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return numberVal(q), nil
}

// FloorMod returns the mathematical (floored) remainder of a and b.
func FloorMod(a, b Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return nil, err
	}
	if y == 0 {
		return nil, typeErr("FloorMod(by zero)", a, b)
	}
	r := x % y
	if r != 0 && ((r < 0) != (y < 0)) {
		r += y
	}
	return numberVal(r), nil
}

// Pow returns a raised to the non-negative integer power b.
func Pow(a, b Value) (Value, error) {
	x, err := AsNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return nil, err
	}
	if y < 0 {
		return nil, typeErr("Pow(negative exponent)", a, b)
	}
	result := int64(1)
	for i := int64(0); i < y; i++ {
		if mulOverflows(result, x) {
			return nil, typeErr("Pow(overflow)", a, b)
		}
		result *= x
	}
	return numberVal(result), nil
}

// Compare implements <, <=, >, >= via a single signed comparator: negative
// if a<b, zero if equal, positive if a>b.
func Compare(a, b Value) (int, error) {
	x, err := AsNumber(a)
	if err != nil {
		return 0, err
	}
	y, err := AsNumber(b)
	if err != nil {
		return 0, err
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	default:
		return 0, nil
	}
}

type stringVal string

// NewString constructs a String value.
func NewString(s string) Value { return stringVal(s) }

func (v stringVal) Kind() Kind { return KindString }

func (v stringVal) Equal(other Value) bool {
	o, ok := other.(stringVal)
	return ok && v == o
}

func (v stringVal) Less(other Value) bool {
	if less, eq := compareKind(v, other); !eq {
		return less
	}
	return v < other.(stringVal)
}

func (v stringVal) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(v))
	return h.Sum64()
}

func (v stringVal) String() string { return string(v) }

// AsString extracts the Go string, failing with a TypeError if v is not String.
func AsString(v Value) (string, error) {
	s, ok := v.(stringVal)
	if !ok {
		return "", typeErr("AsString", v)
	}
	return string(s), nil
}
