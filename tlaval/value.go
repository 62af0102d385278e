// Package tlaval implements the immutable TLA+ value algebra that archetype
// code reads and writes through resources: booleans, signed numbers,
// strings, sets, tuples and finite functions (records are functions over
// string keys). Every Value is structurally comparable,
// totally ordered, and has a canonical binary encoding.
package tlaval

import "fmt"

// Kind identifies a Value's variant.
type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindString
	KindSet
	KindTuple
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindSet:
		return "Set"
	case KindTuple:
		return "Tuple"
	case KindFunction:
		return "Function"
	default:
		return "Unknown"
	}
}

// Value is an immutable TLA+ value. All concrete implementations live in
// this package; callers never construct them directly.
type Value interface {
	Kind() Kind
	// Equal reports structural equality.
	Equal(other Value) bool
	// Less implements the total order used for canonicalisation and
	// deterministic iteration.
	Less(other Value) bool
	// Hash returns a hash suitable for use as a map key.
	Hash() uint64
	String() string
}

// TypeError reports an operator applied to an incompatible Value variant.
type TypeError struct {
	Op   string
	Args []Value
}

func (e *TypeError) Error() string {
	kinds := make([]string, len(e.Args))
	for i, a := range e.Args {
		kinds[i] = a.Kind().String()
	}
	return fmt.Sprintf("tlaval: type error in %s: %v", e.Op, kinds)
}

func typeErr(op string, args ...Value) error {
	return &TypeError{Op: op, Args: args}
}

// compareKind orders values first by Kind when the variants differ, so Less
// is total across the whole algebra and not just within one variant.
func compareKind(a, b Value) (less bool, eq bool) {
	if a.Kind() != b.Kind() {
		return a.Kind() < b.Kind(), false
	}
	return false, true
}
