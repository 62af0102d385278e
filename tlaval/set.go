package tlaval

import (
	"sort"
	"strings"
)

// setVal is a finite, duplicate-free collection. Elements are kept sorted
// by the total order so that equality, hashing, and iteration are all
// order-independent and deterministic.
type setVal struct {
	elems []Value
}

// NewSet constructs a Set from elems, removing duplicates (by Equal).
func NewSet(elems ...Value) Value {
	return setVal{elems: canonicalize(elems)}
}

// canonicalize sorts elems by the total order and drops structural dupes.
func canonicalize(elems []Value) []Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Less(cp[j]) })
	out := cp[:0:0]
	for i, e := range cp {
		if i > 0 && e.Equal(cp[i-1]) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (v setVal) Kind() Kind { return KindSet }

func (v setVal) Equal(other Value) bool {
	o, ok := other.(setVal)
	if !ok || len(v.elems) != len(o.elems) {
		return false
	}
	for i := range v.elems {
		if !v.elems[i].Equal(o.elems[i]) {
			return false
		}
	}
	return true
}

func (v setVal) Less(other Value) bool {
	if less, eq := compareKind(v, other); !eq {
		return less
	}
	o := other.(setVal)
	if len(v.elems) != len(o.elems) {
		return len(v.elems) < len(o.elems)
	}
	for i := range v.elems {
		if v.elems[i].Equal(o.elems[i]) {
			continue
		}
		return v.elems[i].Less(o.elems[i])
	}
	return false
}

func (v setVal) Hash() uint64 {
	// order-independent: sum the elements' hashes.
	var h uint64
	for _, e := range v.elems {
		h += e.Hash()*1099511628211 + 1
	}
	return h
}

func (v setVal) String() string {
	parts := make([]string, len(v.elems))
	for i, e := range v.elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// AsSet extracts the canonical element slice, failing if v is not a Set.
// The returned slice must not be mutated.
func AsSet(v Value) ([]Value, error) {
	s, ok := v.(setVal)
	if !ok {
		return nil, typeErr("AsSet", v)
	}
	return s.elems, nil
}

// Cardinality returns the number of elements in a Set.
func Cardinality(v Value) (int64, error) {
	s, err := AsSet(v)
	if err != nil {
		return 0, err
	}
	return int64(len(s)), nil
}

// SetMember reports whether elem is in the Set s.
func SetMember(elem, s Value) (bool, error) {
	elems, err := AsSet(s)
	if err != nil {
		return false, err
	}
	i := sort.Search(len(elems), func(i int) bool { return !elems[i].Less(elem) })
	return i < len(elems) && elems[i].Equal(elem), nil
}

// SetUnion returns a ∪ b.
func SetUnion(a, b Value) (Value, error) {
	ae, err := AsSet(a)
	if err != nil {
		return nil, err
	}
	be, err := AsSet(b)
	if err != nil {
		return nil, err
	}
	all := make([]Value, 0, len(ae)+len(be))
	all = append(all, ae...)
	all = append(all, be...)
	return setVal{elems: canonicalize(all)}, nil
}

// SetIntersection returns a ∩ b.
func SetIntersection(a, b Value) (Value, error) {
	ae, err := AsSet(a)
	if err != nil {
		return nil, err
	}
	be, err := AsSet(b)
	if err != nil {
		return nil, err
	}
	var out []Value
	for _, x := range ae {
		if ok, _ := SetMember(x, setVal{elems: be}); ok {
			out = append(out, x)
		}
	}
	return setVal{elems: canonicalize(out)}, nil
}

// SetDifference returns a \ b.
func SetDifference(a, b Value) (Value, error) {
	ae, err := AsSet(a)
	if err != nil {
		return nil, err
	}
	be, err := AsSet(b)
	if err != nil {
		return nil, err
	}
	var out []Value
	for _, x := range ae {
		if ok, _ := SetMember(x, setVal{elems: be}); !ok {
			out = append(out, x)
		}
	}
	return setVal{elems: canonicalize(out)}, nil
}

// SetSubset reports whether a ⊆ b.
func SetSubset(a, b Value) (bool, error) {
	ae, err := AsSet(a)
	if err != nil {
		return false, err
	}
	be, err := AsSet(b)
	if err != nil {
		return false, err
	}
	for _, x := range ae {
		if ok, _ := SetMember(x, setVal{elems: be}); !ok {
			return false, nil
		}
	}
	return true, nil
}

// PowerSet returns the set of all subsets of s. Cost is exponential in
// |s|; callers must only use this on small finite sets.
func PowerSet(s Value) (Value, error) {
	elems, err := AsSet(s)
	if err != nil {
		return nil, err
	}
	n := len(elems)
	if n > 20 {
		return nil, typeErr("PowerSet(too large)", s)
	}
	total := 1 << uint(n)
	out := make([]Value, 0, total)
	for mask := 0; mask < total; mask++ {
		var subset []Value
		for i := 0; i < n; i++ {
			if mask&(1<<uint(i)) != 0 {
				subset = append(subset, elems[i])
			}
		}
		out = append(out, setVal{elems: canonicalize(subset)})
	}
	return setVal{elems: canonicalize(out)}, nil
}

// FlattenUnion returns the union of a set of sets (UNION in TLA+).
func FlattenUnion(s Value) (Value, error) {
	outer, err := AsSet(s)
	if err != nil {
		return nil, err
	}
	var all []Value
	for _, inner := range outer {
		innerElems, err := AsSet(inner)
		if err != nil {
			return nil, err
		}
		all = append(all, innerElems...)
	}
	return setVal{elems: canonicalize(all)}, nil
}

// Enumerate returns the Set's elements in the deterministic total order,
// the helper generated code uses to implement \in quantification.
func Enumerate(s Value) ([]Value, error) {
	return AsSet(s)
}
