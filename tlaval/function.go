package tlaval

import (
	"sort"
	"strings"
)

// pair is one (key, value) binding of a Function.
type pair struct {
	key Value
	val Value
}

// funcVal is a finite, totally-defined map from Value to Value. Bindings
// are kept sorted by key so equality, hashing and encoding are
// deterministic regardless of construction order.
type funcVal struct {
	pairs []pair
}

// NewFunction constructs a Function from the given keys and values, which
// must be the same length. Later duplicate keys overwrite earlier ones,
// matching the semantics of repeated :> / @@ application.
func NewFunction(keys, vals []Value) Value {
	m := map[uint64][]pair{}
	order := make([]Value, 0, len(keys))
	for i, k := range keys {
		h := k.Hash()
		bucket := m[h]
		found := false
		for j, p := range bucket {
			if p.key.Equal(k) {
				bucket[j].val = vals[i]
				found = true
				break
			}
		}
		if !found {
			bucket = append(bucket, pair{key: k, val: vals[i]})
			order = append(order, k)
		}
		m[h] = bucket
	}
	out := make([]pair, 0, len(order))
	for _, k := range order {
		for _, p := range m[k.Hash()] {
			if p.key.Equal(k) {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })
	return funcVal{pairs: out}
}

// SinglePair constructs the one-element function k :> v.
func SinglePair(k, v Value) Value {
	return funcVal{pairs: []pair{{key: k, val: v}}}
}

func (v funcVal) Kind() Kind { return KindFunction }

func (v funcVal) Equal(other Value) bool {
	o, ok := other.(funcVal)
	if !ok || len(v.pairs) != len(o.pairs) {
		return false
	}
	for i := range v.pairs {
		if !v.pairs[i].key.Equal(o.pairs[i].key) || !v.pairs[i].val.Equal(o.pairs[i].val) {
			return false
		}
	}
	return true
}

func (v funcVal) Less(other Value) bool {
	if less, eq := compareKind(v, other); !eq {
		return less
	}
	o := other.(funcVal)
	if len(v.pairs) != len(o.pairs) {
		return len(v.pairs) < len(o.pairs)
	}
	for i := range v.pairs {
		if !v.pairs[i].key.Equal(o.pairs[i].key) {
			return v.pairs[i].key.Less(o.pairs[i].key)
		}
		if !v.pairs[i].val.Equal(o.pairs[i].val) {
			return v.pairs[i].val.Less(o.pairs[i].val)
		}
	}
	return false
}

func (v funcVal) Hash() uint64 {
	var h uint64
	for _, p := range v.pairs {
		h += (p.key.Hash()*31 + p.val.Hash()) * 1099511628211
	}
	return h
}

func (v funcVal) String() string {
	parts := make([]string, len(v.pairs))
	for i, p := range v.pairs {
		parts[i] = p.key.String() + " :> " + p.val.String()
	}
	return "[" + strings.Join(parts, " @@ ") + "]"
}

func (v funcVal) lookup(key Value) (Value, bool) {
	i := sort.Search(len(v.pairs), func(i int) bool { return !v.pairs[i].key.Less(key) })
	if i < len(v.pairs) && v.pairs[i].key.Equal(key) {
		return v.pairs[i].val, true
	}
	return nil, false
}

// asFuncVal extracts the underlying funcVal for internal use elsewhere in
// the package, failing if v is not a Function.
func asFuncVal(v Value) (funcVal, error) {
	f, ok := v.(funcVal)
	if !ok {
		return funcVal{}, typeErr("AsFunction", v)
	}
	return f, nil
}

// FunctionDomain returns the Set of keys a Function is defined over.
func FunctionDomain(v Value) (Value, error) {
	f, err := asFuncVal(v)
	if err != nil {
		return nil, err
	}
	keys := make([]Value, len(f.pairs))
	for i, p := range f.pairs {
		keys[i] = p.key
	}
	return setVal{elems: keys}, nil
}

// Apply returns f[key], failing if key is not in f's domain.
func Apply(f, key Value) (Value, error) {
	fv, err := asFuncVal(f)
	if err != nil {
		return nil, err
	}
	val, ok := fv.lookup(key)
	if !ok {
		return nil, typeErr("Apply(key not in domain)", f, key)
	}
	return val, nil
}

// FunctionUpdate returns f with key rebound to val (EXCEPT ![key] = val).
func FunctionUpdate(f, key, val Value) (Value, error) {
	fv, err := asFuncVal(f)
	if err != nil {
		return nil, err
	}
	out := make([]pair, 0, len(fv.pairs)+1)
	replaced := false
	for _, p := range fv.pairs {
		if p.key.Equal(key) {
			out = append(out, pair{key: key, val: val})
			replaced = true
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, pair{key: key, val: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })
	return funcVal{pairs: out}, nil
}

// FunctionMerge implements @@: bindings of a win over bindings of b on
// overlapping keys.
func FunctionMerge(a, b Value) (Value, error) {
	av, err := asFuncVal(a)
	if err != nil {
		return nil, err
	}
	bv, err := asFuncVal(b)
	if err != nil {
		return nil, err
	}
	out := append([]pair(nil), av.pairs...)
	for _, p := range bv.pairs {
		if _, ok := av.lookup(p.key); !ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })
	return funcVal{pairs: out}, nil
}

// RecordGet implements record dot-access: r.field is function application
// of the field name as a String key.
func RecordGet(r Value, field string) (Value, error) {
	return Apply(r, NewString(field))
}

// NewRecord builds a record (a Function over string keys) from field names
// and values, which must be the same length.
func NewRecord(fields []string, vals []Value) Value {
	keys := make([]Value, len(fields))
	for i, f := range fields {
		keys[i] = NewString(f)
	}
	return NewFunction(keys, vals)
}
