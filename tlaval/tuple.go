package tlaval

import "strings"

// tupleVal is an ordered finite sequence. Records are not Tuples: they are
// Functions over String keys (NewRecord, RecordGet in function.go).
type tupleVal struct {
	elems []Value
}

// NewTuple constructs a Tuple from elems in order.
func NewTuple(elems ...Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return tupleVal{elems: cp}
}

func (v tupleVal) Kind() Kind { return KindTuple }

func (v tupleVal) Equal(other Value) bool {
	o, ok := other.(tupleVal)
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

func (v tupleVal) Less(other Value) bool {
	if less, eq := compareKind(v, other); !eq {
		return less
	}
	o := other.(tupleVal)
	n := len(v.elems)
	if len(o.elems) < n {
		n = len(o.elems)
	}
	for i := 0; i < n; i++ {
		if v.elems[i].Equal(o.elems[i]) {
			continue
		}
		return v.elems[i].Less(o.elems[i])
	}
	return len(v.elems) < len(o.elems)
}

func (v tupleVal) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range v.elems {
		h = (h ^ e.Hash()) * 1099511628211
	}
	return h
}

func (v tupleVal) String() string {
	parts := make([]string, len(v.elems))
	for i, e := range v.elems {
		parts[i] = e.String()
	}
	return "<<" + strings.Join(parts, ", ") + ">>"
}

// AsTuple extracts the element slice, failing if v is not a Tuple. The
// returned slice must not be mutated.
func AsTuple(v Value) ([]Value, error) {
	t, ok := v.(tupleVal)
	if !ok {
		return nil, typeErr("AsTuple", v)
	}
	return t.elems, nil
}

// TupleLen returns the number of elements.
func TupleLen(v Value) (int64, error) {
	e, err := AsTuple(v)
	if err != nil {
		return 0, err
	}
	return int64(len(e)), nil
}

// TupleHead returns the first element.
func TupleHead(v Value) (Value, error) {
	e, err := AsTuple(v)
	if err != nil {
		return nil, err
	}
	if len(e) == 0 {
		return nil, typeErr("TupleHead(empty)", v)
	}
	return e[0], nil
}

// TupleTail returns all but the first element.
func TupleTail(v Value) (Value, error) {
	e, err := AsTuple(v)
	if err != nil {
		return nil, err
	}
	if len(e) == 0 {
		return nil, typeErr("TupleTail(empty)", v)
	}
	return tupleVal{elems: append([]Value(nil), e[1:]...)}, nil
}

// TupleAppend returns the tuple with elem appended.
func TupleAppend(v, elem Value) (Value, error) {
	e, err := AsTuple(v)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(e)+1)
	copy(out, e)
	out[len(e)] = elem
	return tupleVal{elems: out}, nil
}

// TupleConcat returns a ∘ b.
func TupleConcat(a, b Value) (Value, error) {
	ae, err := AsTuple(a)
	if err != nil {
		return nil, err
	}
	be, err := AsTuple(b)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(ae)+len(be))
	copy(out, ae)
	copy(out[len(ae):], be)
	return tupleVal{elems: out}, nil
}

// TupleSubSeq returns the 1-based inclusive subsequence [from, to].
func TupleSubSeq(v Value, from, to int64) (Value, error) {
	e, err := AsTuple(v)
	if err != nil {
		return nil, err
	}
	if from < 1 || to > int64(len(e)) || from > to+1 {
		return nil, typeErr("TupleSubSeq(out of range)", v)
	}
	if from > to {
		return tupleVal{}, nil
	}
	out := append([]Value(nil), e[from-1:to]...)
	return tupleVal{elems: out}, nil
}

// TupleIndex returns the 1-based i'th element.
func TupleIndex(v Value, i int64) (Value, error) {
	e, err := AsTuple(v)
	if err != nil {
		return nil, err
	}
	if i < 1 || i > int64(len(e)) {
		return nil, typeErr("TupleIndex(out of range)", v)
	}
	return e[i-1], nil
}
