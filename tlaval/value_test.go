package tlaval

import "testing"

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	enc := Encode(v)
	dec, n, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("decode consumed %d of %d bytes", n, len(enc))
	}
	if !dec.Equal(v) {
		t.Fatalf("round trip mismatch: %v != %v", dec, v)
	}
	return dec
}

func TestRoundTripScalars(t *testing.T) {
	roundTrip(t, NewBool(true))
	roundTrip(t, NewBool(false))
	roundTrip(t, NewNumber(0))
	roundTrip(t, NewNumber(-42))
	roundTrip(t, NewNumber(1<<40))
	roundTrip(t, NewString(""))
	roundTrip(t, NewString("hello, world"))
}

func TestRoundTripCompound(t *testing.T) {
	set := NewSet(NewNumber(3), NewNumber(1), NewNumber(2), NewNumber(1))
	roundTrip(t, set)

	tup := NewTuple(NewNumber(1), NewString("a"), NewBool(true))
	roundTrip(t, tup)

	fn := NewFunction([]Value{NewString("k1"), NewString("k2")}, []Value{NewNumber(1), NewNumber(2)})
	roundTrip(t, fn)

	nested := NewSet(tup, NewTuple(NewNumber(9)))
	roundTrip(t, nested)
}

func TestSetDeduplicatesAndIsOrderIndependent(t *testing.T) {
	a := NewSet(NewNumber(1), NewNumber(2), NewNumber(2), NewNumber(3))
	b := NewSet(NewNumber(3), NewNumber(2), NewNumber(1))
	if !a.Equal(b) {
		t.Fatalf("expected %v == %v", a, b)
	}
	n, err := Cardinality(a)
	if err != nil || n != 3 {
		t.Fatalf("expected cardinality 3, got %d, %v", n, err)
	}
}

func TestTotalOrderIsAntisymmetricAndTransitive(t *testing.T) {
	values := []Value{
		NewBool(false), NewBool(true),
		NewNumber(-5), NewNumber(0), NewNumber(5),
		NewString("a"), NewString("b"),
		NewSet(NewNumber(1)), NewTuple(NewNumber(1)),
	}
	for i, a := range values {
		for j, b := range values {
			if i == j {
				continue
			}
			if a.Less(b) && b.Less(a) {
				t.Fatalf("order not antisymmetric: %v vs %v", a, b)
			}
			if a.Equal(b) && (a.Less(b) || b.Less(a)) {
				t.Fatalf("equal values compare unequal: %v vs %v", a, b)
			}
		}
	}
}

func TestArithmeticOverflowFails(t *testing.T) {
	max := NewNumber(1<<62 - 1)
	if _, err := Mul(max, max); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestFloorDivAndMod(t *testing.T) {
	q, err := FloorDiv(NewNumber(-7), NewNumber(2))
	if err != nil {
		t.Fatalf("FloorDiv: %v", err)
	}
	if n, _ := AsNumber(q); n != -4 {
		t.Fatalf("expected floor(-7/2) == -4, got %d", n)
	}
	r, err := FloorMod(NewNumber(-7), NewNumber(2))
	if err != nil {
		t.Fatalf("FloorMod: %v", err)
	}
	if n, _ := AsNumber(r); n != 1 {
		t.Fatalf("expected -7 mod 2 == 1, got %d", n)
	}
	if _, err := FloorDiv(NewNumber(1), NewNumber(0)); err == nil {
		t.Fatalf("expected divide by zero error")
	}
}

func TestTupleIndexingIsOneBased(t *testing.T) {
	tup := NewTuple(NewString("a"), NewString("b"), NewString("c"))
	v, err := TupleIndex(tup, 1)
	if err != nil {
		t.Fatalf("TupleIndex: %v", err)
	}
	if s, _ := AsString(v); s != "a" {
		t.Fatalf("expected 'a', got %s", s)
	}
	if _, err := TupleIndex(tup, 0); err == nil {
		t.Fatalf("expected error indexing at 0")
	}
	if _, err := TupleIndex(tup, 4); err == nil {
		t.Fatalf("expected error indexing past the end")
	}
}

func TestFunctionApplyAndUpdate(t *testing.T) {
	fn := SinglePair(NewString("a"), NewNumber(1))
	if _, err := Apply(fn, NewString("b")); err == nil {
		t.Fatalf("expected error applying out-of-domain key")
	}
	updated, err := FunctionUpdate(fn, NewString("b"), NewNumber(2))
	if err != nil {
		t.Fatalf("FunctionUpdate: %v", err)
	}
	v, err := Apply(updated, NewString("b"))
	if err != nil {
		t.Fatalf("Apply after update: %v", err)
	}
	if n, _ := AsNumber(v); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestFunctionMergeLeftWins(t *testing.T) {
	left := SinglePair(NewString("k"), NewNumber(1))
	right := SinglePair(NewString("k"), NewNumber(2))
	merged, err := FunctionMerge(left, right)
	if err != nil {
		t.Fatalf("FunctionMerge: %v", err)
	}
	v, _ := Apply(merged, NewString("k"))
	if n, _ := AsNumber(v); n != 1 {
		t.Fatalf("expected left to win, got %d", n)
	}
}

func TestRecordDotAccess(t *testing.T) {
	rec := NewRecord([]string{"x", "y"}, []Value{NewNumber(1), NewNumber(2)})
	v, err := RecordGet(rec, "y")
	if err != nil {
		t.Fatalf("RecordGet: %v", err)
	}
	if n, _ := AsNumber(v); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}
