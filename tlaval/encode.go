package tlaval

import (
	"encoding/binary"
	"fmt"
)

// Wire tags for the canonical binary encoding. These values are part of the
// wire protocol (spec.md §6.2) and must never change once archetypes in
// the field depend on them.
const (
	tagBool byte = iota
	tagNumber
	tagString
	tagSet
	tagTuple
	tagFunction
)

// Encode produces the canonical binary encoding of v. Encoding the same
// structural value always produces the same bytes (sets and functions are
// encoded in their canonical sorted order), and Decode(Encode(v)) is
// structurally equal to v for every v.
func Encode(v Value) []byte {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch t := v.(type) {
	case boolVal:
		b := byte(0)
		if t {
			b = 1
		}
		return append(buf, tagBool, b)
	case numberVal:
		buf = append(buf, tagNumber)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(int64(t)))
		return append(buf, tmp[:]...)
	case stringVal:
		buf = append(buf, tagString)
		return appendLenBytes(buf, []byte(t))
	case setVal:
		buf = append(buf, tagSet)
		buf = appendUvarint(buf, uint64(len(t.elems)))
		for _, e := range t.elems {
			buf = appendValue(buf, e)
		}
		return buf
	case tupleVal:
		buf = append(buf, tagTuple)
		buf = appendUvarint(buf, uint64(len(t.elems)))
		for _, e := range t.elems {
			buf = appendValue(buf, e)
		}
		return buf
	case funcVal:
		buf = append(buf, tagFunction)
		buf = appendUvarint(buf, uint64(len(t.pairs)))
		for _, p := range t.pairs {
			buf = appendValue(buf, p.key)
			buf = appendValue(buf, p.val)
		}
		return buf
	default:
		panic(fmt.Sprintf("tlaval: unencodable value %T", v))
	}
}

func appendLenBytes(buf []byte, data []byte) []byte {
	buf = appendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func appendUvarint(buf []byte, n uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	written := binary.PutUvarint(tmp[:], n)
	return append(buf, tmp[:written]...)
}

// Decode parses the canonical binary encoding produced by Encode. It
// returns the number of bytes consumed alongside the decoded Value so
// callers can decode a value prefixed onto a larger frame.
func Decode(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("tlaval: decode: empty input")
	}
	tag := data[0]
	rest := data[1:]
	switch tag {
	case tagBool:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("tlaval: decode: truncated bool")
		}
		return boolVal(rest[0] != 0), 2, nil
	case tagNumber:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("tlaval: decode: truncated number")
		}
		n := int64(binary.BigEndian.Uint64(rest[:8]))
		return numberVal(n), 9, nil
	case tagString:
		s, n, err := readLenBytes(rest)
		if err != nil {
			return nil, 0, err
		}
		return stringVal(s), 1 + n, nil
	case tagSet:
		count, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, 0, fmt.Errorf("tlaval: decode: bad set length")
		}
		off := 1 + n
		if off > len(data) || count > uint64(len(data)-off) {
			return nil, 0, fmt.Errorf("tlaval: decode: set length exceeds remaining input")
		}
		elems := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			e, m, err2 := Decode(data[off:])
			if err2 != nil {
				return nil, 0, err2
			}
			elems = append(elems, e)
			off += m
		}
		return setVal{elems: elems}, off, nil
	case tagTuple:
		count, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, 0, fmt.Errorf("tlaval: decode: bad tuple length")
		}
		off := 1 + n
		if off > len(data) || count > uint64(len(data)-off) {
			return nil, 0, fmt.Errorf("tlaval: decode: tuple length exceeds remaining input")
		}
		elems := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			e, m, err2 := Decode(data[off:])
			if err2 != nil {
				return nil, 0, err2
			}
			elems = append(elems, e)
			off += m
		}
		return tupleVal{elems: elems}, off, nil
	case tagFunction:
		count, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, 0, fmt.Errorf("tlaval: decode: bad function length")
		}
		off := 1 + n
		if off > len(data) || count > uint64(len(data)-off) {
			return nil, 0, fmt.Errorf("tlaval: decode: function length exceeds remaining input")
		}
		pairs := make([]pair, 0, count)
		for i := uint64(0); i < count; i++ {
			k, m, err2 := Decode(data[off:])
			if err2 != nil {
				return nil, 0, err2
			}
			off += m
			val, m2, err3 := Decode(data[off:])
			if err3 != nil {
				return nil, 0, err3
			}
			off += m2
			pairs = append(pairs, pair{key: k, val: val})
		}
		return funcVal{pairs: pairs}, off, nil
	default:
		return nil, 0, fmt.Errorf("tlaval: decode: unknown tag %d", tag)
	}
}

func uvarintLen(data []byte) int {
	_, n := binary.Uvarint(data)
	return n
}

func readLenBytes(data []byte) ([]byte, int, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, 0, fmt.Errorf("tlaval: decode: bad length prefix")
	}
	off := n
	if off+int(count) > len(data) {
		return nil, 0, fmt.Errorf("tlaval: decode: truncated bytes")
	}
	return data[off : off+int(count)], off + int(count), nil
}
