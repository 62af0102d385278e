package mailbox

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/mpcal-lang/distsys/tlaval"
)

// maxFrameBytes bounds a single frame to guard against a corrupt length
// prefix turning a read into an unbounded allocation.
const maxFrameBytes = 64 << 20

// writeEnvelope frames v as length-prefixed bytes: a u32 big-endian byte
// count followed by v's canonical encoding (spec.md §6.2).
func writeEnvelope(conn net.Conn, v tlaval.Value) error {
	payload := tlaval.Encode(v)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return fmt.Errorf("mailbox: write frame header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("mailbox: write frame payload: %w", err)
	}
	return nil
}

// readEnvelope blocks for one full frame and decodes it.
func readEnvelope(r io.Reader) (tlaval.Value, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("mailbox: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("mailbox: read frame payload: %w", err)
	}
	v, consumed, err := tlaval.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("mailbox: decode frame: %w", err)
	}
	if consumed != len(payload) {
		return nil, fmt.Errorf("mailbox: frame had %d trailing bytes", len(payload)-consumed)
	}
	return v, nil
}

// envelope bundles a sender identity and a monotonic per-sender sequence
// number around the payload value, so the receiver can de-duplicate
// retried sends (spec.md §4.4.2, §6.2). It is itself an ordinary Value —
// the wire format is the value algebra's own canonical encoding, nothing
// more.
func envelope(sender tlaval.Value, seq uint64, v tlaval.Value) tlaval.Value {
	return tlaval.NewTuple(sender, tlaval.NewNumber(int64(seq)), v)
}

func parseEnvelope(v tlaval.Value) (sender tlaval.Value, seq uint64, payload tlaval.Value, err error) {
	parts, err := tlaval.AsTuple(v)
	if err != nil || len(parts) != 3 {
		return nil, 0, nil, fmt.Errorf("mailbox: malformed envelope")
	}
	seqNum, err := tlaval.AsNumber(parts[1])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("mailbox: malformed envelope sequence: %w", err)
	}
	return parts[0], uint64(seqNum), parts[2], nil
}
