package mailbox

import (
	"context"
	"fmt"
	"io"
	"net"
)

// connKind is a single marker byte every fresh mailbox connection sends
// immediately after dialing, before anything else, letting one listener
// multiplex long-lived write streams and short-lived capacity probes off
// the same "host:port" (spec.md §4.4.2 gives one address per peer, not
// one per purpose).
type connKind byte

const (
	connKindWrite    connKind = 'W'
	connKindCapacity connKind = 'C'
)

const (
	capacityRoom byte = 0
	capacityFull byte = 1
)

// probeCapacity dials a fresh, unpooled connection to addr and asks
// whether its inbox has room, per spec.md §4.2's `pre-commit` contract
// ("may block briefly to ensure there is room in the peer's inbox"). The
// connection is never reused: capacity can change between any two
// writes, so answering from a pooled write connection would just serve a
// stale reading, and a write-marked connection can't be reused for a
// probe anyway without desyncing the peer's frame reader.
func probeCapacity(ctx context.Context, d *dialer, addr string) (full bool, err error) {
	conn, err := d.Dial(ctx, addr)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{byte(connKindCapacity)}); err != nil {
		return false, fmt.Errorf("mailbox: capacity probe write: %w", err)
	}
	resp := make([]byte, 1)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return false, fmt.Errorf("mailbox: capacity probe read: %w", err)
	}
	return resp[0] == capacityFull, nil
}
