// Package monitor implements the standalone failure-detection service
// (spec.md §4.5): archetypes register and heartbeat their peer identity,
// and failure-detector clients query a peer's current status.
package monitor

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/mpcal-lang/distsys/tlaval"
)

const maxFrameBytes = 1 << 20

type msgKind byte

const (
	kindRegister msgKind = iota + 1
	kindHeartbeat
	kindQuery
	kindStatus
)

// request is the single wire message archetypes and failure-detector
// clients send: a kind tag plus a peer-id Value, framing mirroring the
// mailbox protocol (spec.md §6.3).
type request struct {
	kind   msgKind
	peerID tlaval.Value
}

// response answers a query with a boolean "alive" status.
type response struct {
	alive bool
}

func writeRequest(conn net.Conn, req request) error {
	payload := tlaval.Encode(req.peerID)
	frame := make([]byte, 5+len(payload))
	frame[0] = byte(req.kind)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("monitor: write request: %w", err)
	}
	return nil
}

func readRequest(r io.Reader) (request, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return request{}, err
	}
	kind := msgKind(header[0])
	n := binary.BigEndian.Uint32(header[1:5])
	if n > maxFrameBytes {
		return request{}, fmt.Errorf("monitor: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return request{}, fmt.Errorf("monitor: read request payload: %w", err)
	}
	v, consumed, err := tlaval.Decode(payload)
	if err != nil {
		return request{}, fmt.Errorf("monitor: decode peer id: %w", err)
	}
	if consumed != len(payload) {
		return request{}, fmt.Errorf("monitor: request had %d trailing bytes", len(payload)-consumed)
	}
	return request{kind: kind, peerID: v}, nil
}

func writeResponse(conn net.Conn, resp response) error {
	var b [2]byte
	b[0] = byte(kindStatus)
	if resp.alive {
		b[1] = 1
	}
	if _, err := conn.Write(b[:]); err != nil {
		return fmt.Errorf("monitor: write response: %w", err)
	}
	return nil
}

func readResponse(r io.Reader) (response, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return response{}, err
	}
	return response{alive: b[1] == 1}, nil
}
