package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// dialer opens outbound TCP connections to peer mailboxes.
type dialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

func newDialer(timeout, keepAlive time.Duration) *dialer {
	return &dialer{Timeout: timeout, KeepAlive: keepAlive}
}

func (d *dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// pooledConn tags a connection with its pool key and a correlation id for
// logging, and tracks idle time for reaping.
type pooledConn struct {
	net.Conn
	addr     string
	connID   string
	lastUsed time.Time
}

// connPool keeps idle write-stream connections around per peer address so
// a busy archetype doesn't pay a fresh TCP handshake (plus the
// connKindWrite round trip) on every commit; capacity probes never touch
// this pool (capacity.go), since an idle write connection answering a
// probe would desync the peer's frame reader.
type connPool struct {
	dialer    *dialer
	mu        sync.Mutex
	conns     map[string][]*pooledConn
	maxIdle   int
	idleTTL   time.Duration
	closing   chan struct{}
	closeOnce sync.Once
}

func newConnPool(d *dialer, maxIdle int, idleTTL time.Duration) *connPool {
	cp := &connPool{
		dialer:  d,
		conns:   make(map[string][]*pooledConn),
		maxIdle: maxIdle,
		idleTTL: idleTTL,
		closing: make(chan struct{}),
	}
	go cp.reaper()
	return cp
}

// Acquire returns a write-stream connection to addr, reusing an idle one
// if available. A freshly dialed connection leads with the connKindWrite
// marker so the peer's listener routes it to its envelope reader instead
// of the capacity-probe path (capacity.go) — every connection this pool
// hands out is already speaking the mailbox write protocol, not a bare
// reusable socket.
func (cp *connPool) Acquire(ctx context.Context, addr string) (net.Conn, error) {
	cp.mu.Lock()
	list := cp.conns[addr]
	n := len(list)
	if n > 0 {
		c := list[n-1]
		cp.conns[addr] = list[:n-1]
		cp.mu.Unlock()
		c.lastUsed = time.Now()
		return c, nil
	}
	cp.mu.Unlock()
	if cp.dialer == nil {
		return nil, errors.New("mailbox: dialer not configured")
	}
	conn, err := cp.dialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte{byte(connKindWrite)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mailbox: write-stream handshake: %w", err)
	}
	return &pooledConn{Conn: conn, addr: addr, connID: uuid.NewString(), lastUsed: time.Now()}, nil
}

func (cp *connPool) Release(conn net.Conn) {
	pc, ok := conn.(*pooledConn)
	if !ok {
		_ = conn.Close()
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.maxIdle > 0 && len(cp.conns[pc.addr]) < cp.maxIdle {
		pc.lastUsed = time.Now()
		cp.conns[pc.addr] = append(cp.conns[pc.addr], pc)
		return
	}
	_ = pc.Close()
}

// Discard closes conn outright instead of returning it to the pool, used
// when a connection is known to be broken.
func (cp *connPool) Discard(conn net.Conn) {
	_ = conn.Close()
}

func (cp *connPool) Close() {
	cp.closeOnce.Do(func() {
		close(cp.closing)
		cp.mu.Lock()
		defer cp.mu.Unlock()
		for _, list := range cp.conns {
			for _, c := range list {
				_ = c.Close()
			}
		}
		cp.conns = make(map[string][]*pooledConn)
	})
}

// reaper periodically evicts connections that have sat idle past idleTTL;
// a write connection nobody is using is also a peer we haven't recently
// confirmed has room, so a short TTL keeps Acquire's reuse from masking a
// peer that went away or filled up between commits.
func (cp *connPool) reaper() {
	ticker := time.NewTicker(cp.idleTTL/2 + time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cp.sweepIdle()
		case <-cp.closing:
			return
		}
	}
}

func (cp *connPool) sweepIdle() {
	cutoff := time.Now().Add(-cp.idleTTL)
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for addr, list := range cp.conns {
		kept := list[:0]
		for _, c := range list {
			if c.lastUsed.Before(cutoff) {
				_ = c.Close()
				continue
			}
			kept = append(kept, c)
		}
		cp.conns[addr] = kept
	}
}
