package mailbox

import (
	"context"
	"io"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

type dedupKey struct {
	sender string
	seq    uint64
}

// local is this archetype's inbox: a background listener accepts
// connections from remote writers and appends decoded, de-duplicated
// values onto a FIFO queue (spec.md §4.4.2 "Local sub-resource
// semantics"). Read pops the head tentatively; the pop is only durable
// (not returned to the queue) once Commit runs.
type local struct {
	resource.Leaf

	logger        logrus.FieldLogger
	listener      net.Listener
	dedup         *lru.Cache[dedupKey, struct{}]
	metrics       *Metrics
	selfID        string
	maxQueueDepth int

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []tlaval.Value
	popped      bool
	poppedValue tlaval.Value
	closed      bool
}

func newLocal(addr string, logger logrus.FieldLogger, dedupSize int, metrics *Metrics, selfID string, maxQueueDepth int) (*local, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[dedupKey, struct{}](dedupSize)
	if err != nil {
		return nil, err
	}
	l := &local{
		Leaf:          resource.Leaf{Name: "mailbox(local)"},
		logger:        logger,
		listener:      ln,
		dedup:         cache,
		metrics:       metrics,
		selfID:        selfID,
		maxQueueDepth: maxQueueDepth,
	}
	l.cond = sync.NewCond(&l.mu)
	go l.acceptLoop()
	return l, nil
}

// atCapacity reports whether the inbox has no room for another message;
// answered to remote peers over the capacity-probe side channel so their
// pre-commit can distinguish "peer full" from "peer unreachable" (spec.md
// §4.2, §4.4.2).
func (l *local) atCapacity() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxQueueDepth > 0 && len(l.queue) >= l.maxQueueDepth
}

// reportQueueDepth updates the queue-depth gauge; caller must hold l.mu.
func (l *local) reportQueueDepth() {
	l.metrics.setQueueDepth(l.selfID, len(l.queue))
}

func (l *local) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}
		go l.dispatch(conn)
	}
}

// dispatch reads the one-byte connKind every mailbox connection leads
// with, then routes it to the write-stream reader or to a one-shot
// capacity-probe reply.
func (l *local) dispatch(conn net.Conn) {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(conn, marker); err != nil {
		conn.Close()
		return
	}
	switch connKind(marker[0]) {
	case connKindCapacity:
		l.handleCapacityProbe(conn)
	default:
		l.readLoop(conn)
	}
}

func (l *local) handleCapacityProbe(conn net.Conn) {
	defer conn.Close()
	resp := capacityRoom
	if l.atCapacity() {
		resp = capacityFull
	}
	_, _ = conn.Write([]byte{resp})
}

func (l *local) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		v, err := readEnvelope(conn)
		if err != nil {
			if err != io.EOF {
				l.logger.WithError(err).Debug("mailbox: connection read error")
			}
			return
		}
		sender, seq, payload, err := parseEnvelope(v)
		if err != nil {
			l.logger.WithError(err).Warn("mailbox: dropping malformed envelope")
			continue
		}
		key := dedupKey{sender: sender.String(), seq: seq}
		l.mu.Lock()
		if _, dup := l.dedup.Get(key); dup {
			l.mu.Unlock()
			continue
		}
		l.dedup.Add(key, struct{}{})
		l.queue = append(l.queue, payload)
		l.reportQueueDepth()
		l.cond.Signal()
		l.mu.Unlock()
	}
}

func (l *local) Read(ctx context.Context) (tlaval.Value, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.popped {
		return l.poppedValue, nil
	}
	for len(l.queue) == 0 {
		if l.closed || ctx.Err() != nil {
			return nil, resource.ErrContextClosed
		}
		waitOnCond(ctx, l.cond)
		if l.closed {
			return nil, resource.ErrContextClosed
		}
	}
	l.poppedValue = l.queue[0]
	l.queue = l.queue[1:]
	l.popped = true
	l.reportQueueDepth()
	return l.poppedValue, nil
}

func (l *local) Write(context.Context, tlaval.Value) error {
	return resource.NewProtocolMisuse("mailbox(local)", "write")
}

func (l *local) PreCommit(context.Context) (resource.PreCommitResult, error) {
	return resource.PreCommitOK, nil
}

func (l *local) Commit(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.popped = false
	l.poppedValue = nil
	return nil
}

func (l *local) Abort(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.popped {
		l.queue = append([]tlaval.Value{l.poppedValue}, l.queue...)
		l.popped = false
		l.poppedValue = nil
		l.reportQueueDepth()
	}
}

func (l *local) Close() error {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	return l.listener.Close()
}

// waitOnCond waits on cond, unblocking early if ctx is done.
func waitOnCond(ctx context.Context, cond *sync.Cond) {
	stop := context.AfterFunc(ctx, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer stop()
	cond.Wait()
}
