package mailbox

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// remote is the outbound queue to another archetype's mailbox. Write
// stages values locally; PreCommit probes that the peer is reachable
// without sending anything irreversible; Commit flushes the staged
// writes, framed and tagged with a monotonic per-destination sequence
// number so the receiver can de-duplicate retries (spec.md §4.4.2).
type remote struct {
	resource.Leaf

	self   tlaval.Value
	addr   string
	pool   *connPool
	logger logrus.FieldLogger

	maxTransientRetries int

	mu              sync.Mutex
	pending         []tlaval.Value
	seq             uint64
	transientStreak int
}

func newRemote(self tlaval.Value, addr string, pool *connPool, maxTransientRetries int, logger logrus.FieldLogger) *remote {
	return &remote{
		Leaf:                resource.Leaf{Name: "mailbox(remote)"},
		self:                self,
		addr:                addr,
		pool:                pool,
		logger:              logger,
		maxTransientRetries: maxTransientRetries,
	}
}

func (r *remote) Read(context.Context) (tlaval.Value, error) {
	return nil, resource.NewProtocolMisuse("mailbox(remote)", "read")
}

func (r *remote) Write(_ context.Context, v tlaval.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, v)
	return nil
}

// PreCommit probes the peer's inbox over a fresh capacity-probe
// connection (capacity.go), distinguishing the two causes spec.md §4.4.2
// gives for a remote write to abort: the peer is unreachable, or the peer
// is reachable but its inbox is at capacity (buffer cap, "backpressure").
// An unreachable peer requests an abort up to maxTransientRetries times
// in a row, then escalates to a fatal IOError (DESIGN.md "broken-
// connection boundary"); a full peer always just requests abort — it is
// healthy, so the failure never escalates or counts against the streak.
func (r *remote) PreCommit(ctx context.Context) (resource.PreCommitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return resource.PreCommitOK, nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, r.pool.dialer.Timeout)
	defer cancel()
	full, err := probeCapacity(probeCtx, r.pool.dialer, r.addr)
	if err != nil {
		r.transientStreak++
		if r.transientStreak > r.maxTransientRetries {
			return resource.PreCommitAbort, resource.NewIOError("mailbox(remote)", err)
		}
		return resource.PreCommitAbort, nil
	}
	r.transientStreak = 0
	if full {
		return resource.PreCommitAbort, nil
	}
	return resource.PreCommitOK, nil
}

// Commit flushes every staged write over a (possibly fresh) connection to
// the peer. A failure here, after PreCommit already reported the peer
// reachable, is a genuine IOError rather than a recoverable abort.
func (r *remote) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	conn, err := r.pool.Acquire(ctx, r.addr)
	if err != nil {
		return resource.NewIOError("mailbox(remote)", err)
	}
	for _, v := range r.pending {
		r.seq++
		env := envelope(r.self, r.seq, v)
		if err := writeEnvelope(conn, env); err != nil {
			r.pool.Discard(conn)
			return resource.NewIOError("mailbox(remote)", err)
		}
	}
	r.pool.Release(conn)
	r.pending = nil
	return nil
}

func (r *remote) Abort(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
}

func (r *remote) Close() error {
	return nil
}
