// Package mailbox implements the TCP mailbox built-in resource (spec.md
// §4.4.2): a mapped resource indexed by peer identifier, whose
// sub-resources are either this archetype's own inbox (Local) or an
// outbound queue to a peer (Remote).
package mailbox

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// Kind distinguishes whether indexing a mailbox by a given peer value
// yields this archetype's own inbox or a remote outbound queue.
type Kind int

const (
	// Local means the index addresses this archetype's own inbox.
	Local Kind = iota
	// Remote means the index addresses another archetype's mailbox.
	Remote
)

// AddressFn derives, for a peer identifier Value, whether it names this
// archetype's own inbox or a remote peer, and the "host:port" to listen
// on (Local) or dial (Remote). Consistent addressing across peers is the
// deployer's responsibility (spec.md §4.4.2 "Address derivation").
type AddressFn func(index tlaval.Value) (Kind, string, error)

// Options configures a Mailbox's networking and dedup behavior.
type Options struct {
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	MaxIdleConns        int
	IdleConnTTL         time.Duration
	DedupWindow         int
	MaxTransientRetries int
	MaxQueueDepth       int
	Logger              logrus.FieldLogger
	Metrics             *Metrics
}

func (o Options) withDefaults() Options {
	if o.DialTimeout == 0 {
		o.DialTimeout = 2 * time.Second
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.MaxIdleConns == 0 {
		o.MaxIdleConns = 4
	}
	if o.IdleConnTTL == 0 {
		o.IdleConnTTL = time.Minute
	}
	if o.DedupWindow == 0 {
		o.DedupWindow = 4096
	}
	if o.MaxTransientRetries == 0 {
		o.MaxTransientRetries = 5
	}
	if o.MaxQueueDepth == 0 {
		o.MaxQueueDepth = 256
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Mailbox is the top-level mapped resource `net[dst]` archetype code
// indexes. It lazily materialises one sub-resource per distinct peer
// identifier and owns them for the lifetime of the context.
type Mailbox struct {
	resource.Mapped
	resource.NoOpTransaction

	self      tlaval.Value
	addressFn AddressFn
	opts      Options
	pool      *connPool

	mu   sync.Mutex
	subs map[string]resource.Resource
}

// New constructs a Mailbox for archetype self, deriving addresses via fn.
func New(self tlaval.Value, fn AddressFn, opts Options) *Mailbox {
	opts = opts.withDefaults()
	return &Mailbox{
		Mapped:    resource.Mapped{Name: "mailbox"},
		self:      self,
		addressFn: fn,
		opts:      opts,
		pool:      newConnPool(newDialer(opts.DialTimeout, opts.KeepAlive), opts.MaxIdleConns, opts.IdleConnTTL),
		subs:      make(map[string]resource.Resource),
	}
}

// Maker returns a resource.Maker binding self and fn; intended for the
// `net` parameter of an archetype's resource map.
func Maker(self tlaval.Value, fn AddressFn, opts Options) resource.Maker {
	return func(resource.Constants) (resource.Resource, error) {
		return New(self, fn, opts), nil
	}
}

func subKey(index tlaval.Value) string {
	return hex.EncodeToString(tlaval.Encode(index))
}

// Index materialises (or reuses) the sub-resource for a peer identifier.
func (m *Mailbox) Index(index tlaval.Value) (resource.Resource, error) {
	key := subKey(index)
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[key]; ok {
		return sub, nil
	}
	kind, addr, err := m.addressFn(index)
	if err != nil {
		return nil, err
	}
	var sub resource.Resource
	switch kind {
	case Local:
		sub, err = newLocal(addr, m.opts.Logger, m.opts.DedupWindow, m.opts.Metrics, m.self.String(), m.opts.MaxQueueDepth)
	case Remote:
		sub = newRemote(m.self, addr, m.pool, m.opts.MaxTransientRetries, m.opts.Logger)
	default:
		return nil, resource.NewProtocolMisuse("mailbox", "index(unknown kind)")
	}
	if err != nil {
		return nil, err
	}
	m.subs[key] = sub
	return sub, nil
}

// Close closes every materialised sub-resource and the shared connection
// pool (spec.md §9 "sub-resources are owned by the map-resource and
// closed transitively").
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, sub := range m.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pool.Close()
	return firstErr
}
