// Package failuredetector implements the mapped Bool resource backed by
// a monitor service (spec.md §4.4.5): indexing by peer identifier yields
// a Bool sub-resource reporting "peer suspected dead".
package failuredetector

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/monitor"
	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// monitorClient is the subset of monitor.Client a peer resource needs;
// narrowed to ease testing with a fake.
type monitorClient interface {
	Query(ctx context.Context, peer tlaval.Value) (bool, error)
}

// Detector is the mapped resource `fd[peer]` archetype code indexes.
// Each sub-resource polls the monitor at pullInterval and caches the
// latest status, so Read never blocks beyond one round-trip.
type Detector struct {
	resource.Mapped
	resource.NoOpTransaction

	client       monitorClient
	pullInterval time.Duration
	timeout      time.Duration
	logger       logrus.FieldLogger
	metrics      *Metrics

	mu   sync.Mutex
	subs map[string]*peer
}

// New constructs a Detector polling client every pullInterval. Each
// query is bounded by timeout; a peer is suspected when the monitor
// reports it not alive, or when the query fails or gets no answer within
// timeout. How long a silent peer stays alive is decided by the monitor's
// own inactivity window. metrics may be nil.
func New(client *monitor.Client, pullInterval, timeout time.Duration, logger logrus.FieldLogger, metrics *Metrics) *Detector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Detector{
		Mapped:       resource.Mapped{Name: "failuredetector"},
		client:       client,
		pullInterval: pullInterval,
		timeout:      timeout,
		logger:       logger,
		metrics:      metrics,
		subs:         make(map[string]*peer),
	}
}

// Maker returns a resource.Maker binding client, pullInterval and
// timeout; intended for the `fd` parameter of an archetype's resource
// map.
func Maker(client *monitor.Client, pullInterval, timeout time.Duration, logger logrus.FieldLogger, metrics *Metrics) resource.Maker {
	return func(resource.Constants) (resource.Resource, error) {
		return New(client, pullInterval, timeout, logger, metrics), nil
	}
}

func peerKey(id tlaval.Value) string {
	return string(tlaval.Encode(id))
}

// Index materialises (or reuses) the Bool sub-resource for peer id.
func (d *Detector) Index(id tlaval.Value) (resource.Resource, error) {
	key := peerKey(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.subs[key]; ok {
		return p, nil
	}
	p := newPeer(d.client, id, d.pullInterval, d.timeout, d.logger, d.metrics)
	d.subs[key] = p
	return p, nil
}

// Close stops polling every materialised peer sub-resource.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.subs {
		p.Close()
	}
	return nil
}

// peer is one failure-detector sub-resource: a background poller caching
// the monitor's last answer to "is this peer alive?" as a Bool Value.
type peer struct {
	resource.Leaf
	resource.NoOpTransaction

	client  monitorClient
	id      tlaval.Value
	logger  logrus.FieldLogger
	metrics *Metrics

	mu      sync.RWMutex
	alive   bool
	stop    chan struct{}
	stopped sync.Once
}

func newPeer(client monitorClient, id tlaval.Value, pullInterval, timeout time.Duration, logger logrus.FieldLogger, metrics *Metrics) *peer {
	p := &peer{
		Leaf:    resource.Leaf{Name: "failuredetector(peer)"},
		client:  client,
		id:      id,
		logger:  logger,
		metrics: metrics,
		alive:   true,
		stop:    make(chan struct{}),
	}
	go p.pollLoop(pullInterval, timeout)
	return p
}

func (p *peer) pollLoop(pullInterval, timeout time.Duration) {
	ticker := time.NewTicker(pullInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			alive, err := p.client.Query(ctx, p.id)
			cancel()
			if err != nil {
				p.logger.WithError(err).Debug("failuredetector: query failed, treating peer as suspected")
				alive = false
			}
			p.mu.Lock()
			changed := alive != p.alive
			p.alive = alive
			p.mu.Unlock()
			if changed {
				state := "suspected"
				if alive {
					state = "alive"
				}
				p.metrics.transition(p.id.String(), state)
			}
		}
	}
}

// Read returns "suspected" as a Bool Value: true means suspected dead,
// the inverse of the cached alive status (spec.md §4.4.5 returns "peer
// suspected dead").
func (p *peer) Read(context.Context) (tlaval.Value, error) {
	p.mu.RLock()
	alive := p.alive
	p.mu.RUnlock()
	return tlaval.NewBool(!alive), nil
}

func (p *peer) Write(context.Context, tlaval.Value) error {
	return resource.NewProtocolMisuse("failuredetector(peer)", "write")
}

func (p *peer) Close() error {
	p.stopped.Do(func() { close(p.stop) })
	return nil
}
