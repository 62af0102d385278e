// Package archetype implements the label-stepped critical-section
// scheduler that runs one archetype: the context owns the resource set,
// the constants, and the commit/abort protocol between labels (spec.md
// §4.3).
package archetype

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// Body is generated (or, in this repository, hand-written) archetype code:
// a pure state machine keyed by an opaque program-counter value. Step
// executes exactly one critical section starting at pc. It must not
// mutate any state observable across retries until it returns a nil
// error — the driver, not Body, decides whether that section's effects
// become permanent (spec.md §9 "the driver loop, not the generated code,
// owns commit/abort decisions").
type Body interface {
	Step(ctx *Context, pc int) (nextPC int, terminated bool, err error)
}

// constants is the Context's read-only view of its bound constants,
// satisfying resource.Constants so factories can consult it at
// construction time.
type constants map[string]tlaval.Value

func (c constants) Get(name string) (tlaval.Value, bool) {
	v, ok := c[name]
	return v, ok
}

// Context is the archetype's private execution state: its self
// identifier, its live resources, its bound constants, and the current
// critical section's touched set. Exactly one goroutine drives Run; Close
// may be called from any other goroutine to request shutdown.
type Context struct {
	Self          tlaval.Value
	ArchetypeName string

	resources map[string]resource.Resource
	constants constants
	logger    logrus.FieldLogger
	metrics   *Metrics
	backoff   Backoff

	goCtx  context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	touched      map[resource.Resource]struct{}
	touchedOrder []resource.Resource

	closed    int32
	closeOnce sync.Once
}

// Option configures a Context at construction.
type Option func(*Context)

// WithLogger overrides the default logger (logrus.StandardLogger()).
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Context) { c.logger = l }
}

// WithMetrics attaches a Metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *Context) { c.metrics = m }
}

// WithBackoff overrides the default commit-retry backoff policy.
func WithBackoff(b Backoff) Option {
	return func(c *Context) { c.backoff = b }
}

// New constructs a Context for one archetype instance. makers is consulted
// once, at construction, to build every resource named by the archetype;
// constantValues binds the archetype's declared constants (e.g.
// NUM_SERVERS).
func New(self tlaval.Value, archetypeName string, makers map[string]resource.Maker, constantValues map[string]tlaval.Value, opts ...Option) (*Context, error) {
	goCtx, cancel := context.WithCancel(context.Background())
	c := &Context{
		Self:          self,
		ArchetypeName: archetypeName,
		resources:     make(map[string]resource.Resource, len(makers)),
		constants:     constants(constantValues),
		logger:        logrus.StandardLogger(),
		backoff:       DefaultBackoff(),
		goCtx:         goCtx,
		cancel:        cancel,
		touched:       make(map[resource.Resource]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	for name, maker := range makers {
		r, err := maker(c.constants)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("archetype %s: construct resource %s: %w", archetypeName, name, err)
		}
		c.resources[name] = r
	}
	return c, nil
}

// Constant returns the value bound to a declared constant, consulted by
// generated code (spec.md §6.1 constant(name) -> Value).
func (c *Context) Constant(name string) (tlaval.Value, bool) {
	return c.constants.Get(name)
}

// Resource returns a handle to the named top-level resource through which
// generated code performs read/write/index. The handle tracks which
// underlying resources this critical section has touched.
func (c *Context) Resource(name string) (*ResourceHandle, error) {
	r, ok := c.resources[name]
	if !ok {
		return nil, fmt.Errorf("archetype %s: no such resource %q", c.ArchetypeName, name)
	}
	return &ResourceHandle{ctx: c, r: r}, nil
}

// Retry voluntarily re-enters the current critical section, the runtime
// equivalent of an `await`-style wait observing a false condition
// (spec.md §6.1 abort-trigger).
func (c *Context) Retry() error {
	return resource.ErrCriticalSectionAborted
}

func (c *Context) isClosed() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// Close requests the context to shut down. The next time the driver
// reaches a label boundary or the body attempts a resource operation, Run
// aborts any in-progress section and closes every resource, then returns
// nil (spec.md §4.3 "Close protocol").
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		c.cancel()
	})
	return nil
}

func (c *Context) markTouched(r resource.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.touched[r]; !ok {
		c.touched[r] = struct{}{}
		c.touchedOrder = append(c.touchedOrder, r)
	}
}

func (c *Context) clearTouched() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = make(map[resource.Resource]struct{})
	c.touchedOrder = nil
}

func (c *Context) touchedSnapshot() []resource.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]resource.Resource, len(c.touchedOrder))
	copy(out, c.touchedOrder)
	return out
}

// abortTouched issues Abort to every resource touched since the last
// commit, then clears the touched set (spec.md §4.2: abort is infallible).
func (c *Context) abortTouched() {
	for _, r := range c.touchedSnapshot() {
		r.Abort(context.Background())
	}
	c.clearTouched()
}

// commitTouched runs the two-phase commit protocol over the touched set.
// It returns ok=false (not an error) when pre-commit rejected the section;
// the caller is expected to abort and retry. It returns a non-nil error
// only for a genuine resource failure during pre-commit/commit.
func (c *Context) commitTouched() (ok bool, err error) {
	touched := c.touchedSnapshot()
	for _, r := range touched {
		res, perr := r.PreCommit(c.goCtx)
		if perr != nil {
			if errors.Is(perr, resource.ErrCriticalSectionAborted) {
				return false, nil
			}
			return false, perr
		}
		if res == resource.PreCommitAbort {
			return false, nil
		}
	}
	for _, r := range touched {
		if cerr := r.Commit(c.goCtx); cerr != nil {
			return false, cerr
		}
	}
	return true, nil
}

func (c *Context) closeResources() {
	for name, r := range c.resources {
		if err := r.Close(); err != nil {
			c.logger.WithFields(logrus.Fields{"archetype": c.ArchetypeName, "resource": name}).
				WithError(err).Warn("resource close failed")
		}
	}
}

// Run drives body to completion: a sequence of critical sections, each
// pre-committed and committed atomically, or aborted and retried on
// rejection. It returns nil on normal termination or on a close request,
// and a non-nil error only for a fatal resource failure or a TypeError
// surfaced by the body (spec.md §4.3, §7).
func (c *Context) Run(body Body) error {
	pc := 0
	attempt := 0
	for {
		if c.isClosed() {
			c.abortTouched()
			c.closeResources()
			return nil
		}

		nextPC, terminated, err := body.Step(c, pc)
		if err != nil {
			switch {
			case errors.Is(err, resource.ErrContextClosed):
				c.abortTouched()
				c.closeResources()
				return nil
			case errors.Is(err, resource.ErrCriticalSectionAborted):
				c.metrics.abort(c.ArchetypeName, "section")
				c.abortTouched()
				c.sleepBackoff(&attempt)
				continue
			default:
				c.logger.WithFields(logrus.Fields{"archetype": c.ArchetypeName, "pc": pc}).
					WithError(err).Error("archetype run failed")
				c.abortTouched()
				return err
			}
		}

		if c.isClosed() {
			c.abortTouched()
			c.closeResources()
			return nil
		}

		ok, cerr := c.commitTouched()
		if cerr != nil {
			c.metrics.abort(c.ArchetypeName, "commit_error")
			c.abortTouched()
			return cerr
		}
		if !ok {
			c.metrics.abort(c.ArchetypeName, "precommit_rejected")
			c.abortTouched()
			c.sleepBackoff(&attempt)
			continue
		}

		c.metrics.commit(c.ArchetypeName)
		c.clearTouched()
		attempt = 0
		if terminated {
			return nil
		}
		pc = nextPC
	}
}

func (c *Context) sleepBackoff(attempt *int) {
	c.metrics.retry(c.ArchetypeName)
	d := c.backoff.Delay(*attempt)
	*attempt++
	if d <= 0 {
		return
	}
	select {
	case <-c.goCtx.Done():
	case <-timeAfter(d):
	}
}
