// Package iochan implements the Input/Output channel bridge between an
// archetype and its embedding host process (spec.md §4.4.3): two
// in-memory, unbounded-but-blocking queues. A write is delivered exactly
// at commit; an input read is consumed exactly at commit, with re-reads
// inside the same section seeing the same staged value.
package iochan

import (
	"context"
	"sync"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// Input is a Leaf resource whose Read blocks for the next host-supplied
// value. Write is a protocol error.
type Input struct {
	resource.Leaf

	mu      sync.Mutex
	cond    *sync.Cond
	pending []tlaval.Value

	staged    tlaval.Value
	hasStaged bool
}

// NewInput constructs an empty Input channel. Feed supplies values from
// the host side.
func NewInput() *Input {
	in := &Input{Leaf: resource.Leaf{Name: "input"}}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Feed supplies a host-side value for a future Read. Safe to call from any
// goroutine.
func (in *Input) Feed(v tlaval.Value) {
	in.mu.Lock()
	in.pending = append(in.pending, v)
	in.cond.Signal()
	in.mu.Unlock()
}

func (in *Input) Read(ctx context.Context) (tlaval.Value, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.hasStaged {
		return in.staged, nil
	}
	for len(in.pending) == 0 {
		if ctx.Err() != nil {
			return nil, resource.ErrContextClosed
		}
		waitOnCond(ctx, in.cond)
		if ctx.Err() != nil {
			return nil, resource.ErrContextClosed
		}
	}
	in.staged = in.pending[0]
	in.hasStaged = true
	return in.staged, nil
}

func (in *Input) Write(context.Context, tlaval.Value) error {
	return resource.NewProtocolMisuse("input", "write")
}

func (in *Input) PreCommit(context.Context) (resource.PreCommitResult, error) {
	return resource.PreCommitOK, nil
}

func (in *Input) Commit(context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.hasStaged {
		in.pending = in.pending[1:]
		in.hasStaged = false
	}
	return nil
}

func (in *Input) Abort(context.Context) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.hasStaged = false
}

func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cond.Broadcast()
	return nil
}

// Output is a Leaf resource whose Write publishes a value to the host at
// commit. Read is a protocol error.
type Output struct {
	resource.Leaf

	mu     sync.Mutex
	cond   *sync.Cond
	staged tlaval.Value
	has    bool
	sink   []tlaval.Value
}

// NewOutput constructs an Output channel. Drain consumes published values
// from the host side.
func NewOutput() *Output {
	out := &Output{Leaf: resource.Leaf{Name: "output"}}
	out.cond = sync.NewCond(&out.mu)
	return out
}

func (out *Output) Read(context.Context) (tlaval.Value, error) {
	return nil, resource.NewProtocolMisuse("output", "read")
}

func (out *Output) Write(_ context.Context, v tlaval.Value) error {
	out.mu.Lock()
	defer out.mu.Unlock()
	out.staged = v
	out.has = true
	return nil
}

func (out *Output) PreCommit(context.Context) (resource.PreCommitResult, error) {
	return resource.PreCommitOK, nil
}

func (out *Output) Commit(context.Context) error {
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.has {
		out.sink = append(out.sink, out.staged)
		out.cond.Signal()
	}
	out.has = false
	return nil
}

func (out *Output) Abort(context.Context) {
	out.mu.Lock()
	defer out.mu.Unlock()
	out.has = false
}

func (out *Output) Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()
	out.cond.Broadcast()
	return nil
}

// Drain blocks until at least one published value is available, then
// returns and removes it. Intended for the embedding host, not archetype
// code.
func (out *Output) Drain(ctx context.Context) (tlaval.Value, error) {
	out.mu.Lock()
	defer out.mu.Unlock()
	for len(out.sink) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		waitOnCond(ctx, out.cond)
	}
	v := out.sink[0]
	out.sink = out.sink[1:]
	return v, nil
}

// waitOnCond waits on cond, unblocking early if ctx is done. sync.Cond has
// no native context support, so a watcher goroutine broadcasts on
// cancellation.
func waitOnCond(ctx context.Context, cond *sync.Cond) {
	stop := context.AfterFunc(ctx, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer stop()
	cond.Wait()
}
