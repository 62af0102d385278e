// Package register implements the local register resource (spec.md
// §4.4.1): a single in-process Value with commit/abort shadow state.
package register

import (
	"context"
	"sync"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// Register holds one Value. Write stages a replacement that only becomes
// visible on Commit; Abort restores the value remembered before the
// write.
type Register struct {
	resource.Leaf

	mu        sync.Mutex
	value     tlaval.Value
	prior     tlaval.Value
	hasPrior  bool
	staged    tlaval.Value
	hasStaged bool
}

// New constructs a Register holding initial.
func New(initial tlaval.Value) *Register {
	return &Register{Leaf: resource.Leaf{Name: "register"}, value: initial}
}

// Maker returns a resource.Maker that ignores constants and always starts
// the register at initial — the common case for a local variable archetype
// parameter.
func Maker(initial tlaval.Value) resource.Maker {
	return func(resource.Constants) (resource.Resource, error) {
		return New(initial), nil
	}
}

func (r *Register) Read(context.Context) (tlaval.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasStaged {
		return r.staged, nil
	}
	return r.value, nil
}

func (r *Register) Write(_ context.Context, v tlaval.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPrior {
		r.prior = r.value
		r.hasPrior = true
	}
	r.staged = v
	r.hasStaged = true
	return nil
}

func (r *Register) PreCommit(context.Context) (resource.PreCommitResult, error) {
	return resource.PreCommitOK, nil
}

func (r *Register) Commit(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasStaged {
		r.value = r.staged
	}
	r.hasStaged = false
	r.hasPrior = false
	return nil
}

func (r *Register) Abort(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasPrior {
		r.value = r.prior
	}
	r.hasPrior = false
	r.hasStaged = false
}

func (r *Register) Close() error { return nil }
