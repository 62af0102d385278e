// Package resource defines the two-phase protocol every piece of external
// state an archetype touches — network mailboxes, local registers,
// channels, the failure detector — must implement (spec.md §4.2).
package resource

import (
	"context"

	"github.com/mpcal-lang/distsys/tlaval"
)

// PreCommitResult is the outcome of asking a resource to pre-commit.
type PreCommitResult int

const (
	// PreCommitOK means the resource is prepared to make this section's
	// accesses durable to peers on the following Commit call.
	PreCommitOK PreCommitResult = iota
	// PreCommitAbort means the resource cannot honor the section; every
	// resource touched in the section must receive Abort, not Commit.
	PreCommitAbort
)

// Resource is the contract every leaf or mapped resource implements.
// Read, Write, PreCommit, Commit and Abort may block; Index must not.
type Resource interface {
	// Read returns the resource's current value, stable within a critical
	// section: re-reading before Commit returns a value consistent with
	// the first read regardless of concurrent external writes.
	Read(ctx context.Context) (tlaval.Value, error)
	// Write stages v, taking effect only at Commit.
	Write(ctx context.Context, v tlaval.Value) error
	// Index returns the sub-resource addressed by key. Must not block.
	Index(key tlaval.Value) (Resource, error)
	// PreCommit asks the resource to prepare to make this section's
	// accesses durable. It may block briefly but must not commit
	// irreversibly.
	PreCommit(ctx context.Context) (PreCommitResult, error)
	// Commit makes the section's accesses durable and observable to
	// peers. Called only if every resource touched in the section
	// returned PreCommitOK.
	Commit(ctx context.Context) error
	// Abort restores the resource to its last-committed state. It must be
	// infallible and idempotent within a single critical section.
	Abort(ctx context.Context)
	// Close releases the resource. Called exactly once, at context
	// shutdown.
	Close() error
}

// Maker constructs a Resource given a read-only view of the archetype's
// bound constants. Resource factories are supplied to archetype.New
// keyed by parameter name.
type Maker func(constants Constants) (Resource, error)

// Constants is the read-only handle to an archetype's constant bindings,
// consulted by generated code and by resource factories (spec.md §4.3,
// §9 "avoid process-wide singletons").
type Constants interface {
	Get(name string) (tlaval.Value, bool)
}
