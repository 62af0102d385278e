package resource

import (
	"context"

	"github.com/mpcal-lang/distsys/tlaval"
)

// Leaf is embedded by resources that hold a value directly (register,
// channel, mailbox sub-resource) and never sub-index. Index always fails
// with ProtocolMisuseError; embedders only implement Read/Write/PreCommit/
// Commit/Abort/Close.
type Leaf struct {
	Name string
}

// Index traps the operation: leaf resources are not indexable.
func (l Leaf) Index(tlaval.Value) (Resource, error) {
	return nil, NewProtocolMisuse(l.Name, "index")
}

// Mapped is embedded by resources that only ever produce sub-resources via
// Index (the TCP mailbox set, the failure detector). Read and Write always
// fail with ProtocolMisuseError; embedders implement Index/PreCommit/
// Commit/Abort/Close, with PreCommit/Commit/Abort typically no-ops since
// the mapped resource itself holds no value.
type Mapped struct {
	Name string
}

func (m Mapped) Read(context.Context) (tlaval.Value, error) {
	return nil, NewProtocolMisuse(m.Name, "read")
}

func (m Mapped) Write(context.Context, tlaval.Value) error {
	return NewProtocolMisuse(m.Name, "write")
}

// NoOpTransaction is embedded by resources with no tentative state to
// reconcile across the commit protocol (mapped containers, failure
// detectors): PreCommit always succeeds and Commit/Abort are no-ops.
type NoOpTransaction struct{}

func (NoOpTransaction) PreCommit(context.Context) (PreCommitResult, error) {
	return PreCommitOK, nil
}

func (NoOpTransaction) Commit(context.Context) error { return nil }

func (NoOpTransaction) Abort(context.Context) {}
