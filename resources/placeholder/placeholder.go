// Package placeholder implements the no-op resource used when an
// archetype declares a parameter left unused in a given deployment
// (spec.md §4.4.4). Every access (read, write, index) diagnoses the
// misuse.
package placeholder

import (
	"context"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// Placeholder rejects Read, Write and Index with ProtocolMisuseError.
// PreCommit, Commit, Abort and Close succeed as no-ops.
type Placeholder struct {
	name string
}

// New constructs a Placeholder identified by name for diagnostics.
func New(name string) *Placeholder {
	return &Placeholder{name: name}
}

// Maker returns a resource.Maker producing a Placeholder named name.
func Maker(name string) resource.Maker {
	return func(resource.Constants) (resource.Resource, error) {
		return New(name), nil
	}
}

func (p *Placeholder) Read(context.Context) (tlaval.Value, error) {
	return nil, resource.NewProtocolMisuse(p.name, "read")
}

func (p *Placeholder) Write(context.Context, tlaval.Value) error {
	return resource.NewProtocolMisuse(p.name, "write")
}

func (p *Placeholder) Index(tlaval.Value) (resource.Resource, error) {
	return nil, resource.NewProtocolMisuse(p.name, "index")
}

func (p *Placeholder) PreCommit(context.Context) (resource.PreCommitResult, error) {
	return resource.PreCommitOK, nil
}

func (p *Placeholder) Commit(context.Context) error { return nil }

func (p *Placeholder) Abort(context.Context) {}

func (p *Placeholder) Close() error { return nil }
