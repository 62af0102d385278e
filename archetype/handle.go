package archetype

import (
	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// ResourceHandle is generated code's view of a resource reachable from a
// Context: read(name), write(name, value), index(name, value) of spec.md
// §6.1, implemented here as methods on a handle rather than string
// dispatch because sub-resources produced by Index have no name of their
// own.
type ResourceHandle struct {
	ctx *Context
	r   resource.Resource
}

// Read returns the resource's current value, recording it as touched by
// the enclosing critical section.
func (h *ResourceHandle) Read() (tlaval.Value, error) {
	if h.ctx.isClosed() {
		return nil, resource.ErrContextClosed
	}
	h.ctx.markTouched(h.r)
	return h.r.Read(h.ctx.goCtx)
}

// Write stages v against the resource, recording it as touched. The write
// only becomes visible to peers on a successful Commit.
func (h *ResourceHandle) Write(v tlaval.Value) error {
	if h.ctx.isClosed() {
		return resource.ErrContextClosed
	}
	h.ctx.markTouched(h.r)
	return h.r.Write(h.ctx.goCtx, v)
}

// Index returns a handle to the sub-resource addressed by key. Indexing
// itself never blocks and does not mark the parent as touched; only a
// subsequent Read/Write on the result does.
func (h *ResourceHandle) Index(key tlaval.Value) (*ResourceHandle, error) {
	sub, err := h.r.Index(key)
	if err != nil {
		return nil, err
	}
	return &ResourceHandle{ctx: h.ctx, r: sub}, nil
}
