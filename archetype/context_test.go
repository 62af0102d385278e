package archetype

import (
	"context"
	"testing"
	"time"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

// fakeResource is a Leaf resource whose PreCommit can be told to reject
// the first N attempts, to exercise the retry path.
type fakeResource struct {
	resource.Leaf
	value        tlaval.Value
	tentative    tlaval.Value
	hasTentative bool
	rejectsLeft  int
	commits      int
	aborts       int
}

func newFakeResource(initial tlaval.Value) *fakeResource {
	return &fakeResource{value: initial}
}

func (f *fakeResource) Read(context.Context) (tlaval.Value, error) {
	if f.hasTentative {
		return f.tentative, nil
	}
	return f.value, nil
}

func (f *fakeResource) Write(_ context.Context, v tlaval.Value) error {
	f.tentative = v
	f.hasTentative = true
	return nil
}

func (f *fakeResource) PreCommit(context.Context) (resource.PreCommitResult, error) {
	if f.rejectsLeft > 0 {
		f.rejectsLeft--
		return resource.PreCommitAbort, nil
	}
	return resource.PreCommitOK, nil
}

func (f *fakeResource) Commit(context.Context) error {
	f.commits++
	if f.hasTentative {
		f.value = f.tentative
	}
	f.hasTentative = false
	return nil
}

func (f *fakeResource) Abort(context.Context) {
	f.aborts++
	f.hasTentative = false
}

func (f *fakeResource) Close() error { return nil }

func newTestContext(t *testing.T, r *fakeResource) *Context {
	t.Helper()
	timeAfter = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	ctx, err := New(tlaval.NewNumber(1), "test", map[string]resource.Maker{
		"r": func(resource.Constants) (resource.Resource, error) { return r, nil },
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctx
}

type writeOnceBody struct{ done bool }

func (b *writeOnceBody) Step(ctx *Context, pc int) (int, bool, error) {
	h, err := ctx.Resource("r")
	if err != nil {
		return 0, false, err
	}
	if err := h.Write(tlaval.NewNumber(42)); err != nil {
		return 0, false, err
	}
	return 0, true, nil
}

func TestRunCommitsOnSuccess(t *testing.T) {
	r := newFakeResource(tlaval.NewNumber(0))
	ctx := newTestContext(t, r)
	if err := ctx.Run(&writeOnceBody{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n, _ := tlaval.AsNumber(r.value); n != 42 {
		t.Fatalf("expected committed value 42, got %d", n)
	}
	if r.commits != 1 {
		t.Fatalf("expected exactly one commit, got %d", r.commits)
	}
}

func TestRunRetriesOnPreCommitRejection(t *testing.T) {
	r := newFakeResource(tlaval.NewNumber(0))
	r.rejectsLeft = 2
	ctx := newTestContext(t, r)
	if err := ctx.Run(&writeOnceBody{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.aborts != 2 {
		t.Fatalf("expected 2 aborts before success, got %d", r.aborts)
	}
	if r.commits != 1 {
		t.Fatalf("expected exactly one commit, got %d", r.commits)
	}
	if n, _ := tlaval.AsNumber(r.value); n != 42 {
		t.Fatalf("expected committed value 42, got %d", n)
	}
}

type retryCountingBody struct{ attempts int }

func (b *retryCountingBody) Step(ctx *Context, pc int) (int, bool, error) {
	b.attempts++
	if b.attempts < 3 {
		return 0, false, ctx.Retry()
	}
	return 0, true, nil
}

func TestVoluntaryRetryReentersSameSection(t *testing.T) {
	r := newFakeResource(tlaval.NewNumber(0))
	ctx := newTestContext(t, r)
	body := &retryCountingBody{}
	if err := ctx.Run(body); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if body.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", body.attempts)
	}
}

func TestCloseStopsTheDriverWithoutError(t *testing.T) {
	r := newFakeResource(tlaval.NewNumber(0))
	ctx := newTestContext(t, r)
	ctx.Close()
	body := &retryCountingBody{}
	if err := ctx.Run(body); err != nil {
		t.Fatalf("expected nil error on close, got %v", err)
	}
	if body.attempts != 0 {
		t.Fatalf("expected body never to run after close, got %d attempts", body.attempts)
	}
}
