package iochan

import (
	"context"
	"testing"
	"time"

	"github.com/mpcal-lang/distsys/tlaval"
)

func TestInputReadBlocksUntilFed(t *testing.T) {
	in := NewInput()
	done := make(chan tlaval.Value, 1)
	go func() {
		v, err := in.Read(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		done <- v
	}()
	time.Sleep(10 * time.Millisecond)
	in.Feed(tlaval.NewNumber(7))
	select {
	case v := <-done:
		if n, _ := tlaval.AsNumber(v); n != 7 {
			t.Fatalf("expected 7, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Read")
	}
}

func TestInputRereadWithinSectionIsStable(t *testing.T) {
	in := NewInput()
	in.Feed(tlaval.NewNumber(1))
	in.Feed(tlaval.NewNumber(2))
	v1, _ := in.Read(context.Background())
	v2, _ := in.Read(context.Background())
	if !v1.Equal(v2) {
		t.Fatalf("expected stable re-read, got %v then %v", v1, v2)
	}
	if err := in.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	v3, _ := in.Read(context.Background())
	if n, _ := tlaval.AsNumber(v3); n != 2 {
		t.Fatalf("expected next value 2 after commit, got %d", n)
	}
}

func TestInputAbortReturnsValueToFront(t *testing.T) {
	in := NewInput()
	in.Feed(tlaval.NewNumber(5))
	v, _ := in.Read(context.Background())
	if n, _ := tlaval.AsNumber(v); n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
	in.Abort(context.Background())
	v2, _ := in.Read(context.Background())
	if n, _ := tlaval.AsNumber(v2); n != 5 {
		t.Fatalf("expected abort to leave 5 at the front, got %d", n)
	}
}

func TestOutputWriteDeliveredAtCommit(t *testing.T) {
	out := NewOutput()
	if err := out.Write(context.Background(), tlaval.NewNumber(9)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := out.Drain(ctx); err == nil {
		t.Fatalf("expected Drain to see nothing before commit")
	}
	if err := out.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	v, err := out.Drain(ctx2)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n, _ := tlaval.AsNumber(v); n != 9 {
		t.Fatalf("expected 9, got %d", n)
	}
}
