package mailbox

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/tlaval"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freeAddr: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func twoNodeMailboxes(t *testing.T) (a, b *Mailbox, addrA, addrB string) {
	t.Helper()
	return twoNodeMailboxesWithOptions(t, Options{Logger: quietLogger(), MaxTransientRetries: 2})
}

func twoNodeMailboxesWithOptions(t *testing.T, opts Options) (a, b *Mailbox, addrA, addrB string) {
	t.Helper()
	addrA = freeAddr(t)
	addrB = freeAddr(t)
	selfA := tlaval.NewString("a")
	selfB := tlaval.NewString("b")

	addrOf := func(self string) AddressFn {
		return func(index tlaval.Value) (Kind, string, error) {
			name, err := tlaval.AsString(index)
			if err != nil {
				return 0, "", err
			}
			if name == self {
				if self == "a" {
					return Local, addrA, nil
				}
				return Local, addrB, nil
			}
			if name == "a" {
				return Remote, addrA, nil
			}
			return Remote, addrB, nil
		}
	}

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	a = New(selfA, addrOf("a"), opts)
	b = New(selfB, addrOf("b"), opts)
	return a, b, addrA, addrB
}

func waitForValue(t *testing.T, ctx context.Context, inbox interface {
	Read(context.Context) (tlaval.Value, error)
}) tlaval.Value {
	t.Helper()
	v, err := inbox.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return v
}

func TestSendAndReceiveAcrossMailboxes(t *testing.T) {
	a, b, _, _ := twoNodeMailboxes(t)
	defer a.Close()
	defer b.Close()

	ctx := context.Background()

	if _, err := b.Index(tlaval.NewString("b")); err != nil {
		t.Fatalf("Index(self): %v", err)
	}

	outbound, err := a.Index(tlaval.NewString("b"))
	if err != nil {
		t.Fatalf("Index(b): %v", err)
	}
	if err := outbound.Write(ctx, tlaval.NewNumber(42)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res, err := outbound.PreCommit(ctx); err != nil || res != resource.PreCommitOK {
		t.Fatalf("PreCommit: res=%v err=%v", res, err)
	}
	if err := outbound.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	inbox, err := b.Index(tlaval.NewString("b"))
	if err != nil {
		t.Fatalf("Index(self): %v", err)
	}
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	v := waitForValue(t, readCtx, inbox)
	n, err := tlaval.AsNumber(v)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %v (err %v)", v, err)
	}
	if err := inbox.Commit(ctx); err != nil {
		t.Fatalf("Commit inbox: %v", err)
	}
}

func TestDuplicateDeliveryIsDeduped(t *testing.T) {
	a, b, _, addrB := twoNodeMailboxes(t)
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	inbox, err := b.Index(tlaval.NewString("b"))
	if err != nil {
		t.Fatalf("Index(self): %v", err)
	}

	conn, err := net.Dial("tcp", addrB)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{byte(connKindWrite)}); err != nil {
		t.Fatalf("write-stream handshake: %v", err)
	}

	env := envelope(tlaval.NewString("a"), 1, tlaval.NewNumber(7))
	if err := writeEnvelope(conn, env); err != nil {
		t.Fatalf("writeEnvelope: %v", err)
	}
	if err := writeEnvelope(conn, env); err != nil {
		t.Fatalf("writeEnvelope (dup): %v", err)
	}
	if err := writeEnvelope(conn, envelope(tlaval.NewString("a"), 2, tlaval.NewNumber(8))); err != nil {
		t.Fatalf("writeEnvelope (seq 2): %v", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	first := waitForValue(t, readCtx, inbox)
	if n, _ := tlaval.AsNumber(first); n != 7 {
		t.Fatalf("expected first read 7, got %v", first)
	}
	inbox.Commit(ctx)

	readCtx2, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	second := waitForValue(t, readCtx2, inbox)
	if n, _ := tlaval.AsNumber(second); n != 8 {
		t.Fatalf("expected de-duped second read to be 8, got %v", second)
	}
	inbox.Commit(ctx)

	_ = a
}

func TestAbortReturnsValueToHeadOfQueue(t *testing.T) {
	_, b, _, addrB := twoNodeMailboxes(t)
	defer b.Close()

	ctx := context.Background()
	inbox, err := b.Index(tlaval.NewString("b"))
	if err != nil {
		t.Fatalf("Index(self): %v", err)
	}

	conn, err := net.Dial("tcp", addrB)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{byte(connKindWrite)}); err != nil {
		t.Fatalf("write-stream handshake: %v", err)
	}
	if err := writeEnvelope(conn, envelope(tlaval.NewString("a"), 1, tlaval.NewNumber(5))); err != nil {
		t.Fatalf("writeEnvelope: %v", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	v := waitForValue(t, readCtx, inbox)
	if n, _ := tlaval.AsNumber(v); n != 5 {
		t.Fatalf("expected 5, got %v", v)
	}
	inbox.Abort(ctx)

	readCtx2, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	v2 := waitForValue(t, readCtx2, inbox)
	if n, _ := tlaval.AsNumber(v2); n != 5 {
		t.Fatalf("expected re-read of 5 after abort, got %v", v2)
	}
	inbox.Commit(ctx)
}

func TestPreCommitAbortsWhenPeerUnreachable(t *testing.T) {
	a, _, _, _ := twoNodeMailboxes(t)
	defer a.Close()

	ctx := context.Background()
	outbound, err := a.Index(tlaval.NewString("b"))
	if err != nil {
		t.Fatalf("Index(b): %v", err)
	}
	if err := outbound.Write(ctx, tlaval.NewNumber(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	res, err := outbound.PreCommit(ctx)
	if err != nil {
		t.Fatalf("PreCommit: unexpected fatal error on first failure: %v", err)
	}
	if res != resource.PreCommitAbort {
		t.Fatalf("expected PreCommitAbort for unreachable peer, got %v", res)
	}
	outbound.Abort(ctx)
}

func TestPreCommitAbortsWhenPeerInboxFull(t *testing.T) {
	a, b, _, addrB := twoNodeMailboxesWithOptions(t, Options{MaxTransientRetries: 2, MaxQueueDepth: 1})
	defer a.Close()
	defer b.Close()

	ctx := context.Background()

	if _, err := b.Index(tlaval.NewString("b")); err != nil {
		t.Fatalf("Index(self): %v", err)
	}

	conn, err := net.Dial("tcp", addrB)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{byte(connKindWrite)}); err != nil {
		t.Fatalf("write-stream handshake: %v", err)
	}
	if err := writeEnvelope(conn, envelope(tlaval.NewString("filler"), 1, tlaval.NewNumber(0))); err != nil {
		t.Fatalf("writeEnvelope: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !b.subs[subKey(tlaval.NewString("b"))].(*local).atCapacity() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for inbox to fill")
		}
		time.Sleep(10 * time.Millisecond)
	}

	outbound, err := a.Index(tlaval.NewString("b"))
	if err != nil {
		t.Fatalf("Index(b): %v", err)
	}
	if err := outbound.Write(ctx, tlaval.NewNumber(99)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	res, err := outbound.PreCommit(ctx)
	if err != nil {
		t.Fatalf("PreCommit: expected abort-request, not a fatal error, got %v", err)
	}
	if res != resource.PreCommitAbort {
		t.Fatalf("expected PreCommitAbort for a full peer inbox, got %v", res)
	}
	outbound.Abort(ctx)
}
