package monitor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/tlaval"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

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

func TestQueryUnknownPeerIsNotAlive(t *testing.T) {
	srv, err := NewServer(freeAddr(t), time.Second, quietLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewClient(srv.Addr(), quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	alive, err := c.Query(ctx, tlaval.NewString("ghost"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if alive {
		t.Fatalf("expected unknown peer to be reported not alive")
	}
}

func TestRegisterMarksPeerAlive(t *testing.T) {
	srv, err := NewServer(freeAddr(t), 200*time.Millisecond, quietLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewClient(srv.Addr(), quietLogger())
	self := tlaval.NewString("node-1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Register(ctx, self); err != nil {
		t.Fatalf("Register: %v", err)
	}
	alive, err := c.Query(ctx, self)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !alive {
		t.Fatalf("expected freshly registered peer to be alive")
	}
}

func TestSilencePastWindowIsSuspected(t *testing.T) {
	srv, err := NewServer(freeAddr(t), 50*time.Millisecond, quietLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewClient(srv.Addr(), quietLogger())
	self := tlaval.NewString("node-2")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Register(ctx, self); err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	alive, err := c.Query(ctx, self)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if alive {
		t.Fatalf("expected peer silent past the inactivity window to be suspected")
	}
}

func TestRunUnderKeepsPeerAliveUntilCancel(t *testing.T) {
	srv, err := NewServer(freeAddr(t), 120*time.Millisecond, quietLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewClient(srv.Addr(), quietLogger())
	self := tlaval.NewString("node-3")
	runCtx, cancel := context.WithCancel(context.Background())
	c.RunUnder(runCtx, self, 30*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	queryCtx, qcancel := context.WithTimeout(context.Background(), time.Second)
	defer qcancel()
	alive, err := c.Query(queryCtx, self)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !alive {
		t.Fatalf("expected repeated heartbeats to keep peer alive")
	}
	cancel()
}
