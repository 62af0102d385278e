package failuredetector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/tlaval"
)

type fakeMonitor struct {
	mu    sync.Mutex
	alive bool
}

func (f *fakeMonitor) setAlive(v bool) {
	f.mu.Lock()
	f.alive = v
	f.mu.Unlock()
}

func (f *fakeMonitor) Query(context.Context, tlaval.Value) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive, nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestReadReflectsLatestPoll(t *testing.T) {
	fm := &fakeMonitor{alive: true}
	d := &Detector{
		client:       fm,
		pullInterval: 10 * time.Millisecond,
		timeout:      time.Second,
		logger:       quietLogger(),
		subs:         make(map[string]*peer),
	}
	defer d.Close()

	sub, err := d.Index(tlaval.NewString("p1"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	v, err := sub.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	suspected, _ := tlaval.AsBool(v)
	if suspected {
		t.Fatalf("expected not suspected while monitor reports alive")
	}

	fm.setAlive(false)
	time.Sleep(30 * time.Millisecond)
	v, err = sub.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	suspected, _ = tlaval.AsBool(v)
	if !suspected {
		t.Fatalf("expected suspected once monitor reports not alive")
	}
}

func TestWriteIsProtocolMisuse(t *testing.T) {
	fm := &fakeMonitor{alive: true}
	d := &Detector{
		client:       fm,
		pullInterval: time.Second,
		timeout:      time.Second,
		logger:       quietLogger(),
		subs:         make(map[string]*peer),
	}
	defer d.Close()

	sub, err := d.Index(tlaval.NewString("p1"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := sub.Write(context.Background(), tlaval.NewBool(true)); err == nil {
		t.Fatalf("expected write to a failure-detector sub-resource to error")
	}
}

func TestIndexReusesSameSubResource(t *testing.T) {
	fm := &fakeMonitor{alive: true}
	d := &Detector{
		client:       fm,
		pullInterval: time.Second,
		timeout:      time.Second,
		logger:       quietLogger(),
		subs:         make(map[string]*peer),
	}
	defer d.Close()

	a, _ := d.Index(tlaval.NewString("p1"))
	b, _ := d.Index(tlaval.NewString("p1"))
	if a != b {
		t.Fatalf("expected repeated Index for the same peer to return the same sub-resource")
	}
}
