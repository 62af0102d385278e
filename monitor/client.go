package monitor

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/tlaval"
)

// Client talks to a monitor Server on behalf of one archetype: it
// registers and heartbeats its own identity, and answers "is peer X
// alive?" queries for the failure detector.
type Client struct {
	addr   string
	dialer net.Dialer
	logger logrus.FieldLogger
}

// NewClient constructs a Client dialing addr for every request. The
// monitor may be restarted; a heartbeat to a restarted monitor registers
// the peer again (and RunUnder re-registers after a failed heartbeat), so
// no connection is held open. Query never registers.
func NewClient(addr string, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{addr: addr, dialer: net.Dialer{Timeout: 2 * time.Second}, logger: logger}
}

func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := writeRequest(conn, req); err != nil {
		return nil, err
	}
	if req.kind != kindQuery {
		return nil, nil
	}
	resp, err := readResponse(conn)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register announces self to the monitor.
func (c *Client) Register(ctx context.Context, self tlaval.Value) error {
	_, err := c.roundTrip(ctx, request{kind: kindRegister, peerID: self})
	return err
}

// Heartbeat announces that self is still running.
func (c *Client) Heartbeat(ctx context.Context, self tlaval.Value) error {
	_, err := c.roundTrip(ctx, request{kind: kindHeartbeat, peerID: self})
	return err
}

// Query asks whether peer is currently considered alive.
func (c *Client) Query(ctx context.Context, peer tlaval.Value) (bool, error) {
	resp, err := c.roundTrip(ctx, request{kind: kindQuery, peerID: peer})
	if err != nil {
		return false, err
	}
	return resp.alive, nil
}

// RunUnder registers self and heartbeats every interval until ctx is
// done, logging (but not failing on) transient dial errors so a
// restarted monitor is transparently re-registered with on the next
// tick (spec.md §4.5 "the monitor may be restarted; archetypes
// re-register lazily"). It owns the heartbeat goroutine's lifetime: the
// caller need only cancel ctx to stop it (spec.md §4.5 "convenience
// shim").
func (c *Client) RunUnder(ctx context.Context, self tlaval.Value, interval time.Duration) {
	if err := c.Register(ctx, self); err != nil {
		c.logger.WithError(err).Debug("monitor: initial register failed, will retry on heartbeat")
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Heartbeat(ctx, self); err != nil {
					c.logger.WithError(err).Debug("monitor: heartbeat failed")
					if err := c.Register(ctx, self); err != nil {
						c.logger.WithError(err).Debug("monitor: re-register failed")
					}
				}
			}
		}
	}()
}
