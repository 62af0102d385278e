package monitor

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpcal-lang/distsys/tlaval"
)

// peerState is the monitor's single-writer-consistent view of one peer:
// every register or heartbeat sets lastSeen to the current time under
// Server.mu, so concurrent heartbeats through different connections for
// the same peer-id are serialised and never race (spec.md §4.5).
type peerState struct {
	lastSeen time.Time
}

// Server is the standalone monitor process. Archetypes register and
// heartbeat their identity; failure-detector clients query status.
type Server struct {
	listener         net.Listener
	logger           logrus.FieldLogger
	inactivityWindow time.Duration

	mu    sync.RWMutex
	peers map[string]*peerState

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer listens on addr and begins accepting connections. A peer is
// considered alive if a heartbeat or registration arrived within
// inactivityWindow of the most recent query.
func NewServer(addr string, inactivityWindow time.Duration, logger logrus.FieldLogger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		listener:         ln,
		logger:           logger,
		inactivityWindow: inactivityWindow,
		peers:            make(map[string]*peerState),
		done:             make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.WithError(err).Debug("monitor: accept error")
				return
			}
		}
		go s.serve(conn)
	}
}

func peerKey(id tlaval.Value) string {
	return string(tlaval.Encode(id))
}

func (s *Server) touch(id tlaval.Value) {
	key := peerKey(id)
	s.mu.Lock()
	p, ok := s.peers[key]
	if !ok {
		p = &peerState{}
		s.peers[key] = p
	}
	p.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Server) alive(id tlaval.Value) bool {
	key := peerKey(id)
	s.mu.RLock()
	p, ok := s.peers[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(p.lastSeen) <= s.inactivityWindow
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := readRequest(conn)
		if err != nil {
			return
		}
		switch req.kind {
		case kindRegister, kindHeartbeat:
			s.touch(req.peerID)
		case kindQuery:
			if err := writeResponse(conn, response{alive: s.alive(req.peerID)}); err != nil {
				return
			}
		default:
			s.logger.Warn("monitor: unknown request kind")
			return
		}
	}
}

// Close stops accepting connections. Already-established connections are
// not closed; they keep being served until their client disconnects.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	return err
}
