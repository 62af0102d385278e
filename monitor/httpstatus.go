package monitor

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusServer exposes a monitor Server's current view over a small
// read-only HTTP API, separate from the TCP heartbeat/query protocol
// archetypes speak (SPEC_FULL.md "Monitor HTTP status surface"), plus a
// prometheus /metrics endpoint serving the registry given to
// NewStatusServer (an empty one when none is given).
type StatusServer struct {
	router     chi.Router
	httpServer *http.Server
	monitor    *Server
}

// NewStatusServer constructs the router and HTTP server for mon, to be
// started with Start. reg may be nil, in which case /metrics serves an
// empty registry rather than panicking.
func NewStatusServer(addr string, mon *Server, reg *prometheus.Registry) *StatusServer {
	s := &StatusServer{router: chi.NewRouter(), monitor: mon}
	s.routes(reg)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *StatusServer) routes(reg *prometheus.Registry) {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/peers", s.handlePeers)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func (s *StatusServer) Start() error { return s.httpServer.ListenAndServe() }

func (s *StatusServer) Close() error { return s.httpServer.Close() }

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type statusView struct {
	ListenAddr string `json:"listenAddr"`
	PeerCount  int    `json:"peerCount"`
	AliveCount int    `json:"aliveCount"`
}

// handleStatus answers with the monitor's aggregate view — how many peers
// it has ever seen and how many it currently considers alive — as a single
// cheap summary, separate from /peers' full per-peer listing.
func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.monitor.mu.RLock()
	alive := 0
	for _, p := range s.monitor.peers {
		if time.Since(p.lastSeen) <= s.monitor.inactivityWindow {
			alive++
		}
	}
	view := statusView{
		ListenAddr: s.monitor.Addr(),
		PeerCount:  len(s.monitor.peers),
		AliveCount: alive,
	}
	s.monitor.mu.RUnlock()
	writeJSON(w, view)
}

type peerView struct {
	Peer     string    `json:"peer"`
	Alive    bool      `json:"alive"`
	LastSeen time.Time `json:"lastSeen"`
}

func (s *StatusServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	s.monitor.mu.RLock()
	out := make([]peerView, 0, len(s.monitor.peers))
	for key, p := range s.monitor.peers {
		out = append(out, peerView{
			Peer:     hex.EncodeToString([]byte(key)),
			Alive:    time.Since(p.lastSeen) <= s.monitor.inactivityWindow,
			LastSeen: p.lastSeen,
		})
	}
	s.monitor.mu.RUnlock()
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
