// Package admin runs an optional WebSocket observability endpoint that
// pushes periodic JSON snapshots of registry counters to any connected
// observer, as a push-over-websocket alternative to tailing logs.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/registry"
)

// SnapshotInterval is how often a connected observer receives a counters
// update.
const SnapshotInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionSummary is one live session's entry in a Snapshot's session list.
type SessionSummary struct {
	ClientID string `json:"client_id"`
	Mode     string `json:"mode"`
	Legacy   bool   `json:"legacy"`
}

// Snapshot is one JSON push sent to every connected admin client.
type Snapshot struct {
	ZorkConnections uint64           `json:"zork_connections"`
	Getters         int64            `json:"getters"`
	SocksServerUp   bool             `json:"socks_server_started"`
	Sessions        []SessionSummary `json:"sessions"`
}

// Server serves /admin/ws, broadcasting a Snapshot of reg every
// SnapshotInterval to all currently connected observers.
type Server struct {
	reg      *registry.Registry
	logger   *logx.Logger
	listener net.Listener
	interval time.Duration

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer constructs an admin server bound to reg's counters.
func NewServer(reg *registry.Registry, logger *logx.Logger) *Server {
	return &Server{
		reg:      reg,
		logger:   logger,
		interval: SnapshotInterval,
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Start binds port and begins serving. A port of 0 lets the OS assign one;
// the bound port is returned so callers can log it.
func (s *Server) Start(ctx context.Context, port int) (int, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("admin: listen on %s: %w", addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/ws", s.handleWS)

	go func() {
		_ = http.Serve(ln, mux)
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.broadcastLoop(ctx)

	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("admin: upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// Drain and discard anything the observer sends; this endpoint is
	// push-only. The read loop's sole purpose is detecting disconnection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.broadcast()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast() {
	live := s.reg.Sessions()
	sessions := make([]SessionSummary, 0, len(live))
	for _, info := range live {
		sessions = append(sessions, SessionSummary{
			ClientID: info.ClientID,
			Mode:     info.Mode,
			Legacy:   info.Legacy,
		})
	}

	snap := Snapshot{
		ZorkConnections: s.reg.NumZorkConnections(),
		Getters:         s.reg.NumGetters(),
		SocksServerUp:   s.reg.StartedSocksServer(),
		Sessions:        sessions,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("admin: failed to marshal snapshot: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.logger.Debug("admin: write to observer failed: %v", err)
		}
	}
}
