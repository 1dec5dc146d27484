// Package httpapi exposes the receiver's tracked-aircraft snapshot over
// HTTP: a polling JSON endpoint, a WebSocket feed that pushes the full
// snapshot on every broadcast tick (changed or not), and a
// Prometheus scrape endpoint. The WebSocket hub uses a standard
// register/unregister/broadcast pattern over per-connection send
// channels.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"uat978/internal/report"
)

// SnapshotFunc produces the current aircraft snapshot on demand.
type SnapshotFunc func() report.Snapshot

// Server wires aircraft.json, the websocket push feed, and /metrics
// onto a chi router.
type Server struct {
	logger   *logrus.Logger
	snapshot SnapshotFunc

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*wsClient

	router chi.Router
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan report.Snapshot
}

// New builds a Server. snapshot is called for every aircraft.json
// request and every websocket push tick.
func New(logger *logrus.Logger, snapshot SnapshotFunc) *Server {
	s := &Server{
		logger:   logger,
		snapshot: snapshot,
		clients:  make(map[uuid.UUID]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/aircraft.json", s.handleAircraftJSON)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	s.router = r
	return s
}

// Handler returns the root http.Handler to mount under an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleAircraftJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("httpapi: encode aircraft.json")
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("httpapi: websocket upgrade")
		}
		return
	}

	client := &wsClient{id: uuid.New(), conn: conn, send: make(chan report.Snapshot, 8)}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.WithField("client", client.id).Debug("httpapi: websocket client connected")
	}

	// Seed with the current snapshot so the client doesn't wait for the
	// next push tick.
	client.send <- s.snapshot()

	go s.readPump(client)
	go s.writePump(client)
}

func (s *Server) readPump(c *wsClient) {
	defer s.removeClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *wsClient) {
	defer c.conn.Close()
	for snap := range c.send {
		if err := c.conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}

// BroadcastLoop pushes a fresh snapshot to every connected websocket
// client on every tick until stop is closed.
func (s *Server) BroadcastLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.broadcast(s.snapshot())
		}
	}
}

func (s *Server) broadcast(snap report.Snapshot) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- snap:
		default:
			// Slow client; drop this tick rather than block the loop.
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
