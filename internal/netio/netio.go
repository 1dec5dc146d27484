// Package netio implements the raw-port and json-port TCP fan-out
// listeners: each accepted connection receives every message
// broadcast to it, one line at a time, until it disconnects or the
// listener is closed, the way a typical dump1090/dump978 TCP fan-out
// works.
package netio

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Listener accepts TCP connections on addr and broadcasts every line
// passed to Broadcast to all of them.
type Listener struct {
	name   string
	logger *logrus.Logger

	ln net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// NewListener creates a Listener named name (used only in logs, e.g.
// "raw-port" or "json-port").
func NewListener(name string, logger *logrus.Logger) *Listener {
	return &Listener{name: name, logger: logger, clients: make(map[net.Conn]struct{})}
}

// Listen binds addr ("[host]:port") and starts accepting connections
// in a background goroutine. Call Close to stop.
func (l *Listener) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("netio: listen %s on %s: %w", l.name, addr, err)
	}
	l.ln = ln

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		l.mu.Lock()
		l.clients[conn] = struct{}{}
		l.mu.Unlock()

		if l.logger != nil {
			l.logger.WithFields(logrus.Fields{
				"listener": l.name,
				"remote":   conn.RemoteAddr(),
			}).Info("netio: client connected")
		}

		go l.drainUntilClosed(conn)
	}
}

// drainUntilClosed discards anything the client sends (these listeners
// are output-only) and removes it from the broadcast set on EOF/error.
func (l *Listener) drainUntilClosed(conn net.Conn) {
	r := bufio.NewReader(conn)
	buf := make([]byte, 1024)
	for {
		if _, err := r.Read(buf); err != nil {
			l.removeClient(conn)
			return
		}
	}
}

func (l *Listener) removeClient(conn net.Conn) {
	l.mu.Lock()
	delete(l.clients, conn)
	l.mu.Unlock()
	conn.Close()
}

// Broadcast writes line (with a trailing newline appended) to every
// connected client, dropping any client whose write fails.
func (l *Listener) Broadcast(line string) {
	l.mu.Lock()
	conns := make([]net.Conn, 0, len(l.clients))
	for c := range l.clients {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		if _, err := fmt.Fprintf(c, "%s\n", line); err != nil {
			l.removeClient(c)
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (l *Listener) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Close stops accepting new connections and closes every client
// connection.
func (l *Listener) Close() error {
	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	l.wg.Wait()

	l.mu.Lock()
	for c := range l.clients {
		c.Close()
	}
	l.clients = make(map[net.Conn]struct{})
	l.mu.Unlock()

	return err
}

// Dial connects to a raw-text or JSON TCP source as a client (the
// "client mode" companion to Listener), returning the connection for
// the caller to read lines from. Dial makes one attempt; nothing in
// this module calls it or reconnects after a dropped connection.
func Dial(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netio: dial %s: %w", addr, err)
	}
	return conn, nil
}
