package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/protocol"
)

// Server owns the listener and the per-connection goroutines. All protocol
// state lives in the Hub; the server only frames bytes in and out.
type Server struct {
	cfg config.Hub
	hub *Hub

	listener net.Listener
	mu       sync.Mutex
}

// NewServer wires a listener front-end to the hub.
func NewServer(cfg config.Hub, h *Hub) *Server {
	return &Server{cfg: cfg, hub: h}
}

// Addr reports the listening address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close shuts the listener down.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.BindAddress:cfg.Port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on a caller-provided listener. Used by tests to
// bind an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("hub server started", "address", ln.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accepting connection", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}

// handleConnection owns one client socket: it starts the write pump and
// runs the framed read loop, posting every frame to the hub. On any exit the
// hub gets a drop event so session, room, and upload state are released.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	c := NewClient(conn, s.cfg.SendQueueSize, s.cfg.WriteTimeout)
	go c.writePump()

	defer func() {
		c.Close()
		s.hub.post(event{client: c, drop: true})
	}()

	slog.Debug("connection accepted", "conn", c.id, "client", c.ip)

	for {
		if s.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				return
			}
		}

		msgType, payload, err := protocol.ReadFrame(conn, s.cfg.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("read loop ended", "conn", c.id, "client", c.ip, "error", err)
			}
			return
		}

		s.hub.post(event{client: c, msgType: msgType, payload: payload})
	}
}
