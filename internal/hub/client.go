package hub

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 5 * time.Second
)

// Client represents one hub connection. Network writes go through a buffered
// send queue drained by a dedicated writePump goroutine, so handlers never
// block on a slow socket.
//
// The session binding fields (role, username) are owned by the hub loop and
// must not be touched from any other goroutine.
type Client struct {
	id   uuid.UUID
	conn net.Conn
	ip   string

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration

	// downloading guards the single archive stream a connection may carry.
	// Set on the hub loop, cleared by the streaming goroutine.
	downloading atomic.Bool

	// Session binding; empty until LOGIN succeeds, cleared on eviction.
	// Owned by the hub loop.
	role     string
	username string
	// gone marks a connection whose state was already released.
	// Owned by the hub loop.
	gone bool
}

// NewClient creates the per-connection state for conn.
func NewClient(conn net.Conn, sendQueueSize int, writeTimeout time.Duration) *Client {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &Client{
		id:           uuid.New(),
		conn:         conn,
		ip:           host,
		sendCh:       make(chan []byte, sendQueueSize),
		closeCh:      make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// ID returns the connection id assigned at accept time.
func (c *Client) ID() uuid.UUID { return c.id }

// IP returns the client's remote IP address.
func (c *Client) IP() string { return c.ip }

// Authenticated reports whether the connection holds a session binding.
func (c *Client) Authenticated() bool { return c.username != "" }

// writePump is the dedicated writer goroutine for this client. It drains the
// send queue and batches queued frames into a single writev when the queue
// has backlog.
func (c *Client) writePump() {
	bufs := make(net.Buffers, 0, 64)

	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("set write deadline failed", "conn", c.id, "client", c.ip, "error", err)
				return
			}

			queued := len(c.sendCh)
			if queued == 0 {
				if _, err := c.conn.Write(frame); err != nil {
					slog.Warn("write failed", "conn", c.id, "client", c.ip, "error", err)
					return
				}
				continue
			}

			bufs = bufs[:0]
			bufs = append(bufs, frame)
			for i := 0; i < queued; i++ {
				bufs = append(bufs, <-c.sendCh)
			}
			if _, err := bufs.WriteTo(c.conn); err != nil {
				slog.Warn("batch write failed", "conn", c.id, "client", c.ip, "error", err)
				return
			}

		case <-c.closeCh:
			return
		}
	}
}

// Send queues a complete wire frame for async delivery. Non-blocking: a full
// queue means a slow or dead client, which gets disconnected.
func (c *Client) Send(frame []byte) error {
	select {
	case c.sendCh <- frame:
		return nil
	default:
		slog.Warn("send queue full, disconnecting slow client", "conn", c.id, "client", c.ip)
		c.CloseAsync()
		return fmt.Errorf("send queue full")
	}
}

// SendSync queues a frame and blocks until accepted, the timeout expires, or
// the client closes. timeout <= 0 waits indefinitely (the writePump's write
// deadline still bounds delivery to a dead socket). Used by streaming workers
// that must preserve chunk order under backpressure.
func (c *Client) SendSync(frame []byte, timeout time.Duration) error {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case c.sendCh <- frame:
		return nil
	case <-timeoutCh:
		return fmt.Errorf("send timeout after %v", timeout)
	case <-c.closeCh:
		return fmt.Errorf("client closed")
	}
}

// CloseAsync signals the writePump to stop without blocking.
// Safe to call multiple times.
func (c *Client) CloseAsync() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
}

// Close closes the connection and stops the writePump.
func (c *Client) Close() error {
	c.CloseAsync()
	return c.conn.Close()
}
