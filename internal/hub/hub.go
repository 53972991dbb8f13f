package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/store"
)

// tickInterval bounds how long worker results, child exits, and ready-check
// deadlines can go unobserved.
const tickInterval = 100 * time.Millisecond

// event is one unit of inbound work posted by a connection reader.
type event struct {
	client  *Client
	msgType byte
	payload []byte
	// drop marks a closed connection whose state must be released.
	drop bool
}

type sessionKey struct {
	role     string
	username string
}

// Hub owns every piece of mutable state: sessions, rooms, the catalogue
// handle, in-flight uploads, pending ready-checks, and running game children.
// A single loop goroutine (Run) serialises all mutation; connection readers
// and workers communicate with it exclusively through channels.
type Hub struct {
	cfg     config.Hub
	users   *store.UserStore
	catalog *store.Catalog

	events  chan event
	results chan launchResult
	exits   chan childExit
	done    chan struct{}

	// All maps below are owned by the loop goroutine.
	sessions   map[sessionKey]*Client
	rooms      map[int]*model.Room
	nextRoomID int
	uploads    map[*Client]*uploadState
	checks     map[int]*readyCheck
	// launching marks rooms whose launch worker is running but has not
	// reported back yet; the room is still waiting during this window.
	launching map[int]bool
	children  map[int]*gameChild

	handlers map[byte]handlerFunc
}

// New creates a Hub around the given stores.
func New(cfg config.Hub, users *store.UserStore, catalog *store.Catalog) *Hub {
	h := &Hub{
		cfg:        cfg,
		users:      users,
		catalog:    catalog,
		events:     make(chan event, 256),
		results:    make(chan launchResult, 16),
		exits:      make(chan childExit, 16),
		done:       make(chan struct{}),
		sessions:   map[sessionKey]*Client{},
		rooms:      map[int]*model.Room{},
		nextRoomID: 1,
		uploads:    map[*Client]*uploadState{},
		checks:     map[int]*readyCheck{},
		launching:  map[int]bool{},
		children:   map[int]*gameChild{},
	}
	h.handlers = newHandlerTable()
	return h
}

// Run executes the hub loop until ctx is cancelled. It must be called
// exactly once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case ev := <-h.events:
			if ev.drop {
				h.dropClient(ev.client)
				continue
			}
			h.dispatch(ev.client, ev.msgType, ev.payload)

		case res := <-h.results:
			h.onLaunchResult(res)

		case exit := <-h.exits:
			h.onChildExit(exit)

		case <-ticker.C:
			h.expireReadyChecks(time.Now())
		}
	}
}

// post hands an event to the loop. Safe to call from reader goroutines; a
// stopped hub discards the event.
func (h *Hub) post(ev event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// dropClient releases all per-connection state: open upload, session
// binding, and room membership. Idempotent; an evicted connection whose
// binding was already cleared only discards its upload.
func (h *Hub) dropClient(c *Client) {
	if c.gone {
		return
	}
	c.gone = true

	h.discardUpload(c)

	if !c.Authenticated() {
		return
	}

	key := sessionKey{role: c.role, username: c.username}
	if h.sessions[key] == c {
		delete(h.sessions, key)
	}
	slog.Info("client disconnected", "conn", c.id, "role", c.role, "username", c.username, "client", c.ip)

	if c.role == store.RolePlayer {
		h.leaveRoom(c.username)
	}
	c.role, c.username = "", ""
}

// shutdown terminates running children and releases every connection.
func (h *Hub) shutdown() {
	slog.Info("hub shutting down", "children", len(h.children))
	for roomID := range h.children {
		h.terminateChild(roomID)
	}
	for _, c := range h.sessions {
		c.Close()
	}
}

// playerClient resolves the live connection bound to a player username.
func (h *Hub) playerClient(username string) *Client {
	return h.sessions[sessionKey{role: store.RolePlayer, username: username}]
}

// roomOf returns the room the player is currently a member of, or nil.
func (h *Hub) roomOf(username string) *model.Room {
	for _, room := range h.rooms {
		if room.HasMember(username) {
			return room
		}
	}
	return nil
}
