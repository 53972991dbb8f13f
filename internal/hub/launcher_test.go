package hub

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// newLoopHub builds a hub without starting the loop goroutine, for tests
// that call handlers directly.
func newLoopHub(t *testing.T) *Hub {
	t.Helper()

	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.UploadRoot = filepath.Join(dataDir, "uploads")

	users, err := store.NewUserStore(filepath.Join(dataDir, "users.json"))
	require.NoError(t, err)
	catalog, err := store.NewCatalog(filepath.Join(dataDir, "games_meta.json"))
	require.NoError(t, err)

	return New(cfg, users, catalog)
}

// pipeClient binds a player session over an in-memory pipe and returns the
// peer end for reading the client's frames.
func pipeClient(t *testing.T, h *Hub, username string) (*Client, net.Conn) {
	t.Helper()

	server, peer := net.Pipe()
	c := NewClient(server, 16, time.Minute)
	go c.writePump()
	t.Cleanup(func() {
		c.Close()
		peer.Close()
	})

	c.role, c.username = store.RolePlayer, username
	h.sessions[sessionKey{role: store.RolePlayer, username: username}] = c
	return c, peer
}

func readPipeFrame(t *testing.T, peer net.Conn) (byte, map[string]any) {
	t.Helper()
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, payload, err := protocol.ReadFrame(peer, protocol.DefaultMaxFrameSize)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, protocol.DecodeJSON(payload, &body))
	return msgType, body
}

func TestGameStartBlockedWhileLaunchInFlight(t *testing.T) {
	h := newLoopHub(t)
	_, err := h.catalog.CommitUpload("dev", store.UploadMeta{
		Name: "chess", Version: "1.0", Checksum: "c0ffee", MinPlayers: 1, MaxPlayers: 4,
	}, "/a/1.0.zip")
	require.NoError(t, err)

	c, peer := pipeClient(t, h, "alice")
	h.rooms[1] = &model.Room{
		ID: 1, Name: "r", GameID: 1, GameName: "chess",
		Host: "alice", Members: []string{"alice"},
		MinPlayers: 1, MaxPlayers: 4, Status: model.RoomStatusWaiting,
	}

	// A worker is extracting/spawning; the room is still waiting but a second
	// start must not open another ready check or spawn a second child.
	h.launching[1] = true

	h.handleGameStart(c, nil)

	msgType, body := readPipeFrame(t, peer)
	require.Equal(t, protocol.MsgGameStartFail, msgType)
	require.Equal(t, "Launch already in progress", body["msg"])
	_, pending := h.checks[1]
	require.False(t, pending)
}

func TestLaunchResultClearsInFlightGuard(t *testing.T) {
	h := newLoopHub(t)
	_, peer := pipeClient(t, h, "alice")
	h.rooms[1] = &model.Room{
		ID: 1, Host: "alice", Members: []string{"alice"},
		Status: model.RoomStatusWaiting,
	}
	h.launching[1] = true

	h.onLaunchResult(launchResult{roomID: 1, gameName: "chess", err: errors.New("spawn failed")})

	require.False(t, h.launching[1], "failed launch releases the guard")

	msgType, body := readPipeFrame(t, peer)
	require.Equal(t, protocol.MsgGameStartFail, msgType)
	require.Equal(t, "Start Failed! spawn failed", body["msg"])
}

func TestDisconnectLogsConnectionID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	h := newLoopHub(t)
	c, _ := pipeClient(t, h, "alice")

	h.dropClient(c)

	require.Contains(t, buf.String(), "conn="+c.ID().String())
}
