package hub

import (
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
)

// launchResult is what a launch worker posts back to the loop.
type launchResult struct {
	roomID   int
	gameID   int
	gameName string
	version  string
	members  []string
	port     int
	cmd      *exec.Cmd
	err      error
}

// childExit reports a reaped game server process.
type childExit struct {
	roomID int
}

type gameChild struct {
	cmd *exec.Cmd
}

// startLaunch kicks off extraction and process start on a worker goroutine.
// The member list is snapshotted here so a join racing the launch does not
// change who receives GAME_LAUNCH.
func (h *Hub) startLaunch(room *model.Room, check *readyCheck) {
	version, ok := check.game.Versions[check.version]
	if !ok {
		h.broadcastStartFail(room, "Start Failed! version archive missing")
		return
	}

	members := make([]string, len(room.Members))
	copy(members, room.Members)

	h.launching[room.ID] = true
	go h.launchWorker(room.ID, check.game.ID, check.game.Name, check.version, version.ArchivePath, members)
}

// launchWorker extracts the archive next to it, reads the manifest, grabs a
// free port, and starts the game server with "--port N" appended. Runs off
// the loop; the outcome is posted to h.results.
func (h *Hub) launchWorker(roomID, gameID int, gameName, version, archivePath string, members []string) {
	res := launchResult{
		roomID:   roomID,
		gameID:   gameID,
		gameName: gameName,
		version:  version,
		members:  members,
	}

	extractDir := filepath.Join(filepath.Dir(archivePath), fmt.Sprintf("run_env_%d", roomID))
	if err := bundle.Extract(archivePath, extractDir); err != nil {
		res.err = fmt.Errorf("extracting archive: %w", err)
		h.postResult(res)
		return
	}

	manifest, err := bundle.LoadManifest(extractDir)
	if err != nil {
		res.err = fmt.Errorf("reading manifest: %w", err)
		h.postResult(res)
		return
	}

	port, err := freePort()
	if err != nil {
		res.err = fmt.Errorf("allocating port: %w", err)
		h.postResult(res)
		return
	}

	argv := manifest.Execution.ServerCmd
	args := append(append([]string{}, argv[1:]...), "--port", strconv.Itoa(port))

	cmd := exec.Command(argv[0], args...)
	cmd.Dir = extractDir
	if err := cmd.Start(); err != nil {
		res.err = fmt.Errorf("starting game server: %w", err)
		h.postResult(res)
		return
	}

	res.port = port
	res.cmd = cmd
	h.postResult(res)
}

func (h *Hub) postResult(res launchResult) {
	select {
	case h.results <- res:
	case <-h.done:
		if res.cmd != nil && res.cmd.Process != nil {
			_ = res.cmd.Process.Kill()
		}
	}
}

// onLaunchResult finishes a launch on the loop: register the child, flip the
// room to playing, record play history, and tell every snapshotted member
// where to connect.
func (h *Hub) onLaunchResult(res launchResult) {
	delete(h.launching, res.roomID)
	room, roomAlive := h.rooms[res.roomID]

	if res.err != nil {
		slog.Error("launch failed", "room", res.roomID, "game", res.gameName, "error", res.err)
		if roomAlive {
			h.broadcastStartFail(room, "Start Failed! "+res.err.Error())
		}
		return
	}

	if !roomAlive {
		// Everyone left while the worker was running; the process is orphaned.
		slog.Warn("room gone before launch completed, killing child", "room", res.roomID)
		_ = res.cmd.Process.Kill()
		go func() { _ = res.cmd.Wait() }()
		return
	}

	h.children[res.roomID] = &gameChild{cmd: res.cmd}
	go h.waitChild(res.roomID, res.cmd)

	room.Status = model.RoomStatusPlaying
	h.broadcastRoomStatus(room)

	h.catalog.MarkPlayed(res.gameName, res.members)

	slog.Info("game launched", "room", res.roomID, "game", res.gameName, "port", res.port, "pid", res.cmd.Process.Pid)

	frame, err := protocol.EncodeJSON(protocol.MsgGameLaunchEvent, map[string]any{
		"server_ip": h.cfg.PublicAddress,
		"port":      res.port,
		"game_id":   res.gameID,
		"version":   res.version,
	})
	if err != nil {
		slog.Error("encoding launch event", "room", res.roomID, "error", err)
		return
	}
	for _, member := range res.members {
		if c := h.playerClient(member); c != nil {
			c.Send(frame)
		}
	}
}

// waitChild reaps the process and reports its exit to the loop.
func (h *Hub) waitChild(roomID int, cmd *exec.Cmd) {
	err := cmd.Wait()
	slog.Info("game server exited", "room", roomID, "error", err)
	select {
	case h.exits <- childExit{roomID: roomID}:
	case <-h.done:
	}
}

// onChildExit returns the room to the waiting state once its game server
// stops, whether it exited on its own or was terminated.
func (h *Hub) onChildExit(exit childExit) {
	if _, ok := h.children[exit.roomID]; !ok {
		return
	}
	delete(h.children, exit.roomID)

	room, ok := h.rooms[exit.roomID]
	if !ok {
		return
	}
	room.Status = model.RoomStatusWaiting
	h.broadcastRoomStatus(room)
}

// terminateChild stops the room's game server if one is running. The entry
// is removed immediately; SIGTERM with a kill fallback happens off the loop,
// and the waitChild goroutine reaps the process.
func (h *Hub) terminateChild(roomID int) {
	child, ok := h.children[roomID]
	if !ok {
		return
	}
	delete(h.children, roomID)

	proc := child.cmd.Process
	slog.Info("terminating game server", "room", roomID, "pid", proc.Pid)
	go func() {
		_ = proc.Signal(syscall.SIGTERM)
		timer := time.NewTimer(2 * time.Second)
		defer timer.Stop()
		<-timer.C
		_ = proc.Kill()
	}()
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
