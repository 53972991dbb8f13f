package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
)

// readyCheck tracks one pre-launch collection window for a room. The member
// count is snapshotted when the window opens; responses are deduplicated by
// username.
type readyCheck struct {
	targetCount int
	responded   map[string]bool
	allOK       bool
	failReason  string
	game        model.Game
	version     string
	deadline    time.Time
}

// handleGameStart opens a ready-check window. Valid only from the host of a
// waiting room holding at least min_players members; validation errors go to
// the sender alone as GAME_START_FAIL.
func (h *Hub) handleGameStart(c *Client, _ []byte) {
	if !h.requirePlayer(c) {
		return
	}

	room := h.roomOf(c.username)
	if room == nil {
		h.reply(c, protocol.MsgGameStartFail, map[string]string{"msg": "Not in a room"})
		return
	}
	if room.Host != c.username {
		h.reply(c, protocol.MsgGameStartFail, map[string]string{"msg": "Only the host can start the game"})
		return
	}
	if room.Status != model.RoomStatusWaiting {
		h.reply(c, protocol.MsgGameStartFail, map[string]string{"msg": "Game already running"})
		return
	}
	if _, pending := h.checks[room.ID]; pending {
		h.reply(c, protocol.MsgGameStartFail, map[string]string{"msg": "Ready check already in progress"})
		return
	}
	if h.launching[room.ID] {
		h.reply(c, protocol.MsgGameStartFail, map[string]string{"msg": "Launch already in progress"})
		return
	}
	if len(room.Members) < room.MinPlayers {
		h.reply(c, protocol.MsgGameStartFail,
			map[string]string{"msg": fmt.Sprintf("Not enough players (Min %d)", room.MinPlayers)})
		return
	}

	game, ok := h.catalog.GetByID(room.GameID)
	if !ok {
		h.reply(c, protocol.MsgGameStartFail, map[string]string{"msg": "Game no longer available"})
		return
	}

	h.checks[room.ID] = &readyCheck{
		targetCount: len(room.Members),
		responded:   map[string]bool{},
		allOK:       true,
		game:        game,
		version:     game.LatestVersion,
		deadline:    time.Now().Add(h.cfg.ReadyCheckTimeout),
	}

	slog.Info("ready check started", "room", room.ID, "game", game.Name, "version", game.LatestVersion)

	frame, err := protocol.EncodeJSON(protocol.MsgReadyCheckReq, map[string]string{
		"game_name": game.Name,
		"version":   game.LatestVersion,
	})
	if err != nil {
		slog.Error("encoding ready check", "room", room.ID, "error", err)
		delete(h.checks, room.ID)
		return
	}
	h.sendToMembers(room, frame)
}

// handleReadyCheckResp accumulates one member's answer. When every member
// snapshotted at window-open has answered, the window closes: all-ok starts
// the launch, any failure broadcasts GAME_START_FAIL and the room stays
// waiting.
func (h *Hub) handleReadyCheckResp(c *Client, payload []byte) {
	if !h.requirePlayer(c) {
		return
	}

	room := h.roomOf(c.username)
	if room == nil {
		return
	}
	check, ok := h.checks[room.ID]
	if !ok {
		return
	}
	if check.responded[c.username] {
		return
	}
	check.responded[c.username] = true

	var resp struct {
		Status string `json:"status"`
		Msg    string `json:"msg"`
	}
	if err := protocol.DecodeJSON(payload, &resp); err != nil {
		resp.Status, resp.Msg = "error", "malformed response"
	}

	if resp.Status != "ok" && check.allOK {
		check.allOK = false
		if resp.Msg == "" {
			resp.Msg = "Not ready"
		}
		check.failReason = fmt.Sprintf("%s: %s", c.username, resp.Msg)
	}

	if len(check.responded) < check.targetCount {
		return
	}
	delete(h.checks, room.ID)

	if !check.allOK {
		slog.Info("ready check failed", "room", room.ID, "reason", check.failReason)
		h.broadcastStartFail(room, fmt.Sprintf("Start Failed! %s", check.failReason))
		return
	}

	slog.Info("ready check passed, launching", "room", room.ID, "game", check.game.Name)
	h.startLaunch(room, check)
}

// expireReadyChecks closes windows whose deadline passed; affected rooms get
// GAME_START_FAIL and stay waiting.
func (h *Hub) expireReadyChecks(now time.Time) {
	for roomID, check := range h.checks {
		if now.Before(check.deadline) {
			continue
		}
		delete(h.checks, roomID)
		if room, ok := h.rooms[roomID]; ok {
			slog.Warn("ready check timed out", "room", roomID)
			h.broadcastStartFail(room, "ready check timed out")
		}
	}
}

func (h *Hub) broadcastStartFail(room *model.Room, msg string) {
	frame, err := protocol.EncodeJSON(protocol.MsgGameStartFail, map[string]string{"msg": msg})
	if err != nil {
		slog.Error("encoding start fail", "room", room.ID, "error", err)
		return
	}
	h.sendToMembers(room, frame)
}
