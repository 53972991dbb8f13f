package hub

import (
	"fmt"
	"log/slog"

	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// roomEntry is the summary shape ROOM_LIST returns per room.
type roomEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	GameID   int    `json:"game_id"`
	GameName string `json:"game_name"`
	Players  string `json:"players"`
	Status   string `json:"status"`
}

// roomResp carries a full room snapshot in create/join replies.
type roomResp struct {
	Status string      `json:"status"`
	Msg    string      `json:"msg,omitempty"`
	Room   *model.Room `json:"room,omitempty"`
}

func (h *Hub) handleRoomList(c *Client, _ []byte) {
	entries := make([]roomEntry, 0, len(h.rooms))
	for _, room := range h.rooms {
		entries = append(entries, roomEntry{
			ID:       room.ID,
			Name:     room.Name,
			GameID:   room.GameID,
			GameName: room.GameName,
			Players:  fmt.Sprintf("%d/%d", len(room.Members), room.MaxPlayers),
			Status:   room.Status,
		})
	}
	h.reply(c, protocol.MsgRoomListResp, map[string]any{"rooms": entries})
}

func (h *Hub) handleRoomCreate(c *Client, payload []byte) {
	if !h.requireRole(c, store.RolePlayer, protocol.MsgRoomCreateResp, "Only players can create rooms") {
		return
	}

	var req struct {
		RoomName string `json:"room_name"`
		GameID   int    `json:"game_id"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgRoomCreateResp, "Malformed request")
		return
	}

	game, ok := h.catalog.GetByID(req.GameID)
	if !ok {
		h.replyError(c, protocol.MsgRoomCreateResp, "Invalid Game ID")
		return
	}

	// Creating a room implies leaving the current one.
	h.leaveRoom(c.username)

	if req.RoomName == "" {
		req.RoomName = fmt.Sprintf("%s's Room", c.username)
	}

	room := &model.Room{
		ID:         h.nextRoomID,
		Name:       req.RoomName,
		GameID:     game.ID,
		GameName:   game.Name,
		Host:       c.username,
		Members:    []string{c.username},
		MaxPlayers: game.MaxPlayers,
		MinPlayers: game.MinPlayers,
		Status:     model.RoomStatusWaiting,
	}
	h.nextRoomID++
	h.rooms[room.ID] = room

	slog.Info("room created", "room", room.ID, "host", c.username, "game", game.Name)
	snap := room.Snapshot()
	h.reply(c, protocol.MsgRoomCreateResp, roomResp{Status: "ok", Room: &snap})
}

func (h *Hub) handleRoomJoin(c *Client, payload []byte) {
	if !h.requireRole(c, store.RolePlayer, protocol.MsgRoomJoinResp, "Only players can join rooms") {
		return
	}

	var req struct {
		RoomID int `json:"room_id"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgRoomJoinResp, "Malformed request")
		return
	}

	room, ok := h.rooms[req.RoomID]
	if !ok {
		h.replyError(c, protocol.MsgRoomJoinResp, "Room not found")
		return
	}

	if room.HasMember(c.username) {
		snap := room.Snapshot()
		h.reply(c, protocol.MsgRoomJoinResp, roomResp{Status: "ok", Room: &snap})
		return
	}

	if room.Status != model.RoomStatusWaiting || room.IsFull() {
		h.replyError(c, protocol.MsgRoomJoinResp, "Full or Playing")
		return
	}

	h.leaveRoom(c.username)
	room.Members = append(room.Members, c.username)

	slog.Info("room joined", "room", room.ID, "username", c.username)
	snap := room.Snapshot()
	h.reply(c, protocol.MsgRoomJoinResp, roomResp{Status: "ok", Room: &snap})
	h.broadcastRoomStatus(room)
}

func (h *Hub) handleRoomLeave(c *Client, _ []byte) {
	if !h.requirePlayer(c) {
		return
	}
	h.leaveRoom(c.username)
}

// leaveRoom removes the player from whichever room holds them. An emptied
// room is destroyed together with its pending ready-check and any running
// child; otherwise the host role transfers and the change is broadcast.
func (h *Hub) leaveRoom(username string) {
	room := h.roomOf(username)
	if room == nil {
		return
	}

	if room.RemoveMember(username) {
		slog.Info("room empty, destroying", "room", room.ID)
		delete(h.checks, room.ID)
		h.terminateChild(room.ID)
		delete(h.rooms, room.ID)
		return
	}

	h.broadcastRoomStatus(room)
}

// broadcastRoomStatus sends the full room snapshot to every member.
func (h *Hub) broadcastRoomStatus(room *model.Room) {
	snap := room.Snapshot()
	frame, err := protocol.EncodeJSON(protocol.MsgRoomStatusUpdate, map[string]any{"room": snap})
	if err != nil {
		slog.Error("encoding room status", "room", room.ID, "error", err)
		return
	}
	h.sendToMembers(room, frame)
}

// sendToMembers queues frame on every member's live connection.
func (h *Hub) sendToMembers(room *model.Room, frame []byte) {
	for _, member := range room.Members {
		if c := h.playerClient(member); c != nil {
			c.Send(frame)
		}
	}
}
