package hub

import (
	"log/slog"

	"github.com/udisondev/gamehub/internal/protocol"
)

// handleRoomChat relays one message to every member of the sender's room,
// sender included. Frames from players outside any room are dropped.
func (h *Hub) handleRoomChat(c *Client, payload []byte) {
	if !h.requirePlayer(c) {
		return
	}
	room := h.roomOf(c.username)
	if room == nil {
		return
	}

	var req struct {
		Msg string `json:"msg"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		return
	}

	frame, err := protocol.EncodeJSON(protocol.MsgRoomChat, map[string]string{
		"user": c.username,
		"msg":  req.Msg,
	})
	if err != nil {
		slog.Error("encoding chat relay", "room", room.ID, "error", err)
		return
	}
	h.sendToMembers(room, frame)
}
