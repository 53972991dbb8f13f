package hub

import (
	_ "embed"

	"github.com/udisondev/gamehub/internal/protocol"
)

// roomChatPluginCode is the client-side chat plugin served verbatim; the hub
// treats plugin code as an opaque string.
//
//go:embed plugins/roomchat.py
var roomChatPluginCode string

type pluginInfo struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
	Ver  string `json:"ver"`
}

var pluginCatalog = []pluginInfo{
	{Name: "RoomChat", Desc: "Chat in Room (Window)", Ver: "1.0"},
}

func (h *Hub) handlePluginList(c *Client, _ []byte) {
	h.reply(c, protocol.MsgPluginListResp, map[string]any{"plugins": pluginCatalog})
}

func (h *Hub) handlePluginDownload(c *Client, payload []byte) {
	var req struct {
		Name string `json:"name"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgPluginDownloadResp, "Malformed request")
		return
	}

	if req.Name != "RoomChat" {
		h.replyError(c, protocol.MsgPluginDownloadResp, "Not found")
		return
	}

	h.reply(c, protocol.MsgPluginDownloadResp, map[string]string{
		"status": "ok",
		"code":   roomChatPluginCode,
	})
}
