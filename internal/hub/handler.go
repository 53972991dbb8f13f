package hub

import (
	"log/slog"

	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// handlerFunc processes one inbound frame on the hub loop.
type handlerFunc func(h *Hub, c *Client, payload []byte)

// statusResp is the generic {status, msg} reply body.
type statusResp struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

// newHandlerTable builds the dispatch table keyed by message-type code.
func newHandlerTable() map[byte]handlerFunc {
	return map[byte]handlerFunc{
		protocol.MsgLoginReq:    (*Hub).handleLogin,
		protocol.MsgRegisterReq: (*Hub).handleRegister,

		protocol.MsgUploadInit:    (*Hub).handleUploadInit,
		protocol.MsgUploadData:    (*Hub).handleUploadData,
		protocol.MsgUploadEnd:     (*Hub).handleUploadEnd,
		protocol.MsgGameRemoveReq: (*Hub).handleGameRemove,

		protocol.MsgGameListReq:   (*Hub).handleGameList,
		protocol.MsgGameDetailReq: (*Hub).handleGameDetail,
		protocol.MsgGameRateReq:   (*Hub).handleGameRate,
		protocol.MsgDevMyGamesReq: (*Hub).handleDevMyGames,
		protocol.MsgDownloadReq:   (*Hub).handleDownload,

		protocol.MsgRoomCreateReq: (*Hub).handleRoomCreate,
		protocol.MsgRoomListReq:   (*Hub).handleRoomList,
		protocol.MsgRoomJoinReq:   (*Hub).handleRoomJoin,
		protocol.MsgRoomLeaveReq:  (*Hub).handleRoomLeave,

		protocol.MsgGameStartCmd:   (*Hub).handleGameStart,
		protocol.MsgReadyCheckResp: (*Hub).handleReadyCheckResp,

		protocol.MsgRoomChat:          (*Hub).handleRoomChat,
		protocol.MsgPluginListReq:     (*Hub).handlePluginList,
		protocol.MsgPluginDownloadReq: (*Hub).handlePluginDownload,
	}
}

// respTypeFor maps a request type to its error-reply type, for refusing
// frames that never reach their handler. Types without a paired response
// (chat, leave, upload data, ready-check responses) are silently ignored.
func respTypeFor(msgType byte) (byte, bool) {
	switch msgType {
	case protocol.MsgLoginReq:
		return protocol.MsgLoginResp, true
	case protocol.MsgRegisterReq:
		return protocol.MsgRegisterResp, true
	case protocol.MsgUploadInit:
		return protocol.MsgUploadInit, true
	case protocol.MsgUploadEnd:
		return protocol.MsgUploadEnd, true
	case protocol.MsgGameRemoveReq:
		return protocol.MsgGameRemoveResp, true
	case protocol.MsgGameListReq:
		return protocol.MsgGameListResp, true
	case protocol.MsgGameDetailReq:
		return protocol.MsgGameDetailResp, true
	case protocol.MsgGameRateReq:
		return protocol.MsgGameRateResp, true
	case protocol.MsgDevMyGamesReq:
		return protocol.MsgDevMyGamesResp, true
	case protocol.MsgDownloadReq:
		return protocol.MsgDownloadInit, true
	case protocol.MsgRoomCreateReq:
		return protocol.MsgRoomCreateResp, true
	case protocol.MsgRoomListReq:
		return protocol.MsgRoomListResp, true
	case protocol.MsgRoomJoinReq:
		return protocol.MsgRoomJoinResp, true
	case protocol.MsgPluginListReq:
		return protocol.MsgPluginListResp, true
	case protocol.MsgPluginDownloadReq:
		return protocol.MsgPluginDownloadResp, true
	default:
		return 0, false
	}
}

// dispatch routes one frame. Unknown types are protocol violations and drop
// the connection; frames from unbound connections (including evicted ones)
// are refused without touching state.
func (h *Hub) dispatch(c *Client, msgType byte, payload []byte) {
	if c.gone {
		return
	}

	fn, ok := h.handlers[msgType]
	if !ok {
		slog.Warn("unknown message type, disconnecting", "type", msgType, "client", c.ip)
		h.disconnect(c)
		return
	}

	switch msgType {
	case protocol.MsgLoginReq, protocol.MsgRegisterReq:
		// Pre-auth traffic.
	default:
		if !c.Authenticated() {
			if respType, hasResp := respTypeFor(msgType); hasResp {
				h.reply(c, respType, statusResp{Status: "error", Msg: "Not authenticated"})
			}
			return
		}
	}

	fn(h, c, payload)
}

// disconnect actively closes a connection and releases its state. The reader
// goroutine will observe the closed socket and exit on its own.
func (h *Hub) disconnect(c *Client) {
	h.dropClient(c)
	c.Close()
}

// reply marshals body and queues it on c.
func (h *Hub) reply(c *Client, msgType byte, body any) {
	frame, err := protocol.EncodeJSON(msgType, body)
	if err != nil {
		slog.Error("encoding reply", "type", msgType, "error", err)
		return
	}
	c.Send(frame)
}

// replyError is shorthand for a {status:"error"} reply.
func (h *Hub) replyError(c *Client, msgType byte, msg string) {
	h.reply(c, msgType, statusResp{Status: "error", Msg: msg})
}

// requireRole refuses the frame unless the binding matches role. The error
// lands on respType when the request has a paired response.
func (h *Hub) requireRole(c *Client, role string, respType byte, msg string) bool {
	if c.role != role {
		if respType != 0 {
			h.replyError(c, respType, msg)
		}
		return false
	}
	return true
}

// requirePlayer is the silent variant used by room traffic; non-player
// frames on these types are dropped without a reply.
func (h *Hub) requirePlayer(c *Client) bool {
	return c.role == store.RolePlayer
}
