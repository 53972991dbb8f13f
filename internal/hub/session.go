package hub

import (
	"errors"
	"log/slog"

	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// handleLogin binds the connection to a (role, username) key. A second login
// for an already-bound key evicts the previous session: the old connection
// receives FORCE_LOGOUT and its binding is released immediately; the socket
// itself stays open until the evicted client closes it.
func (h *Hub) handleLogin(c *Client, payload []byte) {
	var req credentials
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgLoginResp, "Malformed request")
		return
	}
	if req.Role == "" {
		req.Role = store.RolePlayer
	}
	if !store.ValidRole(req.Role) {
		h.replyError(c, protocol.MsgLoginResp, "Invalid role")
		return
	}

	if err := h.users.Authenticate(req.Role, req.Username, req.Password); err != nil {
		slog.Info("login failed", "conn", c.id, "role", req.Role, "username", req.Username, "client", c.ip)
		h.replyError(c, protocol.MsgLoginResp, "Invalid credentials")
		return
	}

	h.bindSession(c, req.Role, req.Username)
	slog.Info("login", "conn", c.id, "role", req.Role, "username", req.Username, "client", c.ip)
	h.reply(c, protocol.MsgLoginResp, statusResp{Status: "ok", Msg: "Success"})
}

// bindSession installs the (role, username) → connection mapping, evicting
// any prior holder and releasing any prior binding this connection held.
func (h *Hub) bindSession(c *Client, role, username string) {
	key := sessionKey{role: role, username: username}

	// Re-login on the same connection under a different account.
	if c.Authenticated() {
		oldKey := sessionKey{role: c.role, username: c.username}
		if oldKey != key && h.sessions[oldKey] == c {
			delete(h.sessions, oldKey)
			if c.role == store.RolePlayer {
				h.leaveRoom(c.username)
			}
		}
	}

	if old := h.sessions[key]; old != nil && old != c {
		slog.Info("duplicate login, evicting old session",
			"role", role, "username", username, "old_conn", old.id, "conn", c.id)
		h.reply(old, protocol.MsgForceLogout, map[string]string{"msg": "Logged in from another location"})
		// Release the key before the old socket goes away so a later
		// disconnect of the evicted connection cannot unbind the new session.
		old.role, old.username = "", ""
	}

	h.sessions[key] = c
	c.role, c.username = role, username
}

// handleRegister creates a new account in the chosen role.
func (h *Hub) handleRegister(c *Client, payload []byte) {
	var req credentials
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgRegisterResp, "Malformed request")
		return
	}
	if req.Role == "" {
		req.Role = store.RolePlayer
	}

	if err := h.users.Register(req.Role, req.Username, req.Password); err != nil {
		h.replyError(c, protocol.MsgRegisterResp, registerErrorMsg(err))
		return
	}

	slog.Info("registered", "role", req.Role, "username", req.Username, "client", c.ip)
	h.reply(c, protocol.MsgRegisterResp, statusResp{Status: "ok", Msg: "Registered"})
}

func registerErrorMsg(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidRole):
		return "Invalid role"
	case errors.Is(err, store.ErrEmptyUsername):
		return "Empty username"
	case errors.Is(err, store.ErrUsernameTaken):
		return "Username already taken"
	default:
		return "Registration failed"
	}
}
