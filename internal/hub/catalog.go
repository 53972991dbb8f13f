package hub

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// gameSummary is the per-game shape GAME_LIST returns.
type gameSummary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
	Owner      string `json:"owner"`
}

func (h *Hub) handleGameList(c *Client, _ []byte) {
	games := h.catalog.List()
	summaries := make([]gameSummary, 0, len(games))
	for _, g := range games {
		summaries = append(summaries, gameSummary{
			ID:         g.ID,
			Name:       g.Name,
			Version:    g.LatestVersion,
			MinPlayers: g.MinPlayers,
			MaxPlayers: g.MaxPlayers,
			Owner:      g.Owner,
		})
	}
	h.reply(c, protocol.MsgGameListResp, map[string]any{"status": "ok", "games": summaries})
}

// handleGameDetail returns the full store-page view of one game, including
// the rolling average score, the five most recent reviews, and whether the
// requesting player has finished a session of it.
func (h *Hub) handleGameDetail(c *Client, payload []byte) {
	var req struct {
		GameName string `json:"game_name"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgGameDetailResp, "Malformed request")
		return
	}

	game, ok := h.catalog.Get(req.GameName)
	if !ok {
		h.replyError(c, protocol.MsgGameDetailResp, "Game not found")
		return
	}

	h.reply(c, protocol.MsgGameDetailResp, map[string]any{
		"status":      "ok",
		"name":        game.Name,
		"version":     game.LatestVersion,
		"owner":       game.Owner,
		"description": game.Description,
		"type":        game.Kind,
		"min_players": game.MinPlayers,
		"max_players": game.MaxPlayers,
		"avg_score":   game.AverageScore(),
		"reviews":     game.RecentReviews(5),
		"has_played":  game.HasPlayed(c.username),
	})
}

// handleGameRate records a review. Rating is gated on play history; the
// catalogue clamps the score.
func (h *Hub) handleGameRate(c *Client, payload []byte) {
	if !h.requireRole(c, store.RolePlayer, protocol.MsgGameRateResp, "Only players can rate") {
		return
	}

	var req struct {
		GameName string `json:"game_name"`
		Score    int    `json:"score"`
		Comment  string `json:"comment"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgGameRateResp, "Malformed request")
		return
	}

	if err := h.catalog.AddReview(req.GameName, c.username, req.Score, req.Comment); err != nil {
		switch {
		case errors.Is(err, store.ErrGameNotFound):
			h.replyError(c, protocol.MsgGameRateResp, "Game not found")
		case errors.Is(err, store.ErrNotPlayed):
			slog.Info("rate denied, no play history", "game", req.GameName, "username", c.username)
			h.replyError(c, protocol.MsgGameRateResp, "You must play this game first!")
		default:
			h.replyError(c, protocol.MsgGameRateResp, "Rating failed")
		}
		return
	}

	h.reply(c, protocol.MsgGameRateResp, statusResp{Status: "ok", Msg: "Review added"})
}

// handleDevMyGames lists the developer's own catalogue entries. Non-developer
// frames are ignored, matching the hub's treatment of role-mismatched
// queries.
func (h *Hub) handleDevMyGames(c *Client, _ []byte) {
	if c.role != store.RoleDeveloper {
		return
	}

	type ownedGame struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		ID      int    `json:"id"`
	}

	games := h.catalog.OwnedBy(c.username)
	owned := make([]ownedGame, 0, len(games))
	for _, g := range games {
		owned = append(owned, ownedGame{Name: g.Name, Version: g.LatestVersion, ID: g.ID})
	}
	h.reply(c, protocol.MsgDevMyGamesResp, map[string]any{"games": owned})
}

// handleGameRemove delists a game. Blocked while any room references it so
// running and forming sessions keep a consistent view; archives on disk
// survive delisting.
func (h *Hub) handleGameRemove(c *Client, payload []byte) {
	if !h.requireRole(c, store.RoleDeveloper, protocol.MsgGameRemoveResp, "Permission denied") {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgGameRemoveResp, "Malformed request")
		return
	}

	game, ok := h.catalog.Get(req.Name)
	if !ok {
		h.replyError(c, protocol.MsgGameRemoveResp, "Not found")
		return
	}
	if game.Owner != c.username {
		h.replyError(c, protocol.MsgGameRemoveResp, "You do not own this game")
		return
	}

	if n := h.roomsUsing(game.ID); n > 0 {
		h.replyError(c, protocol.MsgGameRemoveResp,
			fmt.Sprintf("Cannot remove: Game is active in %d room(s).", n))
		return
	}

	if err := h.catalog.Remove(req.Name, c.username); err != nil {
		h.replyError(c, protocol.MsgGameRemoveResp, "Not found")
		return
	}

	slog.Info("game removed", "game", req.Name, "developer", c.username)
	h.reply(c, protocol.MsgGameRemoveResp, statusResp{Status: "ok", Msg: "Game removed from store."})
}

func (h *Hub) roomsUsing(gameID int) int {
	n := 0
	for _, room := range h.rooms {
		if room.GameID == gameID {
			n++
		}
	}
	return n
}
