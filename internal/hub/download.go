package hub

import (
	"io"
	"log/slog"
	"os"

	"github.com/udisondev/gamehub/internal/protocol"
)

// handleDownload answers with the archive metadata for the latest version
// and hands the transfer to a streaming goroutine. The init frame is queued
// before the worker starts, so the per-connection send queue guarantees it
// reaches the client ahead of any data chunk.
func (h *Hub) handleDownload(c *Client, payload []byte) {
	var req struct {
		GameName string `json:"game_name"`
	}
	if err := protocol.DecodeJSON(payload, &req); err != nil {
		h.replyError(c, protocol.MsgDownloadInit, "Malformed request")
		return
	}

	game, ok := h.catalog.Get(req.GameName)
	if !ok {
		h.replyError(c, protocol.MsgDownloadInit, "Game not found")
		return
	}
	version, ok := game.Versions[game.LatestVersion]
	if !ok {
		h.replyError(c, protocol.MsgDownloadInit, "File missing")
		return
	}

	info, err := os.Stat(version.ArchivePath)
	if err != nil {
		slog.Warn("archive missing on disk", "game", game.Name, "path", version.ArchivePath, "error", err)
		h.replyError(c, protocol.MsgDownloadInit, "File missing")
		return
	}

	// One stream per connection; interleaved DOWNLOAD_DATA from two files
	// would corrupt both transfers.
	if !c.downloading.CompareAndSwap(false, true) {
		h.replyError(c, protocol.MsgDownloadInit, "Download already in progress")
		return
	}

	h.reply(c, protocol.MsgDownloadInit, map[string]any{
		"status":    "ok",
		"size":      info.Size(),
		"checksum":  version.Checksum,
		"version":   game.LatestVersion,
		"game_name": game.Name,
	})

	slog.Info("download started", "game", game.Name, "version", game.LatestVersion,
		"size", info.Size(), "username", c.username)
	go h.streamArchive(c, version.ArchivePath)
}

// streamArchive pushes the file through the connection's send queue in
// config-sized chunks. SendSync blocks when the queue is full, so a slow
// client throttles the read loop instead of ballooning memory; the write
// pump's socket deadline bounds a dead one.
func (h *Hub) streamArchive(c *Client, path string) {
	defer c.downloading.Store(false)

	f, err := os.Open(path)
	if err != nil {
		slog.Error("opening archive for download", "path", path, "error", err)
		c.CloseAsync()
		return
	}
	defer f.Close()

	buf := make([]byte, h.cfg.ChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			frame := protocol.Encode(protocol.MsgDownloadData, buf[:n])
			if sendErr := c.SendSync(frame, 0); sendErr != nil {
				slog.Warn("download aborted", "path", path, "error", sendErr)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Error("reading archive", "path", path, "error", err)
			c.CloseAsync()
			return
		}
	}

	end, err := protocol.EncodeJSON(protocol.MsgDownloadEnd, map[string]any{})
	if err != nil {
		slog.Error("encoding download end", "error", err)
		return
	}
	if err := c.SendSync(end, 0); err != nil {
		slog.Warn("download end not delivered", "path", path, "error", err)
	}
}
