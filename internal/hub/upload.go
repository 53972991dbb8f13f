package hub

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

const (
	archiveFileName = "game_archive.zip"
	archiveTempName = archiveFileName + ".tmp"
)

// uploadState is one in-flight archive transfer, keyed by connection. A
// connection carries at most one.
type uploadState struct {
	file      *os.File
	tmpPath   string
	finalPath string
	meta      store.UploadMeta
}

// handleUploadInit opens the temp file and acks readiness. Only developers
// may upload; name and version are used as path elements and must not
// escape the upload root.
func (h *Hub) handleUploadInit(c *Client, payload []byte) {
	if !h.requireRole(c, store.RoleDeveloper, protocol.MsgUploadInit, "Permission denied") {
		return
	}

	var meta store.UploadMeta
	if err := protocol.DecodeJSON(payload, &meta); err != nil {
		h.replyError(c, protocol.MsgUploadInit, "Malformed request")
		return
	}
	if !safePathElement(meta.Name) || !safePathElement(meta.Version) {
		h.replyError(c, protocol.MsgUploadInit, "Invalid game name or version")
		return
	}

	// A new init replaces any transfer this connection had open.
	h.discardUpload(c)

	dir := filepath.Join(h.cfg.UploadRoot, meta.Name, meta.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("creating upload dir", "dir", dir, "error", err)
		h.replyError(c, protocol.MsgUploadInit, "Server storage error")
		return
	}

	tmpPath := filepath.Join(dir, archiveTempName)
	file, err := os.Create(tmpPath)
	if err != nil {
		slog.Error("creating upload temp file", "path", tmpPath, "error", err)
		h.replyError(c, protocol.MsgUploadInit, "Server storage error")
		return
	}

	h.uploads[c] = &uploadState{
		file:      file,
		tmpPath:   tmpPath,
		finalPath: filepath.Join(dir, archiveFileName),
		meta:      meta,
	}

	slog.Info("upload started", "game", meta.Name, "version", meta.Version, "size", meta.Size, "developer", c.username)
	h.reply(c, protocol.MsgUploadInit, statusResp{Status: "ready"})
}

// handleUploadData appends one raw chunk. Data without a preceding init is
// ignored; a write failure aborts the transfer and drops the connection.
func (h *Hub) handleUploadData(c *Client, payload []byte) {
	up, ok := h.uploads[c]
	if !ok {
		return
	}
	if _, err := up.file.Write(payload); err != nil {
		slog.Error("writing upload chunk", "path", up.tmpPath, "error", err)
		h.disconnect(c)
	}
}

// handleUploadEnd verifies the MD5 checksum, promotes the temp file, and
// commits the catalogue entry. A mismatch discards the temp file; an
// ownership conflict keeps the already-promoted archive but leaves the
// catalogue untouched.
func (h *Hub) handleUploadEnd(c *Client, _ []byte) {
	up, ok := h.uploads[c]
	if !ok {
		return
	}
	delete(h.uploads, c)

	if err := up.file.Close(); err != nil {
		slog.Error("closing upload temp file", "path", up.tmpPath, "error", err)
	}

	sum, err := bundle.ChecksumFile(up.tmpPath)
	if err != nil {
		_ = os.Remove(up.tmpPath)
		slog.Error("hashing upload", "path", up.tmpPath, "error", err)
		h.replyError(c, protocol.MsgUploadEnd, "Server storage error")
		return
	}
	if sum != up.meta.Checksum {
		_ = os.Remove(up.tmpPath)
		slog.Warn("upload checksum mismatch", "game", up.meta.Name, "version", up.meta.Version,
			"want", up.meta.Checksum, "got", sum)
		h.replyError(c, protocol.MsgUploadEnd, "Checksum mismatch")
		return
	}

	if err := os.Rename(up.tmpPath, up.finalPath); err != nil {
		slog.Error("promoting upload", "path", up.finalPath, "error", err)
		h.replyError(c, protocol.MsgUploadEnd, "Server storage error")
		return
	}

	if _, err := h.catalog.CommitUpload(c.username, up.meta, up.finalPath); err != nil {
		slog.Warn("upload rejected by catalogue", "game", up.meta.Name, "developer", c.username, "error", err)
		h.replyError(c, protocol.MsgUploadEnd, "Permission denied: You do not own this game")
		return
	}

	slog.Info("upload committed", "game", up.meta.Name, "version", up.meta.Version, "developer", c.username)
	h.reply(c, protocol.MsgUploadEnd, statusResp{Status: "ok"})
}

// discardUpload aborts any transfer held by c, removing the partial temp
// file. Called on re-init and on disconnect.
func (h *Hub) discardUpload(c *Client) {
	up, ok := h.uploads[c]
	if !ok {
		return
	}
	delete(h.uploads, c)
	_ = up.file.Close()
	if err := os.Remove(up.tmpPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing abandoned upload", "path", up.tmpPath, "error", err)
	}
	slog.Info("upload discarded", "game", up.meta.Name, "version", up.meta.Version)
}

// safePathElement rejects values that could escape the upload root when
// joined as a path component.
func safePathElement(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, "/\\") {
		return false
	}
	return true
}
