package hub

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// uploadArchive drives the full INIT/DATA/END sequence for raw archive bytes.
func (c *testConn) uploadArchive(name, version string, data []byte) map[string]any {
	c.t.Helper()

	sum := md5.Sum(data)
	c.send(protocol.MsgUploadInit, map[string]any{
		"name":        name,
		"version":     version,
		"size":        len(data),
		"checksum":    hex.EncodeToString(sum[:]),
		"description": "test game",
		"type":        "CLI",
		"min_players": 1,
		"max_players": 4,
	})
	body := c.expect(protocol.MsgUploadInit)
	require.Equal(c.t, "ready", body["status"])

	for off := 0; off < len(data); off += 32 {
		end := min(off+32, len(data))
		c.sendRaw(protocol.MsgUploadData, data[off:end])
	}

	c.send(protocol.MsgUploadEnd, map[string]any{})
	return c.expect(protocol.MsgUploadEnd)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	dev := srv.dial()
	dev.register(store.RoleDeveloper, "dev", "pw")
	dev.login(store.RoleDeveloper, "dev", "pw")

	archive := bytes.Repeat([]byte("gamehub archive payload "), 20)
	body := dev.uploadArchive("chess", "1.0", archive)
	require.Equal(t, "ok", body["status"])

	// The catalogue entry is immediately visible.
	dev.send(protocol.MsgGameListReq, map[string]any{})
	body = dev.expect(protocol.MsgGameListResp)
	games := body["games"].([]any)
	require.Len(t, games, 1)
	entry := games[0].(map[string]any)
	require.Equal(t, "chess", entry["name"])
	require.Equal(t, "1.0", entry["version"])
	require.Equal(t, "dev", entry["owner"])

	player := srv.dial()
	player.register(store.RolePlayer, "alice", "pw")
	player.login(store.RolePlayer, "alice", "pw")

	player.send(protocol.MsgDownloadReq, map[string]string{"game_name": "chess"})
	body = player.expect(protocol.MsgDownloadInit)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(len(archive)), body["size"])

	sum := md5.Sum(archive)
	require.Equal(t, hex.EncodeToString(sum[:]), body["checksum"])

	var got []byte
	for {
		msgType, payload := player.recv()
		if msgType == protocol.MsgDownloadEnd {
			break
		}
		require.Equal(t, byte(protocol.MsgDownloadData), msgType)
		require.LessOrEqual(t, len(payload), srv.cfg.ChunkSize)
		got = append(got, payload...)
	}
	require.Equal(t, archive, got)
}

func TestDownloadSecondRequestRefused(t *testing.T) {
	srv := newTestServer(t)

	dev := srv.dial()
	dev.register(store.RoleDeveloper, "dev", "pw")
	dev.login(store.RoleDeveloper, "dev", "pw")

	// Large enough that the first stream is still in flight when the second
	// request reaches the hub.
	archive := bytes.Repeat([]byte("archive block 0123456789abcdef "), 8192)
	body := dev.uploadArchive("chess", "1.0", archive)
	require.Equal(t, "ok", body["status"])

	player := srv.dial()
	player.register(store.RolePlayer, "alice", "pw")
	player.login(store.RolePlayer, "alice", "pw")

	player.send(protocol.MsgDownloadReq, map[string]string{"game_name": "chess"})
	player.send(protocol.MsgDownloadReq, map[string]string{"game_name": "chess"})

	body = player.expect(protocol.MsgDownloadInit)
	require.Equal(t, "ok", body["status"])

	// The refusal for the second request interleaves with the first stream's
	// data chunks; exactly one stream's worth of bytes must arrive.
	var got []byte
	refused := false
collect:
	for {
		msgType, payload := player.recv()
		switch msgType {
		case protocol.MsgDownloadData:
			got = append(got, payload...)
		case protocol.MsgDownloadInit:
			var resp map[string]any
			require.NoError(t, protocol.DecodeJSON(payload, &resp))
			require.Equal(t, "error", resp["status"])
			require.Equal(t, "Download already in progress", resp["msg"])
			refused = true
		case protocol.MsgDownloadEnd:
			break collect
		default:
			t.Fatalf("unexpected message type %d", msgType)
		}
	}
	require.True(t, refused)
	require.Equal(t, archive, got)
}

func TestUploadChecksumMismatchDiscardsArchive(t *testing.T) {
	srv := newTestServer(t)

	dev := srv.dial()
	dev.register(store.RoleDeveloper, "dev", "pw")
	dev.login(store.RoleDeveloper, "dev", "pw")

	dev.send(protocol.MsgUploadInit, map[string]any{
		"name": "chess", "version": "1.0", "size": 4, "checksum": "deadbeef",
	})
	body := dev.expect(protocol.MsgUploadInit)
	require.Equal(t, "ready", body["status"])

	dev.sendRaw(protocol.MsgUploadData, []byte("data"))
	dev.send(protocol.MsgUploadEnd, map[string]any{})
	body = dev.expect(protocol.MsgUploadEnd)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "Checksum mismatch", body["msg"])

	// No catalogue entry and no files left behind.
	_, ok := srv.catalog.Get("chess")
	require.False(t, ok)
	dir := filepath.Join(srv.cfg.UploadRoot, "chess", "1.0")
	_, err := os.Stat(filepath.Join(dir, archiveTempName))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, archiveFileName))
	require.True(t, os.IsNotExist(err))
}

func TestUploadRequiresDeveloper(t *testing.T) {
	srv := newTestServer(t)

	player := srv.dial()
	player.register(store.RolePlayer, "alice", "pw")
	player.login(store.RolePlayer, "alice", "pw")

	player.send(protocol.MsgUploadInit, map[string]any{"name": "chess", "version": "1.0"})
	body := player.expect(protocol.MsgUploadInit)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "Permission denied", body["msg"])
}

func TestUploadRejectsUnsafeNames(t *testing.T) {
	srv := newTestServer(t)

	dev := srv.dial()
	dev.register(store.RoleDeveloper, "dev", "pw")
	dev.login(store.RoleDeveloper, "dev", "pw")

	for _, name := range []string{"../escape", "a/b", "..", ""} {
		dev.send(protocol.MsgUploadInit, map[string]any{"name": name, "version": "1.0"})
		body := dev.expect(protocol.MsgUploadInit)
		require.Equal(t, "error", body["status"], "name %q", name)
	}
}

func TestReUploadKeepsOwnership(t *testing.T) {
	srv := newTestServer(t)

	dev := srv.dial()
	dev.register(store.RoleDeveloper, "dev", "pw")
	dev.login(store.RoleDeveloper, "dev", "pw")
	body := dev.uploadArchive("chess", "1.0", []byte("version one"))
	require.Equal(t, "ok", body["status"])

	rival := srv.dial()
	rival.register(store.RoleDeveloper, "rival", "pw")
	rival.login(store.RoleDeveloper, "rival", "pw")
	body = rival.uploadArchive("chess", "2.0", []byte("hostile takeover"))
	require.Equal(t, "error", body["status"])
	require.Equal(t, "Permission denied: You do not own this game", body["msg"])

	game, ok := srv.catalog.Get("chess")
	require.True(t, ok)
	require.Equal(t, "dev", game.Owner)
	require.Equal(t, "1.0", game.LatestVersion)

	// The rightful owner can publish a new version.
	body = dev.uploadArchive("chess", "2.0", []byte("version two"))
	require.Equal(t, "ok", body["status"])
	game, _ = srv.catalog.Get("chess")
	require.Equal(t, "2.0", game.LatestVersion)
	require.Len(t, game.Versions, 2)
}

// buildLaunchableArchive produces a zip holding a manifest and a shell script
// the supervisor can actually exec.
func buildLaunchableArchive(t *testing.T, name string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := `{
  "name": "` + name + `",
  "version": "1.0",
  "type": "CLI",
  "min_players": 1,
  "max_players": 4,
  "execution": {
    "server_cmd": ["sh", "server.sh"],
    "client_cmd": ["sh", "client.sh"],
    "args_format": {"connect_ip": "--ip", "connect_port": "--port"}
  }
}`
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(manifest))
	require.NoError(t, err)

	w, err = zw.Create("server.sh")
	require.NoError(t, err)
	_, err = w.Write([]byte("#!/bin/sh\nsleep 30\n"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestGameLaunchFlow(t *testing.T) {
	srv := newTestServer(t)

	dev := srv.dial()
	dev.register(store.RoleDeveloper, "dev", "pw")
	dev.login(store.RoleDeveloper, "dev", "pw")
	body := dev.uploadArchive("solo", "1.0", buildLaunchableArchive(t, "solo"))
	require.Equal(t, "ok", body["status"])

	game, ok := srv.catalog.Get("solo")
	require.True(t, ok)

	player := srv.dial()
	player.register(store.RolePlayer, "alice", "pw")
	player.login(store.RolePlayer, "alice", "pw")

	player.send(protocol.MsgRoomCreateReq, map[string]any{"game_id": game.ID})
	body = player.expect(protocol.MsgRoomCreateResp)
	require.Equal(t, "ok", body["status"])
	roomID := int(body["room"].(map[string]any)["id"].(float64))

	player.send(protocol.MsgGameStartCmd, map[string]any{})
	body = player.expect(protocol.MsgReadyCheckReq)
	require.Equal(t, "solo", body["game_name"])

	player.send(protocol.MsgReadyCheckResp, map[string]string{"status": "ok"})

	// Launch flips the room to playing before announcing the endpoint.
	body = player.expect(protocol.MsgRoomStatusUpdate)
	require.Equal(t, "playing", body["room"].(map[string]any)["status"])

	body = player.expect(protocol.MsgGameLaunchEvent)
	require.Equal(t, "127.0.0.1", body["server_ip"])
	require.Equal(t, float64(game.ID), body["game_id"])
	require.Equal(t, "1.0", body["version"])
	require.Greater(t, body["port"].(float64), float64(0))

	// The run environment was unpacked beside the archive.
	extractDir := filepath.Join(srv.cfg.UploadRoot, "solo", "1.0", fmt.Sprintf("run_env_%d", roomID))
	_, err := os.Stat(filepath.Join(extractDir, "manifest.json"))
	require.NoError(t, err)

	// Play history is recorded, unlocking reviews.
	require.Eventually(t, func() bool {
		g, _ := srv.catalog.Get("solo")
		return g.HasPlayed("alice")
	}, 2*time.Second, 50*time.Millisecond)
}
