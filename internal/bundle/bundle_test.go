package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestArchive builds a ZIP on disk from name→content pairs and returns
// its path.
func writeTestArchive(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "game_archive.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

const testManifest = `{
	"name": "RPS",
	"version": "1.0",
	"description": "Rock paper scissors",
	"type": "cli",
	"min_players": 2,
	"max_players": 2,
	"execution": {
		"server_cmd": ["python3", "server.py"],
		"client_cmd": ["python3", "client.py"],
		"args_format": {"connect_ip": "--ip", "connect_port": "--port"}
	}
}`

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	content := []byte("hello archive")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum := md5.Sum(content)
	got, err := ChecksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestChecksumFileMissing(t *testing.T) {
	_, err := ChecksumFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestExtractAndLoadManifest(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"manifest.json":  testManifest,
		"server.py":      "print('serve')",
		"assets/art.txt": "ascii art",
	})

	dest := filepath.Join(t.TempDir(), "run_env_1")
	require.NoError(t, Extract(archive, dest))

	m, err := LoadManifest(dest)
	require.NoError(t, err)
	assert.Equal(t, "RPS", m.Name)
	assert.Equal(t, "1.0", m.Version)
	assert.Equal(t, []string{"python3", "server.py"}, m.Execution.ServerCmd)
	assert.Equal(t, "--port", m.Execution.ArgsFormat.ConnectPort)

	data, err := os.ReadFile(filepath.Join(dest, "assets", "art.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ascii art", string(data))
}

func TestExtractWipesPreviousRun(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{"manifest.json": testManifest})

	dest := filepath.Join(t.TempDir(), "run_env_1")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	stale := filepath.Join(dest, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	require.NoError(t, Extract(archive, dest))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"../evil.txt": "escape",
	})

	err := Extract(archive, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction dir")
}

func TestLoadManifestMissingServerCmd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "manifest.json"),
		[]byte(`{"name":"X","version":"1.0","execution":{}}`), 0o644))

	_, err := LoadManifest(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_cmd")
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	assert.Error(t, err)
}
