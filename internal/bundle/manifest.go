package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFileName is the required file at the root of every game archive.
const ManifestFileName = "manifest.json"

// Execution describes how to launch the bundled server and client binaries.
type Execution struct {
	ServerCmd  []string   `json:"server_cmd"`
	ClientCmd  []string   `json:"client_cmd"`
	ArgsFormat ArgsFormat `json:"args_format"`
}

// ArgsFormat names the flags the client command expects for the connection
// endpoint. The hub never uses these itself; they ride along for clients.
type ArgsFormat struct {
	ConnectIP   string `json:"connect_ip"`
	ConnectPort string `json:"connect_port"`
}

// Manifest is the bundle descriptor found in manifest.json.
type Manifest struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Kind        string    `json:"type"`
	MinPlayers  int       `json:"min_players"`
	MaxPlayers  int       `json:"max_players"`
	Execution   Execution `json:"execution"`
}

// LoadManifest reads and validates the manifest inside an extracted bundle
// directory.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if len(m.Execution.ServerCmd) == 0 {
		return nil, fmt.Errorf("manifest %s: missing execution.server_cmd", path)
	}

	return &m, nil
}
