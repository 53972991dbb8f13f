package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeSnapshot writes v as indented JSON to path via write-to-temp-then-rename.
// The live file is never truncated in place, so a crash mid-write leaves the
// previous snapshot intact.
func writeSnapshot(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot dir %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing snapshot %s: %w", path, err)
	}
	return nil
}

// readSnapshot loads JSON from path into v. A missing file is not an error;
// v is left untouched and false is returned.
func readSnapshot(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return true, nil
}
