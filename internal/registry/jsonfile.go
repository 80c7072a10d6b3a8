package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// readJSONFile decodes a JSON array file, returning nil (not an error) if
// the file doesn't exist yet.
func readJSONFile(path string) ([]StickerEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []StickerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}

// writeJSONFile overwrites path with entries, pretty-printed.
func writeJSONFile(path string, entries []StickerEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
