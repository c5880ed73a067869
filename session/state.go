package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// MirrorState writes a human-inspectable JSON snapshot of serialized agent
// state, overwriting the previous one. JSON state is re-indented; a
// legacy/opaque blob becomes a placeholder marker rather than an error, so
// snapshots stay readable across schema generations. Empty state is a no-op.
func (s *Store) MirrorState(sessionID string, stateBytes []byte) error {
	if len(stateBytes) == 0 {
		return nil
	}

	path := filepath.Join(s.baseDir, "state", sessionID+".json")

	var parsed any
	if err := json.Unmarshal(stateBytes, &parsed); err != nil {
		placeholder := map[string]string{
			"format": "opaque",
			"note":   "Legacy format, not inspectable",
		}
		b, _ := json.MarshalIndent(placeholder, "", "  ")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("write state placeholder: %w", err)
		}
		log.Printf("[SESSION] Mirrored opaque-state placeholder for %s", sessionID)
		return nil
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(parsed); err != nil {
		return fmt.Errorf("re-encode state: %w", err)
	}
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write state snapshot: %w", err)
	}
	return nil
}

// ReadState returns the mirrored snapshot, or nil when none exists.
func (s *Store) ReadState(sessionID string) (map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(s.baseDir, "state", sessionID+".json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state snapshot: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, fmt.Errorf("parse state snapshot: %w", err)
	}
	return state, nil
}
