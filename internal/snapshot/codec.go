package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muurk/keytune/internal/errs"
)

// requiredSections are the top-level keys an importable document must carry.
var requiredSections = []string{"system", "light", "keyboards", "macro"}

// requiredKeyFields are the keys every keyboards[] entry must carry.
var requiredKeyFields = []string{"col", "row", "keyValue", "performance", "advancedKeys", "customKeys", "light"}

// Marshal encodes the snapshot as indented JSON with a trailing newline.
func Marshal(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errs.NewParseError("marshal", "failed to encode snapshot", err)
	}
	return append(data, '\n'), nil
}

// Encode writes the snapshot to w.
func Encode(w io.Writer, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal parses a document and checks its shape: every top-level
// section and every per-key field must be present. It does not range-check
// values; see Validate.
func Unmarshal(data []byte) (*Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, errs.NewParseError("decode", "snapshot is not a JSON object", err)
	}
	for _, name := range requiredSections {
		raw, ok := top[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, errs.NewValidationError("decode", fmt.Sprintf("snapshot is missing the %q section", name))
		}
	}

	var keys []map[string]json.RawMessage
	if err := json.Unmarshal(top["keyboards"], &keys); err != nil {
		return nil, errs.NewValidationError("decode", "keyboards must be an array of objects")
	}
	for i, k := range keys {
		for _, field := range requiredKeyFields {
			if _, ok := k[field]; !ok {
				return nil, errs.NewValidationError("decode", fmt.Sprintf("keyboards[%d] is missing %q", i, field))
			}
		}
	}

	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errs.NewParseError("decode", "snapshot has the wrong field types", err)
	}
	if s.Keyboards == nil {
		s.Keyboards = []Key{}
	}
	if s.Macro.List == nil {
		s.Macro.List = []Macro{}
	}
	if s.Macro.V2List == nil {
		s.Macro.V2List = []json.RawMessage{}
	}
	return s, nil
}

// Decode reads and parses a document from r.
func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.NewParseError("decode", "failed to read snapshot", err)
	}
	return Unmarshal(data)
}

// Load reads a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return Unmarshal(data)
}

// Save writes a snapshot file atomically.
func Save(path string, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save snapshot file: %w", err)
	}
	return nil
}
