// Package category translates between Splitter and ledger category taxonomies using
// a user-supplied name table.
package category

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"splitsync/internal/log"
)

// ErrShape is returned when the mapping file is not a flat object.
var ErrShape = errors.New("category mapping must be an object")

// Entry maps a Splitter category name ("Group/Name" or "Name") to a ledger category
// name.
type Entry struct {
	External string
	Local    string
}

// Mapping is the ordered name table. Lookups in the reverse direction scan entries in
// declaration order, so the first declared entry wins.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// NewMapping builds a mapping from entries. A repeated external name keeps its first
// position and takes the last value.
func NewMapping(entries ...Entry) *Mapping {
	m := &Mapping{index: make(map[string]int)}
	for _, e := range entries {
		m.set(e.External, e.Local)
	}
	return m
}

func (m *Mapping) set(external, local string) {
	if i, ok := m.index[external]; ok {
		m.entries[i].Local = local
		return
	}
	m.index[external] = len(m.entries)
	m.entries = append(m.entries, Entry{External: external, Local: local})
}

// Lookup returns the ledger name for an external name.
func (m *Mapping) Lookup(external string) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.index[external]
	if !ok {
		return "", false
	}
	return m.entries[i].Local, true
}

// FirstFor returns the first external name declared for local.
func (m *Mapping) FirstFor(local string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.entries {
		if e.Local == local {
			return e.External, true
		}
	}
	return "", false
}

// Entries returns a copy of the entries in declaration order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// LoadMapping reads the mapping at path. It never fails: a missing file gives an empty
// mapping, and an unreadable or malformed one gives an empty mapping plus an error log.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON.
func LoadMapping(path string, logger *log.Logger) *Mapping {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentCategory)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("No category mapping file", "path", path)
		return NewMapping()
	}
	if err != nil {
		logger.Error("Failed to read category mapping file", "path", path, log.FieldError, err)
		return NewMapping()
	}

	var m *Mapping
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = ParseYAML(data, logger)
	default:
		m, err = ParseJSON(bytes.NewReader(data), logger)
	}
	if err != nil {
		logger.Error("Failed to parse category mapping file", "path", path, log.FieldError, err)
		return NewMapping()
	}
	return m
}

// ParseJSON decodes a flat JSON object keeping key order. Entries whose value is not a
// string are skipped with a warning.
func ParseJSON(r io.Reader, logger *log.Logger) (*Mapping, error) {
	if logger == nil {
		logger = log.Discard()
	}
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w, got %v", ErrShape, describeJSON(tok))
	}

	m := NewMapping()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode mapping key: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode mapping value for %q: %w", key, err)
		}
		var value string
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &value) != nil {
			logger.Warn("Skipping invalid category mapping, values must be strings",
				"key", key, "value", string(raw))
			continue
		}
		m.set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode mapping end: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode mapping: trailing data after object")
	}
	return m, nil
}

// ParseYAML decodes a flat YAML mapping keeping key order, with the same rules as
// ParseJSON. An empty document is an empty mapping.
func ParseYAML(data []byte, logger *log.Logger) (*Mapping, error) {
	if logger == nil {
		logger = log.Discard()
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewMapping(), nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w, got %s", ErrShape, root.ShortTag())
	}

	m := NewMapping()
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if !isString(key) || !isString(value) {
			logger.Warn("Skipping invalid category mapping, keys and values must be strings",
				"key", key.Value, "value", value.Value)
			continue
		}
		m.set(key.Value, value.Value)
	}
	return m, nil
}

func isString(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}

func describeJSON(tok json.Token) string {
	switch v := tok.(type) {
	case json.Delim:
		if v == '[' {
			return "array"
		}
		return string(v)
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
