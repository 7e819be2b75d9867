package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile reads raw target descriptors from a JSON or TOML file. JSON files
// hold either a bare array or {"targets": [...]}; TOML files use [[targets]]
// tables. Non-object entries are skipped.
func LoadFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(data)
	default:
		return decodeJSON(data)
	}
}

func decodeTOML(data []byte) ([]map[string]any, error) {
	var doc struct {
		Targets []map[string]any `toml:"targets"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("decode targets toml: %w", err)
	}
	return doc.Targets, nil
}

func decodeJSON(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)

	var items []any
	if len(data) > 0 && data[0] == '{' {
		var doc struct {
			Targets []any `json:"targets"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode targets json: %w", err)
		}
		if doc.Targets == nil {
			return nil, fmt.Errorf("decode targets json: expected a list or {\"targets\": [...]}")
		}
		items = doc.Targets
	} else if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode targets json: %w", err)
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Load reads and validates a targets file in one step.
func Load(path string, lookupEnv LookupEnv) ([]TargetDescriptor, map[string]error, error) {
	raw, err := LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	targets, invalid := Parse(raw, lookupEnv)
	return targets, invalid, nil
}
