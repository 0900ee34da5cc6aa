package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Get resolves a dot-notation key (e.g. "validation.min_disk_gb") against
// the JSON-tagged fields of cfg, mirroring original_source/config.py's
// Config.get.
func Get(cfg *Config, key string) (any, error) {
	raw, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	node := any(raw)
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config: %q has no such key", key)
		}
		v, ok := m[part]
		if !ok {
			return nil, fmt.Errorf("config: %q has no such key", key)
		}
		node = v
	}
	return node, nil
}

// Set writes value at a dot-notation key and persists the result. Only
// leaf scalars are settable; value is parsed as JSON if possible (so
// "5", "true", "\"console\"" all work from a CLI string flag), else
// stored as a raw string.
func Set(cfg *Config, key, value string) error {
	raw, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(key, ".")
	node := raw
	for i, part := range parts {
		if i == len(parts)-1 {
			node[part] = parseScalar(value)
			break
		}
		next, ok := node[part].(map[string]any)
		if !ok {
			return fmt.Errorf("config: %q has no such key", key)
		}
		node = next
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	updated := Default(cfg.WorkDir)
	if err := json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("config: value for %q is invalid: %w", key, err)
	}
	*cfg = *updated
	return Save(cfg)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseScalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
