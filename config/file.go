package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSettingsFile reads a YAML settings file and flattens it into the
// dotted key/value form used by SETTING records. Nested mappings join their
// keys with '.', sequences become comma separated values:
//
//	terrain:
//	  grid_width: 64
//	  layer1: {roughness: 0.5}
//	camera:
//	  position: [0, 0, 120]
//	workgroups:
//	  Engine: [4, 4, 1]
func LoadSettingsFile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	kv, err := ParseSettings(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings from %s: %w", path, err)
	}
	return kv, nil
}

// ParseSettings flattens YAML content as LoadSettingsFile does.
func ParseSettings(content []byte) (map[string]string, error) {
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	kv := make(map[string]string)
	if err := flatten("", data, kv); err != nil {
		return nil, err
	}
	return kv, nil
}

func flatten(prefix string, data map[string]any, out map[string]string) error {
	for key, val := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := val.(type) {
		case map[string]any:
			if err := flatten(full, v, out); err != nil {
				return err
			}
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				s, err := scalar(full, item)
				if err != nil {
					return err
				}
				parts[i] = s
			}
			out[full] = strings.Join(parts, ",")
		default:
			s, err := scalar(full, v)
			if err != nil {
				return err
			}
			out[full] = s
		}
	}
	return nil
}

func scalar(key string, v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: %s has no value", ErrInvalidSetting, key)
	case map[string]any, []any:
		return "", fmt.Errorf("%w: %s: nested value in sequence", ErrInvalidSetting, key)
	default:
		return fmt.Sprint(v), nil
	}
}

// SortedKeys returns the keys of kv in lexical order.
func SortedKeys(kv map[string]string) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
