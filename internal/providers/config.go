package providers

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// MergeConfig overlays override on base into a new map. Override wins.
func MergeConfig(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// decodeConfig copies the loose config map into a typed struct.
func decodeConfig(raw map[string]any, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ConfigError{Err: errors.New("missing " + strings.Join(missing, ", "))}
}
