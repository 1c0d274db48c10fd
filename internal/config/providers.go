package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ProviderFile is the on-disk base configuration for provider adapters:
//
//	[providers."万能题库"]
//	token = "..."
type ProviderFile struct {
	Providers map[string]map[string]any `toml:"providers"`
}

// LoadProviderFile reads path. A missing file yields an empty set.
func LoadProviderFile(path string) (*ProviderFile, error) {
	pf := &ProviderFile{Providers: map[string]map[string]any{}}
	if path == "" {
		return pf, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return pf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	if err := toml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", path, err)
	}
	if pf.Providers == nil {
		pf.Providers = map[string]map[string]any{}
	}
	return pf, nil
}

// BaseConfigs returns the persisted base configs, seeding the LLM sources from
// env keys when the file does not configure them.
func (c *Config) BaseConfigs(pf *ProviderFile) map[string]map[string]any {
	out := make(map[string]map[string]any, len(pf.Providers)+3)
	for name, cfg := range pf.Providers {
		cp := make(map[string]any, len(cfg))
		for k, v := range cfg {
			cp[k] = v
		}
		out[name] = cp
	}
	seed := func(name, key, model string) {
		if key == "" {
			return
		}
		cfg, ok := out[name]
		if !ok {
			cfg = map[string]any{}
			out[name] = cfg
		}
		if _, ok := cfg["key"]; !ok {
			cfg["key"] = key
		}
		if _, ok := cfg["model"]; !ok && model != "" {
			cfg["model"] = model
		}
	}
	seed("OPENAI", c.OpenAIKey, c.OpenAIModel)
	seed("CLAUDE", c.AnthropicKey, c.AnthropicModel)
	seed("GEMINI", c.GeminiKey, c.GeminiModel)
	return out
}
