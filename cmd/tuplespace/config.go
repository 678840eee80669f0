package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds CLI defaults loadable from a HuJSON (JSON-with-comments)
// file, mirroring the teacher's config loader (cmd/tk's config.go).
type Config struct {
	Name string `json:"name,omitempty"`
	Size uint32 `json:"size,omitempty"`
}

// loadConfig reads and parses a HuJSON config file. A missing path is not
// an error; it returns the zero Config.
func loadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	return cfg, nil
}
