package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// registryPath returns the path to the "known spaces" registry file,
// mirroring the teacher's history-file convention (cmd/sloty's
// historyFile): a dotfile under the user's home directory.
func registryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".tuplespace_known")
}

// loadRegistry reads the set of space names the CLI has previously
// opened (created or attached). A missing file is not an error.
func loadRegistry() ([]string, error) {
	path := registryPath()
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}

	return names, nil
}

// rememberSpace adds name to the registry, writing it back atomically via
// rename so a concurrent reader never observes a partial file - the same
// durability property the teacher's ticket store gets from the same
// package (lock.go, cache_binary.go).
func rememberSpace(name string) error {
	path := registryPath()
	if path == "" {
		return nil
	}

	names, err := loadRegistry()
	if err != nil {
		return err
	}

	for _, n := range names {
		if n == name {
			return nil
		}
	}

	names = append(names, name)
	sort.Strings(names)

	encoded, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	return atomic.WriteFile(path, strings.NewReader(string(encoded)))
}
