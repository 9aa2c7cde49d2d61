// Package dotenv reads and writes KEY=VALUE files and merges environments.
package dotenv

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileName is the env file written into each session directory.
const FileName = ".env"

// Read parses a .env file. Blank lines and lines starting with # are
// skipped; each remaining line is split on its first '='. Keys are trimmed,
// values are kept verbatim.
func Read(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimLeft(scanner.Text(), " \t")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(key)] = value
	}

	return env, scanner.Err()
}

// Write replaces path with env, one KEY=VALUE line per key in sorted order.
func Write(path string, env map[string]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := bufio.NewWriter(file)
	for _, k := range sortedKeys(env) {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, env[k]); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return file.Close()
}

// Merge writes env into path, keeping existing keys that env does not set.
func Merge(path string, env map[string]string) error {
	merged, err := Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		merged = make(map[string]string, len(env))
	}

	for k, v := range env {
		merged[k] = v
	}

	return Write(path, merged)
}

// Overlay returns base (in os.Environ form) with env applied on top. Keys
// from env replace inherited values; other inherited entries keep their
// order.
func Overlay(base []string, env map[string]string) []string {
	out := make([]string, 0, len(base)+len(env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := env[key]; override {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range sortedKeys(env) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Lines formats env as sorted KEY=VALUE strings.
func Lines(env map[string]string) []string {
	lines := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		lines = append(lines, k+"="+env[k])
	}
	return lines
}

func sortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
