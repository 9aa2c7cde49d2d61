// Package config loads the project configuration from the marker file at
// the project root.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/thatjpcsguy/lanes/internal/registry"
)

// MarkerFiles are the project config file names in lookup order. The
// directory holding one of them is the project root.
var MarkerFiles = []string{".lanes.yaml", ".lanes.yml", ".lanes.json"}

// LocalFile overlays the project config and is meant to stay out of git.
const LocalFile = ".lanes.local.yaml"

// ErrNoMarker is returned when no marker file exists in the searched tree.
var ErrNoMarker = errors.New("no lanes config found")

const (
	DefaultSessionsDir  = ".lanes"
	DefaultBranchPrefix = "lanes/"
	DefaultComposeFile  = "docker-compose.yml"
)

// Config represents the lanes project configuration
type Config struct {
	// Session layout
	SessionsDir  string        `yaml:"sessions_dir"`
	Mode         registry.Mode `yaml:"mode"`
	ComposeFile  string        `yaml:"compose_file"`
	BranchPrefix string        `yaml:"branch_prefix"`

	// Port settings
	PortBase int      `yaml:"port_base"`
	Ports    PortSpec `yaml:"ports"`

	// Environment templates
	Env  map[string]string `yaml:"env"`
	Apps map[string]App    `yaml:"apps"`

	// Commands run in a new session after its ports are committed
	Setup []string `yaml:"setup"`
	// Commands run in a session before it is destroyed
	Teardown []string `yaml:"teardown"`

	// Root is the directory the config was loaded from.
	Root string `yaml:"-"`
	// Path is the marker file that was loaded.
	Path string `yaml:"-"`
}

// App is a named group of env templates layered over the global env.
type App struct {
	Env map[string]string `yaml:"env"`
}

// FindMarker walks from dir up to the filesystem root and returns the first
// marker file found.
func FindMarker(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range MarkerFiles {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoMarker
		}
		dir = parent
	}
}

// Load reads the marker file in root, then the optional local overlay.
func Load(root string) (*Config, error) {
	var path string
	for _, name := range MarkerFiles {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoMarker, root)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	localPath := filepath.Join(cfg.Root, LocalFile)
	if _, err := os.Stat(localPath); err == nil {
		local, err := parseFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", LocalFile, err)
		}
		cfg.overlay(local)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadFile parses and validates a single config file.
func LoadFile(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML (or JSON) bytes into a Config without defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".json") {
		// JSON with comments and trailing commas
		data = jsonc.ToJSON(data)
	}
	return Parse(data)
}

// overlay merges the local file into c. Maps merge key by key; scalars and
// setup replace when set.
func (c *Config) overlay(local *Config) {
	if local.SessionsDir != "" {
		c.SessionsDir = local.SessionsDir
	}
	if local.Mode != "" {
		c.Mode = local.Mode
	}
	if local.ComposeFile != "" {
		c.ComposeFile = local.ComposeFile
	}
	if local.BranchPrefix != "" {
		c.BranchPrefix = local.BranchPrefix
	}
	if len(local.Setup) > 0 {
		c.Setup = local.Setup
	}
	if len(local.Teardown) > 0 {
		c.Teardown = local.Teardown
	}

	if c.Env == nil {
		c.Env = map[string]string{}
	}
	for k, v := range local.Env {
		c.Env[k] = v
	}

	if c.Apps == nil {
		c.Apps = map[string]App{}
	}
	for name, app := range local.Apps {
		merged := c.Apps[name]
		if merged.Env == nil {
			merged.Env = map[string]string{}
		}
		for k, v := range app.Env {
			merged.Env[k] = v
		}
		c.Apps[name] = merged
	}
}

func (c *Config) applyDefaults() {
	if c.SessionsDir == "" {
		c.SessionsDir = DefaultSessionsDir
	}
	if c.Mode == "" {
		c.Mode = registry.ModeDocker
	}
	if c.ComposeFile == "" {
		c.ComposeFile = DefaultComposeFile
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = DefaultBranchPrefix
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	if c.Apps == nil {
		c.Apps = map[string]App{}
	}
}

// Validate checks the config and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !c.Mode.Valid() {
		errs = append(errs, fmt.Sprintf("mode %q is not one of docker, native", c.Mode))
	}
	if filepath.IsAbs(c.SessionsDir) || strings.HasPrefix(filepath.Clean(c.SessionsDir), "..") {
		errs = append(errs, "sessions_dir must be a path inside the project")
	}

	if c.Ports.IsOffsets() && c.PortBase <= 0 {
		errs = append(errs, "port_base is required when ports are given as offsets")
	}
	if c.PortBase < 0 || c.PortBase > 65535 {
		errs = append(errs, fmt.Sprintf("port_base %d is out of range", c.PortBase))
	}
	if c.PortBase > 0 && !c.Ports.IsOffsets() && len(c.Ports.Names) > 0 {
		errs = append(errs, "port_base needs ports as a name: offset mapping")
	}

	seen := map[string]bool{}
	for i, name := range c.Ports.Names {
		if name == "" {
			errs = append(errs, fmt.Sprintf("ports[%d] has an empty name", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("port %q is listed twice", name))
		}
		seen[name] = true
	}
	for name, offset := range c.Ports.Offsets {
		if offset < 0 || offset > 99 {
			errs = append(errs, fmt.Sprintf("ports.%s offset %d must be in 0-99", name, offset))
		}
	}

	for i, cmd := range c.Setup {
		if strings.TrimSpace(cmd) == "" {
			errs = append(errs, fmt.Sprintf("setup[%d] is empty", i))
		}
	}
	for i, cmd := range c.Teardown {
		if strings.TrimSpace(cmd) == "" {
			errs = append(errs, fmt.Sprintf("teardown[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Arithmetic reports whether ports are derived from port_base instead of
// allocated through the registry.
func (c *Config) Arithmetic() bool {
	return c.PortBase > 0 && c.Ports.IsOffsets()
}

// SessionDir returns the worktree directory for a session id.
func (c *Config) SessionDir(id string) string {
	return filepath.Join(c.Root, c.SessionsDir, id)
}

// DefaultBranch returns the branch name used when create gets no --branch.
func (c *Config) DefaultBranch(id string) string {
	return c.BranchPrefix + id
}

// AppEnv returns the templates for app layered over the global env. An
// empty app name yields the global env.
func (c *Config) AppEnv(app string) (map[string]string, error) {
	env := make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		env[k] = v
	}
	if app == "" {
		return env, nil
	}

	a, ok := c.Apps[app]
	if !ok {
		return nil, fmt.Errorf("unknown app %q", app)
	}
	for k, v := range a.Env {
		env[k] = v
	}
	return env, nil
}
