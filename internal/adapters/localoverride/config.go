// Package localoverride reads a small, optional machine-local TOML
// file that layers per-host defaults on top of the primary hierarchical
// configuration (SPEC_FULL.md §11): how often the launch loop polls,
// where it exposes metrics, and which Pushgateway the engine CLI pushes
// to. The file's config_search_paths list is decoded into
// Settings.ConfigSearchPaths, but neither CLI consults it: both search
// their own built-in list of main config file locations.
// This is deliberately a flat, non-hierarchical file — the scoped
// inheritance the primary config needs lives in internal/adapters/configfile.
package localoverride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// defaultSearchPaths are the well-known locations checked for the
// override file when the CLI layer doesn't pin one explicitly.
var defaultSearchPaths = []string{
	"/etc/snapback2.local.toml",
	"/etc/snapback/local.toml",
}

// ResolvePath returns the first existing default override path, or ""
// if none exist (meaning Load should fall back to DefaultSettings()).
func ResolvePath() string {
	for _, candidate := range defaultSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Settings is the local-override file contents.
type Settings struct {
	ConfigSearchPaths []string `toml:"config_search_paths"`
	LoopPollSeconds   int      `toml:"loop_poll_seconds"`
	MetricsAddr       string   `toml:"metrics_addr"`
	PushGatewayAddr   string   `toml:"pushgateway_addr"`
}

// DefaultSettings returns the built-in defaults used when no override
// file is present, matching the search order in spec.md §6 and the
// default 2-second poll cadence in §4.8.
func DefaultSettings() Settings {
	return Settings{
		ConfigSearchPaths: []string{
			"/etc/snapback2.conf",
			"/etc/snapback/snapback2.conf",
			"/etc/snapback.conf",
			"/etc/snapback/snapback.conf",
		},
		LoopPollSeconds: 2,
	}
}

// Adapter loads Settings from a TOML file on disk.
type Adapter struct {
	logger *slog.Logger
}

// New creates a new local-override adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		panic("localoverride adapter requires logger")
	}
	return &Adapter{logger: logger}
}

// Load reads path, returning DefaultSettings() when the file is missing.
func (a *Adapter) Load(_ context.Context, path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is controlled by the CLI layer
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}

	cfg := DefaultSettings()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse local override toml: %w", err)
	}
	return cfg, nil
}
