// Package config resolves uren's settings from defaults, JSONC config files
// and command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/uren/internal/kv"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDataDirEmpty       = errors.New("data-dir cannot be empty")
	ErrNoHome             = errors.New("cannot determine home directory for the default data-dir")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataDir  string `json:"data_dir"`
	Backend  string `json:"backend,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Editor   string `json:"editor,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string     `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DataDirAbs   string     `json:"-"` // Absolute path to the data root
	Level        slog.Level `json:"-"` // Parsed LogLevel

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global   string // Path to global config if loaded, empty otherwise
	Explicit string // Path to the -c/--config file if given
}

// DefaultDataDirName is the data root inside $HOME when data_dir is unset.
const DefaultDataDirName = ".uren"

// DefaultPageSize is the number of entries ls prints per page.
const DefaultPageSize = 50

// Default returns the default configuration. DataDir is left empty and
// resolved against $HOME by Load.
func Default() Config {
	return Config{
		Backend:  string(kv.BackendBolt),
		LogLevel: "warn",
		PageSize: DefaultPageSize,
	}
}

// globalPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/uren/config.json if set, otherwise ~/.config/uren/config.json.
// Returns empty string if home directory cannot be determined.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "uren", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "uren", "config.json")
	}

	return ""
}

// Input holds the inputs for Load.
type Input struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DataDirOverride string            // -d/--data-dir flag value; empty means no override
	BackendOverride string            // --backend flag value; empty means no override
	Verbose         bool              // -v/--verbose lowers the log level to debug
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/uren/config.json or $XDG_CONFIG_HOME/uren/config.json)
// 3. Explicit config file via ConfigPath (if non-empty)
// 4. CLI overrides.
//
// All paths in the returned Config are resolved to absolute paths.
func Load(input Input) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	} else if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		fileCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, fileCfg)
		}
	}

	if input.ConfigPath != "" {
		path := input.ConfigPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}

		fileCfg, _, err := loadFile(path, true)
		if err != nil {
			return Config{}, err
		}

		cfg.Sources.Explicit = path
		cfg = merge(cfg, fileCfg)
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if input.BackendOverride != "" {
		cfg.Backend = input.BackendOverride
	}

	if cfg.DataDir == "" {
		home := input.Env["HOME"]
		if home == "" {
			return Config{}, ErrNoHome
		}

		cfg.DataDir = filepath.Join(home, DefaultDataDirName)
	}

	level, err := validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.Level = level
	if input.Verbose {
		cfg.Level = slog.LevelDebug
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = filepath.Clean(cfg.DataDir)
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, nil
}

// BackendKind returns the validated backend.
func (c Config) BackendKind() kv.Backend {
	b, _ := kv.ParseBackend(c.Backend)
	return b
}

// loadFile loads a config file. If mustExist is false, a missing file returns
// a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, explicitEmpty, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if explicitEmpty["data_dir"] {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrDataDirEmpty)
	}

	for _, key := range []string{"backend", "log_level", "editor"} {
		if explicitEmpty[key] {
			return Config{}, false, fmt.Errorf("%w %s: %s cannot be empty", ErrConfigInvalid, path, key)
		}
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Check which fields were explicitly set to empty
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	for key, val := range raw {
		switch v := val.(type) {
		case string:
			explicitEmpty[key] = v == ""
		case float64:
			if key == "page_size" && v <= 0 {
				return Config{}, nil, fmt.Errorf("page_size must be positive, got %v", v)
			}
		}
	}

	return cfg, explicitEmpty, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.Backend != "" {
		base.Backend = overlay.Backend
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.PageSize != 0 {
		base.PageSize = overlay.PageSize
	}

	if overlay.Editor != "" {
		base.Editor = overlay.Editor
	}

	return base
}

func validate(cfg Config) (slog.Level, error) {
	if cfg.DataDir == "" {
		return 0, ErrDataDirEmpty
	}

	if _, err := kv.ParseBackend(cfg.Backend); err != nil {
		return 0, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.PageSize <= 0 {
		return 0, fmt.Errorf("invalid config: page_size must be positive, got %d", cfg.PageSize)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid config: log_level %q (want debug, info, warn or error)", cfg.LogLevel)
	}

	return level, nil
}
