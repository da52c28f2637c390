// Package config loads the tunable knobs for a paged buffer: page size,
// cache limits, undo depth, and merge windows.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	DefaultPageSize            = 64 * 1024
	DefaultMaxMemoryPages      = 100
	DefaultMaxUndoLevels       = 50
	DefaultMergeTimeWindowMS   = 5000
	DefaultMergePositionWindow = 0
)

// Config holds every tunable knob a Buffer needs at construction time.
type Config struct {
	Storage struct {
		Mode string `mapstructure:"mode" toml:"mode"` // "memory" | "file"
		Dir  string `mapstructure:"dir"  toml:"dir"`
	} `mapstructure:"storage" toml:"storage"`

	PageSize            int `mapstructure:"page_size"             toml:"page_size"`
	MaxMemoryPages      int `mapstructure:"max_memory_pages"       toml:"max_memory_pages"`
	MaxUndoLevels       int `mapstructure:"max_undo_levels"        toml:"max_undo_levels"`
	MergeTimeWindowMS   int `mapstructure:"merge_time_window_ms"   toml:"merge_time_window_ms"`
	MergePositionWindow int `mapstructure:"merge_position_window"  toml:"merge_position_window"`
}

// Default returns the baseline knob set used when no config file is given.
func Default() *Config {
	cfg := &Config{
		PageSize:            DefaultPageSize,
		MaxMemoryPages:      DefaultMaxMemoryPages,
		MaxUndoLevels:       DefaultMaxUndoLevels,
		MergeTimeWindowMS:   DefaultMergeTimeWindowMS,
		MergePositionWindow: DefaultMergePositionWindow,
	}
	cfg.Storage.Mode = "memory"
	return cfg
}

// LoadConfig reads a YAML or TOML config file and fills in any knob left at
// its zero value with the package default. YAML goes through viper (so
// WatchConfig can be layered on top, see Watch); TOML is decoded directly
// since viper's own TOML support just shells out to pelletier/go-toml
// underneath anyway.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := loadTOML(path, cfg); err != nil {
			return nil, fmt.Errorf("config: load toml: %w", err)
		}
	default:
		if err := loadViper(path, cfg); err != nil {
			return nil, fmt.Errorf("config: load yaml: %w", err)
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func loadViper(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	// viper occasionally hands back numeric knobs as float64/string when the
	// YAML author wrote them unquoted; normalize defensively.
	if raw := v.Get("page_size"); raw != nil {
		cfg.PageSize = cast.ToInt(raw)
	}
	return nil
}

func loadTOML(path string, cfg *Config) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxMemoryPages <= 0 {
		cfg.MaxMemoryPages = DefaultMaxMemoryPages
	}
	if cfg.MaxUndoLevels <= 0 {
		cfg.MaxUndoLevels = DefaultMaxUndoLevels
	}
	if cfg.MergeTimeWindowMS <= 0 {
		cfg.MergeTimeWindowMS = DefaultMergeTimeWindowMS
	}
	if cfg.MergePositionWindow < 0 {
		cfg.MergePositionWindow = DefaultMergePositionWindow
	}
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = "memory"
	}
}

// Watch re-reads the config file whenever it changes on disk and invokes fn
// with the refreshed Config. It relies on viper's fsnotify-backed watcher,
// so it only supports YAML config files.
func Watch(path string, fn func(*Config)) (stop func(), err error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, loadErr := LoadConfig(path)
		if loadErr != nil {
			return
		}
		fn(cfg)
	})
	v.WatchConfig()

	return func() {}, nil
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
