// Package config loads the per-tree .binmap.yaml settings.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/binmap-dev/binmap/internal/ignore"
)

const (
	File          = ".binmap.yaml"
	DefaultOutput = ".binmap"

	// MaxFileSize caps the config file read from disk.
	MaxFileSize = 1024 * 1024
)

// DefaultLibDirs are searched for needed libraries that are not found through
// rpath/runpath or inside the scanned tree.
var DefaultLibDirs = []string{"/lib", "/usr/lib", "/lib64", "/usr/lib64"}

type Config struct {
	Workers  int      `yaml:"workers"`
	LibDirs  []string `yaml:"lib_dirs"`
	Ignore   []string `yaml:"ignore"`
	Output   string   `yaml:"output"`
	LogLevel string   `yaml:"log_level"`
}

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		LibDirs:  append([]string(nil), DefaultLibDirs...),
		Output:   DefaultOutput,
		LogLevel: "info",
	}
}

// Load reads .binmap.yaml and .binmapignore from rootPath. Missing files fall
// back to defaults; fields absent from the YAML keep their default value.
func Load(rootPath string) (Config, error) {
	cfg := Default()

	path := filepath.Join(rootPath, File)
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Size() > MaxFileSize {
			return Config{}, fmt.Errorf("%s is too large (%d bytes)", path, info.Size())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return Config{}, fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	rules, err := ignore.LoadRules(rootPath)
	if err != nil {
		return Config{}, err
	}
	cfg.Ignore = append(cfg.Ignore, rules...)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// OutputDir resolves the output directory against rootPath.
func (c Config) OutputDir(rootPath string) string {
	if filepath.IsAbs(c.Output) {
		return c.Output
	}
	return filepath.Join(rootPath, c.Output)
}

func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q (supported: debug, info, warn, error)", value)
	}
}
