package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/binmap-dev/binmap/internal/config"
	"github.com/binmap-dev/binmap/internal/graph"
	"github.com/binmap-dev/binmap/internal/state"
)

func resolveWorkingDirectory() (string, error) {
	rootPath, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return rootPath, nil
}

// resolveRoot returns the absolute, symlink-free form of path, which must be
// an existing directory.
func resolveRoot(path string) (string, error) {
	rootPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	if rootPath, err = filepath.EvalSymlinks(rootPath); err != nil {
		return "", fmt.Errorf("failed to access path %q: %w", path, err)
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		return "", fmt.Errorf("failed to access path %q: %w", rootPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path %q is not a directory", rootPath)
	}
	return rootPath, nil
}

// newLogger builds the text logger on stderr. --log-level wins over the config
// file.
func newLogger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	levelName := cfg.LogLevel
	flagLevel, err := OptionalStringFlag(cmd, "log-level")
	if err != nil {
		return nil, err
	}
	if flagLevel != "" {
		levelName = flagLevel
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}

// loadProject reads the config and the saved graph of the current directory.
func loadProject(cmd *cobra.Command) (string, *graph.Graph, error) {
	rootPath, err := resolveWorkingDirectory()
	if err != nil {
		return "", nil, err
	}
	if rootPath, err = resolveRoot(rootPath); err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(rootPath)
	if err != nil {
		return "", nil, err
	}
	if _, err := newLogger(cmd, cfg); err != nil {
		return "", nil, err
	}

	outputDir := cfg.OutputDir(rootPath)
	if !state.Exists(outputDir) {
		return "", nil, fmt.Errorf("no graph found in %s; run 'binmap scan' first", outputDir)
	}
	snapshot, err := state.Load(outputDir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load graph: %w", err)
	}
	g, err := snapshot.Restore()
	if err != nil {
		return "", nil, err
	}
	return rootPath, g, nil
}

// resolveNodeKey maps a user-supplied path to the key stored in the graph.
// Relative paths are taken from the working directory.
func resolveNodeKey(g *graph.Graph, rootPath, arg string) (string, error) {
	key := arg
	if !filepath.IsAbs(key) {
		key = filepath.Join(rootPath, key)
	}
	key = filepath.Clean(key)
	if resolved, err := filepath.EvalSymlinks(key); err == nil {
		key = resolved
	}
	if !g.HasNode(key) {
		return "", fmt.Errorf("%w: %s", graph.ErrNotFound, arg)
	}
	return key, nil
}

// displayPath shortens keys inside the scanned tree to root-relative paths.
func displayPath(rootPath, key string) string {
	rel, err := filepath.Rel(rootPath, key)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return key
	}
	return rel
}

func displayPaths(rootPath string, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, displayPath(rootPath, key))
	}
	return out
}
