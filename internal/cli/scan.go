package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/binmap-dev/binmap/internal/config"
	"github.com/binmap-dev/binmap/internal/graph"
	"github.com/binmap-dev/binmap/internal/scan"
	"github.com/binmap-dev/binmap/internal/state"
)

// objectInspector reads linking information from scanned files.
var objectInspector scan.Inspector = scan.ELFInspector{}

func RunScan(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	rootPath, err := resolveRoot(path)
	if err != nil {
		return err
	}
	cfg, err := config.Load(rootPath)
	if err != nil {
		return err
	}
	if cfg.Workers, err = ParseWorkers(cmd, cfg.Workers); err != nil {
		return err
	}
	dotPath, err := OptionalStringFlag(cmd, "dot")
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}

	return ScanTree(cmd, rootPath, cfg, dotPath, asJSON)
}

// ScanTree scans rootPath, saves the snapshot to the configured output
// directory and prints a summary.
func ScanTree(cmd *cobra.Command, rootPath string, cfg config.Config, dotPath string, asJSON bool) error {
	start := time.Now()
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	progress := newScanProgressReporter(cmd.ErrOrStderr(), "scan", asJSON)
	g, res, err := scanGraph(cmd, rootPath, cfg, logger, progress.Update)
	if err != nil {
		return err
	}
	progress.Done(res.Objects + res.External)

	outputDir := cfg.OutputDir(rootPath)
	if err := state.Capture(g, rootPath).Save(outputDir); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	logger.Debug("graph saved", "dir", outputDir, "nodes", g.Size(), "edges", g.EdgeCount())

	if dotPath != "" {
		if err := g.WriteDotFile(dotPath); err != nil {
			return err
		}
	}

	unresolved := make(map[string][]string, len(res.Unresolved))
	for origin, names := range res.Unresolved {
		unresolved[displayPath(rootPath, origin)] = names
	}

	summary := RunSummary{
		Mode:       "scan",
		RootPath:   rootPath,
		OutputDir:  outputDir,
		Files:      res.Files,
		Objects:    res.Objects,
		External:   res.External,
		Skipped:    res.Skipped,
		Edges:      res.Edges,
		DurationMS: time.Since(start).Milliseconds(),
		Unresolved: unresolved,
	}
	return PrintRunSummary(cmd.OutOrStdout(), summary, asJSON)
}

func scanGraph(cmd *cobra.Command, rootPath string, cfg config.Config, logger *slog.Logger, onObject func(string, int)) (*graph.Graph, *scan.Result, error) {
	rules := append([]string(nil), cfg.Ignore...)
	if !filepath.IsAbs(cfg.Output) {
		rules = append(rules, "/"+filepath.ToSlash(filepath.Clean(cfg.Output))+"/")
	}

	scanner := &scan.Scanner{
		Root:      rootPath,
		Workers:   cfg.Workers,
		LibDirs:   cfg.LibDirs,
		Ignore:    rules,
		Inspector: objectInspector,
		Logger:    logger,
		OnObject:  onObject,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	g := graph.New()
	res, err := scanner.Scan(ctx, g)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %w", rootPath, err)
	}
	return g, res, nil
}
