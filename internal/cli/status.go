package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/binmap-dev/binmap/internal/config"
	"github.com/binmap-dev/binmap/internal/graph"
	"github.com/binmap-dev/binmap/internal/state"
)

func RunStatus(cmd *cobra.Command, args []string) error {
	start := time.Now()
	rootPath, err := resolveWorkingDirectory()
	if err != nil {
		return err
	}
	if rootPath, err = resolveRoot(rootPath); err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	cfg, err := config.Load(rootPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	outputDir := cfg.OutputDir(rootPath)
	st, err := state.Load(outputDir)
	if err != nil {
		logger.Warn("corrupt graph snapshot; treating all files as changed", "error", err)
		st = state.NewSnapshot(rootPath)
	}

	g, _, err := scanGraph(cmd, rootPath, cfg, logger, nil)
	if err != nil {
		return err
	}
	currentHashes := make(map[string]graph.Hash, g.Size())
	for v := range g.Vertices() {
		currentHashes[g.Key(v)] = g.HashOf(v)
	}

	changed := st.ChangedFiles(currentHashes)
	deleted := st.DeletedFiles(currentHashes)
	impacted := st.ImpactedFiles(changed, deleted)

	summary := RunSummary{
		Mode:          "status",
		RootPath:      rootPath,
		OutputDir:     outputDir,
		Objects:       g.Size(),
		Edges:         g.EdgeCount(),
		Changed:       len(changed),
		Deleted:       len(deleted),
		Impacted:      len(impacted),
		DurationMS:    time.Since(start).Milliseconds(),
		ChangedFiles:  displayPaths(rootPath, changed),
		DeletedFiles:  displayPaths(rootPath, deleted),
		ImpactedFiles: displayPaths(rootPath, impacted),
	}

	if err := PrintRunSummary(cmd.OutOrStdout(), summary, asJSON); err != nil {
		return fmt.Errorf("failed to print status: %w", err)
	}
	return nil
}
