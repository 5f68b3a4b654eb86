package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// writeMetrics dumps the default registry in Prometheus text format to the
// file named by --metrics, for node_exporter's textfile collector or a CI
// artifact.
func writeMetrics(cmd *cobra.Command, args []string) error {
	path, err := OptionalStringFlag(cmd, "metrics")
	if err != nil || path == "" {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
