package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "binmap",
		Short: "Map binaries and shared libraries into a dependency graph",
		Long: `Binmap scans a directory tree for executables and shared libraries,
fingerprints each one with a content hash and records which libraries every
object needs.

The graph is saved to .binmap/ and can be queried for direct dependencies,
reverse dependencies, reachability between two files, or exported to Graphviz.`,
		SilenceUsage:       true,
		PersistentPostRunE: writeMetrics,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (default from .binmap.yaml)")
	rootCmd.PersistentFlags().String("metrics", "", "Write graph metrics in Prometheus text format to this file after the command")

	// Build Commands
	scanCmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory and save its dependency graph",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunScan,
	}
	scanCmd.Flags().Int("workers", 0, "Number of parallel workers (default from .binmap.yaml)")
	scanCmd.Flags().String("dot", "", "Also write the graph in Graphviz format to this file")
	scanCmd.Flags().Bool("json", false, "Print machine-readable scan summary")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show files changed since the last scan and what depends on them",
		RunE:  RunStatus,
	}
	statusCmd.Flags().Bool("json", false, "Print machine-readable status output")

	// Query Commands
	depsCmd := &cobra.Command{
		Use:   "deps <path>",
		Short: "Show libraries a file depends on",
		Args:  cobra.ExactArgs(1),
		RunE:  RunDeps,
	}
	depsCmd.Flags().Bool("all", false, "Include transitive dependencies")
	depsCmd.Flags().Bool("json", false, "Print machine-readable dependency results")

	usersCmd := &cobra.Command{
		Use:   "users <path>",
		Short: "Show files that depend on a library",
		Args:  cobra.ExactArgs(1),
		RunE:  RunUsers,
	}
	usersCmd.Flags().Bool("all", false, "Include transitive users")
	usersCmd.Flags().Bool("json", false, "Print machine-readable user results")

	pathCmd := &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Check whether one file reaches another through dependencies",
		Args:  cobra.ExactArgs(2),
		RunE:  RunPath,
	}
	pathCmd.Flags().Bool("json", false, "Print machine-readable path result")

	hashCmd := &cobra.Command{
		Use:   "hash <path>",
		Short: "Print the recorded content hash of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  RunHash,
	}

	nodesCmd := &cobra.Command{
		Use:   "nodes",
		Short: "List every file in the graph",
		RunE:  RunNodes,
	}
	nodesCmd.Flags().Bool("json", false, "Print machine-readable node list")

	// Export Commands
	dotCmd := &cobra.Command{
		Use:   "dot [output]",
		Short: "Export the graph in Graphviz DOT format (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunDot,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "binmap %s\n", version)
		},
	}

	rootCmd.AddCommand(
		scanCmd,
		statusCmd,
		depsCmd,
		usersCmd,
		pathCmd,
		hashCmd,
		nodesCmd,
		dotCmd,
		versionCmd,
	)

	return rootCmd
}
