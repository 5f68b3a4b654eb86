package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/binmap-dev/binmap/internal/fileutil"
)

type RunSummary struct {
	Mode          string              `json:"mode"`
	RootPath      string              `json:"root_path"`
	OutputDir     string              `json:"output_dir,omitempty"`
	Files         int                 `json:"files"`
	Objects       int                 `json:"objects"`
	External      int                 `json:"external"`
	Skipped       int                 `json:"skipped"`
	Edges         int                 `json:"edges"`
	Changed       int                 `json:"changed"`
	Deleted       int                 `json:"deleted"`
	Impacted      int                 `json:"impacted"`
	DurationMS    int64               `json:"duration_ms"`
	ChangedFiles  []string            `json:"changed_files,omitempty"`
	DeletedFiles  []string            `json:"deleted_files,omitempty"`
	ImpactedFiles []string            `json:"impacted_files,omitempty"`
	Unresolved    map[string][]string `json:"unresolved,omitempty"`
}

func PrintRunSummary(w io.Writer, summary RunSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}

	if summary.Mode == "scan" {
		fmt.Fprintf(w, "scan complete in %dms\n", summary.DurationMS)
		if summary.OutputDir != "" {
			fmt.Fprintf(w, "output: %s\n", summary.OutputDir)
		}
		fmt.Fprintf(w, "files: scanned=%d objects=%d external=%d skipped=%d\n", summary.Files, summary.Objects, summary.External, summary.Skipped)
		fmt.Fprintf(w, "edges: %d\n", summary.Edges)
		if len(summary.Unresolved) > 0 {
			fmt.Fprintf(w, "unresolved (%d):\n", len(summary.Unresolved))
			for _, origin := range fileutil.MapKeysSorted(summary.Unresolved) {
				fmt.Fprintf(w, "  %s: %s\n", origin, strings.Join(summary.Unresolved[origin], ", "))
			}
		}
		return nil
	}

	fmt.Fprintf(w,
		"%s: objects=%d changed=%d deleted=%d impacted=%d duration=%dms\n",
		summary.Mode,
		summary.Objects,
		summary.Changed,
		summary.Deleted,
		summary.Impacted,
		summary.DurationMS,
	)

	if len(summary.ChangedFiles) > 0 {
		fmt.Fprintf(w, "changed files (%d): %s\n", len(summary.ChangedFiles), SummarizePaths(summary.ChangedFiles, 8))
	}
	if len(summary.DeletedFiles) > 0 {
		fmt.Fprintf(w, "deleted files (%d): %s\n", len(summary.DeletedFiles), SummarizePaths(summary.DeletedFiles, 8))
	}
	if len(summary.ImpactedFiles) > 0 {
		fmt.Fprintf(w, "impacted files (%d): %s\n", len(summary.ImpactedFiles), SummarizePaths(summary.ImpactedFiles, 8))
	}
	if summary.Changed == 0 && summary.Deleted == 0 {
		fmt.Fprintln(w, "graph is up to date")
	}

	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
