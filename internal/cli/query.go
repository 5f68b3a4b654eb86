package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/binmap-dev/binmap/internal/fileutil"
	"github.com/binmap-dev/binmap/internal/graph"
)

type NodeRecord struct {
	Path string     `json:"path"`
	Hash graph.Hash `json:"hash"`
}

// PathRecord is the result of a path query. Hops is nil when To is not
// reachable.
type PathRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Reachable bool   `json:"reachable"`
	Hops      *int   `json:"hops,omitempty"`
}

func RunDeps(cmd *cobra.Command, args []string) error {
	return runNeighbors(cmd, args[0], "dependencies", (*graph.Graph).Successors, func(g *graph.Graph, key, other string) bool {
		return g.HasPath(key, other)
	})
}

func RunUsers(cmd *cobra.Command, args []string) error {
	return runNeighbors(cmd, args[0], "users", (*graph.Graph).Predecessors, func(g *graph.Graph, key, other string) bool {
		return g.HasPath(other, key)
	})
}

// runNeighbors prints the direct neighbors of a node, or with --all every
// node related to it through reach.
func runNeighbors(
	cmd *cobra.Command,
	arg, label string,
	direct func(*graph.Graph, string) []string,
	reach func(g *graph.Graph, key, other string) bool,
) error {
	rootPath, g, err := loadProject(cmd)
	if err != nil {
		return err
	}
	all, err := OptionalBoolFlag(cmd, "all")
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	key, err := resolveNodeKey(g, rootPath, arg)
	if err != nil {
		return err
	}

	var related []string
	if all {
		for v := range g.Vertices() {
			other := g.Key(v)
			if other != key && reach(g, key, other) {
				related = append(related, other)
			}
		}
		sort.Strings(related)
	} else {
		related = direct(g, key)
	}

	records := make([]NodeRecord, 0, len(related))
	for _, other := range related {
		hash, err := g.Hash(other)
		if err != nil {
			return err
		}
		records = append(records, NodeRecord{Path: displayPath(rootPath, other), Hash: hash})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return fileutil.PrintJSON(out, map[string]any{
			"query":      arg,
			"path":       displayPath(rootPath, key),
			"transitive": all,
			label:        records,
		})
	}

	fmt.Fprintf(out, "%s for %s (%d)\n", label, displayPath(rootPath, key), len(records))
	if len(records) == 0 {
		fmt.Fprintf(out, "no %s found\n", label)
		return nil
	}
	for _, record := range records {
		fmt.Fprintf(out, "- %s\n", record.Path)
	}
	return nil
}

func RunPath(cmd *cobra.Command, args []string) error {
	rootPath, g, err := loadProject(cmd)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	from, err := resolveNodeKey(g, rootPath, args[0])
	if err != nil {
		return err
	}
	to, err := resolveNodeKey(g, rootPath, args[1])
	if err != nil {
		return err
	}

	record := PathRecord{
		From:      displayPath(rootPath, from),
		To:        displayPath(rootPath, to),
		Reachable: g.HasPath(from, to),
	}
	if hops, ok := g.Distance(from, to); ok {
		record.Hops = &hops
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return fileutil.PrintJSON(out, record)
	}
	if !record.Reachable {
		fmt.Fprintf(out, "%s does not reach %s\n", record.From, record.To)
		return nil
	}
	fmt.Fprintf(out, "%s reaches %s in %d hop(s)\n", record.From, record.To, *record.Hops)
	return nil
}

func RunHash(cmd *cobra.Command, args []string) error {
	rootPath, g, err := loadProject(cmd)
	if err != nil {
		return err
	}
	key, err := resolveNodeKey(g, rootPath, args[0])
	if err != nil {
		return err
	}
	hash, err := g.Hash(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", hash, displayPath(rootPath, key))
	return nil
}

func RunNodes(cmd *cobra.Command, args []string) error {
	rootPath, g, err := loadProject(cmd)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}

	records := make([]NodeRecord, 0, g.Size())
	for v := range g.Vertices() {
		records = append(records, NodeRecord{Path: displayPath(rootPath, g.Key(v)), Hash: g.HashOf(v)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	out := cmd.OutOrStdout()
	if asJSON {
		return fileutil.PrintJSON(out, map[string]any{
			"count": len(records),
			"nodes": records,
		})
	}
	fmt.Fprintf(out, "nodes (%d)\n", len(records))
	for _, record := range records {
		fmt.Fprintf(out, "%s  %s\n", record.Hash, record.Path)
	}
	return nil
}

func RunDot(cmd *cobra.Command, args []string) error {
	_, g, err := loadProject(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return g.WriteDot(cmd.OutOrStdout())
	}
	if err := g.WriteDotFile(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d nodes, %d edges)\n", args[0], g.Size(), g.EdgeCount())
	return nil
}
