package graph

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/binmap-dev/binmap/internal/fileutil"
)

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Vertices iterates every vertex present when iteration starts. Nodes added
// during iteration are not visited.
func (g *Graph) Vertices() iter.Seq[Vertex] {
	return func(yield func(Vertex) bool) {
		n := g.Size()
		for v := 0; v < n; v++ {
			if !yield(Vertex(v)) {
				return
			}
		}
	}
}

// Edges iterates every edge present when iteration starts, in insertion
// order.
func (g *Graph) Edges() iter.Seq[Edge] {
	g.mu.RLock()
	snapshot := g.edges[:len(g.edges):len(g.edges)]
	g.mu.RUnlock()
	return edgeSeq(snapshot)
}

// WriteDot writes the graph in Graphviz DOT format, one labelled node per
// vertex and one arrow per edge.
func (g *Graph) WriteDot(w io.Writer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	for v, key := range g.keys {
		fmt.Fprintf(&buf, "%d[label=\"%s\"];\n", v, dotEscaper.Replace(key))
	}
	for _, e := range g.edges {
		fmt.Fprintf(&buf, "%d->%d ;\n", e.Source, e.Target)
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteDotFile writes the DOT export to path, leaving the file alone when the
// content is unchanged.
func (g *Graph) WriteDotFile(path string) error {
	var buf bytes.Buffer
	if err := g.WriteDot(&buf); err != nil {
		return err
	}
	if err := fileutil.WriteIfChanged(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write dot file %s: %w", path, err)
	}
	return nil
}
