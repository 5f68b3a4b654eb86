// Package graph stores the artifact dependency graph: vertices keyed by
// filesystem path and carrying a content hash, joined by directed edges.
//
// Every method takes the graph's lock (shared for reads, exclusive for
// AddNode, EnsureNode and AddEdge), so the graph can be filled from many
// scanner goroutines.
//
// Reachability answers come from a cached all-pairs distance matrix that is
// dropped on every mutation; callers are expected to finish inserting before
// they start querying.
package graph

import (
	"fmt"
	"iter"
	"sort"
	"sync"
)

// Vertex is the dense handle of a node, assigned in insertion order.
type Vertex int

// Hash is the content hash attached to a node when it is added.
type Hash string

// Edge is a directed dependency from Source to Target.
type Edge struct {
	Source Vertex
	Target Vertex
}

// Graph is the artifact dependency graph.
type Graph struct {
	mu sync.RWMutex

	keys   []string
	hashes []Hash
	out    [][]Edge
	in     [][]Edge
	edges  []Edge
	index  map[string]Vertex

	reach reachability
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]Vertex),
	}
}

// HasNode reports whether a node with the given key exists.
func (g *Graph) HasNode(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[key]
	return ok
}

// Lookup resolves a key to its vertex handle.
func (g *Graph) Lookup(key string) (Vertex, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.index[key]
	return v, ok
}

// AddNode inserts a new node. Adding a key twice is a caller bug and panics
// before the graph is touched.
func (g *Graph) AddNode(key string, hash Hash) Vertex {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[key]; ok {
		panic(fmt.Errorf("%w: %s", ErrDuplicateNode, key))
	}
	return g.insertLocked(key, hash)
}

// EnsureNode adds the node unless the key is already present, in which case
// the existing handle is returned and the stored hash is left untouched.
func (g *Graph) EnsureNode(key string, hash Hash) (Vertex, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.index[key]; ok {
		return v, false
	}
	return g.insertLocked(key, hash), true
}

func (g *Graph) insertLocked(key string, hash Hash) Vertex {
	v := Vertex(len(g.keys))
	g.keys = append(g.keys, key)
	g.hashes = append(g.hashes, hash)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.index[key] = v
	g.reach.invalidate()
	nodesAdded.Inc()
	return v
}

// AddEdge inserts a directed edge between two existing nodes. Parallel edges
// are kept. Unknown endpoints panic.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src := g.mustResolveLocked(from)
	dst := g.mustResolveLocked(to)

	e := Edge{Source: src, Target: dst}
	g.out[src] = append(g.out[src], e)
	g.in[dst] = append(g.in[dst], e)
	g.edges = append(g.edges, e)
	g.reach.invalidate()
	edgesAdded.Inc()
}

func (g *Graph) mustResolveLocked(key string) Vertex {
	v, ok := g.index[key]
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrNodeNotFound, key))
	}
	return v
}

// Key returns the path of a vertex.
func (g *Graph) Key(v Vertex) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.keys[v]
}

// HashOf returns the content hash of a vertex.
func (g *Graph) HashOf(v Vertex) Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hashes[v]
}

// Hash returns the content hash stored for key, or an error wrapping
// ErrNotFound when the key was never added.
func (g *Graph) Hash(key string) (Hash, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	v, ok := g.index[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return g.hashes[v], nil
}

// Successors returns the keys of the direct dependencies of key, without
// duplicates.
func (g *Graph) Successors(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	v := g.mustResolveLocked(key)
	return g.neighborKeysLocked(g.out[v], func(e Edge) Vertex { return e.Target })
}

// Predecessors returns the keys of the nodes that directly depend on key,
// without duplicates.
func (g *Graph) Predecessors(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	v := g.mustResolveLocked(key)
	return g.neighborKeysLocked(g.in[v], func(e Edge) Vertex { return e.Source })
}

func (g *Graph) neighborKeysLocked(edges []Edge, end func(Edge) Vertex) []string {
	seen := make(map[Vertex]bool, len(edges))
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		n := end(e)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, g.keys[n])
	}
	sort.Strings(out)
	return out
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.keys)
}

// EdgeCount returns the number of edges, parallel edges included.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// OutEdges iterates the outgoing edges of v as they were when iteration
// started.
func (g *Graph) OutEdges(v Vertex) iter.Seq[Edge] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return edgeSeq(g.out[v])
}

// OutEdgesOf is OutEdges addressed by key. Unknown keys panic.
func (g *Graph) OutEdgesOf(key string) iter.Seq[Edge] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v := g.mustResolveLocked(key)
	return edgeSeq(g.out[v])
}

// InEdges iterates the incoming edges of v.
func (g *Graph) InEdges(v Vertex) iter.Seq[Edge] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return edgeSeq(g.in[v])
}

func edgeSeq(edges []Edge) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for _, e := range edges {
			if !yield(e) {
				return
			}
		}
	}
}
