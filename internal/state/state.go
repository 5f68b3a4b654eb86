// Package state persists scanned graphs between runs so query commands and
// change detection do not need to rescan.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/binmap-dev/binmap/internal/fileutil"
	"github.com/binmap-dev/binmap/internal/graph"
)

const (
	StateFile              = "graph.msgpack"
	CurrentSnapshotVersion = "2"
)

type NodeState struct {
	Path string     `msgpack:"path"`
	Hash graph.Hash `msgpack:"hash"`
}

type EdgeState struct {
	From string `msgpack:"from"`
	To   string `msgpack:"to"`
}

// Snapshot is the on-disk form of a graph. Nodes are kept in handle order so
// a restored graph assigns the same handles.
type Snapshot struct {
	Version   string      `msgpack:"version"`
	Root      string      `msgpack:"root"`
	UpdatedAt time.Time   `msgpack:"updated_at"`
	Nodes     []NodeState `msgpack:"nodes"`
	Edges     []EdgeState `msgpack:"edges"`
}

func NewSnapshot(root string) *Snapshot {
	return &Snapshot{
		Version: CurrentSnapshotVersion,
		Root:    root,
		Nodes:   make([]NodeState, 0),
		Edges:   make([]EdgeState, 0),
	}
}

// Capture copies g into a snapshot. g must not be mutated concurrently.
func Capture(g *graph.Graph, root string) *Snapshot {
	s := NewSnapshot(root)
	for v := range g.Vertices() {
		s.Nodes = append(s.Nodes, NodeState{Path: g.Key(v), Hash: g.HashOf(v)})
	}
	for e := range g.Edges() {
		s.Edges = append(s.Edges, EdgeState{From: g.Key(e.Source), To: g.Key(e.Target)})
	}
	return s
}

// Restore rebuilds the graph recorded in the snapshot.
func (s *Snapshot) Restore() (*graph.Graph, error) {
	g := graph.New()
	for _, n := range s.Nodes {
		if _, added := g.EnsureNode(n.Path, n.Hash); !added {
			return nil, fmt.Errorf("corrupt snapshot: duplicate node %s", n.Path)
		}
	}
	for _, e := range s.Edges {
		if !g.HasNode(e.From) || !g.HasNode(e.To) {
			return nil, fmt.Errorf("corrupt snapshot: edge %s -> %s references unknown node", e.From, e.To)
		}
		g.AddEdge(e.From, e.To)
	}
	return g, nil
}

// Load reads the snapshot from dir. A missing file yields an empty snapshot.
func Load(dir string) (*Snapshot, error) {
	path := filepath.Join(dir, StateFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSnapshot(""), nil
		}
		return nil, err
	}

	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	migrateSnapshot(&s)

	return &s, nil
}

// Exists reports whether a snapshot was saved in dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, StateFile))
	return err == nil
}

// Save writes the snapshot into dir, creating it when needed.
func (s *Snapshot) Save(dir string) error {
	if s.Version == "" {
		s.Version = CurrentSnapshotVersion
	}
	s.UpdatedAt = time.Now().UTC()

	data, err := msgpack.Marshal(s)
	if err != nil {
		return err
	}
	return fileutil.WriteIfChanged(filepath.Join(dir, StateFile), data)
}

// Hashes returns path -> hash for every recorded node.
func (s *Snapshot) Hashes() map[string]graph.Hash {
	out := make(map[string]graph.Hash, len(s.Nodes))
	for _, n := range s.Nodes {
		out[n.Path] = n.Hash
	}
	return out
}

// ChangedFiles returns files that are new or whose hash differs.
func (s *Snapshot) ChangedFiles(currentHashes map[string]graph.Hash) []string {
	stored := s.Hashes()
	changed := make([]string, 0)
	for file, hash := range currentHashes {
		if storedHash, ok := stored[file]; !ok || storedHash != hash {
			changed = append(changed, file)
		}
	}
	sort.Strings(changed)
	return changed
}

// DeletedFiles returns recorded files missing from the current scan.
func (s *Snapshot) DeletedFiles(currentHashes map[string]graph.Hash) []string {
	deleted := make([]string, 0)
	for _, n := range s.Nodes {
		if _, ok := currentHashes[n.Path]; !ok {
			deleted = append(deleted, n.Path)
		}
	}
	sort.Strings(deleted)
	return deleted
}

// ImpactedFiles returns changed/deleted files plus every recorded file that
// depends on them, directly or transitively.
func (s *Snapshot) ImpactedFiles(changedFiles, deletedFiles []string) []string {
	reverse := make(map[string][]string)
	for _, e := range s.Edges {
		reverse[e.To] = append(reverse[e.To], e.From)
	}

	impacted := make(map[string]bool)
	queue := make([]string, 0, len(changedFiles)+len(deletedFiles))
	for _, file := range append(append([]string(nil), changedFiles...), deletedFiles...) {
		if !impacted[file] {
			impacted[file] = true
			queue = append(queue, file)
		}
	}

	for len(queue) > 0 {
		file := queue[0]
		queue = queue[1:]
		for _, depender := range reverse[file] {
			if impacted[depender] {
				continue
			}
			impacted[depender] = true
			queue = append(queue, depender)
		}
	}

	return fileutil.MapKeysSorted(impacted)
}

func migrateSnapshot(s *Snapshot) {
	if s.Nodes == nil {
		s.Nodes = make([]NodeState, 0)
	}
	if s.Edges == nil {
		s.Edges = make([]EdgeState, 0)
	}

	switch s.Version {
	case "", "1":
		s.Version = CurrentSnapshotVersion
	case CurrentSnapshotVersion:
		// no-op
	default:
		// Keep unknown versions untouched but ensure required slices are initialized.
	}
}
