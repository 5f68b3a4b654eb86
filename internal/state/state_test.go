package state

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/binmap-dev/binmap/internal/graph"
)

func sampleGraph() *graph.Graph {
	g := graph.New()
	g.AddNode("/bin/app", "a1")
	g.AddNode("/lib/libfoo.so", "f1")
	g.AddNode("/lib/libc.so.6", "c1")
	g.AddNode("/bin/tool", "t1")
	g.AddEdge("/bin/app", "/lib/libfoo.so")
	g.AddEdge("/lib/libfoo.so", "/lib/libc.so.6")
	g.AddEdge("/bin/tool", "/lib/libc.so.6")
	return g
}

func TestSaveLoadRestoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".binmap")
	original := sampleGraph()

	if err := Capture(original, "/").Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !Exists(dir) {
		t.Fatalf("expected snapshot file in %s", dir)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Root != "/" || loaded.Version != CurrentSnapshotVersion || loaded.UpdatedAt.IsZero() {
		t.Fatalf("unexpected snapshot header %+v", loaded)
	}

	g, err := loaded.Restore()
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if g.Size() != original.Size() || g.EdgeCount() != original.EdgeCount() {
		t.Fatalf("expected %d nodes/%d edges, got %d/%d", original.Size(), original.EdgeCount(), g.Size(), g.EdgeCount())
	}
	for v := range original.Vertices() {
		if g.Key(v) != original.Key(v) || g.HashOf(v) != original.HashOf(v) {
			t.Fatalf("vertex %d differs after restore: %s/%s", v, g.Key(v), g.HashOf(v))
		}
	}
	if !g.HasPath("/bin/app", "/lib/libc.so.6") {
		t.Fatalf("expected restored graph to keep transitive dependency")
	}
}

func TestLoadMissingReturnsEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if Exists(dir) {
		t.Fatalf("did not expect snapshot file")
	}
	if len(s.Nodes) != 0 || len(s.Edges) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}
}

func TestLoadCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFile), []byte{0xc1, 0x00, 0xff}, 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected decode error for corrupt snapshot")
	}
}

func TestRestoreRejectsDanglingEdge(t *testing.T) {
	s := NewSnapshot("/")
	s.Nodes = append(s.Nodes, NodeState{Path: "/a", Hash: "1"})
	s.Edges = append(s.Edges, EdgeState{From: "/a", To: "/missing"})
	if _, err := s.Restore(); err == nil {
		t.Fatalf("expected error for dangling edge")
	}

	s = NewSnapshot("/")
	s.Nodes = append(s.Nodes, NodeState{Path: "/a", Hash: "1"}, NodeState{Path: "/a", Hash: "2"})
	if _, err := s.Restore(); err == nil {
		t.Fatalf("expected error for duplicate node")
	}
}

func TestChangedAndDeletedFiles(t *testing.T) {
	s := Capture(sampleGraph(), "/")

	current := map[string]graph.Hash{
		"/bin/app":       "a1",
		"/lib/libfoo.so": "f2",
		"/lib/libc.so.6": "c1",
		"/bin/new":       "n1",
	}
	expectSet(t, s.ChangedFiles(current), []string{"/lib/libfoo.so", "/bin/new"})
	expectSet(t, s.DeletedFiles(current), []string{"/bin/tool"})
}

func TestImpactedFilesClosure(t *testing.T) {
	s := Capture(sampleGraph(), "/")

	impacted := s.ImpactedFiles([]string{"/lib/libc.so.6"}, nil)
	want := []string{"/bin/app", "/bin/tool", "/lib/libc.so.6", "/lib/libfoo.so"}
	if !reflect.DeepEqual(impacted, want) {
		t.Fatalf("expected impacted %v, got %v", want, impacted)
	}

	impacted = s.ImpactedFiles(nil, []string{"/lib/libfoo.so"})
	want = []string{"/bin/app", "/lib/libfoo.so"}
	if !reflect.DeepEqual(impacted, want) {
		t.Fatalf("expected impacted %v, got %v", want, impacted)
	}
}

func TestMigrateSnapshotSetsVersion(t *testing.T) {
	s := &Snapshot{Version: "1"}

	migrateSnapshot(s)

	if s.Version != CurrentSnapshotVersion {
		t.Fatalf("expected version %q, got %q", CurrentSnapshotVersion, s.Version)
	}
	if s.Nodes == nil || s.Edges == nil {
		t.Fatalf("expected slices to be initialized")
	}
}

func expectSet(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d (%v)", len(want), len(got), got)
	}

	index := make(map[string]bool, len(got))
	for _, item := range got {
		index[item] = true
	}

	for _, item := range want {
		if !index[item] {
			t.Fatalf("expected item %q in %v", item, got)
		}
	}
}
