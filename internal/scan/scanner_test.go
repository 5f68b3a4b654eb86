package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binmap-dev/binmap/internal/fileutil"
	"github.com/binmap-dev/binmap/internal/graph"
)

// fakeInspector answers by file base name; unknown names are not objects.
type fakeInspector struct {
	mu      sync.Mutex
	objects map[string]Object
	calls   map[string]int
}

func (f *fakeInspector) Inspect(path string) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[path]++
	obj, ok := f.objects[filepath.Base(path)]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrNotObject, path)
	}
	return obj, nil
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func TestScanBuildsDependencyGraph(t *testing.T) {
	root := tempRoot(t)
	ext := tempRoot(t)

	mustWriteFile(t, filepath.Join(root, "bin/app"), "app")
	mustWriteFile(t, filepath.Join(root, "bin/tool"), "tool")
	mustWriteFile(t, filepath.Join(root, "lib/libfoo.so.1.2"), "foo")
	mustWriteFile(t, filepath.Join(root, "lib/plugins/libbar.so"), "bar")
	mustWriteFile(t, filepath.Join(root, "README"), "docs")
	mustWriteFile(t, filepath.Join(root, "skip/libskip.so"), "skip")
	mustWriteFile(t, filepath.Join(root, ".binmapignore"), "skip/\n")
	require.NoError(t, os.Symlink("libfoo.so.1.2", filepath.Join(root, "lib/libfoo.so.1")))
	mustWriteFile(t, filepath.Join(ext, "libext.so"), "ext")
	mustWriteFile(t, filepath.Join(ext, "libext2.so"), "ext2")

	inspector := &fakeInspector{objects: map[string]Object{
		"app":           {Needed: []string{"libfoo.so.1", "libmissing.so"}},
		"tool":          {Needed: []string{"libext.so", "libfoo.so.1"}},
		"libfoo.so.1.2": {Needed: []string{"libbar.so"}, RunPath: []string{"$ORIGIN/plugins"}},
		"libbar.so":     {},
		"libskip.so":    {},
		"libext.so":     {Needed: []string{"libext2.so"}},
		"libext2.so":    {},
	}}

	s := &Scanner{
		Root:      root,
		Workers:   4,
		LibDirs:   []string{ext},
		Ignore:    []string{"skip/"},
		Inspector: inspector,
		Logger:    quietLogger,
	}
	g := graph.New()
	res, err := s.Scan(context.Background(), g)
	require.NoError(t, err)

	app := filepath.Join(root, "bin/app")
	tool := filepath.Join(root, "bin/tool")
	foo := filepath.Join(root, "lib/libfoo.so.1.2")
	bar := filepath.Join(root, "lib/plugins/libbar.so")
	libext := filepath.Join(ext, "libext.so")
	libext2 := filepath.Join(ext, "libext2.so")

	assert.Equal(t, 4, res.Objects)
	assert.Equal(t, 2, res.External)
	assert.Equal(t, 6, g.Size())
	assert.Equal(t, 5, res.Edges)
	assert.Equal(t, 5, g.EdgeCount())
	assert.False(t, g.HasNode(filepath.Join(root, "skip/libskip.so")))
	assert.False(t, g.HasNode(filepath.Join(root, "README")))

	assert.Equal(t, []string{foo}, g.Successors(app))
	assert.Equal(t, sortedStrings(libext, foo), g.Successors(tool))
	assert.Equal(t, []string{bar}, g.Successors(foo))
	assert.Equal(t, []string{libext2}, g.Successors(libext))
	assert.Equal(t, sortedStrings(app, tool), g.Predecessors(foo))

	assert.True(t, g.HasPath(app, bar))
	assert.True(t, g.HasPath(tool, libext2))
	assert.False(t, g.HasPath(app, libext))

	assert.Equal(t, map[string][]string{app: {"libmissing.so"}}, res.Unresolved)

	wantHash, err := fileutil.HashFile(foo)
	require.NoError(t, err)
	gotHash, err := g.Hash(foo)
	require.NoError(t, err)
	assert.Equal(t, graph.Hash(wantHash), gotHash)
}

func TestScanAmbiguousNameStaysUnresolved(t *testing.T) {
	root := tempRoot(t)
	mustWriteFile(t, filepath.Join(root, "bin/app"), "app")
	mustWriteFile(t, filepath.Join(root, "a/libdup.so"), "a")
	mustWriteFile(t, filepath.Join(root, "b/libdup.so"), "b")

	s := &Scanner{
		Root:   root,
		Logger: quietLogger,
		Inspector: &fakeInspector{objects: map[string]Object{
			"app":       {Needed: []string{"libdup.so"}},
			"libdup.so": {},
		}},
	}
	g := graph.New()
	res, err := s.Scan(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Size())
	assert.Equal(t, 0, g.EdgeCount())
	assert.Equal(t, []string{"libdup.so"}, res.Unresolved[filepath.Join(root, "bin/app")])
}

func TestScanRPathIgnoredWhenRunPathPresent(t *testing.T) {
	root := tempRoot(t)
	mustWriteFile(t, filepath.Join(root, "bin/app"), "app")
	mustWriteFile(t, filepath.Join(root, "old/libx.so"), "old")
	mustWriteFile(t, filepath.Join(root, "new/libx.so"), "new")

	s := &Scanner{
		Root:   root,
		Logger: quietLogger,
		Inspector: &fakeInspector{objects: map[string]Object{
			"app": {
				Needed:  []string{"libx.so"},
				RPath:   []string{"${ORIGIN}/../old"},
				RunPath: []string{"${ORIGIN}/../new"},
			},
			"libx.so": {},
		}},
	}
	g := graph.New()
	_, err := s.Scan(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "new/libx.so")}, g.Successors(filepath.Join(root, "bin/app")))
}

func TestScanHonorsCancellation(t *testing.T) {
	root := tempRoot(t)
	mustWriteFile(t, filepath.Join(root, "bin/app"), "app")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scanner{Root: root, Logger: quietLogger, Inspector: &fakeInspector{}}
	_, err := s.Scan(ctx, graph.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanReportsProgress(t *testing.T) {
	root := tempRoot(t)
	for i := 0; i < 5; i++ {
		mustWriteFile(t, filepath.Join(root, fmt.Sprintf("lib/lib%d.so", i)), "x")
	}
	objects := map[string]Object{}
	for i := 0; i < 5; i++ {
		objects[fmt.Sprintf("lib%d.so", i)] = Object{}
	}

	var mu sync.Mutex
	var seen []string
	var counts []int
	s := &Scanner{
		Root:      root,
		Workers:   3,
		Logger:    quietLogger,
		Inspector: &fakeInspector{objects: objects},
		OnObject: func(path string, count int) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, path)
			counts = append(counts, count)
		},
	}
	_, err := s.Scan(context.Background(), graph.New())
	require.NoError(t, err)
	assert.Len(t, seen, 5)

	sort.Ints(counts)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, counts, "each notification carries a distinct running total")
}

func TestScanLinkedInTreeFileIsNotExternal(t *testing.T) {
	root := tempRoot(t)
	ext := tempRoot(t)
	mustWriteFile(t, filepath.Join(root, "bin/app"), "app")
	mustWriteFile(t, filepath.Join(root, "share/libdata.so"), "data")
	mustWriteFile(t, filepath.Join(ext, "libext.so"), "ext")

	s := &Scanner{
		Root:    root,
		LibDirs: []string{ext},
		Logger:  quietLogger,
		Inspector: &fakeInspector{objects: map[string]Object{
			"app":       {Needed: []string{"libdata.so", "libext.so"}, RunPath: []string{"$ORIGIN/../share"}},
			"libext.so": {},
		}},
	}
	g := graph.New()
	res, err := s.Scan(context.Background(), g)
	require.NoError(t, err)

	data := filepath.Join(root, "share/libdata.so")
	assert.True(t, g.HasNode(data))
	assert.Equal(t, sortedStrings(data, filepath.Join(ext, "libext.so")), g.Successors(filepath.Join(root, "bin/app")))
	assert.Equal(t, 1, res.External)
	assert.Equal(t, 2, res.Objects)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, g.Size())
}

func TestELFInspectorOnRealBinary(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("test binary is not ELF on this platform")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	_, err = ELFInspector{}.Inspect(exe)
	require.NoError(t, err)

	root := tempRoot(t)
	data, err := os.ReadFile(exe)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin/app"), data, 0755))
	mustWriteFile(t, filepath.Join(root, "notes.txt"), "not elf")

	g := graph.New()
	res, err := (&Scanner{Root: root, Logger: quietLogger, LibDirs: []string{}}).Scan(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Objects)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, g.HasNode(filepath.Join(root, "bin/app")))
}

func TestELFInspectorRejectsNonObjects(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "script.sh")
	empty := filepath.Join(dir, "empty")
	mustWriteFile(t, text, "#!/bin/sh\necho hi\n")
	mustWriteFile(t, empty, "")

	for _, path := range []string{text, empty} {
		_, err := ELFInspector{}.Inspect(path)
		assert.ErrorIs(t, err, ErrNotObject, path)
	}
}

func TestSplitSearchPath(t *testing.T) {
	got := splitSearchPath([]string{"/a:/b", " ", "$ORIGIN/../lib"})
	assert.Equal(t, []string{"/a", "/b", "$ORIGIN/../lib"}, got)
	assert.Equal(t, "/x/lib", expandOrigin("${ORIGIN}/lib", "/x"))
}

func sortedStrings(values ...string) []string {
	sort.Strings(values)
	return values
}
