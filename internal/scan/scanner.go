// Package scan discovers binaries and shared libraries under a directory and
// records them, with their DT_NEEDED dependencies, in a graph.Graph.
//
// Scanning runs in two phases. The first inspects and hashes every file of
// the tree in parallel and registers the objects. The second resolves needed
// library names to paths and adds one edge per dependency; libraries found
// outside the tree are registered on the fly and resolved in a later round.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/binmap-dev/binmap/internal/fileutil"
	"github.com/binmap-dev/binmap/internal/graph"
	"github.com/binmap-dev/binmap/internal/ignore"
)

// Scanner fills a graph from the files under Root. The zero value of every
// field except Root is usable: Workers defaults to the CPU count, Inspector
// to ELFInspector and Logger to slog.Default().
type Scanner struct {
	Root      string
	Workers   int
	LibDirs   []string
	Ignore    []string
	Inspector Inspector
	Logger    *slog.Logger

	// OnObject, when set, is called from worker goroutines after each node
	// is registered. count is the running total of registered nodes; every
	// call receives a distinct value.
	OnObject func(path string, count int)
}

// Result summarizes a scan. Objects counts nodes inside Root and External
// the libraries registered from outside it. Skipped counts walked files that
// were not registered as objects in the first phase.
type Result struct {
	Root       string              `json:"root"`
	Files      int                 `json:"files"`
	Objects    int                 `json:"objects"`
	External   int                 `json:"external"`
	Skipped    int                 `json:"skipped"`
	Edges      int                 `json:"edges"`
	Unresolved map[string][]string `json:"unresolved,omitempty"`
}

// pending is an object whose needed libraries are still to be resolved.
type pending struct {
	path string
	obj  Object
}

type run struct {
	s       *Scanner
	root    string
	g       *graph.Graph
	log     *slog.Logger
	aliases map[string][]string

	objects  atomic.Int64
	external atomic.Int64
	skipped  atomic.Int64
	edges    atomic.Int64

	// registered orders OnObject notifications.
	registered atomic.Int64

	mu         sync.Mutex
	unresolved map[string][]string
}

// Scan walks s.Root and fills g. Keys are absolute, symlink-free paths.
func (s *Scanner) Scan(ctx context.Context, g *graph.Graph) (*Result, error) {
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", s.Root, err)
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", s.Root, err)
	}

	r := &run{
		s:          s,
		root:       root,
		g:          g,
		log:        s.logger().With("root", root),
		unresolved: make(map[string][]string),
	}

	files, aliases, err := r.walk(root)
	if err != nil {
		return nil, err
	}
	r.aliases = aliases
	r.log.Debug("walk complete", "files", len(files), "aliases", len(aliases))

	found, err := r.registerTree(ctx, files)
	if err != nil {
		return nil, err
	}

	round := found
	for depth := 0; len(round) > 0; depth++ {
		r.log.Debug("resolving dependencies", "round", depth, "objects", len(round))
		if round, err = r.resolveRound(ctx, round); err != nil {
			return nil, err
		}
	}

	for origin := range r.unresolved {
		sort.Strings(r.unresolved[origin])
	}
	res := &Result{
		Root:       root,
		Files:      len(files),
		Objects:    int(r.objects.Load()),
		External:   int(r.external.Load()),
		Skipped:    int(r.skipped.Load()),
		Edges:      int(r.edges.Load()),
		Unresolved: r.unresolved,
	}
	r.log.Info("scan complete",
		"objects", res.Objects,
		"external", res.External,
		"edges", res.Edges,
		"unresolved", len(res.Unresolved))
	return res, nil
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scanner) inspector() Inspector {
	if s.Inspector != nil {
		return s.Inspector
	}
	return ELFInspector{}
}

func (s *Scanner) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

// walk lists regular files under root. Symlinks are not scanned themselves;
// those pointing at regular files inside the tree are recorded as aliases so
// sonames like libfoo.so.1 can be matched by name.
func (r *run) walk(root string) ([]string, map[string][]string, error) {
	matcher := ignore.NewMatcher(r.s.Ignore)
	files := make([]string, 0)
	aliases := make(map[string][]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path != root && errors.Is(walkErr, fs.ErrPermission) {
				r.log.Warn("skipping unreadable path", "path", path, "error", walkErr)
				return nil
			}
			return walkErr
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if matcher.ShouldIgnore(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() && within(root, target) {
				aliases[d.Name()] = append(aliases[d.Name()], target)
			}
		case d.Type().IsRegular():
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	for name, targets := range aliases {
		aliases[name] = fileutil.DedupeStrings(targets)
	}
	return files, aliases, nil
}

// registerTree inspects and hashes every walked file concurrently and adds
// the loadable objects to the graph.
func (r *run) registerTree(ctx context.Context, files []string) ([]pending, error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.s.workers())

	var mu sync.Mutex
	found := make([]pending, 0, len(files))
	for _, path := range files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obj, ok, err := r.register(path)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			found = append(found, pending{path: path, obj: obj})
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].path < found[j].path })
	for _, p := range found {
		r.index(p.path)
	}
	return found, nil
}

// index adds a tree object to the basename lookup used as the last resolution
// step.
func (r *run) index(path string) {
	name := filepath.Base(path)
	r.aliases[name] = fileutil.DedupeStrings(append(r.aliases[name], path))
}

// register inspects one file and inserts it into the graph. ok is false for
// files that are not loadable objects or could not be read.
func (r *run) register(path string) (Object, bool, error) {
	obj, err := r.s.inspector().Inspect(path)
	if err != nil {
		r.skipped.Add(1)
		if errors.Is(err, ErrNotObject) {
			return Object{}, false, nil
		}
		r.log.Warn("skipping unreadable object", "path", path, "error", err)
		return Object{}, false, nil
	}

	hash, err := fileutil.HashFile(path)
	if err != nil {
		r.skipped.Add(1)
		r.log.Warn("skipping unhashable object", "path", path, "error", err)
		return Object{}, false, nil
	}

	if _, added := r.g.EnsureNode(path, graph.Hash(hash)); !added {
		return Object{}, false, nil
	}
	r.objects.Add(1)
	r.notify(path)
	return obj, true, nil
}

// resolveRound adds the edges of every object in round and returns the
// libraries that were newly registered from outside the tree.
func (r *run) resolveRound(ctx context.Context, round []pending) ([]pending, error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.s.workers())

	var mu sync.Mutex
	next := make([]pending, 0)
	for _, p := range round {
		eg.Go(func() error {
			for _, name := range p.obj.Needed {
				if err := ctx.Err(); err != nil {
					return err
				}
				target, ok := r.resolve(p, name)
				if !ok {
					r.markUnresolved(p.path, name)
					continue
				}
				if !r.g.HasNode(target) {
					obj, added := r.registerExternal(target)
					if added {
						mu.Lock()
						next = append(next, pending{path: target, obj: obj})
						mu.Unlock()
					}
					if !r.g.HasNode(target) {
						r.markUnresolved(p.path, name)
						continue
					}
				}
				r.g.AddEdge(p.path, target)
				r.edges.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(next, func(i, j int) bool { return next[i].path < next[j].path })
	return next, nil
}

// registerExternal adds a library that the first phase did not register:
// one outside the tree, or an in-tree file skipped there. Files that are not
// objects are still registered, without dependencies, since something links
// against them. Only files outside the tree count as external.
func (r *run) registerExternal(path string) (Object, bool) {
	hash, err := fileutil.HashFile(path)
	if err != nil {
		r.log.Warn("failed to hash external library", "path", path, "error", err)
		return Object{}, false
	}
	obj, err := r.s.inspector().Inspect(path)
	if err != nil {
		if !errors.Is(err, ErrNotObject) {
			r.log.Warn("failed to inspect external library", "path", path, "error", err)
		}
		obj = Object{}
	}
	if _, added := r.g.EnsureNode(path, graph.Hash(hash)); !added {
		return Object{}, false
	}
	if within(r.root, path) {
		r.objects.Add(1)
	} else {
		r.external.Add(1)
	}
	r.notify(path)
	return obj, true
}

func (r *run) notify(path string) {
	n := r.registered.Add(1)
	if r.s.OnObject != nil {
		r.s.OnObject(path, int(n))
	}
}

func (r *run) markUnresolved(origin, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.unresolved[origin] {
		if existing == name {
			return
		}
	}
	r.unresolved[origin] = append(r.unresolved[origin], name)
}

// resolve maps a needed library name to a file path following the dynamic
// loader order: DT_RPATH (only without DT_RUNPATH), DT_RUNPATH, then a unique
// name match inside the tree, then the configured library directories.
func (r *run) resolve(p pending, name string) (string, bool) {
	origin := filepath.Dir(p.path)
	if strings.Contains(name, "/") {
		candidate := name
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(origin, candidate)
		}
		return regularFile(candidate)
	}

	var dirs []string
	if len(p.obj.RunPath) == 0 {
		dirs = append(dirs, p.obj.RPath...)
	}
	dirs = append(dirs, p.obj.RunPath...)
	for _, dir := range dirs {
		if path, ok := regularFile(filepath.Join(expandOrigin(dir, origin), name)); ok {
			return path, true
		}
	}

	if candidates := r.aliases[name]; len(candidates) == 1 {
		return candidates[0], true
	} else if len(candidates) > 1 {
		r.log.Debug("ambiguous library name in tree", "name", name, "candidates", len(candidates))
	}

	for _, dir := range r.s.LibDirs {
		if path, ok := regularFile(filepath.Join(dir, name)); ok {
			return path, true
		}
	}
	return "", false
}

func expandOrigin(dir, origin string) string {
	dir = strings.ReplaceAll(dir, "${ORIGIN}", origin)
	return strings.ReplaceAll(dir, "$ORIGIN", origin)
}

// regularFile returns the symlink-free path of candidate when it names a
// regular file.
func regularFile(candidate string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", false
	}
	return abs, true
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
