package graph

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Unreachable is the distance recorded for pairs with no directed path.
const Unreachable = math.MaxInt

// reachability caches the all-pairs hop-count matrix. dist is nil while the
// cache is invalid. Mutators clear it while holding the graph write lock;
// readers rebuild it holding the graph read lock plus mu.
type reachability struct {
	mu   sync.Mutex
	n    int
	dist []int
}

func (r *reachability) invalidate() {
	r.dist = nil
	r.n = 0
}

// HasPath reports whether to can be reached from from by following edges.
// Every node reaches itself. Unknown keys panic.
//
// The first call after a mutation rebuilds the distance matrix in O(V³);
// later calls are O(1).
func (g *Graph) HasPath(from, to string) bool {
	_, ok := g.Distance(from, to)
	return ok
}

// Distance returns the minimum number of edges from from to to, or false when
// to is unreachable.
func (g *Graph) Distance(from, to string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	src := g.mustResolveLocked(from)
	dst := g.mustResolveLocked(to)

	g.reach.mu.Lock()
	defer g.reach.mu.Unlock()
	if g.reach.dist == nil {
		g.computeDistanceMatrixLocked()
	}

	d := g.reach.dist[int(src)*g.reach.n+int(dst)]
	if d == Unreachable {
		return 0, false
	}
	return d, true
}

// computeDistanceMatrixLocked runs Floyd-Warshall with unit edge weights over
// the current vertex set.
func (g *Graph) computeDistanceMatrixLocked() {
	start := time.Now()
	n := len(g.keys)
	dist := make([]int, n*n)
	for i := range dist {
		dist[i] = Unreachable
	}
	for i := 0; i < n; i++ {
		dist[i*n+i] = 0
	}
	for _, e := range g.edges {
		idx := int(e.Source)*n + int(e.Target)
		if dist[idx] > 1 {
			dist[idx] = 1
		}
	}

	for k := 0; k < n; k++ {
		row := dist[k*n : (k+1)*n]
		for i := 0; i < n; i++ {
			dik := dist[i*n+k]
			if dik == Unreachable {
				continue
			}
			cur := dist[i*n : (i+1)*n]
			for j, dkj := range row {
				if dkj == Unreachable {
					continue
				}
				if through := dik + dkj; through < cur[j] {
					cur[j] = through
				}
			}
		}
	}

	g.reach.n = n
	g.reach.dist = dist

	elapsed := time.Since(start)
	matrixRebuilds.Inc()
	matrixRebuildSeconds.Observe(elapsed.Seconds())
	slog.Debug("distance matrix rebuilt", "nodes", n, "edges", len(g.edges), "duration", elapsed)
}
