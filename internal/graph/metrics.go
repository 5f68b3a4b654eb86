package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binmap_graph_nodes_added_total",
		Help: "Nodes inserted into any graph",
	})

	edgesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binmap_graph_edges_added_total",
		Help: "Edges inserted into any graph",
	})

	matrixRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binmap_graph_distance_matrix_rebuilds_total",
		Help: "Distance matrix rebuilds triggered by reachability queries",
	})

	matrixRebuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "binmap_graph_distance_matrix_rebuild_seconds",
		Help:    "Time spent rebuilding the distance matrix",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)
