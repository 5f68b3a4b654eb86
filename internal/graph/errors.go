package graph

import "errors"

var (
	// ErrNotFound is returned by key lookups for a path that was never added.
	ErrNotFound = errors.New("node not found")

	// ErrDuplicateNode is the panic value (wrapped) when AddNode is called
	// with a key that is already present.
	ErrDuplicateNode = errors.New("duplicate node key")

	// ErrNodeNotFound is the panic value (wrapped) when an edge or adjacency
	// query references a key that is not in the graph.
	ErrNodeNotFound = errors.New("edge endpoint not in graph")
)
