// Package graph provides the dependency graphs the scheduler keeps between
// compilation units, with topological ordering and cycle detection.
package graph

import (
	"sort"
)

// Edge represents a directed edge: From depends on To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // "inheritance" or "dependency"
}

// Graph is a directed dependency graph over named vertices. Each vertex
// carries a weight of type W.
type Graph[W any] struct {
	// Vertex names in insertion order (for stable iteration)
	nodes   []string
	nodeIdx map[string]int
	weights []W

	// Adjacency: outEdges[i] = dependencies of i, inEdges[i] = dependents of i
	outEdges []map[int]string
	inEdges  []map[int]struct{}
}

// New creates an empty graph.
func New[W any]() *Graph[W] {
	return &Graph[W]{
		nodeIdx: make(map[string]int),
	}
}

// AddVertex adds a vertex if it doesn't exist and returns its index.
// An existing vertex keeps its weight.
func (g *Graph[W]) AddVertex(name string, weight W) int {
	if idx, ok := g.nodeIdx[name]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, name)
	g.nodeIdx[name] = idx
	g.weights = append(g.weights, weight)
	g.outEdges = append(g.outEdges, make(map[int]string))
	g.inEdges = append(g.inEdges, make(map[int]struct{}))
	return idx
}

// Weight returns the weight of a vertex.
func (g *Graph[W]) Weight(name string) (W, bool) {
	idx, ok := g.nodeIdx[name]
	if !ok {
		var zero W
		return zero, false
	}
	return g.weights[idx], true
}

// ContainsVertex reports whether name is a vertex.
func (g *Graph[W]) ContainsVertex(name string) bool {
	_, ok := g.nodeIdx[name]
	return ok
}

// AddEdge records that from depends on to. Both vertices must exist. It
// returns false for self edges, missing vertices and existing edges.
func (g *Graph[W]) AddEdge(from, to, kind string) bool {
	if from == to {
		return false
	}
	fi, ok := g.nodeIdx[from]
	if !ok {
		return false
	}
	ti, ok := g.nodeIdx[to]
	if !ok {
		return false
	}
	if _, exists := g.outEdges[fi][ti]; exists {
		return false
	}
	g.outEdges[fi][ti] = kind
	g.inEdges[ti][fi] = struct{}{}
	return true
}

// ContainsEdge reports whether from depends on to.
func (g *Graph[W]) ContainsEdge(from, to string) bool {
	fi, ok := g.nodeIdx[from]
	if !ok {
		return false
	}
	ti, ok := g.nodeIdx[to]
	if !ok {
		return false
	}
	_, exists := g.outEdges[fi][ti]
	return exists
}

// NumVertices returns the number of vertices.
func (g *Graph[W]) NumVertices() int {
	return len(g.nodeIdx)
}

// NumEdges returns the total number of edges.
func (g *Graph[W]) NumEdges() int {
	total := 0
	for _, edges := range g.outEdges {
		total += len(edges)
	}
	return total
}

// Edges returns every edge, ordered by source then target name.
func (g *Graph[W]) Edges() []Edge {
	var out []Edge
	for i, edges := range g.outEdges {
		for to, kind := range edges {
			out = append(out, Edge{From: g.nodes[i], To: g.nodes[to], Kind: kind})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// GraphStats summarizes a graph.
type GraphStats struct {
	TotalVertices    int     `json:"totalVertices"`
	TotalEdges       int     `json:"totalEdges"`
	InheritanceEdges int     `json:"inheritanceEdges"`
	DependencyEdges  int     `json:"dependencyEdges"`
	AvgOutDegree     float64 `json:"avgOutDegree"`
}

// Stats returns statistics about the graph.
func (g *Graph[W]) Stats() GraphStats {
	stats := GraphStats{
		TotalVertices: g.NumVertices(),
	}
	for _, e := range g.Edges() {
		stats.TotalEdges++
		switch e.Kind {
		case "inheritance":
			stats.InheritanceEdges++
		default:
			stats.DependencyEdges++
		}
	}
	if stats.TotalVertices > 0 {
		stats.AvgOutDegree = float64(stats.TotalEdges) / float64(stats.TotalVertices)
	}
	return stats
}
