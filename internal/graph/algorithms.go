package graph

import "sort"

// TopologicalSort orders vertices so that every vertex follows all of its
// dependencies. Ties keep insertion order. Vertices on or behind a cycle are
// never visited; they are returned in insertion order as the second result.
func (g *Graph[W]) TopologicalSort() (sorted, unvisited []string) {
	pending := make(map[int]int, len(g.nodeIdx))
	var ready []int
	for i := range g.nodes {
		pending[i] = len(g.outEdges[i])
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	visited := make(map[int]bool, len(pending))
	for len(ready) > 0 {
		sort.Ints(ready)
		idx := ready[0]
		ready = ready[1:]
		visited[idx] = true
		sorted = append(sorted, g.nodes[idx])

		for from := range g.inEdges[idx] {
			pending[from]--
			if pending[from] == 0 {
				ready = append(ready, from)
			}
		}
	}

	for i := range g.nodes {
		if !visited[i] {
			unvisited = append(unvisited, g.nodes[i])
		}
	}
	return sorted, unvisited
}

// Cycles returns the strongly connected components that contain a cycle.
// Each component is sorted by name; components are ordered by their first
// member.
func (g *Graph[W]) Cycles() [][]string {
	index := 0
	indices := make(map[int]int)
	lowlink := make(map[int]int)
	onStack := make(map[int]bool)
	var stack []int
	var out [][]string

	var connect func(v int)
	connect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for w := range g.outEdges[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indices[w] < lowlink[v] {
				lowlink[v] = indices[w]
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, g.nodes[w])
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				sort.Strings(component)
				out = append(out, component)
			}
		}
	}

	for i := range g.nodes {
		if _, seen := indices[i]; !seen {
			connect(i)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
