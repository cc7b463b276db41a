package scheduler

import (
	"fmt"
	"strings"

	"csb/internal/diag"
)

// detectCycles reports circular-inheritance for every source the inheritance
// sort could not order and that has no error yet, and returns how many it
// reported. Members of a cycle name the cycle; sources that only inherit into
// one are reported too, since they can never be analyzed.
func (s *Scheduler) detectCycles() int {
	_, unvisited := s.igraph.TopologicalSort()
	if len(unvisited) == 0 {
		return 0
	}

	paths := make(map[string]string)
	for _, cycle := range s.igraph.Cycles() {
		path := strings.Join(cycle, " -> ")
		for _, name := range cycle {
			paths[name] = path
		}
	}

	reported := 0
	for _, name := range unvisited {
		src, ok := s.igraph.Weight(name)
		if !ok || src == nil || src.HasError() {
			continue
		}
		msg := "circular inheritance: " + paths[name]
		if paths[name] == "" {
			msg = fmt.Sprintf("%s inherits from a circular inheritance chain", src.NameForReporting())
		}
		s.sink.Error(src, diag.CircularInheritance, msg)
		reported++
	}
	if reported > 0 {
		s.logger.Warn("Inheritance cycle detected", "sources", reported)
	}
	return reported
}
