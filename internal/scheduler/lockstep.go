package scheduler

import (
	"csb/internal/source"
)

// batchLockstep runs each phase over the whole build list before the next
// one. A stage that discovers new sources restarts from the top so they
// catch up.
func (s *Scheduler) batchLockstep() {
	for {
		n := len(s.sources)

		if !s.stage(s.preprocess) {
			return
		}
		if !s.stage(func(src *source.Source) {
			s.parse1(src)
			s.resolveInheritance(src)
			s.addGeneratedSources(src)
		}) {
			return
		}
		if len(s.sources) != n {
			continue
		}

		if !s.sortInheritance() {
			return
		}

		if !s.stage(s.parse2) {
			return
		}
		if !s.stage(func(src *source.Source) {
			s.analyze1(src)
			s.resolveNamespaces(src)
			s.addGeneratedSources(src)
		}) {
			return
		}
		if len(s.sources) != n {
			continue
		}

		if !s.stage(func(src *source.Source) {
			s.analyze2(src)
			s.resolveTypes(src)
			if s.cfg.Strict {
				s.resolveImportStatements(src)
			}
			if s.checksExpressions() {
				s.resolveExpressions(src)
			}
		}) {
			return
		}
		if len(s.sources) != n {
			continue
		}

		if !s.stage(s.analyze3) || !s.stage(s.analyze4) {
			return
		}
		if !s.stage(func(src *source.Source) {
			s.generate(src)
			s.markDone(src)
		}) {
			return
		}
		if !s.stage(func(src *source.Source) {
			s.postprocess(src)
			s.resolveExpressions(src)
			s.addGeneratedSources(src)
		}) {
			return
		}
		if len(s.sources) == n {
			return
		}
	}
}

// stage applies fn to every source without errors that was listed when the
// stage began, in list order. It reports false once the build must stop.
func (s *Scheduler) stage(fn func(*source.Source)) bool {
	n := len(s.sources)
	for i := 0; i < n; i++ {
		src := s.sources[i]
		if src.HasError() {
			continue
		}
		fn(src)
		if s.halted() {
			return false
		}
	}
	return true
}

// sortInheritance orders the build list so every source follows its
// superclasses. It reports false when the inheritance graph has a cycle.
func (s *Scheduler) sortInheritance() bool {
	sorted, unvisited := s.igraph.TopologicalSort()
	if len(unvisited) > 0 {
		if s.detectCycles() > 0 {
			return false
		}
	}

	order := make([]*source.Source, 0, len(s.sources))
	placed := make(map[string]bool, len(s.sources))
	for _, name := range sorted {
		if !s.listed[name] {
			continue
		}
		if src, ok := s.igraph.Weight(name); ok {
			order = append(order, src)
			placed[name] = true
		}
	}
	for _, src := range s.sources {
		if !placed[src.Name()] {
			order = append(order, src)
		}
	}
	s.sources = order
	return true
}
