package scheduler

import (
	"fmt"

	"csb/internal/diag"
	"csb/internal/source"
	"csb/internal/unit"
)

// round is the outcome of one readiness pass.
type round struct {
	targets []*source.Source
	// workflows holds the phases each target had completed when selected.
	workflows []unit.Phase
}

// batchGreedy advances ready units one phase per round until every target
// is postprocessed or the build halts.
func (s *Scheduler) batchGreedy() {
	for {
		r := s.nextRound()
		if r == nil {
			return
		}

		postprocessed := 0
		for i, src := range r.targets {
			w := r.workflows[i]
			switch {
			case w&unit.Preprocess == 0:
				s.preprocess(src)
			case w&unit.Parse1 == 0:
				s.parse1(src)
				s.resolveInheritance(src)
				s.addGeneratedSources(src)
			case w&unit.Parse2 == 0:
				s.parse2(src)
				s.addGeneratedSources(src)
			case w&unit.Analyze1 == 0:
				s.analyze1(src)
				s.resolveNamespaces(src)
				s.addGeneratedSources(src)
			case w&unit.Analyze2 == 0:
				s.analyze2(src)
				s.resolveTypes(src)
				if s.cfg.Strict {
					s.resolveImportStatements(src)
				}
				s.resolveExpressions(src)
			case w&unit.Analyze3 == 0:
				s.analyze3(src)
			case w&unit.Analyze4 == 0:
				s.analyze4(src)
			case w&unit.Generate == 0:
				s.generate(src)
				s.addGeneratedSources(src)
				s.resolveExpressions(src)
				s.markDone(src)
			}

			if s.halted() {
				break
			}

			if w&unit.Generate != 0 {
				s.postprocess(src)
				s.resolveExpressions(src)
				postprocessed++
			}
		}

		if s.stop != "" {
			return
		}
		if postprocessed == len(r.targets) && len(s.sources) == len(r.targets) {
			return
		}
	}
}

// readiness classifies a source for the next round.
type readiness int

const (
	notReady readiness = iota
	readyPreprocess
	readyParse1
	readyParse2
	readyAnalyze1
	readyAnalyze2
	readyAnalyze3
	readyAnalyze4
	readyGenerate
	finished
)

// readinessOf applies the phase gates to src.
func (s *Scheduler) readinessOf(src *source.Source, w unit.Phase, visited visitSet) readiness {
	ok := !src.HasError()
	u := s.arena.UnitOf(src)
	switch {
	case w&unit.Preprocess == 0:
		if ok {
			return readyPreprocess
		}
	case w&unit.Parse1 == 0:
		if ok {
			return readyParse1
		}
	case w&unit.Parse2 == 0:
		if ok && s.check(u, unit.Inheritance, unit.Parse2) {
			return readyParse2
		}
	case w&unit.Analyze1 == 0:
		if ok {
			return readyAnalyze1
		}
	case w&unit.Analyze2 == 0:
		if ok && s.checkInheritance(u, unit.Analyze2, visited) &&
			s.check(u, unit.Namespaces, unit.Analyze2) {
			return readyAnalyze2
		}
	case w&unit.Analyze3 == 0:
		if ok && s.checkInheritance(u, unit.Analyze3, visited) &&
			s.check(u, unit.Types, unit.Analyze2) &&
			s.check(u, unit.Namespaces, unit.Analyze3) &&
			(!s.checksExpressions() || s.check(u, unit.Expressions, unit.Analyze2)) {
			return readyAnalyze3
		}
	case w&unit.Analyze4 == 0:
		if ok && s.checkInheritance(u, unit.Analyze4, visited) &&
			s.check(u, unit.Namespaces, unit.Analyze4) &&
			s.checkDeep(u, unit.Types, clearVisits(visited)) &&
			(!s.checksExpressions() || s.checkDeep(u, unit.Expressions, clearVisits(visited))) {
			return readyAnalyze4
		}
	case w&unit.Generate == 0:
		if ok {
			return readyGenerate
		}
	default:
		if ok {
			return finished
		}
	}
	return notReady
}

func (s *Scheduler) checksExpressions() bool {
	return s.cfg.Strict || s.cfg.Warnings
}

func clearVisits(v visitSet) visitSet {
	for k := range v {
		delete(v, k)
	}
	return v
}

// nextRound selects the sources to advance. It returns nil when nothing can
// advance, after reporting why.
func (s *Scheduler) nextRound() *round {
	n := len(s.sources)
	states := make([]readiness, n)
	workflows := make([]unit.Phase, n)
	isDone := 0
	visited := make(visitSet)

	for i := n - 1; i >= 0; i-- {
		src := s.sources[i]
		workflows[i] = s.workflow(src)
		states[i] = s.readinessOf(src, workflows[i], visited)
		if states[i] == finished {
			isDone++
		}
		clearVisits(visited)
	}

	r := &round{}
	pick := func(i int) {
		r.targets = append(r.targets, s.sources[i])
		r.workflows = append(r.workflows, workflows[i])
	}
	binary := func(i int) bool {
		return s.sources[i].Kind() == source.KindBinary
	}
	tier := func(state readiness, match func(int) bool, costed bool, budget *float64) {
		for i := 0; i < n; i++ {
			if states[i] != state || !match(i) {
				continue
			}
			if costed && *budget >= s.cfg.RoundBudget {
				return
			}
			pick(i)
			if costed {
				*budget += s.cost(s.sources[i])
			}
		}
	}
	every := func(int) bool { return true }
	notBinary := func(i int) bool { return !binary(i) }

	budget := 0.0
	tier(readyGenerate, every, false, &budget)
	tier(readyAnalyze3, every, false, &budget)
	tier(readyAnalyze4, every, false, &budget)
	tier(readyAnalyze1, every, false, &budget)
	tier(readyPreprocess, every, false, &budget)
	tier(readyAnalyze2, binary, false, &budget)
	tier(readyParse2, binary, false, &budget)
	tier(readyParse1, binary, false, &budget)
	tier(readyAnalyze2, notBinary, true, &budget)
	tier(readyParse2, notBinary, true, &budget)
	tier(readyParse1, notBinary, true, &budget)

	if len(r.targets) > 0 {
		return r
	}

	if isDone == n {
		for i := range s.sources {
			pick(i)
		}
		return r
	}

	s.detectCycles()
	if s.sink.ErrorCount() == 0 {
		s.sink.ErrorNamed("", diag.InternalError, fmt.Sprintf(
			"scheduler deadlock: %d of %d sources cannot advance", n-isDone, n))
	}
	return nil
}

// cost estimates the work of advancing src one phase.
func (s *Scheduler) cost(src *source.Source) float64 {
	var weight float64
	switch src.Kind() {
	case source.KindMarkup:
		weight = s.cfg.MarkupWeight
	case source.KindScript:
		weight = s.cfg.ScriptWeight
	default:
		return 0
	}
	return float64(src.Size()) * weight / s.cfg.Factor
}
