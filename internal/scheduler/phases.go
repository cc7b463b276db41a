package scheduler

import (
	"fmt"

	"github.com/google/uuid"

	"csb/internal/diag"
	"csb/internal/processor"
	"csb/internal/source"
	"csb/internal/unit"
)

// processorFor returns the processor bound when src was discovered.
func (s *Scheduler) processorFor(src *source.Source) (processor.PhaseProcessor, bool) {
	p, ok := s.processors[src.Name()]
	return p, ok
}

func (s *Scheduler) reportFailure(src *source.Source, phase unit.Phase, err error) {
	s.sink.Error(src, diag.ProcessorError, fmt.Sprintf("%s: %v", phase, err))
}

// workflow returns the phases src has completed. A source that was not
// preprocessed has none, whatever its unit says.
func (s *Scheduler) workflow(src *source.Source) unit.Phase {
	if !src.IsPreprocessed() {
		return 0
	}
	u := s.arena.UnitOf(src)
	if u == nil || !u.HasReached(unit.Parse1) {
		return unit.Preprocess
	}
	return u.Workflow()
}

func (s *Scheduler) preprocess(src *source.Source) {
	if src.IsPreprocessed() {
		return
	}
	if s.arena.IsCompiled(src) {
		s.reconnect(src)
	} else {
		p, ok := s.processorFor(src)
		if !ok {
			return
		}
		if err := p.Preprocess(s.pc, src); err != nil {
			s.reportFailure(src, unit.Preprocess, err)
			return
		}
	}
	src.MarkPreprocessed()
	s.tickProgress()
}

func (s *Scheduler) parse1(src *source.Source) {
	if u := s.arena.UnitOf(src); u != nil && u.HasReached(unit.Parse1) {
		return
	}
	p, ok := s.processorFor(src)
	if !ok {
		return
	}
	u, err := p.Parse1(s.pc, src)
	if err != nil {
		s.reportFailure(src, unit.Parse1, err)
		return
	}
	if u == nil {
		s.sink.Error(src, diag.ProcessorError, "parse1 produced no unit")
		return
	}
	s.arena.Attach(u)
	if src.HasError() {
		return
	}
	s.symbols.RegisterQNames(u.TopLevelDefinitions, src)
	u.MarkReached(unit.Preprocess | unit.Parse1)
	s.igraph.AddVertex(src.Name(), src)
	s.dgraph.AddVertex(src.Name(), src)
	s.tickProgress()
}

// runUnitPhase invokes one unit-level phase unless the unit is compiled
// already, then marks it reached when no error was reported.
func (s *Scheduler) runUnitPhase(src *source.Source, phase unit.Phase, call func(processor.PhaseProcessor, *unit.Unit) error) (*unit.Unit, bool) {
	u := s.arena.UnitOf(src)
	if u == nil || u.HasReached(phase) {
		return u, false
	}
	if !s.arena.IsCompiled(src) {
		p, ok := s.processorFor(src)
		if !ok {
			return u, false
		}
		if err := call(p, u); err != nil {
			s.reportFailure(src, phase, err)
			return u, false
		}
	}
	if src.HasError() {
		return u, false
	}
	u.MarkReached(phase)
	s.tickProgress()
	return u, true
}

func (s *Scheduler) parse2(src *source.Source) {
	u, ok := s.runUnitPhase(src, unit.Parse2, func(p processor.PhaseProcessor, u *unit.Unit) error {
		return p.Parse2(s.pc, u)
	})
	if !ok || !u.HasTypeInfo() {
		return
	}
	ti := u.TypeInfo()
	if ti.Signature != "" {
		src.SetSignature(ti.Signature)
	}
	if ti.Slot == "" {
		if slot, seeded := s.symbols.SeededSlot(src.Name(), ti.Signature); seeded {
			ti.Slot = slot
		} else {
			ti.Slot = uuid.New().String()
		}
	}
}

func (s *Scheduler) analyze1(src *source.Source) {
	u, ok := s.runUnitPhase(src, unit.Analyze1, func(p processor.PhaseProcessor, u *unit.Unit) error {
		return p.Analyze1(s.pc, u)
	})
	if ok && (src.IsSourcePathOwner() || src.IsSourceListOwner()) {
		s.checkDefinitions(src, u)
	}
}

// checkDefinitions verifies that a source found by path defines exactly one
// definition named after that path.
func (s *Scheduler) checkDefinitions(src *source.Source, u *unit.Unit) {
	defs := u.TopLevelDefinitions
	switch {
	case len(defs) > 1:
		s.sink.Error(src, diag.MoreThanOneDefinition,
			fmt.Sprintf("%s defines %d definitions, expected one", src.NameForReporting(), len(defs)))
	case len(defs) == 0:
		s.sink.Error(src, diag.MustHaveOneDefinition,
			fmt.Sprintf("%s must define exactly one definition", src.NameForReporting()))
	case defs[0].Namespace != src.Namespace():
		s.sink.Error(src, diag.WrongPackageName,
			fmt.Sprintf("package %q does not match directory %q", defs[0].Namespace, src.Namespace()))
	case defs[0].Local != src.ShortName():
		s.sink.Error(src, diag.WrongDefinitionName,
			fmt.Sprintf("definition %q does not match file name %q", defs[0].Local, src.ShortName()))
	}
}

func (s *Scheduler) analyze2(src *source.Source) {
	s.runUnitPhase(src, unit.Analyze2, func(p processor.PhaseProcessor, u *unit.Unit) error {
		return p.Analyze2(s.pc, u)
	})
}

func (s *Scheduler) analyze3(src *source.Source) {
	s.runUnitPhase(src, unit.Analyze3, func(p processor.PhaseProcessor, u *unit.Unit) error {
		return p.Analyze3(s.pc, u)
	})
}

func (s *Scheduler) analyze4(src *source.Source) {
	s.runUnitPhase(src, unit.Analyze4, func(p processor.PhaseProcessor, u *unit.Unit) error {
		return p.Analyze4(s.pc, u)
	})
}

func (s *Scheduler) generate(src *source.Source) {
	u := s.arena.UnitOf(src)
	if u == nil || u.HasReached(unit.Generate) {
		return
	}
	u.MarkReached(unit.Generate)
	if !u.HasBytecode() {
		p, ok := s.processorFor(src)
		if !ok {
			return
		}
		if err := p.Generate(s.pc, u); err != nil {
			s.reportFailure(src, unit.Generate, err)
			return
		}
	}
	s.tickProgress()
}

func (s *Scheduler) postprocess(src *source.Source) {
	u := s.arena.UnitOf(src)
	if u == nil {
		return
	}
	p, ok := s.processorFor(src)
	if !ok {
		return
	}
	if err := p.Postprocess(s.pc, u); err != nil {
		s.sink.Error(src, diag.ProcessorError, "postprocess: "+err.Error())
	}
}

func (s *Scheduler) markDone(src *source.Source) {
	if u := s.arena.UnitOf(src); u != nil && s.arena.IsCompiled(src) {
		u.MarkDone()
	}
}
