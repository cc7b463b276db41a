package scheduler

import (
	"csb/internal/names"
	"csb/internal/source"
	"csb/internal/unit"
)

// visitSet guards the recursive checks against inheritance and type cycles.
type visitSet map[string]bool

// lookupQName returns the source and unit defining a resolved dependency.
func (s *Scheduler) lookupQName(q names.QName) (*source.Source, *unit.Unit) {
	src := s.symbols.FindSourceByQName(q)
	if src == nil {
		return nil, nil
	}
	return src, s.arena.UnitOf(src)
}

// check reports whether every resolved dependency of class c has reached p
// with type information. Unresolved names do not gate.
func (s *Scheduler) check(u *unit.Unit, c unit.DepClass, p unit.Phase) bool {
	if u.Valid(c, p) {
		return true
	}
	if !s.satisfied(u, c, p) {
		return false
	}
	u.MarkValid(c, p)
	return true
}

// satisfied is check without memoization.
func (s *Scheduler) satisfied(u *unit.Unit, c unit.DepClass, p unit.Phase) bool {
	for _, q := range u.Deps(c).QNames() {
		src, dep := s.lookupQName(q)
		if dep == u {
			continue
		}
		if dep == nil || !dep.HasReached(p) || !dep.HasTypeInfo() || src.HasError() {
			return false
		}
	}
	return true
}

// checkInheritance checks the inheritance chain of u transitively.
func (s *Scheduler) checkInheritance(u *unit.Unit, p unit.Phase, visited visitSet) bool {
	visited[u.Source.Name()] = true
	if !s.check(u, unit.Inheritance, p) {
		return false
	}
	for _, q := range u.Inheritance.QNames() {
		_, dep := s.lookupQName(q)
		if dep == u {
			continue
		}
		if dep == nil {
			return false
		}
		if visited[dep.Source.Name()] {
			continue
		}
		if !s.checkInheritance(dep, p, visited) {
			return false
		}
	}
	return true
}

// checkDeep checks that the class c dependencies of u, and everything they
// inherit from or refer to, reached analyze3.
func (s *Scheduler) checkDeep(u *unit.Unit, c unit.DepClass, visited visitSet) bool {
	if u.Valid(c, unit.Analyze3) {
		return true
	}
	visited[u.Source.Name()] = true
	if !s.satisfied(u, c, unit.Analyze3) {
		return false
	}
	for _, q := range u.Deps(c).QNames() {
		_, dep := s.lookupQName(q)
		if dep == nil {
			return false
		}
		if dep == u || visited[dep.Source.Name()] {
			continue
		}
		if !s.checkDeep(dep, unit.Inheritance, visited) ||
			!s.checkDeep(dep, unit.Types, visited) ||
			!s.checkDeep(dep, unit.Expressions, visited) {
			return false
		}
	}
	u.MarkValid(c, unit.Analyze3)
	return true
}
