package unit

import (
	"sort"

	"csb/internal/source"
)

type slot struct {
	source *source.Source
	unit   *Unit
}

// Arena indexes sources and their units by source name. It is the only owner
// of the source-to-unit association.
type Arena struct {
	slots map[string]*slot
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{slots: make(map[string]*slot)}
}

// Track registers s without a unit. Tracking a known name keeps the existing
// entry and returns its source.
func (a *Arena) Track(s *source.Source) *source.Source {
	if sl, ok := a.slots[s.Name()]; ok {
		return sl.source
	}
	a.slots[s.Name()] = &slot{source: s}
	return s
}

// Attach associates u with its source, replacing any previous unit.
func (a *Arena) Attach(u *Unit) {
	name := u.Source.Name()
	if sl, ok := a.slots[name]; ok {
		sl.source = u.Source
		sl.unit = u
		return
	}
	a.slots[name] = &slot{source: u.Source, unit: u}
}

// Source returns the tracked source for name.
func (a *Arena) Source(name string) *source.Source {
	if sl, ok := a.slots[name]; ok {
		return sl.source
	}
	return nil
}

// Unit returns the unit of the named source, or nil.
func (a *Arena) Unit(name string) *Unit {
	if sl, ok := a.slots[name]; ok {
		return sl.unit
	}
	return nil
}

// UnitOf returns the unit of s, or nil.
func (a *Arena) UnitOf(s *source.Source) *Unit {
	if s == nil {
		return nil
	}
	return a.Unit(s.Name())
}

// Invalidate drops the unit of the named source and clears the source's
// compile-time state in one step. It reports whether a unit was dropped.
func (a *Arena) Invalidate(name string) bool {
	sl, ok := a.slots[name]
	if !ok {
		return false
	}
	had := sl.unit != nil
	sl.unit = nil
	sl.source.Restamp()
	return had
}

// Forget removes the named source entirely.
func (a *Arena) Forget(name string) {
	delete(a.slots, name)
}

// IsCompiled reports whether s produced output or is an internal placeholder
// with a unit.
func (a *Arena) IsCompiled(s *source.Source) bool {
	u := a.UnitOf(s)
	if u == nil {
		return false
	}
	return u.HasBytecode() || s.IsInternal()
}

// Names returns every tracked source name, sorted.
func (a *Arena) Names() []string {
	out := make([]string, 0, len(a.slots))
	for name := range a.slots {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Units returns every unit sorted by source name.
func (a *Arena) Units() []*Unit {
	var out []*Unit
	for _, name := range a.Names() {
		if u := a.slots[name].unit; u != nil {
			out = append(out, u)
		}
	}
	return out
}

// Len returns the number of tracked sources.
func (a *Arena) Len() int {
	return len(a.slots)
}
