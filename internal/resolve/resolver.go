package resolve

import (
	"fmt"

	"csb/internal/diag"
	"csb/internal/lookup"
	"csb/internal/names"
	"csb/internal/source"
	"csb/internal/unit"
)

// BundleSuffix is appended to the per-locale definition of a bundle.
const BundleSuffix = "_properties"

// Collaborators are the lookup sources consulted on a symbol-table miss.
// Any of them may be nil.
type Collaborators struct {
	FileSpec   *lookup.FileSpec
	SourceList *lookup.SourceList
	SourcePath *lookup.SourcePath
	Resources  *lookup.ResourceContainer
	Library    *lookup.Library
	BundlePath *lookup.BundlePath
}

// Resolver resolves names against the symbol table and the collaborators.
// Sources it discovers are handed to the discover callback so the caller can
// add them to the build.
type Resolver struct {
	Symbols  *SymbolTable
	lookup   Collaborators
	arena    *unit.Arena
	sink     *diag.Sink
	locales  []string
	discover func(*source.Source) *source.Source
}

// New creates a resolver.
func New(symbols *SymbolTable, collab Collaborators, arena *unit.Arena, sink *diag.Sink, locales []string) *Resolver {
	return &Resolver{
		Symbols: symbols,
		lookup:  collab,
		arena:   arena,
		sink:    sink,
		locales: locales,
		discover: func(s *source.Source) *source.Source {
			return arena.Track(s)
		},
	}
}

// OnDiscover sets the callback that registers a newly found source with the
// build. The callback returns the canonical instance to use.
func (r *Resolver) OnDiscover(fn func(*source.Source) *source.Source) {
	r.discover = fn
}

// Collaborators returns the lookup collaborators.
func (r *Resolver) Collaborators() Collaborators {
	return r.lookup
}

// Locales returns the configured locales.
func (r *Resolver) Locales() []string {
	return r.locales
}

// findDefinition consults the collaborators in order. A library definition
// replaces a local one when there is no local one, or when both carry the
// same stamp and the local one has no type info yet.
func (r *Resolver) findDefinition(namespace, local string) *source.Source {
	var s *source.Source
	if r.lookup.FileSpec != nil {
		s = r.lookup.FileSpec.Find(namespace, local)
	}
	if s == nil && r.lookup.SourceList != nil {
		s = r.lookup.SourceList.Find(namespace, local)
	}
	if s == nil && r.lookup.SourcePath != nil {
		s = r.lookup.SourcePath.Find(namespace, local)
	}
	if s == nil && r.lookup.Resources != nil {
		s = r.lookup.Resources.Find(namespace, local)
	}

	var libSource *source.Source
	if r.lookup.Library != nil {
		libSource = r.lookup.Library.Find(namespace, local)
	}
	if libSource != nil {
		if s == nil {
			s = libSource
		} else if s.LastModified() == libSource.LastModified() {
			if u := r.arena.UnitOf(s); u == nil || !u.HasTypeInfo() {
				s = libSource
			}
		}
	}

	if s == nil {
		return nil
	}
	return r.discover(s)
}

// ResolveMultiName resolves m on behalf of reporter. It returns false when
// the name is unresolved or ambiguous. An ambiguous name is reported once and
// never resolved again in this session.
func (r *Resolver) ResolveMultiName(reporter *source.Source, m names.MultiName) (names.QName, *source.Source, bool) {
	if q, ok := r.Symbols.IsMultiNameResolved(m); ok {
		if s := r.Symbols.FindSourceByQName(q); s != nil {
			return q, s, true
		}
	}
	if r.Symbols.IsAmbiguous(m) {
		return names.QName{}, nil, false
	}

	var (
		found   names.QName
		foundIn *source.Source
	)
	for _, q := range m.QNames() {
		s := r.Symbols.FindSourceByQName(q)
		if s == nil {
			s = r.findDefinition(q.Namespace, q.Local)
		}
		if s == nil {
			continue
		}
		if foundIn == nil {
			found, foundIn = q, s
			continue
		}
		if q != found {
			r.sink.Error(reporter, diag.AmbiguousName, fmt.Sprintf(
				"ambiguous reference to %s: %s (%s) and %s (%s)",
				m.Local, found, foundIn.NameForReporting(), q, s.NameForReporting()))
			r.Symbols.MarkAmbiguous(m)
			return names.QName{}, nil, false
		}
	}

	if foundIn == nil {
		return names.QName{}, nil, false
	}
	r.Symbols.RegisterMultiName(m, found)
	r.Symbols.RegisterQName(found, foundIn)
	return found, foundIn, true
}

// ValidateMultiName re-runs a recorded resolution against the source path.
// It returns false when some candidate now resolves to a different
// definition than q.
func (r *Resolver) ValidateMultiName(m names.MultiName, q names.QName) bool {
	sp := r.lookup.SourcePath
	if sp == nil {
		return true
	}
	for _, candidate := range m.QNames() {
		s := sp.Find(candidate.Namespace, candidate.Local)
		if s == nil {
			continue
		}
		ns := candidate.Namespace
		if u := r.arena.UnitOf(s); u != nil && len(u.TopLevelDefinitions) > 0 {
			ns = u.TopLevelDefinitions[0].Namespace
		}
		if ns != q.Namespace || candidate.Local != q.Local {
			return false
		}
	}
	return true
}

// BundleQNames returns the per-locale definitions of a bundle.
func BundleQNames(name string, locales []string) []names.QName {
	bn := names.ParseQName(name)
	out := make([]names.QName, len(locales))
	for i, locale := range locales {
		out[i] = names.NewQName(bn.Namespace, locale+"$"+bn.Local+BundleSuffix)
	}
	return out
}

// ResolveBundle resolves a bundle by name through source list, bundle path
// and library, keeping the first complete bundle and otherwise merging
// fragments in that order.
func (r *Resolver) ResolveBundle(name string) ([]names.QName, *source.Source) {
	if qs, ok := r.Symbols.IsBundleResolved(name); ok {
		return qs, r.Symbols.FindSourceByBundleName(name)
	}

	s := r.Symbols.FindSourceByBundleName(name)
	var qs []names.QName
	if s == nil {
		bn := names.ParseQName(name)
		s = r.findBundle(bn.Namespace, bn.Local)
		if s != nil {
			s = r.discover(s)
			qs = BundleQNames(name, r.locales)
		}
	}
	r.Symbols.RegisterBundle(name, qs, s)
	return qs, s
}

func (r *Resolver) findBundle(namespace, local string) *source.Source {
	finders := []lookup.BundleFinder{}
	if r.lookup.SourceList != nil {
		finders = append(finders, r.lookup.SourceList)
	}
	if r.lookup.BundlePath != nil {
		finders = append(finders, r.lookup.BundlePath)
	}
	if r.lookup.Library != nil {
		finders = append(finders, r.lookup.Library)
	}

	var (
		first  *source.Source
		bundle *lookup.Bundle
	)
	for _, f := range finders {
		s := f.FindBundle(r.locales, namespace, local)
		if s == nil {
			continue
		}
		b, ok := lookup.BundleOf(s)
		if !ok {
			continue
		}
		if first == nil {
			first, bundle = s, b
		} else {
			bundle.Merge(b)
		}
		if bundle.Complete(r.locales) {
			break
		}
	}
	return first
}
