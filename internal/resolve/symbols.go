// Package resolve turns multi-candidate names into qualified names and the
// sources that define them.
package resolve

import (
	"sort"

	"csb/internal/names"
	"csb/internal/source"
)

type bundleEntry struct {
	qnames []names.QName
	source *source.Source
}

type seededSlot struct {
	signature string
	slot      string
}

// SymbolTable is the session-wide resolution cache.
type SymbolTable struct {
	qnames    map[names.QName]*source.Source
	resolved  map[string]names.QName
	ambiguous map[string]bool
	bundles   map[string]bundleEntry
	slots     map[string]seededSlot
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		qnames:    make(map[names.QName]*source.Source),
		resolved:  make(map[string]names.QName),
		ambiguous: make(map[string]bool),
		bundles:   make(map[string]bundleEntry),
		slots:     make(map[string]seededSlot),
	}
}

// RegisterQName records that s defines q.
func (st *SymbolTable) RegisterQName(q names.QName, s *source.Source) {
	st.qnames[q] = s
}

// RegisterQNames records every definition of s.
func (st *SymbolTable) RegisterQNames(qs []names.QName, s *source.Source) {
	for _, q := range qs {
		st.qnames[q] = s
	}
}

// FindSourceByQName returns the source known to define q.
func (st *SymbolTable) FindSourceByQName(q names.QName) *source.Source {
	return st.qnames[q]
}

// RegisterMultiName memoizes a resolution.
func (st *SymbolTable) RegisterMultiName(m names.MultiName, q names.QName) {
	st.resolved[m.Key()] = q
}

// IsMultiNameResolved returns a memoized resolution.
func (st *SymbolTable) IsMultiNameResolved(m names.MultiName) (names.QName, bool) {
	q, ok := st.resolved[m.Key()]
	return q, ok
}

// MarkAmbiguous remembers that m must not be resolved again.
func (st *SymbolTable) MarkAmbiguous(m names.MultiName) {
	st.ambiguous[m.Key()] = true
}

// IsAmbiguous reports whether m was found ambiguous.
func (st *SymbolTable) IsAmbiguous(m names.MultiName) bool {
	return st.ambiguous[m.Key()]
}

// RegisterBundle records the per-locale names and the source of a bundle.
// A nil source records a failed lookup.
func (st *SymbolTable) RegisterBundle(name string, qnames []names.QName, s *source.Source) {
	st.bundles[name] = bundleEntry{qnames: qnames, source: s}
	for _, q := range qnames {
		if s != nil {
			st.qnames[q] = s
		}
	}
}

// IsBundleResolved returns the per-locale names of a resolved bundle.
func (st *SymbolTable) IsBundleResolved(name string) ([]names.QName, bool) {
	e, ok := st.bundles[name]
	if !ok || e.qnames == nil {
		return nil, false
	}
	return e.qnames, true
}

// FindSourceByBundleName returns the source of a bundle.
func (st *SymbolTable) FindSourceByBundleName(name string) *source.Source {
	return st.bundles[name].source
}

// SeedSlot records the slot a source's definitions held in the previous
// build, together with the signature they were compiled from.
func (st *SymbolTable) SeedSlot(sourceName, signature, slot string) {
	st.slots[sourceName] = seededSlot{signature: signature, slot: slot}
}

// SeededSlot returns the seeded slot if the signature still matches.
func (st *SymbolTable) SeededSlot(sourceName, signature string) (string, bool) {
	s, ok := st.slots[sourceName]
	if !ok || s.slot == "" || signature == "" || s.signature != signature {
		return "", false
	}
	return s.slot, true
}

// QNames returns every registered definition, sorted.
func (st *SymbolTable) QNames() []names.QName {
	out := make([]names.QName, 0, len(st.qnames))
	for q := range st.qnames {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Forget drops every definition registered for the named source.
func (st *SymbolTable) Forget(sourceName string) {
	for q, s := range st.qnames {
		if s != nil && s.Name() == sourceName {
			delete(st.qnames, q)
		}
	}
	for key, q := range st.resolved {
		if s, ok := st.qnames[q]; !ok || s == nil {
			delete(st.resolved, key)
		}
	}
}
