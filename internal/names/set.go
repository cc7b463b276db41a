package names

// Set is an insertion-ordered set of names. Iteration order is stable so
// repeated builds over the same inputs resolve names in the same order.
type Set struct {
	keys  []string
	items map[string]Name
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{items: make(map[string]Name)}
}

// Add inserts n unless an equal name is already present.
func (s *Set) Add(n Name) bool {
	k := n.Key()
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = n
	s.keys = append(s.keys, k)
	return true
}

// AddQNames inserts every qualified name.
func (s *Set) AddQNames(qs []QName) {
	for _, q := range qs {
		s.Add(q)
	}
}

// Remove deletes n if present.
func (s *Set) Remove(n Name) bool {
	k := n.Key()
	if _, ok := s.items[k]; !ok {
		return false
	}
	delete(s.items, k)
	for i, key := range s.keys {
		if key == k {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether n is in the set.
func (s *Set) Contains(n Name) bool {
	_, ok := s.items[n.Key()]
	return ok
}

// Len returns the number of names.
func (s *Set) Len() int {
	return len(s.keys)
}

// Clear removes every name.
func (s *Set) Clear() {
	s.keys = nil
	s.items = make(map[string]Name)
}

// All returns the names in insertion order.
func (s *Set) All() []Name {
	out := make([]Name, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.items[k])
	}
	return out
}

// MultiNames returns the unresolved entries in insertion order.
func (s *Set) MultiNames() []MultiName {
	var out []MultiName
	for _, k := range s.keys {
		if m, ok := s.items[k].(MultiName); ok {
			out = append(out, m)
		}
	}
	return out
}

// QNames returns the resolved entries in insertion order.
func (s *Set) QNames() []QName {
	var out []QName
	for _, k := range s.keys {
		if q, ok := s.items[k].(QName); ok {
			out = append(out, q)
		}
	}
	return out
}

// Replace swaps old for q, keeping old's position. If q is already present
// old is simply removed.
func (s *Set) Replace(old Name, q QName) {
	oldKey := old.Key()
	if _, ok := s.items[oldKey]; !ok {
		s.Add(q)
		return
	}
	if s.Contains(q) {
		s.Remove(old)
		return
	}
	delete(s.items, oldKey)
	newKey := q.Key()
	s.items[newKey] = q
	for i, key := range s.keys {
		if key == oldKey {
			s.keys[i] = newKey
			break
		}
	}
}

// HistoryEntry records how a multi-candidate name was resolved.
type HistoryEntry struct {
	Name  MultiName
	QName QName
}

// History maps multi-candidate names to the qualified names they resolved to.
// It survives dependency resolution so invalidated units can be re-seeded.
type History struct {
	keys    []string
	entries map[string]HistoryEntry
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{entries: make(map[string]HistoryEntry)}
}

// Put records that m resolved to q.
func (h *History) Put(m MultiName, q QName) {
	k := m.Key()
	if _, ok := h.entries[k]; !ok {
		h.keys = append(h.keys, k)
	}
	h.entries[k] = HistoryEntry{Name: m, QName: q}
}

// Get returns the recorded resolution of m.
func (h *History) Get(m MultiName) (QName, bool) {
	e, ok := h.entries[m.Key()]
	return e.QName, ok
}

// Entries returns the history in insertion order.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(h.keys))
	for _, k := range h.keys {
		out = append(out, h.entries[k])
	}
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.keys)
}

// Clear removes every entry.
func (h *History) Clear() {
	h.keys = nil
	h.entries = make(map[string]HistoryEntry)
}
