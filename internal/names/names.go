// Package names provides the identity types used to link compilation units:
// fully qualified names and multi-candidate names awaiting resolution.
package names

import (
	"sort"
	"strings"
)

// Name is either a resolved QName or an unresolved MultiName.
type Name interface {
	// Key returns a string that uniquely identifies the name within a Set.
	Key() string
	String() string
}

// QName is a fully disambiguated (namespace, local name) pair.
type QName struct {
	Namespace string
	Local     string
}

// NewQName creates a qualified name.
func NewQName(namespace, local string) QName {
	return QName{Namespace: namespace, Local: local}
}

// ParseQName splits "a.b:C" or "a.b.C" into a QName.
// A name without a separator lives in the unnamed namespace.
func ParseQName(s string) QName {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return QName{Namespace: s[:i], Local: s[i+1:]}
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return QName{Namespace: s[:i], Local: s[i+1:]}
	}
	return QName{Local: s}
}

// Key implements Name.
func (q QName) Key() string {
	return "q|" + q.Namespace + "|" + q.Local
}

// String returns "namespace:local", or just the local name for the unnamed namespace.
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return q.Namespace + ":" + q.Local
}

// Dotted returns "namespace.local".
func (q QName) Dotted() string {
	if q.Namespace == "" {
		return q.Local
	}
	return q.Namespace + "." + q.Local
}

// Compare orders qualified names by namespace, then local name.
func (q QName) Compare(o QName) int {
	if c := strings.Compare(q.Namespace, o.Namespace); c != 0 {
		return c
	}
	return strings.Compare(q.Local, o.Local)
}

// IsZero reports whether q has no local name.
func (q QName) IsZero() bool {
	return q.Local == ""
}

// MultiName is a local name with an ordered list of candidate namespaces.
type MultiName struct {
	Namespaces []string
	Local      string
}

// NewMultiName creates a multi-candidate name. Duplicate namespaces are dropped,
// keeping the first occurrence.
func NewMultiName(local string, namespaces ...string) MultiName {
	seen := make(map[string]bool, len(namespaces))
	ns := make([]string, 0, len(namespaces))
	for _, n := range namespaces {
		if seen[n] {
			continue
		}
		seen[n] = true
		ns = append(ns, n)
	}
	return MultiName{Namespaces: ns, Local: local}
}

// FromQName returns the single-candidate MultiName for q.
func FromQName(q QName) MultiName {
	return MultiName{Namespaces: []string{q.Namespace}, Local: q.Local}
}

// Key implements Name.
func (m MultiName) Key() string {
	return "m|" + strings.Join(m.Namespaces, ",") + "|" + m.Local
}

// String renders the candidates as "{ns1, ns2}::local".
func (m MultiName) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, ns := range m.Namespaces {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ns)
	}
	b.WriteString("}::")
	b.WriteString(m.Local)
	return b.String()
}

// QNames expands the candidates in order.
func (m MultiName) QNames() []QName {
	out := make([]QName, len(m.Namespaces))
	for i, ns := range m.Namespaces {
		out[i] = QName{Namespace: ns, Local: m.Local}
	}
	return out
}

// Matches reports whether q is one of the candidates.
func (m MultiName) Matches(q QName) bool {
	if q.Local != m.Local {
		return false
	}
	for _, ns := range m.Namespaces {
		if ns == q.Namespace {
			return true
		}
	}
	return false
}

// SortQNames sorts in place and returns the slice.
func SortQNames(qs []QName) []QName {
	sort.Slice(qs, func(i, j int) bool { return qs[i].Compare(qs[j]) < 0 })
	return qs
}
