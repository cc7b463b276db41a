// Package unit holds the mutable compilation state of each source input and
// the arena that indexes it by source identity.
package unit

import (
	"sort"

	"csb/internal/names"
	"csb/internal/source"
)

// TypeInfo is the opaque type information a processor attaches to a unit.
// The scheduler only looks at its presence and its slot identity.
type TypeInfo struct {
	// Slot identifies this generation of the unit's definitions. Dependents
	// bind to it; it is preserved across recompiles with a stable signature.
	Slot        string
	Signature   string
	Definitions []names.QName
	Data        []byte
}

// Generated is a source produced by a processor while compiling a unit.
type Generated struct {
	QName  names.QName
	Source *source.Source
}

// Unit is the mutable compilation state of one Source.
type Unit struct {
	Source *source.Source

	workflow  Phase
	done      bool
	validity  Validity
	bytecode  []byte
	typeInfo  *TypeInfo
	generated []Generated

	Inheritance *names.Set
	Types       *names.Set
	Expressions *names.Set
	Namespaces  *names.Set

	InheritanceHistory *names.History
	TypeHistory        *names.History
	ExpressionHistory  *names.History
	NamespaceHistory   *names.History

	ImportPackages    []string
	ImportDefinitions []names.QName

	TopLevelDefinitions []names.QName

	ResourceBundles       []string
	ResourceBundleHistory map[string][]names.QName
	ExtraClasses          []string
	LoaderClass           string

	// Bindings records the slot of every resolved dependency at the end of
	// the build that compiled this unit.
	Bindings map[names.QName]string

	SyntaxTree any
	Artifacts  map[string][]byte
}

// New creates an empty unit for s.
func New(s *source.Source) *Unit {
	u := &Unit{Source: s}
	u.Reset()
	return u
}

// Reset discards all compiled state, keeping only the source reference.
func (u *Unit) Reset() {
	u.workflow = 0
	u.done = false
	u.validity.Clear()
	u.bytecode = nil
	u.typeInfo = nil
	u.generated = nil

	u.Inheritance = names.NewSet()
	u.Types = names.NewSet()
	u.Expressions = names.NewSet()
	u.Namespaces = names.NewSet()
	u.InheritanceHistory = names.NewHistory()
	u.TypeHistory = names.NewHistory()
	u.ExpressionHistory = names.NewHistory()
	u.NamespaceHistory = names.NewHistory()

	u.ImportPackages = nil
	u.ImportDefinitions = nil
	u.TopLevelDefinitions = nil
	u.ResourceBundles = nil
	u.ResourceBundleHistory = make(map[string][]names.QName)
	u.ExtraClasses = nil
	u.LoaderClass = ""
	u.Bindings = make(map[names.QName]string)
	u.SyntaxTree = nil
	u.Artifacts = make(map[string][]byte)
}

// HasReached reports whether every bit of p is set in the workflow.
func (u *Unit) HasReached(p Phase) bool {
	return u.workflow&p == p
}

// MarkReached records completion of p.
func (u *Unit) MarkReached(p Phase) {
	u.workflow |= p
}

// Workflow returns the completed phases. It is exposed for persistence and
// reporting only; decisions go through HasReached.
func (u *Unit) Workflow() Phase {
	return u.workflow
}

// RestoreWorkflow sets the completed phases from a snapshot.
func (u *Unit) RestoreWorkflow(p Phase) {
	u.workflow = p
}

// Pending returns the next main phase to run, or None once generate ran.
func (u *Unit) Pending() Phase {
	for _, p := range mainPhases {
		if !u.HasReached(p) {
			return p
		}
	}
	return None
}

// Valid reports whether dependencies of class c are memoized as satisfied up
// to phase p.
func (u *Unit) Valid(c DepClass, p Phase) bool {
	return u.validity.Valid(c, p)
}

// MarkValid memoizes a satisfied dependency check.
func (u *Unit) MarkValid(c DepClass, p Phase) {
	u.validity.Mark(c, p)
}

// ClearValidity forgets every memoized check.
func (u *Unit) ClearValidity() {
	u.validity.Clear()
}

// Deps returns the dependency set of class c.
func (u *Unit) Deps(c DepClass) *names.Set {
	switch c {
	case Inheritance:
		return u.Inheritance
	case Namespaces:
		return u.Namespaces
	case Types:
		return u.Types
	default:
		return u.Expressions
	}
}

// History returns the resolution history of class c.
func (u *Unit) History(c DepClass) *names.History {
	switch c {
	case Inheritance:
		return u.InheritanceHistory
	case Namespaces:
		return u.NamespaceHistory
	case Types:
		return u.TypeHistory
	default:
		return u.ExpressionHistory
	}
}

// TypeInfo returns the attached type information, or nil.
func (u *Unit) TypeInfo() *TypeInfo {
	return u.typeInfo
}

// HasTypeInfo reports whether type information is attached.
func (u *Unit) HasTypeInfo() bool {
	return u.typeInfo != nil
}

// SetTypeInfo attaches type information.
func (u *Unit) SetTypeInfo(ti *TypeInfo) {
	u.typeInfo = ti
}

// RemoveTypeInfo detaches type information.
func (u *Unit) RemoveTypeInfo() {
	u.typeInfo = nil
}

// Bytecode returns the generated output, or nil.
func (u *Unit) Bytecode() []byte {
	return u.bytecode
}

// SetBytecode stores generated output and drops the syntax tree.
func (u *Unit) SetBytecode(b []byte) {
	u.bytecode = b
	u.SyntaxTree = nil
}

// HasBytecode reports whether output was generated.
func (u *Unit) HasBytecode() bool {
	return u.bytecode != nil
}

// IsDone reports whether the unit was marked done.
func (u *Unit) IsDone() bool {
	return u.done
}

// MarkDone records that the unit reached the terminal state.
func (u *Unit) MarkDone() {
	u.done = true
}

// AddGeneratedSource records a source produced while compiling this unit.
func (u *Unit) AddGeneratedSource(q names.QName, s *source.Source) {
	u.generated = append(u.generated, Generated{QName: q, Source: s})
}

// GeneratedSources returns the generated sources not yet integrated.
func (u *Unit) GeneratedSources() []Generated {
	return u.generated
}

// ClearGeneratedSources forgets integrated generated sources.
func (u *Unit) ClearGeneratedSources() {
	u.generated = nil
}

// AddTopLevelDefinition records a definition, keeping the list sorted and unique.
func (u *Unit) AddTopLevelDefinition(q names.QName) {
	for _, d := range u.TopLevelDefinitions {
		if d == q {
			return
		}
	}
	u.TopLevelDefinitions = append(u.TopLevelDefinitions, q)
	names.SortQNames(u.TopLevelDefinitions)
}

// AddImportPackage records a wildcard import.
func (u *Unit) AddImportPackage(pkg string) {
	for _, p := range u.ImportPackages {
		if p == pkg {
			return
		}
	}
	u.ImportPackages = append(u.ImportPackages, pkg)
}

// AddImportDefinition records a single-definition import.
func (u *Unit) AddImportDefinition(q names.QName) {
	for _, d := range u.ImportDefinitions {
		if d == q {
			return
		}
	}
	u.ImportDefinitions = append(u.ImportDefinitions, q)
}

// DependencyQNames returns every resolved dependency of every class, sorted
// and without duplicates.
func (u *Unit) DependencyQNames() []names.QName {
	seen := make(map[names.QName]bool)
	var out []names.QName
	for _, c := range DepClasses {
		for _, q := range u.Deps(c).QNames() {
			if !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
