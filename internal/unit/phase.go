package unit

import "strings"

// Phase is one step of the compilation workflow. Phases are bit flags; a
// unit's workflow is the union of the phases it has completed.
type Phase uint32

const (
	Preprocess              Phase = 1 << 1
	Parse1                  Phase = 1 << 2
	Parse2                  Phase = 1 << 3
	Analyze1                Phase = 1 << 4
	Analyze2                Phase = 1 << 5
	Analyze3                Phase = 1 << 6
	Analyze4                Phase = 1 << 7
	ResolveType             Phase = 1 << 10
	Generate                Phase = 1 << 13
	ResolveImportStatements Phase = 1 << 14
	AdjustQNames            Phase = 1 << 15
	ExtraSources            Phase = 1 << 16
)

// None is returned by Pending when a unit has passed every main phase.
const None Phase = 0

// mainPhases lists the phases a unit passes in order once it exists.
var mainPhases = []Phase{Parse2, Analyze1, Analyze2, Analyze3, Analyze4, Generate}

var phaseNames = map[Phase]string{
	Preprocess:              "preprocess",
	Parse1:                  "parse1",
	Parse2:                  "parse2",
	Analyze1:                "analyze1",
	Analyze2:                "analyze2",
	Analyze3:                "analyze3",
	Analyze4:                "analyze4",
	ResolveType:             "resolve-type",
	Generate:                "generate",
	ResolveImportStatements: "resolve-imports",
	AdjustQNames:            "adjust-qnames",
	ExtraSources:            "extra-sources",
}

// String returns the phase name, or a '|' separated list for combined flags.
func (p Phase) String() string {
	if p == None {
		return "none"
	}
	if name, ok := phaseNames[p]; ok {
		return name
	}
	var parts []string
	for bit := Phase(1); bit != 0 && bit <= p; bit <<= 1 {
		if p&bit != 0 {
			if name, ok := phaseNames[bit]; ok {
				parts = append(parts, name)
			}
		}
	}
	return strings.Join(parts, "|")
}

// DepClass is one of the four dependency classes.
type DepClass int

const (
	Inheritance DepClass = 1
	Namespaces  DepClass = 2
	Types       DepClass = 3
	Expressions DepClass = 4
)

// DepClasses lists every dependency class in gating order.
var DepClasses = []DepClass{Inheritance, Namespaces, Types, Expressions}

func (c DepClass) String() string {
	switch c {
	case Inheritance:
		return "inheritance"
	case Namespaces:
		return "namespaces"
	case Types:
		return "types"
	case Expressions:
		return "expressions"
	default:
		return "unknown"
	}
}

// checkpoint maps a gating phase to its offset inside a class nibble.
func checkpoint(p Phase) (uint, bool) {
	switch p {
	case Parse2:
		return 0, true
	case Analyze2:
		return 1, true
	case Analyze3:
		return 2, true
	case Analyze4:
		return 3, true
	default:
		return 0, false
	}
}

// Validity memoizes "dependencies of class C are satisfied up to phase P".
// Four classes by four checkpoints fit in 16 bits.
type Validity uint16

func validityMask(c DepClass, p Phase) Validity {
	offset, ok := checkpoint(p)
	if !ok || c < Inheritance || c > Expressions {
		return 0
	}
	return Validity(1) << ((uint(c)-1)*4 + offset)
}

// Valid reports whether the (class, phase) pair was memoized.
func (v Validity) Valid(c DepClass, p Phase) bool {
	m := validityMask(c, p)
	return m != 0 && v&m != 0
}

// Mark memoizes the (class, phase) pair.
func (v *Validity) Mark(c DepClass, p Phase) {
	*v |= validityMask(c, p)
}

// Clear forgets every memoized pair.
func (v *Validity) Clear() {
	*v = 0
}
