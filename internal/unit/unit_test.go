package unit

import (
	"testing"

	"csb/internal/names"
	"csb/internal/source"
)

func newTestSource(name string) *source.Source {
	return source.New(source.NewMemoryFile(name, []byte("class X"), 10), source.Options{
		Kind:  source.KindScript,
		Owner: source.OwnerSourcePath,
	})
}

func TestPhasePredicates(t *testing.T) {
	u := New(newTestSource("/a/X.sc"))

	if u.Pending() != Parse2 {
		t.Errorf("Pending() = %v, want parse2", u.Pending())
	}

	u.MarkReached(Preprocess | Parse1 | Parse2)
	if !u.HasReached(Parse2) {
		t.Error("Expected parse2 to be reached")
	}
	if u.HasReached(Parse2 | Analyze1) {
		t.Error("HasReached with a combined mask must require every bit")
	}
	if u.Pending() != Analyze1 {
		t.Errorf("Pending() = %v, want analyze1", u.Pending())
	}

	u.MarkReached(Analyze1 | Analyze2 | Analyze3 | Analyze4 | Generate)
	if u.Pending() != None {
		t.Errorf("Pending() = %v, want none", u.Pending())
	}

	u.Reset()
	if u.Workflow() != 0 {
		t.Errorf("Expected empty workflow after Reset, got %v", u.Workflow())
	}
}

func TestPhaseString(t *testing.T) {
	if Analyze3.String() != "analyze3" {
		t.Errorf("String() = %q", Analyze3.String())
	}
	if got := (Preprocess | Parse1).String(); got != "preprocess|parse1" {
		t.Errorf("String() = %q, want %q", got, "preprocess|parse1")
	}
}

func TestValidityBits(t *testing.T) {
	var v Validity
	gates := []Phase{Parse2, Analyze2, Analyze3, Analyze4}

	for _, c := range DepClasses {
		for _, p := range gates {
			if v.Valid(c, p) {
				t.Fatalf("Expected %s/%s to start invalid", c, p)
			}
		}
	}

	v.Mark(Types, Analyze3)
	if !v.Valid(Types, Analyze3) {
		t.Error("Expected types/analyze3 to be valid")
	}
	if v.Valid(Expressions, Analyze3) || v.Valid(Types, Analyze2) {
		t.Error("Marking one pair must not mark others")
	}
	if v != Validity(1<<((3-1)*4+2)) {
		t.Errorf("Expected bit layout class*4+offset, got %016b", v)
	}

	// Non-gating phases have no bit.
	before := v
	v.Mark(Types, Generate)
	if v != before {
		t.Errorf("Expected non-gating phase to leave bits unchanged, got %016b", v)
	}
	v.Clear()
	if v != 0 {
		t.Errorf("Expected Clear to reset bits, got %016b", v)
	}
}

func TestArenaInvalidate(t *testing.T) {
	a := NewArena()
	src := newTestSource("/a/X.sc")
	a.Track(src)

	u := New(src)
	u.MarkReached(Preprocess | Parse1)
	u.AddTopLevelDefinition(names.NewQName("", "X"))
	src.MarkPreprocessed()
	src.RecordError()
	a.Attach(u)

	if a.UnitOf(src) != u {
		t.Fatal("Expected attached unit")
	}
	if a.IsCompiled(src) {
		t.Error("Unit without bytecode should not be compiled")
	}
	u.SetBytecode([]byte{1})
	if !a.IsCompiled(src) {
		t.Error("Unit with bytecode should be compiled")
	}

	if !a.Invalidate(src.Name()) {
		t.Fatal("Expected Invalidate to drop a unit")
	}
	if a.UnitOf(src) != nil {
		t.Error("Expected unit to be gone")
	}
	if src.IsPreprocessed() || src.HasError() {
		t.Error("Expected source state to be cleared with the unit")
	}
	if a.Source(src.Name()) != src {
		t.Error("Source identity must survive invalidation")
	}
	if a.Invalidate(src.Name()) {
		t.Error("Second Invalidate should report nothing dropped")
	}
}

func TestDependencyQNames(t *testing.T) {
	u := New(newTestSource("/a/X.sc"))
	u.Inheritance.Add(names.NewQName("a", "Base"))
	u.Types.Add(names.NewQName("a", "Base"))
	u.Types.Add(names.NewMultiName("Missing", "a"))
	u.Expressions.Add(names.NewQName("", "Helper"))

	got := u.DependencyQNames()
	if len(got) != 2 {
		t.Fatalf("Expected 2 dependencies, got %d", len(got))
	}
	if got[0] != names.NewQName("", "Helper") {
		t.Errorf("Expected sorted order, got %v", got)
	}
}
