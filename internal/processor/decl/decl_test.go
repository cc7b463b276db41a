package decl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"csb/internal/diag"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/source"
	"csb/internal/unit"
)

const widget = `// a widget
package ui.controls
import core.*
import util.Strings
class Widget extends Base implements IDrawable, IFocus
namespace mx_internal
type Strings, Point
expr core.Logger
include parts/extra.inc
generate WidgetSkin
extra ui.Plugin
loader ui.WidgetLoader
bundle ui.labels
body return 1
`

func TestParse(t *testing.T) {
	f, problems := Parse([]byte(widget))
	if len(problems) != 0 {
		t.Fatalf("Expected no problems, got %v", problems)
	}
	if f.Package != "ui.controls" {
		t.Errorf("Expected package ui.controls, got %q", f.Package)
	}
	if len(f.Definitions) != 1 {
		t.Fatalf("Expected 1 definition, got %d", len(f.Definitions))
	}
	def := f.Definitions[0]
	if def.Name != "Widget" || len(def.Extends) != 1 || len(def.Implements) != 2 {
		t.Errorf("Unexpected definition %+v", def)
	}
	if len(f.Types) != 2 || f.Types[1].Name != "Point" {
		t.Errorf("Unexpected types %v", f.Types)
	}
	if f.Loader != "ui.WidgetLoader" {
		t.Errorf("Expected loader, got %q", f.Loader)
	}
	if got := f.QNames(); len(got) != 1 || got[0] != names.NewQName("ui.controls", "Widget") {
		t.Errorf("Unexpected qnames %v", got)
	}
}

func TestParseProblems(t *testing.T) {
	_, problems := Parse([]byte("package a\npackage b\nimport\nclass A extends B, C\nwhatever x\n"))
	if len(problems) != 4 {
		t.Fatalf("Expected 4 problems, got %v", problems)
	}
	for i, want := range []int{2, 3, 4, 5} {
		if problems[i].Line != want {
			t.Errorf("Expected problem %d on line %d, got %d", i, want, problems[i].Line)
		}
	}
}

func TestCandidates(t *testing.T) {
	f, _ := Parse([]byte(widget))

	m := f.Candidates("Strings")
	want := []string{"ui.controls", "core", "util", ""}
	if len(m.Namespaces) != len(want) {
		t.Fatalf("Expected namespaces %v, got %v", want, m.Namespaces)
	}
	for i := range want {
		if m.Namespaces[i] != want[i] {
			t.Errorf("Expected namespaces %v, got %v", want, m.Namespaces)
			break
		}
	}

	// Point matches no single import.
	if m := f.Candidates("Point"); len(m.Namespaces) != 3 {
		t.Errorf("Expected 3 namespaces, got %v", m.Namespaces)
	}

	m = f.Candidates("core.Logger")
	if len(m.Namespaces) != 1 || m.Namespaces[0] != "core" || m.Local != "Logger" {
		t.Errorf("Expected core:Logger, got %v", m)
	}
}

func TestSignatureIgnoresBodies(t *testing.T) {
	a := Signature([]byte("package a\nclass A\nbody one\n// note\n"))
	b := Signature([]byte("package  a\n\nclass A\nbody two\nerror oops\n"))
	if string(a) != string(b) {
		t.Errorf("Expected equal signatures, got %q and %q", a, b)
	}
	c := Signature([]byte("package a\nclass A\ntype B\n"))
	if string(a) == string(c) {
		t.Error("Expected a new type reference to change the signature")
	}
}

func newContext() *processor.Context {
	return &processor.Context{
		Diag:     diag.NewSink(nil),
		Strict:   true,
		Resolver: processor.LocalResolver{},
	}
}

func TestProcessorPhases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ui", "controls", "Widget.sc")
	if err := os.MkdirAll(filepath.Join(filepath.Dir(path), "parts"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(widget), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "parts", "extra.inc"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	s := source.New(source.NewLocalFile(path), source.Options{
		RelativePath: "ui/controls/Widget.sc",
		Kind:         source.KindScript,
		Owner:        source.OwnerSourcePath,
		OwnerRoot:    dir,
	})
	pc := newContext()
	p := New()

	if err := p.Preprocess(pc, s); err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	u, err := p.Parse1(pc, s)
	if err != nil {
		t.Fatalf("Parse1 failed: %v", err)
	}
	if u.Inheritance.Len() != 3 {
		t.Errorf("Expected 3 inheritance names, got %d", u.Inheritance.Len())
	}
	if len(u.ImportPackages) != 1 || u.ImportPackages[0] != "core" {
		t.Errorf("Unexpected import packages %v", u.ImportPackages)
	}
	if len(s.FileIncludes()) != 1 {
		t.Errorf("Expected 1 include, got %v", s.FileIncludes())
	}
	gen := u.GeneratedSources()
	if len(gen) != 1 || gen[0].QName != names.NewQName("ui.controls", "WidgetSkin") {
		t.Fatalf("Unexpected generated sources %v", gen)
	}
	if !strings.HasSuffix(gen[0].Source.RelativePath(), "ui/controls/WidgetSkin.sc") {
		t.Errorf("Unexpected generated path %q", gen[0].Source.RelativePath())
	}
	if len(u.ExtraClasses) != 1 || u.LoaderClass != "ui.WidgetLoader" || len(u.ResourceBundles) != 1 {
		t.Errorf("Unexpected extras %v %q %v", u.ExtraClasses, u.LoaderClass, u.ResourceBundles)
	}

	if err := p.Parse2(pc, u); err != nil {
		t.Fatalf("Parse2 failed: %v", err)
	}
	if !u.HasTypeInfo() || u.TypeInfo().Signature == "" {
		t.Error("Expected type info with a signature")
	}
	// Nothing resolved: the superclass and both interfaces are reported,
	// strict or not, on the line of the class statement.
	unresolved := pc.Diag.ByCode(diag.UnresolvedInheritance)
	if len(unresolved) != 3 {
		t.Fatalf("Expected 3 unresolved inheritance names, got %v", unresolved)
	}
	if unresolved[0].Line != 5 {
		t.Errorf("Expected the class statement on line 5, got %d", unresolved[0].Line)
	}

	if err := p.Analyze1(pc, u); err != nil {
		t.Fatal(err)
	}
	if u.Namespaces.Len() != 1 {
		t.Errorf("Expected 1 namespace, got %d", u.Namespaces.Len())
	}
	if err := p.Analyze2(pc, u); err != nil {
		t.Fatal(err)
	}
	if u.Types.Len() != 2 || u.Expressions.Len() != 1 {
		t.Errorf("Expected 2 types and 1 expression, got %d and %d", u.Types.Len(), u.Expressions.Len())
	}
	if got := pc.Diag.ByCode(diag.UnresolvedNamespace); len(got) != 1 || got[0].Line != 6 {
		t.Errorf("Expected mx_internal reported on line 6, got %v", got)
	}

	// Nothing resolved: both types are reported in strict mode.
	if err := p.Analyze4(pc, u); err != nil {
		t.Fatal(err)
	}
	if got := len(pc.Diag.ByCode(diag.UnresolvedType)); got != 2 {
		t.Errorf("Expected 2 unresolved types, got %d", got)
	}

	if err := p.Generate(pc, u); err != nil {
		t.Fatal(err)
	}
	if !u.HasBytecode() || u.SyntaxTree != nil {
		t.Error("Expected bytecode and a released syntax tree")
	}
}

func TestResolvedInheritanceIsNotReported(t *testing.T) {
	s := source.New(source.NewMemoryFile("/a/A.sc", []byte("package a\nclass A extends B\n"), 1),
		source.Options{Kind: source.KindScript})
	pc := newContext()
	pc.Strict = false
	p := New()

	u, err := p.Parse1(pc, s)
	if err != nil {
		t.Fatalf("Parse1 failed: %v", err)
	}
	for _, m := range u.Inheritance.MultiNames() {
		u.Inheritance.Replace(m, names.NewQName("a", "B"))
	}
	if err := p.Parse2(pc, u); err != nil {
		t.Fatalf("Parse2 failed: %v", err)
	}
	if pc.Diag.ErrorCount() != 0 || s.HasError() {
		t.Errorf("Expected no errors, got %v", pc.Diag.Messages())
	}
}

func TestProcessorReportsErrors(t *testing.T) {
	s := source.New(source.NewMemoryFile("/x/Bad.sc", []byte("class Bad\nerror boom\ninclude missing.inc\n"), 1),
		source.Options{Kind: source.KindScript})
	pc := newContext()

	if _, err := New().Parse1(pc, s); err != nil {
		t.Fatalf("Parse1 failed: %v", err)
	}
	if pc.Diag.ErrorCount() != 2 {
		t.Errorf("Expected 2 errors, got %v", pc.Diag.Messages())
	}
	if !s.HasError() {
		t.Error("Expected the source to carry the errors")
	}
}

func TestSignatureKinds(t *testing.T) {
	p := New()
	pc := newContext()
	script := source.New(source.NewMemoryFile("/a/A.sc", []byte("class A\nbody 1\n"), 1), source.Options{Kind: source.KindScript})
	edited := source.New(source.NewMemoryFile("/a/A.sc", []byte("class A\nbody 2\n"), 2), source.Options{Kind: source.KindScript})
	markup := source.New(source.NewMemoryFile("/a/B.mx", []byte("class B\n"), 1), source.Options{Kind: source.KindMarkup})

	s1, ok1 := p.Signature(pc, script)
	s2, ok2 := p.Signature(pc, edited)
	if !ok1 || !ok2 || s1 != s2 {
		t.Errorf("Expected equal signatures for body edits, got %q and %q", s1, s2)
	}
	if _, ok := p.Signature(pc, markup); ok {
		t.Error("Expected markup to have no signature")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	s := source.New(source.NewMemoryFile("/a/A.sc", []byte("package a\nclass A\n"), 1), source.Options{Kind: source.KindScript})
	build := func() []byte {
		u := unit.New(s)
		u.AddTopLevelDefinition(names.NewQName("a", "A"))
		u.Types.Add(names.NewQName("b", "Z"))
		u.Types.Add(names.NewQName("b", "Y"))
		if err := New().Generate(newContext(), u); err != nil {
			t.Fatal(err)
		}
		return u.Bytecode()
	}
	if a, b := build(), build(); string(a) != string(b) {
		t.Errorf("Expected identical output, got %q and %q", a, b)
	}
}
