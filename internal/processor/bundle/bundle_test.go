package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"csb/internal/diag"
	"csb/internal/lookup"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/source"
)

func writeFragment(t *testing.T, dir, locale, content string) {
	t.Helper()
	path := filepath.Join(dir, locale, "ui", "labels.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func findBundle(t *testing.T, dir string, locales []string) *source.Source {
	t.Helper()
	bp := lookup.NewBundlePath([]string{dir})
	s := bp.FindBundle(locales, "ui", "labels")
	if s == nil {
		t.Fatal("Expected bundle source")
	}
	return s
}

func TestBundlePhases(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "en_US", "ok = \"OK\"\nicon = \"@class(ui.icons.Check)\"\n[dialog]\ntitle = \"Hello\"\n")
	writeFragment(t, dir, "fr_FR", "ok = \"D'accord\"\n")

	locales := []string{"en_US", "fr_FR"}
	s := findBundle(t, dir, locales)
	pc := &processor.Context{Diag: diag.NewSink(nil), Locales: locales}
	p := New()

	if err := p.Preprocess(pc, s); err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	u, err := p.Parse1(pc, s)
	if err != nil {
		t.Fatalf("Parse1 failed: %v", err)
	}
	if len(u.TopLevelDefinitions) != 2 {
		t.Fatalf("Expected 2 definitions, got %v", u.TopLevelDefinitions)
	}
	if u.TopLevelDefinitions[0] != names.NewQName("ui", "en_US$labels_properties") {
		t.Errorf("Unexpected definition %s", u.TopLevelDefinitions[0])
	}

	if err := p.Parse2(pc, u); err != nil {
		t.Fatal(err)
	}
	if !u.HasTypeInfo() || u.TypeInfo().Signature == "" {
		t.Error("Expected type info with a signature")
	}
	if err := p.Analyze2(pc, u); err != nil {
		t.Fatal(err)
	}
	if !u.Expressions.Contains(names.FromQName(names.NewQName("ui.icons", "Check"))) {
		t.Errorf("Expected class reference as expression, got %v", u.Expressions.All())
	}

	if err := p.Generate(pc, u); err != nil {
		t.Fatal(err)
	}
	out := string(u.Bytecode())
	if !strings.Contains(out, "en_US dialog.title=Hello\n") || !strings.Contains(out, "fr_FR ok=D'accord\n") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestBundleSignature(t *testing.T) {
	dir := t.TempDir()
	locales := []string{"en_US"}
	p := New()
	pc := &processor.Context{Diag: diag.NewSink(nil), Locales: locales}

	writeFragment(t, dir, "en_US", "ok = \"OK\"\n")
	before, _ := p.Signature(pc, findBundle(t, dir, locales))

	writeFragment(t, dir, "en_US", "ok = \"Okay\"\n")
	same, _ := p.Signature(pc, findBundle(t, dir, locales))
	if before != same {
		t.Error("Expected value edits to keep the signature")
	}

	writeFragment(t, dir, "en_US", "ok = \"Okay\"\ncancel = \"Cancel\"\n")
	changed, _ := p.Signature(pc, findBundle(t, dir, locales))
	if before == changed {
		t.Error("Expected a new key to change the signature")
	}
}

func TestBundleMissingLocaleWarning(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "en_US", "ok = \"OK\"\n")
	locales := []string{"en_US", "de_DE"}
	pc := &processor.Context{Diag: diag.NewSink(nil), Locales: locales, Warnings: true}

	if _, err := New().Parse1(pc, findBundle(t, dir, locales)); err != nil {
		t.Fatal(err)
	}
	if pc.Diag.WarningCount() != 1 {
		t.Errorf("Expected 1 warning, got %v", pc.Diag.Messages())
	}
}

func TestBundleBadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "en_US", "ok = \n")
	pc := &processor.Context{Diag: diag.NewSink(nil), Locales: []string{"en_US"}}
	if err := New().Preprocess(pc, findBundle(t, dir, []string{"en_US"})); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestClassRef(t *testing.T) {
	tests := []struct {
		value string
		want  string
		ok    bool
	}{
		{"@class(a.b.C)", "a.b:C", true},
		{" @class( x:Y ) ", "x:Y", true},
		{"@class()", "", false},
		{"plain", "", false},
	}
	for _, tt := range tests {
		q, ok := classRef(tt.value)
		if ok != tt.ok || (ok && q.String() != tt.want) {
			t.Errorf("classRef(%q) = %s, %v; want %s, %v", tt.value, q, ok, tt.want, tt.ok)
		}
	}
}
