package resolve

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"csb/internal/diag"
	"csb/internal/lookup"
	"csb/internal/names"
	"csb/internal/source"
	"csb/internal/unit"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func newTestResolver(t *testing.T, collab Collaborators) (*Resolver, *diag.Sink, *unit.Arena) {
	t.Helper()
	arena := unit.NewArena()
	sink := diag.NewSink(nil)
	return New(NewSymbolTable(), collab, arena, sink, []string{"en_US"}), sink, arena
}

func TestResolveMultiName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "Widget.sc"), "class Widget")

	r, sink, arena := newTestResolver(t, Collaborators{SourcePath: lookup.NewSourcePath([]string{dir})})
	var discovered []string
	r.OnDiscover(func(s *source.Source) *source.Source {
		discovered = append(discovered, s.Name())
		return arena.Track(s)
	})

	reporter := source.New(source.NewMemoryFile("/main.sc", nil, 1), source.Options{Kind: source.KindScript})
	m := names.NewMultiName("Widget", "", "a")

	q, s, ok := r.ResolveMultiName(reporter, m)
	if !ok {
		t.Fatal("Expected Widget to resolve")
	}
	if q != names.NewQName("a", "Widget") {
		t.Errorf("Expected a:Widget, got %s", q)
	}
	if s.Namespace() != "a" {
		t.Errorf("Expected source in namespace a, got %q", s.Namespace())
	}
	if len(discovered) != 1 {
		t.Errorf("Expected one discovery, got %v", discovered)
	}

	// Memoized: no new discovery.
	if _, _, ok := r.ResolveMultiName(reporter, m); !ok || len(discovered) != 1 {
		t.Errorf("Expected memoized resolution, discoveries %v", discovered)
	}
	if sink.ErrorCount() != 0 {
		t.Errorf("Expected no errors, got %d", sink.ErrorCount())
	}

	if _, _, ok := r.ResolveMultiName(reporter, names.NewMultiName("Missing", "a")); ok {
		t.Error("Expected Missing to stay unresolved")
	}
}

func TestResolveAmbiguous(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "Dup.sc"), "class Dup")
	writeFile(t, filepath.Join(dir, "b", "Dup.sc"), "class Dup")

	r, sink, _ := newTestResolver(t, Collaborators{SourcePath: lookup.NewSourcePath([]string{dir})})
	reporter := source.New(source.NewMemoryFile("/main.sc", nil, 1), source.Options{Kind: source.KindScript})
	m := names.NewMultiName("Dup", "a", "b")

	if _, _, ok := r.ResolveMultiName(reporter, m); ok {
		t.Fatal("Expected ambiguous name to fail")
	}
	if sink.ErrorCount() != 1 {
		t.Fatalf("Expected 1 error, got %d", sink.ErrorCount())
	}
	if got := sink.ByCode(diag.AmbiguousName); len(got) != 1 {
		t.Errorf("Expected an ambiguous-name diagnostic, got %v", sink.Messages())
	}
	if !reporter.HasError() {
		t.Error("Expected the reporter to carry the error")
	}

	// Not retried, not re-reported.
	if _, _, ok := r.ResolveMultiName(reporter, m); ok {
		t.Error("Expected ambiguous name to stay unresolved")
	}
	if sink.ErrorCount() != 1 {
		t.Errorf("Expected ambiguity to be reported once, got %d", sink.ErrorCount())
	}
}

func TestLibraryPreference(t *testing.T) {
	dir := t.TempDir()
	local := writeFile(t, filepath.Join(dir, "src", "core", "Object.sc"), "class Object")
	info, err := os.Stat(local)
	if err != nil {
		t.Fatal(err)
	}
	stamp := info.ModTime().UnixNano()
	catalog := "entries:\n  - definition: \"core:Object\"\n    modified: " + strconv.FormatInt(stamp, 10) + "\n  - definition: \"core:Array\"\n    modified: 5\n"
	libPath := writeFile(t, filepath.Join(dir, "core.lib.yaml"), catalog)

	lib, err := lookup.NewLibrary([]string{libPath})
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}
	r, _, arena := newTestResolver(t, Collaborators{
		SourcePath: lookup.NewSourcePath([]string{filepath.Join(dir, "src")}),
		Library:    lib,
	})
	reporter := source.New(source.NewMemoryFile("/main.sc", nil, 1), source.Options{Kind: source.KindScript})

	t.Run("library fills gaps", func(t *testing.T) {
		_, s, ok := r.ResolveMultiName(reporter, names.NewMultiName("Array", "core"))
		if !ok || !s.IsLibraryOwner() {
			t.Errorf("Expected library source, got %v", s)
		}
	})

	t.Run("equal stamp without type info prefers library", func(t *testing.T) {
		_, s, ok := r.ResolveMultiName(reporter, names.NewMultiName("Object", "core"))
		if !ok || !s.IsLibraryOwner() {
			t.Errorf("Expected library source, got %v", s)
		}
	})

	t.Run("equal stamp with type info keeps local", func(t *testing.T) {
		st := NewSymbolTable()
		r2 := New(st, r.Collaborators(), arena, diag.NewSink(nil), nil)
		localSrc := r.Collaborators().SourcePath.Find("core", "Object")
		u := unit.New(localSrc)
		u.SetTypeInfo(&unit.TypeInfo{Slot: "s1"})
		arena.Attach(u)

		_, s, ok := r2.ResolveMultiName(reporter, names.NewMultiName("Object", "core"))
		if !ok || !s.IsSourcePathOwner() {
			t.Errorf("Expected source-path source, got %v", s)
		}
	})
}

func TestResolveBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "locale", "en_US", "ui", "labels.toml"), "ok = \"OK\"")
	libPath := writeFile(t, filepath.Join(dir, "core.lib.yaml"),
		"entries: []\nbundles:\n  - name: ui.labels\n    locale: fr_FR\n    entries:\n      ok: D'accord\n")
	lib, err := lookup.NewLibrary([]string{libPath})
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}

	arena := unit.NewArena()
	r := New(NewSymbolTable(), Collaborators{
		BundlePath: lookup.NewBundlePath([]string{filepath.Join(dir, "locale", lookup.LocaleToken)}),
		Library:    lib,
	}, arena, diag.NewSink(nil), []string{"en_US", "fr_FR"})

	qs, s := r.ResolveBundle("ui.labels")
	if s == nil {
		t.Fatal("Expected bundle source")
	}
	if len(qs) != 2 || qs[0] != names.NewQName("ui", "en_US$labels_properties") {
		t.Errorf("Unexpected bundle names %v", qs)
	}
	b, _ := lookup.BundleOf(s)
	if !b.Complete([]string{"en_US", "fr_FR"}) {
		t.Errorf("Expected merged bundle, got %v", b.Locales())
	}
	if !s.IsBundlePathOwner() {
		t.Error("Expected the bundle-path source to carry the merge")
	}
	if r.Symbols.FindSourceByQName(qs[1]) != s {
		t.Error("Expected per-locale names to be registered")
	}

	if qs2, s2 := r.ResolveBundle("ui.labels"); s2 != s || len(qs2) != 2 {
		t.Error("Expected memoized bundle")
	}
	if qs3, s3 := r.ResolveBundle("ui.missing"); s3 != nil || qs3 != nil {
		t.Error("Expected missing bundle to resolve to nothing")
	}
}

func TestValidateMultiName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "Thing.sc"), "class Thing")
	r, _, _ := newTestResolver(t, Collaborators{SourcePath: lookup.NewSourcePath([]string{dir})})

	m := names.NewMultiName("Thing", "", "a", "b")
	if !r.ValidateMultiName(m, names.NewQName("a", "Thing")) {
		t.Error("Expected recorded resolution to stay valid")
	}

	writeFile(t, filepath.Join(dir, "b", "Thing.sc"), "class Thing")
	if r.ValidateMultiName(m, names.NewQName("a", "Thing")) {
		t.Error("Expected a new candidate to change the meaning")
	}
}

func TestSeededSlot(t *testing.T) {
	st := NewSymbolTable()
	st.SeedSlot("/a.sc", "sig1", "slot-1")

	if slot, ok := st.SeededSlot("/a.sc", "sig1"); !ok || slot != "slot-1" {
		t.Errorf("Expected slot-1, got %q %v", slot, ok)
	}
	if _, ok := st.SeededSlot("/a.sc", "sig2"); ok {
		t.Error("Expected signature mismatch to miss")
	}
	if _, ok := st.SeededSlot("/b.sc", "sig1"); ok {
		t.Error("Expected unknown source to miss")
	}
}
