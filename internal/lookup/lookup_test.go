package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"csb/internal/names"
	"csb/internal/source"
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

func TestKindForPath(t *testing.T) {
	tests := map[string]string{
		"a/B.sc":        source.KindScript,
		"a/B.mx":        source.KindMarkup,
		"locale/x.toml": source.KindBundle,
		"core.lib.yaml": source.KindBinary,
		"README.md":     "",
	}
	for path, want := range tests {
		if got := KindForPath(path); got != want {
			t.Errorf("KindForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSourcePathPreference(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	writeFile(t, filepath.Join(second, "a", "b", "C.sc"), "class C")
	if err := os.MkdirAll(first, 0755); err != nil {
		t.Fatal(err)
	}

	sp := NewSourcePath([]string{first, second})
	s := sp.Find("a.b", "C")
	if s == nil {
		t.Fatal("Expected to find a.b:C")
	}
	if s.Namespace() != "a.b" || s.ShortName() != "C" {
		t.Errorf("Expected a.b:C, got %s:%s", s.Namespace(), s.ShortName())
	}
	if sp.Find("a.b", "C") != s {
		t.Error("Expected Find to return the cached source")
	}
	if !sp.CheckPreference(s) {
		t.Error("Expected source to be first preference")
	}
	if !sp.HasPackage("a.b") || sp.HasPackage("a.x") {
		t.Error("HasPackage mismatch")
	}
	if !sp.HasDefinition(names.NewQName("a.b", "C")) {
		t.Error("Expected HasDefinition(a.b:C)")
	}

	// A file in an earlier root shadows the cached one.
	writeFile(t, filepath.Join(first, "a", "b", "C.sc"), "class C")
	if sp.CheckPreference(s) {
		t.Error("Expected shadowed source to lose preference")
	}
}

func TestSourcePathScriptBeforeMarkup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "View.mx"), "class View")
	writeFile(t, filepath.Join(dir, "View.sc"), "class View")

	s := NewSourcePath([]string{dir}).Find("", "View")
	if s == nil || s.Kind() != source.KindScript {
		t.Fatalf("Expected script source to win, got %v", s)
	}
}

func TestSourceListNamespaces(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "src", "app", "Main.sc"), "class Main")
	b := writeFile(t, filepath.Join(dir, "elsewhere", "Tool.sc"), "class Tool")
	en := writeFile(t, filepath.Join(dir, "src", "app", "strings_en_US.toml"), "hello = \"Hello\"")

	sl, err := NewSourceList([]string{a, b, en}, []string{filepath.Join(dir, "src")})
	if err != nil {
		t.Fatalf("NewSourceList failed: %v", err)
	}
	if len(sl.Sources()) != 2 {
		t.Fatalf("Expected 2 compilable sources, got %d", len(sl.Sources()))
	}
	if sl.Find("app", "Main") == nil {
		t.Error("Expected app:Main in source list")
	}
	if sl.Find("", "Tool") == nil {
		t.Error("Expected :Tool outside roots to use the unnamed namespace")
	}

	bs := sl.FindBundle([]string{"en_US", "fr_FR"}, "app", "strings")
	if bs == nil {
		t.Fatal("Expected bundle from source list")
	}
	bundle, ok := BundleOf(bs)
	if !ok {
		t.Fatal("Expected bundle payload")
	}
	if bundle.Complete([]string{"en_US", "fr_FR"}) {
		t.Error("Bundle with one locale should not be complete")
	}

	if _, err := NewSourceList([]string{filepath.Join(dir, "missing.sc")}, nil); err == nil {
		t.Error("Expected error for missing source-list entry")
	}
}

func TestBundlePathMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "locale", "en_US", "ui", "core.toml"), "ok = \"OK\"")
	writeFile(t, filepath.Join(dir, "locale", "fr_FR", "ui", "core.toml"), "ok = \"D'accord\"")

	bp := NewBundlePath([]string{filepath.Join(dir, "locale", LocaleToken)})
	locales := []string{"en_US", "fr_FR"}
	s := bp.FindBundle(locales, "ui", "core")
	if s == nil {
		t.Fatal("Expected bundle")
	}
	b, _ := BundleOf(s)
	if !b.Complete(locales) {
		t.Errorf("Expected complete bundle, got locales %v", b.Locales())
	}
	if bp.FindBundle(locales, "ui", "core") != s {
		t.Error("Expected cached bundle source")
	}
	if !bp.CheckPreference(s, locales) {
		t.Error("Expected bundle to keep preference")
	}

	partial := NewBundle("ui.core")
	partial.AddInline("de_DE", map[string]string{"ok": "OK"}, 5)
	partial.Merge(b)
	if !partial.Complete([]string{"de_DE", "en_US", "fr_FR"}) {
		t.Errorf("Expected merged bundle to be complete, got %v", partial.Locales())
	}
	if len(b.FragmentPaths()) != 2 {
		t.Errorf("Expected 2 fragment paths, got %d", len(b.FragmentPaths()))
	}

	restored := RestoreBundleSource(source.OwnerBundlePath, "bundle-path", "ui", "core", b.FragmentPaths())
	if restored.Name() != s.Name() {
		t.Errorf("Expected restored name %q, got %q", s.Name(), restored.Name())
	}
}

const catalogYAML = `name: core
entries:
  - definition: "core:Object"
    modified: 100
    internal: true
  - definition: "core.ui:Button"
    modified: 200
    extends: ["core:Object"]
    types: ["core:String"]
    code: "button-bytes"
bundles:
  - name: core.ui.labels
    locale: en_US
    entries:
      ok: OK
`

func TestLibrary(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "core.lib.yaml"), catalogYAML)

	lib, err := NewLibrary([]string{path})
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}

	btn := lib.Find("core.ui", "Button")
	if btn == nil {
		t.Fatal("Expected core.ui:Button")
	}
	if btn.LastModified() != 200 {
		t.Errorf("Expected stamp 200, got %d", btn.LastModified())
	}
	if btn.Namespace() != "core.ui" {
		t.Errorf("Namespace() = %q", btn.Namespace())
	}
	entry, ok := EntryOf(btn)
	if !ok || len(entry.Extends) != 1 {
		t.Fatalf("Expected catalog entry payload, got %+v", entry)
	}
	if entry.Signature() == "" {
		t.Error("Expected non-empty signature")
	}
	if !lib.Find("core", "Object").IsInternal() {
		t.Error("Expected core:Object to be internal")
	}
	if !lib.HasPackage("core") || !lib.HasPackage("core.ui") || lib.HasPackage("other") {
		t.Error("HasPackage mismatch")
	}
	if len(lib.Definitions()) != 2 {
		t.Errorf("Expected 2 definitions, got %d", len(lib.Definitions()))
	}
	if len(lib.Checksum()) != 64 {
		t.Errorf("Expected hex blake2b-256 checksum, got %q", lib.Checksum())
	}

	bs := lib.FindBundle([]string{"en_US"}, "core.ui", "labels")
	if bs == nil {
		t.Fatal("Expected library bundle")
	}
	data, err := bs.File().Read()
	if err != nil || len(data) == 0 {
		t.Errorf("Expected bundle content, got %q (%v)", data, err)
	}

	if _, err := NewLibrary([]string{filepath.Join(dir, "missing.lib.yaml")}); err == nil {
		t.Error("Expected error for missing catalog")
	}
}

func TestResourceContainer(t *testing.T) {
	rc := NewResourceContainer()
	f := source.NewMemoryFile("/gen/app/Gen.sc", []byte("class Gen"), 10)
	s := source.New(f, source.Options{RelativePath: "app/Gen.sc", Kind: source.KindScript, Owner: source.OwnerResources})

	if rc.AddResource(s) != s {
		t.Fatal("Expected first AddResource to return the source")
	}
	again := source.New(f, source.Options{RelativePath: "app/Gen.sc", Kind: source.KindScript, Owner: source.OwnerResources})
	if rc.AddResource(again) != s {
		t.Error("Expected pooled source with equal stamp to be reused")
	}
	if rc.Find("app", "Gen") != s {
		t.Error("Expected Find(app, Gen)")
	}

	rc.RemoveNamespaces([]string{"app"})
	if rc.Find("app", "Gen") != nil {
		t.Error("Expected namespace removal")
	}

	rc.AddResource(s)
	f.Delete()
	if removed := rc.Refresh(); len(removed) != 1 {
		t.Errorf("Expected 1 removed resource, got %v", removed)
	}
}
