package project

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"csb/internal/errors"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	path := writeManifest(t, root, `
name = "app"
targets = ["src/app/Main.sc"]
sources = ["extra/Tool.sc"]
source_path = ["src", "/opt/shared"]
libraries = ["libs/core.lib.yaml"]
bundle_path = ["locale/{locale}"]
extra_classes = ["app.Plugin"]
loader_class = "app.Loader"
output = "out"
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Name != "app" {
		t.Errorf("Expected name 'app', got %q", m.Name)
	}
	if m.Root() != root {
		t.Errorf("Expected root %s, got %s", root, m.Root())
	}

	want := []string{filepath.Join(root, "src", "app", "Main.sc")}
	if got := m.TargetPaths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected targets %v, got %v", want, got)
	}
	roots := m.SourceRoots()
	if len(roots) != 2 || roots[0] != filepath.Join(root, "src") || roots[1] != "/opt/shared" {
		t.Errorf("Unexpected source roots %v", roots)
	}
	if got := m.OutputDir(); got != filepath.Join(root, "out") {
		t.Errorf("Expected output under root, got %s", got)
	}
	if got := m.IncludeClasses(); !reflect.DeepEqual(got, []string{"app.Loader", "app.Plugin"}) {
		t.Errorf("Expected loader before extra classes, got %v", got)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
targets = ["Main.sc"]
sourcepath = ["src"]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for unknown key")
	}
	if !errors.HasCode(err, errors.ManifestInvalid) {
		t.Errorf("Expected MANIFEST_INVALID, got %v", err)
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `name = "nothing"`)

	_, err := Load(path)
	if !errors.HasCode(err, errors.ManifestInvalid) {
		t.Errorf("Expected MANIFEST_INVALID for a manifest without inputs, got %v", err)
	}
}

func TestLoadRejectsBadSyntax(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `targets = [`)

	_, err := Load(path)
	if !errors.HasCode(err, errors.ManifestInvalid) {
		t.Errorf("Expected MANIFEST_INVALID for bad syntax, got %v", err)
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	path := writeManifest(t, root, `targets = ["Main.sc"]`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := Find(nested)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got != path {
		t.Errorf("Expected %s, got %s", path, got)
	}
}

func TestFindMissing(t *testing.T) {
	// Only meaningful when no ancestor of the temp dir carries a manifest.
	dir := t.TempDir()
	if _, err := Find(dir); err == nil {
		if _, statErr := os.Stat(filepath.Join(filepath.Dir(dir), ManifestFile)); statErr != nil {
			t.Error("Expected error when no manifest exists")
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	m.Name = "demo"
	m.Targets = []string{"Main.sc"}
	m.SourcePath = []string{"."}

	path := filepath.Join(root, ManifestFile)
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "demo" || len(loaded.Targets) != 1 {
		t.Errorf("Expected saved values back, got %+v", loaded)
	}
}

func TestWatchRoots(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	m.Targets = []string{"src/app/Main.sc"}
	m.SourcePath = []string{"src"}
	m.BundlePath = []string{"locale/{locale}"}

	got := m.WatchRoots()
	want := []string{filepath.Join(root, "locale"), filepath.Join(root, "src")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
