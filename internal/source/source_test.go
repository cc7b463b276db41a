package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOwnerRoundTrip(t *testing.T) {
	owners := []Owner{OwnerFileSpec, OwnerSourceList, OwnerSourcePath, OwnerResources, OwnerLibrary, OwnerBundlePath}
	for _, o := range owners {
		t.Run(o.String(), func(t *testing.T) {
			if got := ParseOwner(o.String()); got != o {
				t.Errorf("ParseOwner(%q) = %v, want %v", o.String(), got, o)
			}
		})
	}
	if ParseOwner("bogus") != OwnerNone {
		t.Error("Expected unknown owner to parse as OwnerNone")
	}
}

func TestSourceStaleness(t *testing.T) {
	f := NewMemoryFile("/src/a/b/C.sc", []byte("class C"), 100)
	inc := NewMemoryFile("/src/a/b/C.inc", []byte("x"), 50)
	s := New(f, Options{RelativePath: "a/b/C.sc", Kind: KindScript, Owner: OwnerSourcePath})

	if s.ShortName() != "C" {
		t.Errorf("ShortName() = %q, want %q", s.ShortName(), "C")
	}
	if s.Namespace() != "a.b" {
		t.Errorf("Namespace() = %q, want %q", s.Namespace(), "a.b")
	}
	if s.IsUpdated() {
		t.Fatal("Fresh source should not be updated")
	}

	s.AddFileInclude(inc)
	inc.Touch(60)
	if !s.IsUpdated() {
		t.Error("Expected touched include to mark source updated")
	}
	if got := s.UpdatedFileIncludes(); len(got) != 1 || got[0] != "/src/a/b/C.inc" {
		t.Errorf("UpdatedFileIncludes() = %v", got)
	}

	f.Touch(200)
	s.RecordError()
	s.MarkPreprocessed()
	s.Restamp()
	if s.IsUpdated() {
		t.Error("Restamp should clear staleness")
	}
	if s.HasError() || s.IsPreprocessed() {
		t.Error("Restamp should clear errors and preprocessed flag")
	}
	if len(s.FileIncludes()) != 0 {
		t.Error("Restamp should drop includes")
	}

	f.Delete()
	if s.Exists() {
		t.Error("Deleted file should not exist")
	}
}

func TestLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Main.sc")
	if err := os.WriteFile(path, []byte("class Main"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	f := NewLocalFile(path)
	if f.LastModified() == 0 {
		t.Error("Expected non-zero stamp for existing file")
	}
	if f.Size() != int64(len("class Main")) {
		t.Errorf("Size() = %d, want %d", f.Size(), len("class Main"))
	}

	s := New(f, Options{Kind: KindScript, Owner: OwnerFileSpec})
	if s.Namespace() != "" {
		t.Errorf("Namespace() = %q, want empty", s.Namespace())
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	if !s.IsUpdated() {
		t.Error("Expected changed mtime to mark source updated")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if f.LastModified() != 0 {
		t.Error("Expected zero stamp for missing file")
	}
}
