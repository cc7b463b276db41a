package storage

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"csb/internal/errors"
	"csb/internal/names"
	"csb/internal/source"
	"csb/internal/unit"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := Open(filepath.Join(t.TempDir(), ".csb", DefaultFile), logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func newStore(t *testing.T, db *DB, opts SnapshotOptions) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(db, opts)
	if err != nil {
		t.Fatalf("Failed to create snapshot store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDatabaseInitialization(t *testing.T) {
	db := setupTestDB(t)

	if _, err := os.Stat(db.Path()); os.IsNotExist(err) {
		t.Fatalf("Database file was not created at %s", db.Path())
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}

	for _, table := range []string{"meta", "sources", "source_includes", "bundle_fragments", "units", "artifacts", "sessions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestDatabaseReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	db, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO meta (key, value) VALUES ('version', 'x')"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path, nil)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	var v string
	if err := db.QueryRow("SELECT value FROM meta WHERE key='version'").Scan(&v); err != nil || v != "x" {
		t.Errorf("Expected data to survive a reopen, got %q (%v)", v, err)
	}
}

func TestWithTxRollback(t *testing.T) {
	db := setupTestDB(t)

	failure := fmt.Errorf("boom")
	err := db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('k', 'v')"); err != nil {
			return err
		}
		return failure
	})
	if err != failure {
		t.Fatalf("Expected the function error, got %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM meta").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected the insert to be rolled back, got %d rows", count)
	}
}

func sampleUnit(s *source.Source) *unit.Unit {
	u := unit.New(s)
	base := names.NewQName("app", "Base")
	u.Inheritance.Add(base)
	u.Types.Add(names.NewMultiName("Missing", "app", ""))
	u.Expressions.Add(names.NewQName("", "Util"))
	u.InheritanceHistory.Put(names.NewMultiName("Base", "app", ""), base)
	u.ImportPackages = []string{"lib"}
	u.ImportDefinitions = []names.QName{names.NewQName("lib", "Thing")}
	u.AddTopLevelDefinition(names.NewQName("app", "Main"))
	u.ResourceBundles = []string{"ui.labels"}
	u.ResourceBundleHistory["ui.labels"] = []names.QName{names.NewQName("ui", "en$labels_properties")}
	u.ExtraClasses = []string{"app.Plugin"}
	u.LoaderClass = "app.Loader"
	u.Bindings[base] = "slot-1"
	u.SetTypeInfo(&unit.TypeInfo{
		Slot:        "slot-2",
		Signature:   "sig",
		Definitions: []names.QName{names.NewQName("app", "Main")},
		Data:        []byte("class Main"),
	})
	u.MarkReached(unit.Preprocess | unit.Parse1 | unit.Parse2 | unit.Generate)
	u.SetBytecode([]byte("MAIN"))
	u.Artifacts["map"] = bytes.Repeat([]byte("x"), 4096)
	u.MarkDone()
	return u
}

func TestCodecRoundTrip(t *testing.T) {
	s := source.New(source.NewMemoryFile("/p/app/Main.sc", nil, 1), source.Options{Kind: source.KindScript})
	gen := source.New(source.NewMemoryFile("/p/gen/Skin.sc", nil, 1), source.Options{Kind: source.KindScript})
	u := sampleUnit(s)
	u.AddGeneratedSource(names.NewQName("gen", "Skin"), gen)

	got := unit.New(nil)
	refs, err := DecodeUnit(got, EncodeUnit(u))
	if err != nil {
		t.Fatalf("DecodeUnit failed: %v", err)
	}

	for _, c := range unit.DepClasses {
		if !reflect.DeepEqual(got.Deps(c).All(), u.Deps(c).All()) {
			t.Errorf("Expected %s deps %v, got %v", c, u.Deps(c).All(), got.Deps(c).All())
		}
		if !reflect.DeepEqual(got.History(c).Entries(), u.History(c).Entries()) {
			t.Errorf("Expected %s history %v, got %v", c, u.History(c).Entries(), got.History(c).Entries())
		}
	}
	if !reflect.DeepEqual(got.ImportDefinitions, u.ImportDefinitions) {
		t.Errorf("Expected imports %v, got %v", u.ImportDefinitions, got.ImportDefinitions)
	}
	if !reflect.DeepEqual(got.ResourceBundleHistory, u.ResourceBundleHistory) {
		t.Errorf("Expected bundle history %v, got %v", u.ResourceBundleHistory, got.ResourceBundleHistory)
	}
	if !reflect.DeepEqual(got.Bindings, u.Bindings) {
		t.Errorf("Expected bindings %v, got %v", u.Bindings, got.Bindings)
	}
	if !reflect.DeepEqual(got.TypeInfo(), u.TypeInfo()) {
		t.Errorf("Expected type info %+v, got %+v", u.TypeInfo(), got.TypeInfo())
	}
	if got.LoaderClass != "app.Loader" || len(got.ExtraClasses) != 1 {
		t.Errorf("Expected extra classes to survive, got %v %q", got.ExtraClasses, got.LoaderClass)
	}
	want := []GeneratedRef{{QName: names.NewQName("gen", "Skin"), Source: "/p/gen/Skin.sc"}}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("Expected generated refs %v, got %v", want, refs)
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	if _, err := DecodeUnit(unit.New(nil), []byte{0x0a, 0xff}); err == nil {
		t.Error("Expected a truncated record to fail")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionNone} {
		t.Run(string(compression), func(t *testing.T) {
			db := setupTestDB(t)
			opts := SnapshotOptions{Version: "1", Fingerprint: "fp", Compression: compression}
			store := newStore(t, db, opts)

			main := source.New(source.NewLocalFile("/p/app/Main.sc"), source.Options{
				RelativePath: "app/Main.sc",
				Kind:         source.KindScript,
				Owner:        source.OwnerSourcePath,
				OwnerRoot:    "/p",
			})
			main.SetLastModified(42)
			main.SetSignature("sig")
			main.RestoreFileInclude(source.NewLocalFile("/p/app/part.inc"), 7)
			gen := source.New(source.NewMemoryFile("/p/gen/Skin.sc", []byte("class Skin\n"), 42), source.Options{
				Kind:  source.KindScript,
				Owner: source.OwnerResources,
			})

			n, err := store.Write(&Snapshot{Entries: []Entry{
				{Source: RecordOf(main), Unit: sampleUnit(main)},
				{Source: RecordOf(gen)},
			}})
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if n != 1 {
				t.Errorf("Expected 1 unit written, got %d", n)
			}

			snap, n, err := newStore(t, db, opts).Read()
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if n != 1 || len(snap.Entries) != 2 {
				t.Fatalf("Expected 1 unit and 2 sources, got %d and %d", n, len(snap.Entries))
			}
			if snap.Session == "" {
				t.Error("Expected a session id")
			}

			rec := snap.Entries[0].Source
			if rec.Name != main.Name() || rec.Owner != source.OwnerSourcePath || rec.LastModified != 42 {
				t.Errorf("Unexpected source record %+v", rec)
			}
			if rec.Includes["/p/app/part.inc"] != 7 {
				t.Errorf("Expected include stamp 7, got %v", rec.Includes)
			}
			u := snap.Entries[0].Unit
			if !u.IsDone() || !u.HasReached(unit.Generate) {
				t.Error("Expected the workflow to survive")
			}
			if string(u.Bytecode()) != "MAIN" {
				t.Errorf("Expected bytecode MAIN, got %q", u.Bytecode())
			}
			if len(u.Artifacts["map"]) != 4096 {
				t.Errorf("Expected a 4096 byte artifact, got %d", len(u.Artifacts["map"]))
			}
			if got := snap.Entries[1].Source.Content; string(got) != "class Skin\n" {
				t.Errorf("Expected generated content, got %q", got)
			}
			if snap.Entries[1].Unit != nil {
				t.Error("Expected no unit for the generated source")
			}
		})
	}
}

func TestSnapshotEmpty(t *testing.T) {
	store := newStore(t, setupTestDB(t), SnapshotOptions{Version: "1"})
	snap, n, err := store.Read()
	if err != nil || snap != nil || n != 0 {
		t.Errorf("Expected no snapshot, got %v %d %v", snap, n, err)
	}
}

func TestSnapshotMismatch(t *testing.T) {
	db := setupTestDB(t)
	if _, err := newStore(t, db, SnapshotOptions{Version: "1", Fingerprint: "a"}).Write(&Snapshot{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts SnapshotOptions
	}{
		{"version", SnapshotOptions{Version: "2", Fingerprint: "a"}},
		{"fingerprint", SnapshotOptions{Version: "1", Fingerprint: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newStore(t, db, tt.opts).Read()
			if !errors.HasCode(err, errors.SnapshotVersion) {
				t.Errorf("Expected %s, got %v", errors.SnapshotVersion, err)
			}
		})
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	db := setupTestDB(t)
	opts := SnapshotOptions{Version: "1"}
	store := newStore(t, db, opts)
	s := source.New(source.NewLocalFile("/p/A.sc"), source.Options{Kind: source.KindScript, Owner: source.OwnerFileSpec})
	if _, err := store.Write(&Snapshot{Entries: []Entry{{Source: RecordOf(s), Unit: unit.New(s)}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE units SET record = ?", []byte{0x0a, 0xff}); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.Read()
	if !errors.HasCode(err, errors.SnapshotCorrupt) {
		t.Errorf("Expected %s, got %v", errors.SnapshotCorrupt, err)
	}
}

func TestSnapshotClearAndSessions(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(t, db, SnapshotOptions{Version: "1"})
	for i := 0; i < 3; i++ {
		if _, err := store.Write(&Snapshot{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	snap, _, err := store.Read()
	if err != nil || snap != nil {
		t.Errorf("Expected no snapshot after Clear, got %v %v", snap, err)
	}

	sessions, err := store.Sessions(2)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}
}

func TestUnsupportedCompression(t *testing.T) {
	if _, err := NewSnapshotStore(setupTestDB(t), SnapshotOptions{Compression: "lz4"}); err == nil {
		t.Error("Expected an unsupported compression to fail")
	}
}
