package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"csb/internal/errors"
	"csb/internal/lookup"
	"csb/internal/source"
	"csb/internal/unit"
)

// Compression selects how artifacts are stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

const bytecodeArtifact = ".bytecode"

// SourceRecord is the persisted identity and staleness state of a source.
type SourceRecord struct {
	Name         string
	RelativePath string
	ShortName    string
	Kind         string
	Owner        source.Owner
	OwnerRoot    string
	Internal     bool
	Root         bool
	LastModified int64
	Signature    string
	ErrorCount   int
	// Includes maps include file names to their recorded stamps.
	Includes map[string]int64
	// Fragments maps locales to fragment files for file-backed bundles.
	Fragments map[string]string
	// Content holds the text of in-memory sources, such as generated ones.
	Content []byte
}

// RecordOf captures the persisted state of s.
func RecordOf(s *source.Source) SourceRecord {
	rec := SourceRecord{
		Name:         s.Name(),
		RelativePath: s.RelativePath(),
		ShortName:    s.ShortName(),
		Kind:         s.Kind(),
		Owner:        s.Owner(),
		OwnerRoot:    s.OwnerRoot(),
		Internal:     s.IsInternal(),
		Root:         s.IsRoot(),
		LastModified: s.LastModified(),
		Signature:    s.Signature(),
		ErrorCount:   s.ErrorCount(),
		Includes:     make(map[string]int64),
	}
	for _, name := range s.FileIncludes() {
		stamp, _ := s.FileIncludeStamp(name)
		rec.Includes[name] = stamp
	}
	if b, ok := lookup.BundleOf(s); ok {
		rec.Fragments = b.FragmentPaths()
	}
	if _, ok := s.File().(*source.MemoryFile); ok {
		if data, err := s.File().Read(); err == nil {
			rec.Content = data
		}
	}
	return rec
}

// Entry is one persisted source with its unit, if it had one.
type Entry struct {
	Source SourceRecord
	// Unit is restored without its source; the caller attaches it.
	Unit      *unit.Unit
	Generated []GeneratedRef
}

// Snapshot is the persisted state of a build.
type Snapshot struct {
	Version     string
	Fingerprint string
	Session     string
	Created     time.Time
	Entries     []Entry
}

// Session is one recorded snapshot write.
type Session struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Sources  int       `json:"sources"`
	Units    int       `json:"units"`
}

// SnapshotOptions configures a SnapshotStore.
type SnapshotOptions struct {
	// Version and Fingerprint must match for a snapshot to be read back.
	Version     string
	Fingerprint string
	Compression Compression
	Logger      *slog.Logger
}

// SnapshotStore reads and writes build snapshots.
type SnapshotStore struct {
	db      *DB
	opts    SnapshotOptions
	logger  *slog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSnapshotStore creates a store on db.
func NewSnapshotStore(db *DB, opts SnapshotOptions) (*SnapshotStore, error) {
	if opts.Compression == "" {
		opts.Compression = CompressionZstd
	}
	if opts.Compression != CompressionZstd && opts.Compression != CompressionNone {
		return nil, fmt.Errorf("unsupported compression type: %s", opts.Compression)
	}
	logger := opts.Logger
	if logger == nil {
		logger = db.logger
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SnapshotStore{
		db:      db,
		opts:    opts,
		logger:  logger,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Close releases the compression engines. The database stays open.
func (s *SnapshotStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

// Write replaces the stored snapshot and returns the number of units
// written.
func (s *SnapshotStore) Write(snap *Snapshot) (int, error) {
	started := time.Now().UTC()
	if snap.Session == "" {
		snap.Session = uuid.New().String()
	}
	snap.Version = s.opts.Version
	snap.Fingerprint = s.opts.Fingerprint
	snap.Created = started

	units := 0
	err := s.db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"artifacts", "units", "bundle_fragments", "source_includes", "sources", "meta"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		meta := map[string]string{
			"version":     snap.Version,
			"fingerprint": snap.Fingerprint,
			"session":     snap.Session,
			"created":     snap.Created.Format(time.RFC3339Nano),
		}
		for k, v := range meta {
			if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
				return fmt.Errorf("failed to write meta: %w", err)
			}
		}

		for i, e := range snap.Entries {
			if err := writeSource(tx, i, e.Source); err != nil {
				return err
			}
			if e.Unit == nil {
				continue
			}
			if err := s.writeUnit(tx, e.Source.Name, e.Unit); err != nil {
				return err
			}
			units++
		}

		_, err := tx.Exec(`
			INSERT INTO sessions (id, started_at, finished_at, sources, units)
			VALUES (?, ?, ?, ?, ?)
		`, snap.Session, started.Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), len(snap.Entries), units)
		if err != nil {
			return fmt.Errorf("failed to record session: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("Snapshot written",
		"session", snap.Session,
		"sources", len(snap.Entries),
		"units", units,
	)
	return units, nil
}

func writeSource(tx *sql.Tx, position int, rec SourceRecord) error {
	_, err := tx.Exec(`
		INSERT INTO sources (name, position, owner, owner_root, relative_path, short_name, kind,
			internal, is_root, last_modified, signature, error_count, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Name, position, rec.Owner.String(), rec.OwnerRoot, rec.RelativePath, rec.ShortName, rec.Kind,
		boolToInt(rec.Internal), boolToInt(rec.Root), rec.LastModified, rec.Signature, rec.ErrorCount, rec.Content)
	if err != nil {
		return fmt.Errorf("failed to write source %s: %w", rec.Name, err)
	}

	for _, name := range sortedKeys(rec.Includes) {
		if _, err := tx.Exec("INSERT INTO source_includes (source, name, stamp) VALUES (?, ?, ?)",
			rec.Name, name, rec.Includes[name]); err != nil {
			return fmt.Errorf("failed to write include %s: %w", name, err)
		}
	}
	for _, locale := range sortedKeys(rec.Fragments) {
		if _, err := tx.Exec("INSERT INTO bundle_fragments (source, locale, path) VALUES (?, ?, ?)",
			rec.Name, locale, rec.Fragments[locale]); err != nil {
			return fmt.Errorf("failed to write bundle fragment %s: %w", locale, err)
		}
	}
	return nil
}

func (s *SnapshotStore) writeUnit(tx *sql.Tx, name string, u *unit.Unit) error {
	record := EncodeUnit(u)
	if record == nil {
		record = []byte{}
	}
	_, err := tx.Exec("INSERT INTO units (source, workflow, done, record) VALUES (?, ?, ?, ?)",
		name, uint32(u.Workflow()), boolToInt(u.IsDone()), record)
	if err != nil {
		return fmt.Errorf("failed to write unit %s: %w", name, err)
	}

	artifacts := make(map[string][]byte, len(u.Artifacts)+1)
	for k, v := range u.Artifacts {
		artifacts[k] = v
	}
	if u.HasBytecode() {
		artifacts[bytecodeArtifact] = u.Bytecode()
	}
	for _, k := range sortedKeys(artifacts) {
		data := artifacts[k]
		stored := data
		if s.opts.Compression == CompressionZstd {
			stored = s.encoder.EncodeAll(data, nil)
		}
		if stored == nil {
			stored = []byte{}
		}
		if _, err := tx.Exec(`
			INSERT INTO artifacts (source, name, compression, size, data) VALUES (?, ?, ?, ?, ?)
		`, name, k, string(s.opts.Compression), len(data), stored); err != nil {
			return fmt.Errorf("failed to write artifact %s of %s: %w", k, name, err)
		}
	}
	return nil
}

// Read loads the stored snapshot and returns it with its unit count. It
// returns a nil snapshot when nothing was stored. A snapshot written by
// another version or configuration fails with SNAPSHOT_VERSION, an
// undecodable one with SNAPSHOT_CORRUPT.
func (s *SnapshotStore) Read() (*Snapshot, int, error) {
	meta, err := s.readMeta()
	if err != nil {
		return nil, 0, err
	}
	if len(meta) == 0 {
		return nil, 0, nil
	}
	if meta["version"] != s.opts.Version {
		return nil, 0, errors.New(errors.SnapshotVersion,
			fmt.Sprintf("snapshot written by version %s, running %s", meta["version"], s.opts.Version), nil)
	}
	if meta["fingerprint"] != s.opts.Fingerprint {
		return nil, 0, errors.New(errors.SnapshotVersion, "snapshot written with a different configuration", nil)
	}

	snap := &Snapshot{
		Version:     meta["version"],
		Fingerprint: meta["fingerprint"],
		Session:     meta["session"],
	}
	if created, err := time.Parse(time.RFC3339Nano, meta["created"]); err == nil {
		snap.Created = created
	}

	index := make(map[string]int)
	if err := s.readSources(snap, index); err != nil {
		return nil, 0, err
	}
	if err := s.readIncludes(snap, index); err != nil {
		return nil, 0, err
	}
	if err := s.readFragments(snap, index); err != nil {
		return nil, 0, err
	}
	units, err := s.readUnits(snap, index)
	if err != nil {
		return nil, 0, err
	}
	if err := s.readArtifacts(snap, index); err != nil {
		return nil, 0, err
	}

	s.logger.Debug("Snapshot read",
		"session", snap.Session,
		"sources", len(snap.Entries),
		"units", units,
	)
	return snap, units, nil
}

func (s *SnapshotStore) readMeta() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot header: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *SnapshotStore) readSources(snap *Snapshot, index map[string]int) error {
	rows, err := s.db.Query(`
		SELECT name, owner, owner_root, relative_path, short_name, kind, internal, is_root,
			last_modified, signature, error_count, content
		FROM sources ORDER BY position
	`)
	if err != nil {
		return fmt.Errorf("failed to read sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      SourceRecord
			owner    string
			internal int
			root     int
		)
		if err := rows.Scan(&rec.Name, &owner, &rec.OwnerRoot, &rec.RelativePath, &rec.ShortName, &rec.Kind,
			&internal, &root, &rec.LastModified, &rec.Signature, &rec.ErrorCount, &rec.Content); err != nil {
			return fmt.Errorf("failed to scan source: %w", err)
		}
		rec.Owner = source.ParseOwner(owner)
		if rec.Owner == source.OwnerNone {
			return errors.New(errors.SnapshotCorrupt, fmt.Sprintf("source %s has unknown owner %q", rec.Name, owner), nil)
		}
		rec.Internal = internal != 0
		rec.Root = root != 0
		rec.Includes = make(map[string]int64)
		index[rec.Name] = len(snap.Entries)
		snap.Entries = append(snap.Entries, Entry{Source: rec})
	}
	return rows.Err()
}

func (s *SnapshotStore) readIncludes(snap *Snapshot, index map[string]int) error {
	rows, err := s.db.Query("SELECT source, name, stamp FROM source_includes")
	if err != nil {
		return fmt.Errorf("failed to read includes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, name string
		var stamp int64
		if err := rows.Scan(&src, &name, &stamp); err != nil {
			return fmt.Errorf("failed to scan include: %w", err)
		}
		i, ok := index[src]
		if !ok {
			return errors.New(errors.SnapshotCorrupt, fmt.Sprintf("include %s of unknown source %s", name, src), nil)
		}
		snap.Entries[i].Source.Includes[name] = stamp
	}
	return rows.Err()
}

func (s *SnapshotStore) readFragments(snap *Snapshot, index map[string]int) error {
	rows, err := s.db.Query("SELECT source, locale, path FROM bundle_fragments")
	if err != nil {
		return fmt.Errorf("failed to read bundle fragments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, locale, path string
		if err := rows.Scan(&src, &locale, &path); err != nil {
			return fmt.Errorf("failed to scan bundle fragment: %w", err)
		}
		i, ok := index[src]
		if !ok {
			return errors.New(errors.SnapshotCorrupt, fmt.Sprintf("fragment of unknown source %s", src), nil)
		}
		rec := &snap.Entries[i].Source
		if rec.Fragments == nil {
			rec.Fragments = make(map[string]string)
		}
		rec.Fragments[locale] = path
	}
	return rows.Err()
}

func (s *SnapshotStore) readUnits(snap *Snapshot, index map[string]int) (int, error) {
	rows, err := s.db.Query("SELECT source, workflow, done, record FROM units")
	if err != nil {
		return 0, fmt.Errorf("failed to read units: %w", err)
	}
	defer rows.Close()

	units := 0
	for rows.Next() {
		var (
			name     string
			workflow uint32
			done     int
			record   []byte
		)
		if err := rows.Scan(&name, &workflow, &done, &record); err != nil {
			return 0, fmt.Errorf("failed to scan unit: %w", err)
		}
		i, ok := index[name]
		if !ok {
			return 0, errors.New(errors.SnapshotCorrupt, fmt.Sprintf("unit of unknown source %s", name), nil)
		}
		u := unit.New(nil)
		generated, err := DecodeUnit(u, record)
		if err != nil {
			return 0, errors.New(errors.SnapshotCorrupt, fmt.Sprintf("unit %s cannot be decoded", name), err)
		}
		u.RestoreWorkflow(unit.Phase(workflow))
		if done != 0 {
			u.MarkDone()
		}
		snap.Entries[i].Unit = u
		snap.Entries[i].Generated = generated
		units++
	}
	return units, rows.Err()
}

func (s *SnapshotStore) readArtifacts(snap *Snapshot, index map[string]int) error {
	rows, err := s.db.Query("SELECT source, name, compression, size, data FROM artifacts")
	if err != nil {
		return fmt.Errorf("failed to read artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			src, name, compression string
			size                   int
			data                   []byte
		)
		if err := rows.Scan(&src, &name, &compression, &size, &data); err != nil {
			return fmt.Errorf("failed to scan artifact: %w", err)
		}
		i, ok := index[src]
		if !ok || snap.Entries[i].Unit == nil {
			return errors.New(errors.SnapshotCorrupt, fmt.Sprintf("artifact %s of unknown unit %s", name, src), nil)
		}
		if Compression(compression) == CompressionZstd {
			data, err = s.decoder.DecodeAll(data, make([]byte, 0, size))
			if err != nil {
				return errors.New(errors.SnapshotCorrupt, fmt.Sprintf("artifact %s of %s cannot be decompressed", name, src), err)
			}
		}
		if len(data) != size {
			return errors.New(errors.SnapshotCorrupt,
				fmt.Sprintf("artifact %s of %s has %d bytes, expected %d", name, src, len(data), size), nil)
		}
		u := snap.Entries[i].Unit
		if name == bytecodeArtifact {
			u.SetBytecode(data)
		} else {
			u.Artifacts[name] = data
		}
	}
	return rows.Err()
}

// Clear removes the stored snapshot. Session history is kept.
func (s *SnapshotStore) Clear() error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"artifacts", "units", "bundle_fragments", "source_includes", "sources", "meta"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// Sessions returns the most recent snapshot writes, newest first.
func (s *SnapshotStore) Sessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, sources, units
		FROM sessions ORDER BY finished_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var started, finished string
		if err := rows.Scan(&sess.ID, &started, &finished, &sess.Sources, &sess.Units); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.Started, _ = time.Parse(time.RFC3339Nano, started)
		sess.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
