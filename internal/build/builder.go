// Package build drives a project build: it restores the previous snapshot,
// validates it against the file system, schedules compilation and persists
// the result.
package build

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"csb/internal/config"
	"csb/internal/diag"
	"csb/internal/errors"
	"csb/internal/graph"
	"csb/internal/incremental"
	"csb/internal/lookup"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/processor/archive"
	"csb/internal/processor/bundle"
	"csb/internal/processor/decl"
	"csb/internal/project"
	"csb/internal/resolve"
	"csb/internal/scheduler"
	"csb/internal/slogutil"
	"csb/internal/source"
	"csb/internal/storage"
	"csb/internal/unit"
	"csb/internal/version"
)

// OutputExt is the extension of artifacts written to the output directory.
const OutputExt = ".out"

// Options configure a Builder.
type Options struct {
	Manifest *project.Manifest
	Config   *config.Config
	Logger   *slog.Logger
	// Progress receives the completed percentage of each build.
	Progress func(percent int)
}

// Report summarizes one build.
type Report struct {
	// Restored is the number of units read from the snapshot.
	Restored int `json:"restored"`
	// Validation is nil when there was nothing to validate.
	Validation  *incremental.Result `json:"validation,omitempty"`
	Sources     int                 `json:"sources"`
	Units       int                 `json:"units"`
	Persisted   int                 `json:"persisted"`
	Written     int                 `json:"written"`
	Diagnostics []diag.Diagnostic   `json:"diagnostics,omitempty"`
	Duration    time.Duration       `json:"duration"`
}

// Invalidated returns the number of units the validation discarded.
func (r *Report) Invalidated() int {
	if r.Validation == nil {
		return 0
	}
	return r.Validation.Count()
}

// Builder owns the state shared by successive builds of one project. It is
// not safe for concurrent use.
type Builder struct {
	manifest *project.Manifest
	cfg      *config.Config
	logger   *slog.Logger
	progress func(int)

	sink     *diag.Sink
	arena    *unit.Arena
	symbols  *resolve.SymbolTable
	registry *processor.Registry
	resolver *resolve.Resolver

	fileSpec   *lookup.FileSpec
	sourceList *lookup.SourceList
	sourcePath *lookup.SourcePath
	library    *lookup.Library
	bundlePath *lookup.BundlePath
	resources  *lookup.ResourceContainer

	db       *storage.DB
	store    *storage.SnapshotStore
	restored bool
	last     *scheduler.Scheduler
}

// New prepares a builder. It loads every collaborator the manifest names and
// opens the snapshot database when caching is enabled.
func New(opts Options) (*Builder, error) {
	if opts.Manifest == nil {
		return nil, errors.New(errors.ManifestInvalid, "no manifest", nil)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(errors.ConfigInvalid, err.Error(), err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	m := opts.Manifest
	b := &Builder{
		manifest: m,
		cfg:      cfg,
		logger:   logger,
		progress: opts.Progress,
		sink:     diag.NewSink(logger),
		arena:    unit.NewArena(),
		symbols:  resolve.NewSymbolTable(),
		registry: processor.NewRegistry(),
	}

	var err error
	if b.fileSpec, err = lookup.NewFileSpec(m.TargetPaths()); err != nil {
		return nil, errors.New(errors.ManifestInvalid, "invalid targets", err)
	}
	if b.sourceList, err = lookup.NewSourceList(m.SourcePaths(), m.SourceRoots()); err != nil {
		return nil, errors.New(errors.ManifestInvalid, "invalid sources", err)
	}
	if b.library, err = lookup.NewLibrary(m.LibraryPaths()); err != nil {
		return nil, errors.New(errors.ManifestInvalid, "invalid libraries", err)
	}
	b.sourcePath = lookup.NewSourcePath(m.SourceRoots())
	b.bundlePath = lookup.NewBundlePath(m.BundleRoots())
	b.resources = lookup.NewResourceContainer()

	declarations := decl.New()
	b.registry.Register(source.KindScript, declarations)
	b.registry.Register(source.KindMarkup, declarations)
	b.registry.Register(source.KindBundle, bundle.New())
	b.registry.Register(source.KindBinary, archive.New())

	b.resolver = resolve.New(b.symbols, resolve.Collaborators{
		FileSpec:   b.fileSpec,
		SourceList: b.sourceList,
		SourcePath: b.sourcePath,
		Resources:  b.resources,
		Library:    b.library,
		BundlePath: b.bundlePath,
	}, b.arena, b.sink, cfg.Locales)

	if cfg.Cache.Enabled {
		if err := b.openStore(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Builder) openStore() error {
	db, err := storage.Open(b.cfg.SnapshotPath(b.manifest.Root()), b.logger)
	if err != nil {
		return err
	}
	store, err := storage.NewSnapshotStore(db, storage.SnapshotOptions{
		Version:     version.SnapshotVersion(),
		Fingerprint: b.Fingerprint(),
		Compression: storage.Compression(b.cfg.Cache.Compression),
		Logger:      b.logger,
	})
	if err != nil {
		_ = db.Close()
		return err
	}
	b.db = db
	b.store = store
	return nil
}

// Fingerprint identifies everything outside the sources that changes what a
// build produces. A snapshot taken under another fingerprint is discarded.
func (b *Builder) Fingerprint() string {
	parts := []string{
		"config=" + b.cfg.Fingerprint(),
		"library=" + b.library.Checksum(),
		"sourcepath=" + strings.Join(b.manifest.SourceRoots(), string(os.PathListSeparator)),
		"bundlepath=" + strings.Join(b.manifest.BundleRoots(), string(os.PathListSeparator)),
		"include=" + strings.Join(b.manifest.IncludeClasses(), ","),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

func (b *Builder) builtins() []names.QName {
	out := make([]names.QName, 0, len(b.cfg.Scheduler.Builtins))
	for _, s := range b.cfg.Scheduler.Builtins {
		out = append(out, names.ParseQName(s))
	}
	return out
}

func (b *Builder) schedulerConfig() scheduler.Config {
	s := b.cfg.Scheduler
	return scheduler.Config{
		Strategy:                  scheduler.Strategy(s.Strategy),
		Strict:                    s.Strict,
		Warnings:                  s.Warnings,
		ShowDependencyWarnings:    s.ShowDependencyWarnings,
		DropUnresolvedExpressions: s.DropUnresolvedExpressions,
		MaxErrors:                 s.MaxErrors,
		RoundBudget:               s.RoundBudget,
		MarkupWeight:              s.MarkupWeight,
		ScriptWeight:              s.ScriptWeight,
		Factor:                    s.Factor,
		Locales:                   b.cfg.Locales,
		Builtins:                  b.builtins(),
		IncludeClasses:            b.manifest.IncludeClasses(),
	}
}

func (b *Builder) validator() *incremental.Validator {
	return incremental.New(incremental.Config{
		Strict:               b.cfg.Scheduler.Strict,
		DisableOptimizations: b.cfg.Scheduler.DisableIncrementalOptimizations,
		Locales:              b.cfg.Locales,
		Builtins:             b.builtins(),
	}, incremental.Options{
		Logger:   b.logger,
		Diag:     b.sink,
		Registry: b.registry,
		Resolver: b.resolver,
		Arena:    b.arena,
	})
}

// prepare restores the snapshot on first use and validates whatever the
// arena holds.
func (b *Builder) prepare(report *Report) error {
	if !b.restored {
		b.restored = true
		n, err := b.restore()
		if err != nil {
			return err
		}
		report.Restored = n
	}
	if b.arena.Len() == 0 {
		return nil
	}
	result, err := b.validator().Validate()
	if err != nil {
		return err
	}
	report.Validation = result
	return nil
}

// Build compiles the project incrementally. On success the snapshot is
// rewritten and artifacts are written to the output directory. A failed
// build keeps its in-memory state, so the next Build revalidates it.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	b.sink.Reset()
	report := &Report{}
	defer func() {
		report.Diagnostics = b.sink.Messages()
		report.Duration = time.Since(start)
	}()

	lock, err := b.lock()
	if err != nil {
		return report, err
	}
	defer lock.Release()

	if err := b.prepare(report); err != nil {
		return report, err
	}

	s := scheduler.New(b.schedulerConfig(), scheduler.Options{
		Logger:   b.logger,
		Diag:     b.sink,
		Registry: b.registry,
		Resolver: b.resolver,
		Arena:    b.arena,
		Progress: b.progress,
	})
	b.last = s

	targets := append(append([]*source.Source(nil), b.fileSpec.Sources()...), b.sourceList.Sources()...)
	err = s.Build(ctx, targets, len(b.fileSpec.Sources()) > 0)
	report.Sources = len(s.Sources())
	report.Units = len(s.Units())
	if err != nil {
		return report, err
	}

	written, err := b.writeOutput(s)
	if err != nil {
		return report, err
	}
	report.Written = written

	if b.store != nil {
		n, err := b.persist(s)
		if err != nil {
			return report, err
		}
		report.Persisted = n
	}

	b.logger.Info("Build complete",
		"sources", report.Sources,
		"restored", report.Restored,
		"invalidated", report.Invalidated(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return report, nil
}

// lock claims the snapshot directory for the duration of a build. Without a
// snapshot there is nothing to protect.
func (b *Builder) lock() (*Lock, error) {
	if b.store == nil {
		return nil, nil
	}
	return AcquireLock(filepath.Dir(b.cfg.SnapshotPath(b.manifest.Root())))
}

// Check restores the snapshot and reports what a build would recompile,
// without compiling or persisting anything.
func (b *Builder) Check() (*Report, error) {
	start := time.Now()
	b.sink.Reset()
	report := &Report{}
	err := b.prepare(report)
	report.Diagnostics = b.sink.Messages()
	report.Duration = time.Since(start)
	return report, err
}

// restore rebuilds sources and units from the snapshot. A snapshot from
// another version, configuration or a corrupt one is discarded.
func (b *Builder) restore() (int, error) {
	if b.store == nil {
		return 0, nil
	}
	snap, _, err := b.store.Read()
	if err != nil {
		if errors.HasCode(err, errors.SnapshotVersion) || errors.HasCode(err, errors.SnapshotCorrupt) {
			b.logger.Warn("Discarding snapshot", "error", err)
			return 0, b.store.Clear()
		}
		return 0, err
	}
	if snap == nil {
		return 0, nil
	}

	restored := 0
	for i := range snap.Entries {
		e := &snap.Entries[i]
		src := b.restoreSource(e.Source)
		if src == nil {
			b.logger.Debug("Dropping unrecoverable source", "source", e.Source.Name)
			e.Unit = nil
			continue
		}
		src = b.arena.Track(src)
		if e.Unit != nil {
			e.Unit.Source = src
			b.arena.Attach(e.Unit)
			restored++
		}
	}
	for _, e := range snap.Entries {
		if e.Unit == nil {
			continue
		}
		for _, g := range e.Generated {
			if gs := b.arena.Source(g.Source); gs != nil {
				e.Unit.AddGeneratedSource(g.QName, gs)
			}
		}
	}

	b.logger.Debug("Snapshot restored",
		"session", snap.Session,
		"sources", len(snap.Entries),
		"units", restored,
	)
	return restored, nil
}

// namespaceOf derives a namespace from a '/'-separated relative path.
func namespaceOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.ReplaceAll(strings.Trim(dir, "/"), "/", ".")
}

// restoreSource recreates a persisted source and registers it with the
// collaborator that owns it. Library sources come from the loaded catalogs.
func (b *Builder) restoreSource(rec storage.SourceRecord) *source.Source {
	var s *source.Source
	switch {
	case rec.Owner == source.OwnerLibrary:
		s = b.library.Source(rec.Name)
		if s == nil && rec.Kind == source.KindBundle {
			if found := b.library.FindBundle(b.cfg.Locales, namespaceOf(rec.RelativePath), rec.ShortName); found != nil && found.Name() == rec.Name {
				s = found
			}
		}
		return s
	case len(rec.Fragments) > 0:
		s = lookup.RestoreBundleSource(rec.Owner, rec.OwnerRoot, namespaceOf(rec.RelativePath), rec.ShortName, rec.Fragments)
	case rec.Owner == source.OwnerResources:
		s = source.New(source.NewMemoryFile(rec.Name, rec.Content, rec.LastModified), source.Options{
			RelativePath: rec.RelativePath,
			ShortName:    rec.ShortName,
			Kind:         rec.Kind,
			Owner:        rec.Owner,
			OwnerRoot:    rec.OwnerRoot,
			Internal:     rec.Internal,
			Root:         rec.Root,
		})
	default:
		s = source.New(source.NewLocalFile(rec.Name), source.Options{
			RelativePath: rec.RelativePath,
			ShortName:    rec.ShortName,
			Kind:         rec.Kind,
			Owner:        rec.Owner,
			OwnerRoot:    rec.OwnerRoot,
			Internal:     rec.Internal,
			Root:         rec.Root,
		})
	}

	s.SetLastModified(rec.LastModified)
	s.SetSignature(rec.Signature)
	for name, stamp := range rec.Includes {
		s.RestoreFileInclude(source.NewLocalFile(name), stamp)
	}
	for i := 0; i < rec.ErrorCount; i++ {
		s.RecordError()
	}

	switch rec.Owner {
	case source.OwnerFileSpec:
		b.fileSpec.Replace(s)
	case source.OwnerSourceList:
		b.sourceList.Replace(s)
	case source.OwnerSourcePath:
		b.sourcePath.Restore(s)
	case source.OwnerBundlePath:
		b.bundlePath.Restore(s)
	case source.OwnerResources:
		s = b.resources.AddResource(s)
	}
	return s
}

// persist writes the build list of s and its units.
func (b *Builder) persist(s *scheduler.Scheduler) (int, error) {
	sources := s.Sources()
	entries := make([]storage.Entry, 0, len(sources))
	for _, src := range sources {
		entries = append(entries, storage.Entry{
			Source: storage.RecordOf(src),
			Unit:   b.arena.UnitOf(src),
		})
	}
	return b.store.Write(&storage.Snapshot{Entries: entries})
}

// OutputPath returns where the artifact of src is written, or "" when the
// manifest names no output directory.
func (b *Builder) OutputPath(src *source.Source) string {
	out := b.manifest.OutputDir()
	if out == "" {
		return ""
	}
	rel := src.RelativePath()
	rel = strings.TrimSuffix(rel, path.Ext(rel)) + OutputExt
	return filepath.Join(out, filepath.FromSlash(rel))
}

// writeOutput writes the bytecode of every compiled project unit. Library
// units are never written.
func (b *Builder) writeOutput(s *scheduler.Scheduler) (int, error) {
	if b.manifest.OutputDir() == "" {
		return 0, nil
	}
	written := 0
	for _, u := range s.Units() {
		src := u.Source
		if src.IsLibraryOwner() || src.IsInternal() || !u.HasBytecode() {
			continue
		}
		target := b.OutputPath(src)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, errors.New(errors.InternalError, "failed to create output directory", err)
		}
		if err := os.WriteFile(target, u.Bytecode(), 0644); err != nil {
			return written, errors.New(errors.InternalError, "failed to write "+target, err)
		}
		written++
	}
	return written, nil
}

// GraphReport is the shape of the last build.
type GraphReport struct {
	// Order lists sources so that each follows everything it inherits from.
	Order []string `json:"order"`
	// Cyclic lists sources that could not be ordered.
	Cyclic []string     `json:"cyclic,omitempty"`
	Edges  []graph.Edge `json:"edges"`
	// Stats counts the sources and resolved dependencies of the build.
	Stats graph.GraphStats `json:"stats"`
}

// Graph describes the last build, or returns nil before the first one.
// Names are shown relative to the project root where possible.
func (b *Builder) Graph() *GraphReport {
	if b.last == nil {
		return nil
	}
	order, cyclic := b.last.Inheritance().TopologicalSort()
	report := &GraphReport{
		Order:  b.displayAll(order),
		Cyclic: b.displayAll(cyclic),
		Stats:  b.last.Dependencies().Stats(),
	}
	seen := make(map[graph.Edge]bool)
	add := func(edges []graph.Edge) {
		for _, e := range edges {
			e.From, e.To = b.Display(e.From), b.Display(e.To)
			if !seen[e] {
				seen[e] = true
				report.Edges = append(report.Edges, e)
			}
		}
	}
	add(b.last.Inheritance().Edges())
	add(b.last.Dependencies().Edges())
	sort.Slice(report.Edges, func(i, j int) bool {
		ei, ej := report.Edges[i], report.Edges[j]
		if ei.From != ej.From {
			return ei.From < ej.From
		}
		if ei.To != ej.To {
			return ei.To < ej.To
		}
		return ei.Kind < ej.Kind
	})
	return report
}

// Display shortens a source name for output.
func (b *Builder) Display(name string) string {
	root := b.manifest.Root()
	if root == "" || !filepath.IsAbs(name) {
		return name
	}
	rel, err := filepath.Rel(root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return name
	}
	return filepath.ToSlash(rel)
}

func (b *Builder) displayAll(in []string) []string {
	out := make([]string, len(in))
	for i, n := range in {
		out[i] = b.Display(n)
	}
	return out
}

// Sessions returns the most recent snapshot writes.
func (b *Builder) Sessions(limit int) ([]storage.Session, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.Sessions(limit)
}

// Clean discards the snapshot and everything compiled in memory.
func (b *Builder) Clean() error {
	for _, name := range b.arena.Names() {
		b.symbols.Forget(name)
		b.arena.Forget(name)
	}
	b.restored = true
	b.last = nil
	if b.store == nil {
		return nil
	}
	lock, err := b.lock()
	if err != nil {
		return err
	}
	defer lock.Release()
	return b.store.Clear()
}

// WatchRoots returns the directories a watcher should observe.
func (b *Builder) WatchRoots() []string {
	return b.manifest.WatchRoots()
}

// Close releases the snapshot database.
func (b *Builder) Close() error {
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	if cerr := b.db.Close(); err == nil {
		err = cerr
	}
	b.store, b.db = nil, nil
	return err
}
