// Package source holds the identity and staleness record of one compiler input.
package source

import (
	"path/filepath"
	"sort"
	"strings"
)

// Owner identifies the collection a Source was discovered through.
// Several algorithms branch on it.
type Owner int

const (
	OwnerNone Owner = iota
	OwnerFileSpec
	OwnerSourceList
	OwnerSourcePath
	OwnerResources
	OwnerLibrary
	OwnerBundlePath
)

// String returns the owner name used in logs and snapshots.
func (o Owner) String() string {
	switch o {
	case OwnerFileSpec:
		return "file-spec"
	case OwnerSourceList:
		return "source-list"
	case OwnerSourcePath:
		return "source-path"
	case OwnerResources:
		return "resources"
	case OwnerLibrary:
		return "library"
	case OwnerBundlePath:
		return "bundle-path"
	default:
		return "none"
	}
}

// ParseOwner is the inverse of Owner.String.
func ParseOwner(s string) Owner {
	switch s {
	case "file-spec":
		return OwnerFileSpec
	case "source-list":
		return OwnerSourceList
	case "source-path":
		return OwnerSourcePath
	case "resources":
		return OwnerResources
	case "library":
		return OwnerLibrary
	case "bundle-path":
		return OwnerBundlePath
	default:
		return OwnerNone
	}
}

// Kinds of source content. A kind selects the phase processor.
const (
	KindScript = "text/x-script"
	KindMarkup = "text/x-markup"
	KindBundle = "text/x-bundle"
	KindBinary = "application/x-binary"
)

type include struct {
	file  File
	stamp int64
}

// Options describe a new Source.
type Options struct {
	// RelativePath is the path below the owner root, using '/' separators.
	RelativePath string
	// ShortName is the file name without extension.
	ShortName string
	Kind      string
	Owner     Owner
	OwnerRoot string
	Internal  bool
	Root      bool
	// Payload carries collaborator-specific data, such as the fragments of a
	// resource bundle or a library catalog entry.
	Payload any
}

// Source is the identity/staleness record for one input, independent of its
// compiled state. Compiled state lives in unit.Unit, indexed by Name.
type Source struct {
	file         File
	relativePath string
	shortName    string
	kind         string
	owner        Owner
	ownerRoot    string
	internal     bool
	root         bool
	payload      any

	fileTime     int64
	signature    string
	includes     map[string]include
	preprocessed bool
	errors       int
}

// New creates a Source stamped with the file's current modification time.
func New(file File, opts Options) *Source {
	s := &Source{
		file:         file,
		relativePath: filepath.ToSlash(opts.RelativePath),
		shortName:    opts.ShortName,
		kind:         opts.Kind,
		owner:        opts.Owner,
		ownerRoot:    opts.OwnerRoot,
		internal:     opts.Internal,
		root:         opts.Root,
		payload:      opts.Payload,
		fileTime:     file.LastModified(),
		includes:     make(map[string]include),
	}
	if s.shortName == "" {
		base := filepath.Base(file.Name())
		s.shortName = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s
}

// Name is the canonical identity of the source.
func (s *Source) Name() string { return s.file.Name() }

// NameForReporting is the name used in diagnostics.
func (s *Source) NameForReporting() string { return s.file.Name() }

// File returns the backing file.
func (s *Source) File() File { return s.file }

// RelativePath is the path below the owner root.
func (s *Source) RelativePath() string { return s.relativePath }

// ShortName is the file name without extension.
func (s *Source) ShortName() string { return s.shortName }

// Kind selects the phase processor.
func (s *Source) Kind() string { return s.kind }

// Owner returns the originating collection.
func (s *Source) Owner() Owner { return s.owner }

// OwnerRoot is the root directory of the owning collection entry, if any.
func (s *Source) OwnerRoot() string { return s.ownerRoot }

// Payload returns collaborator-specific data.
func (s *Source) Payload() any { return s.payload }

func (s *Source) IsFileSpecOwner() bool   { return s.owner == OwnerFileSpec }
func (s *Source) IsSourceListOwner() bool { return s.owner == OwnerSourceList }
func (s *Source) IsSourcePathOwner() bool { return s.owner == OwnerSourcePath }
func (s *Source) IsResourcesOwner() bool  { return s.owner == OwnerResources }
func (s *Source) IsLibraryOwner() bool    { return s.owner == OwnerLibrary }
func (s *Source) IsBundlePathOwner() bool { return s.owner == OwnerBundlePath }

// IsInternal reports whether the source is a builtin placeholder.
// Internal sources count as compiled without producing bytes.
func (s *Source) IsInternal() bool { return s.internal }

// IsRoot reports whether the source is a build entry point.
func (s *Source) IsRoot() bool { return s.root }

// Namespace derives the package of the source from its relative path.
func (s *Source) Namespace() string {
	dir := filepath.ToSlash(filepath.Dir(s.relativePath))
	if dir == "." || dir == "/" || dir == "" {
		return ""
	}
	return strings.ReplaceAll(strings.Trim(dir, "/"), "/", ".")
}

// Size returns the size of the backing file in bytes.
func (s *Source) Size() int64 { return s.file.Size() }

// LastModified is the stamp recorded when the source was last (re)stamped.
func (s *Source) LastModified() int64 { return s.fileTime }

// SetLastModified overrides the recorded stamp. Snapshot restore uses it.
func (s *Source) SetLastModified(stamp int64) { s.fileTime = stamp }

// Exists reports whether the backing file is still present.
func (s *Source) Exists() bool { return s.file.LastModified() > 0 }

// IsUpdated reports whether the file or any of its includes changed since the
// recorded stamps.
func (s *Source) IsUpdated() bool {
	if s.file.LastModified() != s.fileTime {
		return true
	}
	for _, inc := range s.includes {
		if inc.file.LastModified() != inc.stamp {
			return true
		}
	}
	return false
}

// Signature returns the persisted content signature, if any.
func (s *Source) Signature() string { return s.signature }

// SetSignature records the content signature.
func (s *Source) SetSignature(sig string) { s.signature = sig }

// AddFileInclude records a sidecar file the source depends on, stamped now.
func (s *Source) AddFileInclude(f File) {
	s.includes[f.Name()] = include{file: f, stamp: f.LastModified()}
}

// RestoreFileInclude records a sidecar file with a persisted stamp.
func (s *Source) RestoreFileInclude(f File, stamp int64) {
	s.includes[f.Name()] = include{file: f, stamp: stamp}
}

// FileIncludes returns the include names in sorted order.
func (s *Source) FileIncludes() []string {
	out := make([]string, 0, len(s.includes))
	for name := range s.includes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FileIncludeStamp returns the recorded stamp of an include.
func (s *Source) FileIncludeStamp(name string) (int64, bool) {
	inc, ok := s.includes[name]
	return inc.stamp, ok
}

// UpdatedFileIncludes returns the includes whose stamps changed.
func (s *Source) UpdatedFileIncludes() []string {
	var out []string
	for name, inc := range s.includes {
		if inc.file.LastModified() != inc.stamp {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// IsPreprocessed reports whether the preprocess phase ran.
func (s *Source) IsPreprocessed() bool { return s.preprocessed }

// MarkPreprocessed records completion of the preprocess phase.
func (s *Source) MarkPreprocessed() { s.preprocessed = true }

// ClearPreprocessed makes the next build preprocess the source again. A
// compiled source is then reconnected to its dependencies instead.
func (s *Source) ClearPreprocessed() { s.preprocessed = false }

// RecordError increments the per-source error counter.
func (s *Source) RecordError() { s.errors++ }

// ErrorCount returns the number of errors reported against the source.
func (s *Source) ErrorCount() int { return s.errors }

// HasError reports whether any error was reported.
func (s *Source) HasError() bool { return s.errors > 0 }

// Restamp clears compile-time state and re-reads the file stamp. It is called
// when the compiled unit of the source is discarded.
func (s *Source) Restamp() {
	s.fileTime = s.file.LastModified()
	s.errors = 0
	s.preprocessed = false
	s.includes = make(map[string]include)
}
