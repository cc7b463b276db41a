// Package project reads the csb.toml project manifest, which names the
// inputs of a build.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"csb/internal/errors"
)

// ManifestFile is the manifest file name.
const ManifestFile = "csb.toml"

// Manifest describes what a build compiles and where it looks for names.
// Relative paths are resolved against the directory holding the manifest.
type Manifest struct {
	// Name is an optional project label
	Name string `toml:"name,omitempty"`

	// Targets are the explicit entry-point files (the file-spec)
	Targets []string `toml:"targets,omitempty"`

	// Sources are compiled whether or not anything references them (the
	// source-list)
	Sources []string `toml:"sources,omitempty"`

	// SourcePath roots are searched for "<namespace path>/<local>.<ext>"
	SourcePath []string `toml:"source_path,omitempty"`

	// Libraries are precompiled catalogs (*.lib.yaml)
	Libraries []string `toml:"libraries,omitempty"`

	// BundlePath roots hold locale fragments; "{locale}" is substituted
	BundlePath []string `toml:"bundle_path,omitempty"`

	// ExtraClasses are resolved and compiled after the first batch
	ExtraClasses []string `toml:"extra_classes,omitempty"`

	// LoaderClass is resolved ahead of ExtraClasses
	LoaderClass string `toml:"loader_class,omitempty"`

	// Output is the directory generated artifacts are written to
	Output string `toml:"output,omitempty"`

	root string
}

// New creates an empty manifest rooted at root.
func New(root string) *Manifest {
	return &Manifest{root: root}
}

// Find walks up from dir until it finds a manifest and returns its path.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(abs, ManifestFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.New(errors.ManifestInvalid,
				fmt.Sprintf("no %s found in %s or any parent directory", ManifestFile, dir), nil)
		}
		abs = parent
	}
}

// Load decodes the manifest at path. Unknown keys are rejected so that a
// misspelled section does not silently compile nothing.
func Load(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	var m Manifest
	meta, err := toml.DecodeFile(abs, &m)
	if err != nil {
		return nil, errors.New(errors.ManifestInvalid, "failed to parse "+abs, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, errors.New(errors.ManifestInvalid,
			fmt.Sprintf("unknown keys in %s: %s", abs, strings.Join(keys, ", ")), nil)
	}

	m.root = filepath.Dir(abs)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the manifest names something to compile.
func (m *Manifest) Validate() error {
	if len(m.Targets) == 0 && len(m.Sources) == 0 && len(m.ExtraClasses) == 0 {
		return errors.New(errors.ManifestInvalid, "manifest lists no targets, sources or extra classes", nil)
	}
	for _, list := range [][]string{m.Targets, m.Sources, m.SourcePath, m.Libraries, m.BundlePath} {
		for _, p := range list {
			if strings.TrimSpace(p) == "" {
				return errors.New(errors.ManifestInvalid, "manifest contains an empty path", nil)
			}
		}
	}
	return nil
}

// Save encodes the manifest to path and makes path its root.
func (m *Manifest) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		m.root = filepath.Dir(abs)
	}
	return nil
}

// Root returns the directory paths are resolved against.
func (m *Manifest) Root() string {
	return m.root
}

// Resolve makes p absolute relative to the manifest root.
func (m *Manifest) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.root, filepath.FromSlash(p))
}

func (m *Manifest) resolveAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, m.Resolve(p))
	}
	return out
}

// TargetPaths returns the absolute file-spec paths.
func (m *Manifest) TargetPaths() []string { return m.resolveAll(m.Targets) }

// SourcePaths returns the absolute source-list paths.
func (m *Manifest) SourcePaths() []string { return m.resolveAll(m.Sources) }

// SourceRoots returns the absolute source-path roots.
func (m *Manifest) SourceRoots() []string { return m.resolveAll(m.SourcePath) }

// LibraryPaths returns the absolute catalog paths.
func (m *Manifest) LibraryPaths() []string { return m.resolveAll(m.Libraries) }

// BundleRoots returns the absolute bundle path roots.
func (m *Manifest) BundleRoots() []string { return m.resolveAll(m.BundlePath) }

// OutputDir returns the absolute output directory, or "" when unset.
func (m *Manifest) OutputDir() string {
	if m.Output == "" {
		return ""
	}
	return m.Resolve(m.Output)
}

// IncludeClasses returns the loader class followed by the extra classes.
func (m *Manifest) IncludeClasses() []string {
	var out []string
	if m.LoaderClass != "" {
		out = append(out, m.LoaderClass)
	}
	return append(out, m.ExtraClasses...)
}

// WatchRoots returns every directory whose contents can change a build.
// Duplicates and nested roots are collapsed.
func (m *Manifest) WatchRoots() []string {
	var dirs []string
	for _, p := range m.TargetPaths() {
		dirs = append(dirs, filepath.Dir(p))
	}
	for _, p := range m.SourcePaths() {
		dirs = append(dirs, filepath.Dir(p))
	}
	dirs = append(dirs, m.SourceRoots()...)
	for _, r := range m.BundleRoots() {
		if i := strings.Index(r, "{locale}"); i >= 0 {
			r = filepath.Dir(r[:i+1])
		}
		dirs = append(dirs, r)
	}
	for _, p := range m.LibraryPaths() {
		dirs = append(dirs, filepath.Dir(p))
	}

	sort.Strings(dirs)
	var out []string
	for _, d := range dirs {
		if len(out) > 0 {
			last := out[len(out)-1]
			if d == last || strings.HasPrefix(d, last+string(filepath.Separator)) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
