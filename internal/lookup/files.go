package lookup

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"csb/internal/source"
)

// FileSpec holds the explicit entry-point files of a build.
type FileSpec struct {
	sources []*source.Source
	byName  map[string]*source.Source
}

// NewFileSpec creates file-spec sources for paths. Every path must exist.
func NewFileSpec(paths []string) (*FileSpec, error) {
	fs := &FileSpec{byName: make(map[string]*source.Source)}
	for _, p := range paths {
		f := source.NewLocalFile(p)
		if f.LastModified() == 0 {
			return nil, fmt.Errorf("file-spec target %s does not exist", p)
		}
		kind := KindForPath(p)
		if kind == "" {
			return nil, fmt.Errorf("file-spec target %s has an unknown kind", p)
		}
		s := source.New(f, source.Options{
			RelativePath: filepath.Base(f.Name()),
			Kind:         kind,
			Owner:        source.OwnerFileSpec,
			OwnerRoot:    filepath.Dir(f.Name()),
			Root:         true,
		})
		fs.add(s)
	}
	return fs, nil
}

func (fs *FileSpec) add(s *source.Source) {
	if _, ok := fs.byName[s.Name()]; ok {
		return
	}
	fs.byName[s.Name()] = s
	fs.sources = append(fs.sources, s)
}

// Sources returns the targets in declaration order.
func (fs *FileSpec) Sources() []*source.Source {
	if fs == nil {
		return nil
	}
	return fs.sources
}

// Find matches a target by its short name in the unnamed namespace.
func (fs *FileSpec) Find(namespace, local string) *source.Source {
	if fs == nil || namespace != "" {
		return nil
	}
	for _, s := range fs.sources {
		if s.ShortName() == local {
			return s
		}
	}
	return nil
}

// Replace swaps a target for a restored source with the same name.
func (fs *FileSpec) Replace(s *source.Source) bool {
	if fs == nil {
		return false
	}
	if _, ok := fs.byName[s.Name()]; !ok {
		return false
	}
	fs.byName[s.Name()] = s
	for i, old := range fs.sources {
		if old.Name() == s.Name() {
			fs.sources[i] = s
		}
	}
	return true
}

// SourceList holds explicitly listed files that are compiled as a whole.
// Each file's namespace is derived from the first source-path root that
// contains it.
type SourceList struct {
	sources []*source.Source
	byName  map[string]*source.Source
}

// NewSourceList creates source-list sources for paths.
func NewSourceList(paths, roots []string) (*SourceList, error) {
	sl := &SourceList{byName: make(map[string]*source.Source)}
	for _, p := range paths {
		f := source.NewLocalFile(p)
		if f.LastModified() == 0 {
			return nil, fmt.Errorf("source-list entry %s does not exist", p)
		}
		kind := KindForPath(p)
		if kind == "" {
			return nil, fmt.Errorf("source-list entry %s has an unknown kind", p)
		}
		rel, root := filepath.Base(f.Name()), filepath.Dir(f.Name())
		for _, r := range roots {
			absRoot, err := filepath.Abs(r)
			if err != nil {
				continue
			}
			if candidate, ok := relativeTo(absRoot, f.Name()); ok {
				rel, root = candidate, absRoot
				break
			}
		}
		s := source.New(f, source.Options{
			RelativePath: rel,
			Kind:         kind,
			Owner:        source.OwnerSourceList,
			OwnerRoot:    root,
			Root:         kind != source.KindBundle,
		})
		if _, ok := sl.byName[s.Name()]; ok {
			continue
		}
		sl.byName[s.Name()] = s
		sl.sources = append(sl.sources, s)
	}
	return sl, nil
}

// Sources returns the listed compilable sources in declaration order.
func (sl *SourceList) Sources() []*source.Source {
	if sl == nil {
		return nil
	}
	var out []*source.Source
	for _, s := range sl.sources {
		if s.Kind() != source.KindBundle {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the listed source defining (namespace, local).
func (sl *SourceList) Find(namespace, local string) *source.Source {
	if sl == nil {
		return nil
	}
	for _, s := range sl.sources {
		if s.Kind() != source.KindBundle && s.Namespace() == namespace && s.ShortName() == local {
			return s
		}
	}
	return nil
}

// Contains reports whether a source with this name is listed.
func (sl *SourceList) Contains(name string) bool {
	if sl == nil {
		return false
	}
	_, ok := sl.byName[name]
	return ok
}

// Replace swaps a listed source for a restored one with the same name.
func (sl *SourceList) Replace(s *source.Source) bool {
	if sl == nil || !sl.Contains(s.Name()) {
		return false
	}
	sl.byName[s.Name()] = s
	for i, old := range sl.sources {
		if old.Name() == s.Name() {
			sl.sources[i] = s
		}
	}
	return true
}

// FindBundle collects listed fragments named "<local>_<locale>.toml" in the
// given namespace.
func (sl *SourceList) FindBundle(locales []string, namespace, local string) *source.Source {
	if sl == nil {
		return nil
	}
	b := NewBundle(qualify(namespace, local))
	for _, s := range sl.sources {
		if s.Kind() != source.KindBundle || s.Namespace() != namespace {
			continue
		}
		for _, locale := range locales {
			if s.ShortName() == local+"_"+locale {
				b.AddFile(locale, s.File())
			}
		}
	}
	if b.Empty() {
		return nil
	}
	return newBundleSource(b, source.OwnerSourceList, "source-list", namespace, local)
}

func qualify(namespace, local string) string {
	if namespace == "" {
		return local
	}
	return namespace + "." + local
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func hasDirPrefix(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+"/")
}
