package lookup

import (
	"os"
	"path/filepath"

	"csb/internal/names"
	"csb/internal/source"
)

// SourcePath searches an ordered list of roots for "<ns path>/<local><ext>".
// The first root and the first extension win.
type SourcePath struct {
	roots   []string
	sources map[string]*source.Source
}

// NewSourcePath creates a source path over roots. Roots are made absolute.
func NewSourcePath(roots []string) *SourcePath {
	sp := &SourcePath{sources: make(map[string]*source.Source)}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		sp.roots = append(sp.roots, filepath.Clean(abs))
	}
	return sp
}

// Roots returns the absolute roots in search order.
func (sp *SourcePath) Roots() []string {
	if sp == nil {
		return nil
	}
	return sp.roots
}

// locate returns the first existing file for (namespace, local).
func (sp *SourcePath) locate(namespace, local string) (path, root, rel string, ok bool) {
	dir := namespacePath(namespace)
	for _, r := range sp.roots {
		for _, ext := range SearchExtensions {
			rel = local + ext
			if dir != "" {
				rel = dir + "/" + rel
			}
			path = filepath.Join(r, filepath.FromSlash(rel))
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, r, rel, true
			}
		}
	}
	return "", "", "", false
}

// Find returns the source for (namespace, local), creating it on first use.
func (sp *SourcePath) Find(namespace, local string) *source.Source {
	if sp == nil {
		return nil
	}
	path, root, rel, ok := sp.locate(namespace, local)
	if !ok {
		return nil
	}
	if s, cached := sp.sources[path]; cached {
		return s
	}
	s := source.New(source.NewLocalFile(path), source.Options{
		RelativePath: rel,
		Kind:         KindForPath(path),
		Owner:        source.OwnerSourcePath,
		OwnerRoot:    root,
	})
	sp.sources[s.Name()] = s
	return s
}

// CheckPreference reports whether s is still the first match for its own
// namespace and short name.
func (sp *SourcePath) CheckPreference(s *source.Source) bool {
	if sp == nil {
		return false
	}
	path, _, _, ok := sp.locate(s.Namespace(), s.ShortName())
	return ok && path == s.Name()
}

// HasPackage reports whether any root contains the namespace directory.
func (sp *SourcePath) HasPackage(namespace string) bool {
	if sp == nil {
		return false
	}
	dir := filepath.FromSlash(namespacePath(namespace))
	for _, r := range sp.roots {
		if info, err := os.Stat(filepath.Join(r, dir)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// HasDefinition reports whether a file defines q.
func (sp *SourcePath) HasDefinition(q names.QName) bool {
	if sp == nil {
		return false
	}
	_, _, _, ok := sp.locate(q.Namespace, q.Local)
	return ok
}

// Sources returns the sources discovered so far, keyed by name.
func (sp *SourcePath) Sources() map[string]*source.Source {
	if sp == nil {
		return nil
	}
	return sp.sources
}

// Restore registers a persisted source under its name.
func (sp *SourcePath) Restore(s *source.Source) {
	if sp == nil {
		return
	}
	sp.sources[s.Name()] = s
}

// Remove forgets a discovered source.
func (sp *SourcePath) Remove(name string) {
	if sp == nil {
		return
	}
	delete(sp.sources, name)
}

// ResourceContainer pools sources generated during compilation.
type ResourceContainer struct {
	sources map[string]*source.Source
	byQName map[names.QName]string
}

// NewResourceContainer creates an empty pool.
func NewResourceContainer() *ResourceContainer {
	return &ResourceContainer{
		sources: make(map[string]*source.Source),
		byQName: make(map[names.QName]string),
	}
}

// AddResource pools s. A pooled source with the same name and stamp is kept
// and returned instead.
func (rc *ResourceContainer) AddResource(s *source.Source) *source.Source {
	if existing, ok := rc.sources[s.Name()]; ok && existing.LastModified() == s.LastModified() {
		return existing
	}
	rc.sources[s.Name()] = s
	rc.byQName[names.NewQName(s.Namespace(), s.ShortName())] = s.Name()
	return s
}

// Find returns the pooled source defining (namespace, local).
func (rc *ResourceContainer) Find(namespace, local string) *source.Source {
	name, ok := rc.byQName[names.NewQName(namespace, local)]
	if !ok {
		return nil
	}
	return rc.sources[name]
}

// Sources returns the pooled sources keyed by name.
func (rc *ResourceContainer) Sources() map[string]*source.Source {
	return rc.sources
}

// Remove drops a pooled source.
func (rc *ResourceContainer) Remove(name string) {
	s, ok := rc.sources[name]
	if !ok {
		return
	}
	delete(rc.sources, name)
	q := names.NewQName(s.Namespace(), s.ShortName())
	if rc.byQName[q] == name {
		delete(rc.byQName, q)
	}
}

// RemoveNamespaces drops pooled sources living in any of the namespaces.
func (rc *ResourceContainer) RemoveNamespaces(namespaces []string) {
	if len(namespaces) == 0 {
		return
	}
	drop := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		drop[ns] = true
	}
	for _, name := range sortedKeys(rc.sources) {
		if drop[rc.sources[name].Namespace()] {
			rc.Remove(name)
		}
	}
}

// Refresh drops pooled sources whose backing file disappeared and returns
// their names.
func (rc *ResourceContainer) Refresh() []string {
	var removed []string
	for _, name := range sortedKeys(rc.sources) {
		if !rc.sources[name].Exists() {
			rc.Remove(name)
			removed = append(removed, name)
		}
	}
	return removed
}
