// Package lookup provides the collaborators that discover sources for a
// qualified name: explicit files, the source list, the source path, the
// generated-resource pool, archived libraries and resource-bundle roots.
package lookup

import (
	"path/filepath"
	"strings"

	"csb/internal/source"
)

// Source file extensions, in source-path search order.
const (
	ScriptExt  = ".sc"
	MarkupExt  = ".mx"
	BundleExt  = ".toml"
	CatalogExt = ".lib.yaml"
)

// SearchExtensions are tried in order when looking a definition up on the
// source path.
var SearchExtensions = []string{ScriptExt, MarkupExt}

var extensionKinds = map[string]string{
	ScriptExt: source.KindScript,
	MarkupExt: source.KindMarkup,
	BundleExt: source.KindBundle,
}

// KindForPath maps a file name to a source kind. Unknown extensions map to
// the empty kind.
func KindForPath(path string) string {
	if strings.HasSuffix(path, CatalogExt) {
		return source.KindBinary
	}
	return extensionKinds[strings.ToLower(filepath.Ext(path))]
}

// IsCompilable reports whether path is a script or markup file.
func IsCompilable(path string) bool {
	switch KindForPath(path) {
	case source.KindScript, source.KindMarkup:
		return true
	default:
		return false
	}
}

// Finder discovers the source defining (namespace, local).
type Finder interface {
	Find(namespace, local string) *source.Source
}

// BundleFinder discovers the source of a resource bundle.
type BundleFinder interface {
	FindBundle(locales []string, namespace, local string) *source.Source
}

// namespacePath turns "a.b" into "a/b".
func namespacePath(namespace string) string {
	if namespace == "" {
		return ""
	}
	return strings.ReplaceAll(namespace, ".", "/")
}

// relativeTo returns path relative to root with '/' separators, or false if
// path is not inside root.
func relativeTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
