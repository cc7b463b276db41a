package lookup

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"csb/internal/source"
)

// LocaleToken is replaced by each locale in bundle-path roots.
const LocaleToken = "{locale}"

// Fragment is the part of a bundle for one locale. It is backed either by a
// file or by inline entries from a library catalog.
type Fragment struct {
	Locale   string
	File     source.File
	Entries  map[string]string
	Modified int64
}

// Bundle is a named resource bundle with per-locale fragments.
type Bundle struct {
	Name      string
	Fragments map[string]*Fragment
}

// NewBundle creates an empty bundle.
func NewBundle(name string) *Bundle {
	return &Bundle{Name: name, Fragments: make(map[string]*Fragment)}
}

// AddFile adds a file-backed fragment unless the locale is already present.
func (b *Bundle) AddFile(locale string, f source.File) {
	if _, ok := b.Fragments[locale]; ok {
		return
	}
	b.Fragments[locale] = &Fragment{Locale: locale, File: f}
}

// AddInline adds an inline fragment unless the locale is already present.
func (b *Bundle) AddInline(locale string, entries map[string]string, modified int64) {
	if _, ok := b.Fragments[locale]; ok {
		return
	}
	b.Fragments[locale] = &Fragment{Locale: locale, Entries: entries, Modified: modified}
}

// Empty reports whether the bundle has no fragments.
func (b *Bundle) Empty() bool {
	return len(b.Fragments) == 0
}

// Complete reports whether every locale has a fragment.
func (b *Bundle) Complete(locales []string) bool {
	for _, l := range locales {
		if _, ok := b.Fragments[l]; !ok {
			return false
		}
	}
	return true
}

// Merge copies fragments of locales b is missing from o.
func (b *Bundle) Merge(o *Bundle) {
	if o == nil {
		return
	}
	for _, locale := range o.Locales() {
		if _, ok := b.Fragments[locale]; !ok {
			b.Fragments[locale] = o.Fragments[locale]
		}
	}
}

// Locales returns the fragment locales, sorted.
func (b *Bundle) Locales() []string {
	return sortedKeys(b.Fragments)
}

// bundleFile presents a bundle as a single file whose stamp is the newest
// fragment stamp. It reflects merges made after creation.
type bundleFile struct {
	name   string
	bundle *Bundle
}

func (f *bundleFile) Name() string { return f.name }

func (f *bundleFile) LastModified() int64 {
	var newest int64
	for _, frag := range f.bundle.Fragments {
		stamp := frag.Modified
		if frag.File != nil {
			stamp = frag.File.LastModified()
			if stamp == 0 {
				// A missing fragment makes the whole bundle missing.
				return 0
			}
		}
		if stamp > newest {
			newest = stamp
		}
	}
	return newest
}

func (f *bundleFile) Size() int64 {
	var size int64
	for _, frag := range f.bundle.Fragments {
		if frag.File != nil {
			size += frag.File.Size()
		}
	}
	return size
}

func (f *bundleFile) Read() ([]byte, error) {
	var buf bytes.Buffer
	for _, locale := range f.bundle.Locales() {
		frag := f.bundle.Fragments[locale]
		fmt.Fprintf(&buf, "# %s\n", locale)
		if frag.File != nil {
			data, err := frag.File.Read()
			if err != nil {
				return nil, fmt.Errorf("failed to read bundle fragment %s: %w", frag.File.Name(), err)
			}
			buf.Write(data)
			buf.WriteByte('\n')
			continue
		}
		keys := sortedKeys(frag.Entries)
		for _, k := range keys {
			fmt.Fprintf(&buf, "%s=%s\n", k, frag.Entries[k])
		}
	}
	return buf.Bytes(), nil
}

func newBundleSource(b *Bundle, owner source.Owner, origin, namespace, local string) *source.Source {
	rel := local + BundleExt
	if dir := namespacePath(namespace); dir != "" {
		rel = dir + "/" + rel
	}
	return source.New(&bundleFile{name: "bundle://" + origin + "/" + rel, bundle: b}, source.Options{
		RelativePath: rel,
		ShortName:    local,
		Kind:         source.KindBundle,
		Owner:        owner,
		OwnerRoot:    origin,
		Payload:      b,
	})
}

// BundleOf returns the bundle carried by a bundle source.
func BundleOf(s *source.Source) (*Bundle, bool) {
	b, ok := s.Payload().(*Bundle)
	return b, ok
}

// BundlePath searches roots for "<ns path>/<local>.toml". Each root contains
// the LocaleToken; roots without it get "/{locale}" appended.
type BundlePath struct {
	roots   []string
	sources map[string]*source.Source
}

// NewBundlePath creates a bundle path.
func NewBundlePath(roots []string) *BundlePath {
	bp := &BundlePath{sources: make(map[string]*source.Source)}
	for _, r := range roots {
		if !strings.Contains(r, LocaleToken) {
			r = filepath.Join(r, LocaleToken)
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		bp.roots = append(bp.roots, r)
	}
	return bp
}

// collect gathers the first fragment of each locale across roots.
func (bp *BundlePath) collect(locales []string, namespace, local string) *Bundle {
	rel := filepath.FromSlash(namespacePath(namespace))
	b := NewBundle(qualify(namespace, local))
	for _, locale := range locales {
		for _, r := range bp.roots {
			path := filepath.Join(strings.ReplaceAll(r, LocaleToken, locale), rel, local+BundleExt)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				b.AddFile(locale, source.NewLocalFile(path))
				break
			}
		}
	}
	return b
}

// FindBundle returns the bundle source for (namespace, local), reusing the
// cached source while its locales are unchanged.
func (bp *BundlePath) FindBundle(locales []string, namespace, local string) *source.Source {
	if bp == nil || len(bp.roots) == 0 {
		return nil
	}
	b := bp.collect(locales, namespace, local)
	if b.Empty() {
		return nil
	}

	s := newBundleSource(b, source.OwnerBundlePath, "bundle-path", namespace, local)
	if cached, ok := bp.sources[s.Name()]; ok && sameLocales(cached, b) {
		return cached
	}
	bp.sources[s.Name()] = s
	return s
}

func sameLocales(s *source.Source, b *Bundle) bool {
	cached, ok := BundleOf(s)
	if !ok {
		return false
	}
	a, c := cached.Locales(), b.Locales()
	if len(a) != len(c) {
		return false
	}
	for i := range a {
		if a[i] != c[i] {
			return false
		}
	}
	return true
}

// Sources returns bundle sources discovered so far, keyed by name.
func (bp *BundlePath) Sources() map[string]*source.Source {
	if bp == nil {
		return nil
	}
	return bp.sources
}

// Restore registers a persisted bundle source.
func (bp *BundlePath) Restore(s *source.Source) {
	if bp == nil {
		return
	}
	bp.sources[s.Name()] = s
}

// Remove forgets a bundle source.
func (bp *BundlePath) Remove(name string) {
	if bp == nil {
		return
	}
	delete(bp.sources, name)
}

// CheckPreference reports whether every fragment of s is still the first
// match for its locale.
func (bp *BundlePath) CheckPreference(s *source.Source, locales []string) bool {
	if bp == nil {
		return false
	}
	b, ok := BundleOf(s)
	if !ok {
		return false
	}
	fresh := bp.collect(locales, s.Namespace(), s.ShortName())
	if len(fresh.Fragments) != len(b.Fragments) {
		return false
	}
	for locale, frag := range fresh.Fragments {
		old, ok := b.Fragments[locale]
		if !ok || old.File == nil || old.File.Name() != frag.File.Name() {
			return false
		}
	}
	return true
}

// RestoreBundleSource rebuilds a persisted file-backed bundle source from
// its fragment paths, keyed by locale.
func RestoreBundleSource(owner source.Owner, origin, namespace, local string, fragments map[string]string) *source.Source {
	b := NewBundle(qualify(namespace, local))
	for _, locale := range sortedKeys(fragments) {
		b.AddFile(locale, source.NewLocalFile(fragments[locale]))
	}
	return newBundleSource(b, owner, origin, namespace, local)
}

// FragmentPaths returns the file path of every file-backed fragment, keyed
// by locale.
func (b *Bundle) FragmentPaths() map[string]string {
	out := make(map[string]string, len(b.Fragments))
	for locale, frag := range b.Fragments {
		if frag.File != nil {
			out[locale] = frag.File.Name()
		}
	}
	return out
}
