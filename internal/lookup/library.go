package lookup

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"csb/internal/names"
	"csb/internal/source"
)

// Catalog is the YAML description of an archived library (*.lib.yaml).
type Catalog struct {
	Name    string          `yaml:"name"`
	Entries []CatalogEntry  `yaml:"entries"`
	Bundles []CatalogBundle `yaml:"bundles,omitempty"`
}

// CatalogEntry is one precompiled definition.
type CatalogEntry struct {
	// Definition is the qualified name, "a.b:C" or "a.b.C".
	Definition  string   `yaml:"definition"`
	Modified    int64    `yaml:"modified,omitempty"`
	Extends     []string `yaml:"extends,omitempty"`
	Types       []string `yaml:"types,omitempty"`
	Expressions []string `yaml:"expressions,omitempty"`
	Internal    bool     `yaml:"internal,omitempty"`
	Code        string   `yaml:"code,omitempty"`
}

// QName returns the parsed definition name.
func (e *CatalogEntry) QName() names.QName {
	return names.ParseQName(e.Definition)
}

// Signature hashes everything that dependents can observe about the entry.
func (e *CatalogEntry) Signature() string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "def %s\n", e.QName())
	for _, x := range e.Extends {
		fmt.Fprintf(h, "extends %s\n", x)
	}
	for _, x := range e.Types {
		fmt.Fprintf(h, "type %s\n", x)
	}
	fmt.Fprintf(h, "internal %t\n", e.Internal)
	return hex.EncodeToString(h.Sum(nil))
}

// CatalogBundle is an inline resource bundle fragment.
type CatalogBundle struct {
	Name    string            `yaml:"name"`
	Locale  string            `yaml:"locale"`
	Entries map[string]string `yaml:"entries"`
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read library catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, nil, fmt.Errorf("failed to parse library catalog %s: %w", path, err)
	}
	return &c, data, nil
}

// entryFile backs a library source. Its stamp is the entry's modification
// stamp, or the catalog's when the entry has none.
type entryFile struct {
	name     string
	modified int64
	code     []byte
}

func (f *entryFile) Name() string          { return f.name }
func (f *entryFile) LastModified() int64   { return f.modified }
func (f *entryFile) Size() int64           { return int64(len(f.code)) }
func (f *entryFile) Read() ([]byte, error) { return f.code, nil }

type libraryCatalog struct {
	path     string
	checksum string
	catalog  *Catalog
}

// Library indexes the definitions of every loaded catalog. When two catalogs
// define the same name the first one loaded wins.
type Library struct {
	catalogs []*libraryCatalog
	sources  map[string]*source.Source
	byQName  map[names.QName]*source.Source
	packages map[string]bool
}

// NewLibrary loads catalogs in order.
func NewLibrary(paths []string) (*Library, error) {
	lib := &Library{
		sources:  make(map[string]*source.Source),
		byQName:  make(map[names.QName]*source.Source),
		packages: make(map[string]bool),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve library path %s: %w", p, err)
		}
		if err := lib.load(abs); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func (lib *Library) load(path string) error {
	c, data, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	sum := blake2b.Sum256(data)
	lc := &libraryCatalog{path: path, checksum: hex.EncodeToString(sum[:]), catalog: c}
	lib.catalogs = append(lib.catalogs, lc)

	var catalogStamp int64
	if info, err := os.Stat(path); err == nil {
		catalogStamp = info.ModTime().UnixNano()
	}

	for i := range c.Entries {
		e := &c.Entries[i]
		q := e.QName()
		if q.IsZero() {
			return fmt.Errorf("library catalog %s: entry %d has no definition", path, i)
		}
		if _, dup := lib.byQName[q]; dup {
			continue
		}
		modified := e.Modified
		if modified == 0 {
			modified = catalogStamp
		}
		rel := q.Local + CatalogExt
		if dir := namespacePath(q.Namespace); dir != "" {
			rel = dir + "/" + rel
		}
		s := source.New(&entryFile{
			name:     fmt.Sprintf("%s(%s)", path, q),
			modified: modified,
			code:     []byte(e.Code),
		}, source.Options{
			RelativePath: rel,
			ShortName:    q.Local,
			Kind:         source.KindBinary,
			Owner:        source.OwnerLibrary,
			OwnerRoot:    path,
			Internal:     e.Internal,
			Payload:      e,
		})
		lib.sources[s.Name()] = s
		lib.byQName[q] = s
		ns := q.Namespace
		for {
			lib.packages[ns] = true
			dot := strings.LastIndex(ns, ".")
			if dot < 0 {
				break
			}
			ns = ns[:dot]
		}
	}
	return nil
}

// EntryOf returns the catalog entry carried by a library source.
func EntryOf(s *source.Source) (*CatalogEntry, bool) {
	e, ok := s.Payload().(*CatalogEntry)
	return e, ok
}

// Find returns the library source defining (namespace, local).
func (lib *Library) Find(namespace, local string) *source.Source {
	if lib == nil {
		return nil
	}
	return lib.byQName[names.NewQName(namespace, local)]
}

// Source returns the library source with the given name.
func (lib *Library) Source(name string) *source.Source {
	if lib == nil {
		return nil
	}
	return lib.sources[name]
}

// Sources returns every library source keyed by name.
func (lib *Library) Sources() map[string]*source.Source {
	if lib == nil {
		return nil
	}
	return lib.sources
}

// HasPackage reports whether any definition lives in namespace or below it.
func (lib *Library) HasPackage(namespace string) bool {
	return lib != nil && lib.packages[namespace]
}

// HasDefinition reports whether q is defined.
func (lib *Library) HasDefinition(q names.QName) bool {
	return lib != nil && lib.byQName[q] != nil
}

// FindBundle gathers inline fragments for the bundle across catalogs.
func (lib *Library) FindBundle(locales []string, namespace, local string) *source.Source {
	if lib == nil {
		return nil
	}
	name := qualify(namespace, local)
	b := NewBundle(name)
	var origin string
	for _, lc := range lib.catalogs {
		for _, cb := range lc.catalog.Bundles {
			if cb.Name != name {
				continue
			}
			for _, locale := range locales {
				if cb.Locale == locale {
					if origin == "" {
						origin = lc.path
					}
					b.AddInline(locale, cb.Entries, 1)
				}
			}
		}
	}
	if b.Empty() {
		return nil
	}
	s := newBundleSource(b, source.OwnerLibrary, origin, namespace, local)
	if cached, ok := lib.sources[s.Name()]; ok && sameLocales(cached, b) {
		return cached
	}
	lib.sources[s.Name()] = s
	return s
}

// Checksum combines the checksums of every catalog, in load order.
func (lib *Library) Checksum() string {
	if lib == nil || len(lib.catalogs) == 0 {
		return ""
	}
	parts := make([]string, len(lib.catalogs))
	for i, lc := range lib.catalogs {
		parts[i] = lc.path + "=" + lc.checksum
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// Definitions returns every indexed definition, sorted.
func (lib *Library) Definitions() []names.QName {
	if lib == nil {
		return nil
	}
	out := make([]names.QName, 0, len(lib.byQName))
	for q := range lib.byQName {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
