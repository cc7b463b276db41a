// Package bundle processes resource bundles. Each locale fragment is a TOML
// document; nested tables flatten to dotted keys. A value of the form
// "@class(a.b.C)" references a definition and becomes an expression
// dependency of the bundle.
package bundle

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/blake2b"

	"csb/internal/diag"
	"csb/internal/lookup"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/resolve"
	"csb/internal/source"
	"csb/internal/unit"
)

const (
	classPrefix = "@class("
	classSuffix = ")"
)

// Processor compiles bundle sources.
type Processor struct {
	processor.Base
}

// New creates a bundle processor.
func New() *Processor {
	return &Processor{}
}

// entries maps locale to flattened key/value pairs.
type entries map[string]map[string]string

func bundleOf(s *source.Source) (*lookup.Bundle, error) {
	b, ok := lookup.BundleOf(s)
	if !ok {
		return nil, fmt.Errorf("%s does not carry a resource bundle", s.NameForReporting())
	}
	return b, nil
}

// load reads every fragment of b.
func load(b *lookup.Bundle) (entries, error) {
	out := make(entries, len(b.Fragments))
	for _, locale := range b.Locales() {
		frag := b.Fragments[locale]
		if frag.File == nil {
			out[locale] = frag.Entries
			continue
		}
		data, err := frag.File.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle fragment %s: %w", frag.File.Name(), err)
		}
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse bundle fragment %s: %w", frag.File.Name(), err)
		}
		flat := make(map[string]string)
		flatten("", doc, flat)
		out[locale] = flat
	}
	return out, nil
}

func flatten(prefix string, doc map[string]any, out map[string]string) {
	for k, v := range doc {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// classRef returns the definition named by an "@class(...)" value.
func classRef(value string) (names.QName, bool) {
	v := strings.TrimSpace(value)
	if !strings.HasPrefix(v, classPrefix) || !strings.HasSuffix(v, classSuffix) {
		return names.QName{}, false
	}
	ref := strings.TrimSpace(v[len(classPrefix) : len(v)-len(classSuffix)])
	if ref == "" {
		return names.QName{}, false
	}
	return names.ParseQName(ref), true
}

// Preprocess checks that every file-backed fragment is readable TOML.
func (p *Processor) Preprocess(pc *processor.Context, s *source.Source) error {
	b, err := bundleOf(s)
	if err != nil {
		return err
	}
	_, err = load(b)
	return err
}

// Parse1 creates the unit and records the per-locale definitions.
func (p *Processor) Parse1(pc *processor.Context, s *source.Source) (*unit.Unit, error) {
	b, err := bundleOf(s)
	if err != nil {
		return nil, err
	}
	e, err := load(b)
	if err != nil {
		return nil, err
	}
	for _, locale := range pc.Locales {
		if _, ok := e[locale]; !ok && pc.Warnings {
			pc.Diag.Warning(s, diag.ProcessorError, fmt.Sprintf("bundle %s has no %s fragment", b.Name, locale))
		}
	}

	u := unit.New(s)
	u.SyntaxTree = e
	for _, q := range resolve.BundleQNames(b.Name, pc.Locales) {
		u.AddTopLevelDefinition(q)
	}
	return u, nil
}

// Parse2 attaches type information.
func (p *Processor) Parse2(pc *processor.Context, u *unit.Unit) error {
	e, ok := u.SyntaxTree.(entries)
	if !ok {
		return fmt.Errorf("%s has no parsed bundle", u.Source.Name())
	}
	ti := &unit.TypeInfo{Definitions: u.TopLevelDefinitions, Data: keyLines(e)}
	if sig, ok := p.Signature(pc, u.Source); ok {
		ti.Signature = sig
	}
	u.SetTypeInfo(ti)
	return nil
}

// Analyze2 records class references as expression dependencies.
func (p *Processor) Analyze2(pc *processor.Context, u *unit.Unit) error {
	e, ok := u.SyntaxTree.(entries)
	if !ok {
		return fmt.Errorf("%s has no parsed bundle", u.Source.Name())
	}
	for _, locale := range sortedKeys(e) {
		kv := e[locale]
		for _, k := range sortedKeys(kv) {
			if q, ok := classRef(kv[k]); ok {
				u.Expressions.Add(names.FromQName(q))
			}
		}
	}
	return nil
}

// Generate writes "locale key=value" lines in sorted order.
func (p *Processor) Generate(pc *processor.Context, u *unit.Unit) error {
	e, ok := u.SyntaxTree.(entries)
	if !ok {
		return fmt.Errorf("%s has no parsed bundle", u.Source.Name())
	}
	var out bytes.Buffer
	for _, locale := range sortedKeys(e) {
		kv := e[locale]
		for _, k := range sortedKeys(kv) {
			fmt.Fprintf(&out, "%s %s=%s\n", locale, k, kv[k])
		}
	}
	u.SetBytecode(out.Bytes())
	return nil
}

// Signature hashes the keys and class references of every fragment. Plain
// value edits leave it unchanged.
func (p *Processor) Signature(pc *processor.Context, s *source.Source) (string, bool) {
	b, ok := lookup.BundleOf(s)
	if !ok {
		return "", false
	}
	e, err := load(b)
	if err != nil {
		return "", false
	}
	sum := blake2b.Sum256(keyLines(e))
	return hex.EncodeToString(sum[:]), true
}

func keyLines(e entries) []byte {
	var out bytes.Buffer
	for _, locale := range sortedKeys(e) {
		kv := e[locale]
		for _, k := range sortedKeys(kv) {
			out.WriteString(locale)
			out.WriteByte(' ')
			out.WriteString(k)
			if q, ok := classRef(kv[k]); ok {
				out.WriteString(" -> ")
				out.WriteString(q.String())
			}
			out.WriteByte('\n')
		}
	}
	return out.Bytes()
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
