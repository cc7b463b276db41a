// Package decl processes declaration sources (*.sc scripts and *.mx markup).
//
// A declaration source is line oriented:
//
//	package a.b
//	import a.c.*
//	import a.d.Thing
//	namespace proxy
//	class Foo extends Bar implements IOne, ITwo
//	type Thing
//	expr Helper
//	include parts/foo.inc
//	generate FooSkin
//	extra a.e.Plugin
//	loader a.e.Loader
//	bundle ui.labels
//	body anything
//	error message
//
// Lines starting with "//" are comments. "body" lines carry implementation
// text and are excluded from the signature.
package decl

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"csb/internal/names"
)

// Definition is a declared class or interface.
type Definition struct {
	Name       string
	Interface  bool
	Extends    []string
	Implements []string
	Line       int
}

// Ref is a name used by the source, with the line it appeared on.
type Ref struct {
	Name string
	Line int
}

// File is the parsed form of a declaration source.
type File struct {
	Package     string
	Imports     []Ref
	Definitions []Definition
	Namespaces  []Ref
	Types       []Ref
	Expressions []Ref
	Includes    []Ref
	Generated   []Ref
	Extras      []Ref
	Loader      string
	Bundles     []Ref
	Errors      []Ref
	Body        []string
}

// Parse parses declaration text. Syntax problems are returned as a list of
// errors rather than aborting, so that every problem in a file is reported.
func Parse(data []byte) (*File, []Ref) {
	f := &File{}
	var problems []Ref

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		keyword, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)

		switch keyword {
		case "package":
			if f.Package != "" {
				problems = append(problems, Ref{Name: "duplicate package statement", Line: line})
				continue
			}
			f.Package = rest
		case "import":
			if rest == "" {
				problems = append(problems, Ref{Name: "empty import", Line: line})
				continue
			}
			f.Imports = append(f.Imports, Ref{Name: rest, Line: line})
		case "class", "interface":
			def, err := parseDefinition(keyword == "interface", rest, line)
			if err != nil {
				problems = append(problems, Ref{Name: err.Error(), Line: line})
				continue
			}
			f.Definitions = append(f.Definitions, def)
		case "namespace":
			f.Namespaces = appendRefs(f.Namespaces, rest, line)
		case "type":
			f.Types = appendRefs(f.Types, rest, line)
		case "expr":
			f.Expressions = appendRefs(f.Expressions, rest, line)
		case "include":
			f.Includes = append(f.Includes, Ref{Name: rest, Line: line})
		case "generate":
			f.Generated = appendRefs(f.Generated, rest, line)
		case "extra":
			f.Extras = appendRefs(f.Extras, rest, line)
		case "loader":
			f.Loader = rest
		case "bundle":
			f.Bundles = appendRefs(f.Bundles, rest, line)
		case "body":
			f.Body = append(f.Body, rest)
		case "error":
			f.Errors = append(f.Errors, Ref{Name: rest, Line: line})
		default:
			problems = append(problems, Ref{Name: fmt.Sprintf("unknown statement %q", keyword), Line: line})
		}
	}
	return f, problems
}

func appendRefs(refs []Ref, list string, line int) []Ref {
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			refs = append(refs, Ref{Name: name, Line: line})
		}
	}
	return refs
}

func parseDefinition(isInterface bool, rest string, line int) (Definition, error) {
	fields := strings.Fields(strings.ReplaceAll(rest, ",", " , "))
	if len(fields) == 0 {
		return Definition{}, fmt.Errorf("missing definition name")
	}
	def := Definition{Name: fields[0], Interface: isInterface, Line: line}

	var target *[]string
	for _, tok := range fields[1:] {
		switch tok {
		case "extends":
			target = &def.Extends
		case "implements":
			target = &def.Implements
		case ",":
		default:
			if target == nil {
				return Definition{}, fmt.Errorf("unexpected %q after %s", tok, def.Name)
			}
			*target = append(*target, tok)
		}
	}
	if !isInterface && len(def.Extends) > 1 {
		return Definition{}, fmt.Errorf("class %s extends more than one class", def.Name)
	}
	return def, nil
}

// QNames returns the qualified names of the definitions.
func (f *File) QNames() []names.QName {
	out := make([]names.QName, 0, len(f.Definitions))
	for _, d := range f.Definitions {
		out = append(out, names.NewQName(f.Package, d.Name))
	}
	return out
}

// Candidates returns the multi-name under which a reference is looked up.
// A dotted reference names exactly one definition. A simple one is searched
// in the own package, wildcard imports, matching single imports and the
// unnamed namespace.
func (f *File) Candidates(ref string) names.MultiName {
	if strings.ContainsAny(ref, ".:") {
		return names.FromQName(names.ParseQName(ref))
	}
	ns := []string{f.Package}
	for _, imp := range f.Imports {
		if pkg, ok := strings.CutSuffix(imp.Name, ".*"); ok {
			ns = append(ns, pkg)
			continue
		}
		q := names.ParseQName(imp.Name)
		if q.Local == ref {
			ns = append(ns, q.Namespace)
		}
	}
	ns = append(ns, "")
	return names.NewMultiName(ref, ns...)
}

// Signature returns the normalized text that dependents can observe: every
// statement except bodies, errors and comments.
func Signature(data []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		text := strings.Join(strings.Fields(sc.Text()), " ")
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		keyword, _, _ := strings.Cut(text, " ")
		if keyword == "body" || keyword == "error" {
			continue
		}
		out.WriteString(text)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
