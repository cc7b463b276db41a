package decl

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"csb/internal/diag"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/source"
	"csb/internal/unit"
)

// GeneratedDir is the directory, next to the generating source, that holds
// generated sources.
const GeneratedDir = "_generated"

// Processor compiles declaration sources.
type Processor struct {
	processor.Base
}

// New creates a declaration processor.
func New() *Processor {
	return &Processor{}
}

type tree struct {
	file *File
	data []byte
}

func treeOf(u *unit.Unit) (*tree, error) {
	t, ok := u.SyntaxTree.(*tree)
	if !ok || t == nil {
		return nil, fmt.Errorf("%s has no syntax tree", u.Source.Name())
	}
	return t, nil
}

// Preprocess checks that the source can be read.
func (p *Processor) Preprocess(pc *processor.Context, s *source.Source) error {
	if _, err := s.File().Read(); err != nil {
		return fmt.Errorf("failed to read %s: %w", s.NameForReporting(), err)
	}
	return nil
}

// Parse1 creates the unit and records inheritance, definitions, imports and
// everything else the scheduler must know before parse2.
func (p *Processor) Parse1(pc *processor.Context, s *source.Source) (*unit.Unit, error) {
	data, err := s.File().Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.NameForReporting(), err)
	}
	f, problems := Parse(data)
	for _, prob := range problems {
		pc.Diag.ErrorAt(s, diag.Position{Line: prob.Line, Column: 1}, diag.ProcessorError, prob.Name)
	}
	for _, e := range f.Errors {
		pc.Diag.ErrorAt(s, diag.Position{Line: e.Line, Column: 1}, diag.ProcessorError, e.Name)
	}

	u := unit.New(s)
	u.SyntaxTree = &tree{file: f, data: data}

	for _, q := range f.QNames() {
		u.AddTopLevelDefinition(q)
	}
	for _, imp := range f.Imports {
		if pkg, ok := strings.CutSuffix(imp.Name, ".*"); ok {
			u.AddImportPackage(pkg)
		} else {
			u.AddImportDefinition(names.ParseQName(imp.Name))
		}
	}
	for _, d := range f.Definitions {
		for _, base := range d.Extends {
			u.Inheritance.Add(f.Candidates(base))
		}
		for _, iface := range d.Implements {
			u.Inheritance.Add(f.Candidates(iface))
		}
	}

	if pc.Resolver != nil {
		for _, inc := range f.Includes {
			file := pc.Resolver.Resolve(s, inc.Name)
			if file.LastModified() == 0 {
				pc.Diag.ErrorAt(s, diag.Position{Line: inc.Line, Column: 1}, diag.ProcessorError,
					fmt.Sprintf("include %s not found", inc.Name))
				continue
			}
			s.AddFileInclude(file)
		}
	}

	for _, g := range f.Generated {
		q := names.NewQName(f.Package, g.Name)
		u.AddGeneratedSource(q, generatedSource(s, f.Package, g.Name))
	}
	for _, x := range f.Extras {
		u.ExtraClasses = append(u.ExtraClasses, x.Name)
	}
	u.LoaderClass = f.Loader
	for _, b := range f.Bundles {
		u.ResourceBundles = append(u.ResourceBundles, b.Name)
	}
	return u, nil
}

// generatedSource creates the in-memory source for a generated definition.
// It carries the generating source's stamp, so it is stale exactly when its
// generator is.
func generatedSource(from *source.Source, pkg, name string) *source.Source {
	rel := name + ".sc"
	if pkg != "" {
		rel = strings.ReplaceAll(pkg, ".", "/") + "/" + rel
	}
	path := filepath.Join(filepath.Dir(from.Name()), GeneratedDir, filepath.FromSlash(rel))
	text := fmt.Sprintf("package %s\nclass %s\n", pkg, name)
	if pkg == "" {
		text = fmt.Sprintf("class %s\n", name)
	}
	return source.New(source.NewMemoryFile(path, []byte(text), from.LastModified()), source.Options{
		RelativePath: rel,
		Kind:         source.KindScript,
		Owner:        source.OwnerResources,
		OwnerRoot:    filepath.Join(filepath.Dir(from.Name()), GeneratedDir),
	})
}

// definitionLine returns the line of the first definition that extends or
// implements local.
func (f *File) definitionLine(local string) int {
	for _, d := range f.Definitions {
		for _, ref := range append(append([]string(nil), d.Extends...), d.Implements...) {
			if refersTo(ref, local) {
				return d.Line
			}
		}
	}
	return 0
}

// refLine returns the line of the first ref naming local.
func refLine(refs []Ref, local string) int {
	for _, ref := range refs {
		if refersTo(ref.Name, local) {
			return ref.Line
		}
	}
	return 0
}

func refersTo(ref, local string) bool {
	return ref == local || strings.HasSuffix(ref, "."+local)
}

// Parse2 reports superclasses and interfaces that did not resolve, then
// attaches type information.
func (p *Processor) Parse2(pc *processor.Context, u *unit.Unit) error {
	t, err := treeOf(u)
	if err != nil {
		return err
	}
	for _, m := range u.Inheritance.MultiNames() {
		pc.Diag.ErrorAt(u.Source, diag.Position{Line: t.file.definitionLine(m.Local), Column: 1}, diag.UnresolvedInheritance,
			fmt.Sprintf("definition %s could not be resolved", m.Local))
	}
	ti := &unit.TypeInfo{
		Definitions: u.TopLevelDefinitions,
		Data:        Signature(t.data),
	}
	if sig, ok := p.Signature(pc, u.Source); ok {
		ti.Signature = sig
	}
	u.SetTypeInfo(ti)
	return nil
}

// Analyze1 records namespace dependencies.
func (p *Processor) Analyze1(pc *processor.Context, u *unit.Unit) error {
	t, err := treeOf(u)
	if err != nil {
		return err
	}
	for _, ns := range t.file.Namespaces {
		u.Namespaces.Add(t.file.Candidates(ns.Name))
	}
	return nil
}

// Analyze2 reports namespaces that did not resolve and records type and
// expression dependencies.
func (p *Processor) Analyze2(pc *processor.Context, u *unit.Unit) error {
	t, err := treeOf(u)
	if err != nil {
		return err
	}
	for _, m := range u.Namespaces.MultiNames() {
		pc.Diag.ErrorAt(u.Source, diag.Position{Line: refLine(t.file.Namespaces, m.Local), Column: 1}, diag.UnresolvedNamespace,
			fmt.Sprintf("namespace %s could not be resolved", m.Local))
	}
	for _, ref := range t.file.Types {
		u.Types.Add(t.file.Candidates(ref.Name))
	}
	for _, ref := range t.file.Expressions {
		u.Expressions.Add(t.file.Candidates(ref.Name))
	}
	return nil
}

// Analyze4 reports type references that never resolved, in strict mode.
func (p *Processor) Analyze4(pc *processor.Context, u *unit.Unit) error {
	if !pc.Strict {
		return nil
	}
	t, err := treeOf(u)
	if err != nil {
		return err
	}
	for _, m := range u.Types.MultiNames() {
		pc.Diag.ErrorAt(u.Source, diag.Position{Line: refLine(t.file.Types, m.Local), Column: 1}, diag.UnresolvedType,
			fmt.Sprintf("type %s could not be resolved", m.Local))
	}
	return nil
}

// Generate produces deterministic output: the definitions followed by every
// resolved dependency.
func (p *Processor) Generate(pc *processor.Context, u *unit.Unit) error {
	var out bytes.Buffer
	out.WriteString("csb1\n")
	for _, q := range u.TopLevelDefinitions {
		fmt.Fprintf(&out, "def %s\n", q)
	}
	for _, c := range unit.DepClasses {
		for _, q := range names.SortQNames(u.Deps(c).QNames()) {
			fmt.Fprintf(&out, "%s %s\n", c, q)
		}
	}
	u.SetBytecode(out.Bytes())
	return nil
}

// Signature hashes the observable statements of a script. Markup sources
// have no signature.
func (p *Processor) Signature(pc *processor.Context, s *source.Source) (string, bool) {
	if s.Kind() != source.KindScript {
		return "", false
	}
	data, err := s.File().Read()
	if err != nil {
		return "", false
	}
	sum := blake2b.Sum256(Signature(data))
	return hex.EncodeToString(sum[:]), true
}
