// Package archive processes precompiled library definitions. The catalog
// already carries everything the scheduler needs, so each phase only copies
// it onto the unit.
package archive

import (
	"fmt"

	"csb/internal/lookup"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/source"
	"csb/internal/unit"
)

// Processor compiles library sources.
type Processor struct {
	processor.Base
}

// New creates an archive processor.
func New() *Processor {
	return &Processor{}
}

func entryOf(s *source.Source) (*lookup.CatalogEntry, error) {
	e, ok := lookup.EntryOf(s)
	if !ok {
		return nil, fmt.Errorf("%s does not carry a catalog entry", s.NameForReporting())
	}
	return e, nil
}

// Parse1 creates the unit with its definition and superclasses.
func (p *Processor) Parse1(pc *processor.Context, s *source.Source) (*unit.Unit, error) {
	e, err := entryOf(s)
	if err != nil {
		return nil, err
	}
	u := unit.New(s)
	u.AddTopLevelDefinition(e.QName())
	for _, x := range e.Extends {
		u.Inheritance.Add(names.FromQName(names.ParseQName(x)))
	}
	return u, nil
}

// Parse2 attaches type information.
func (p *Processor) Parse2(pc *processor.Context, u *unit.Unit) error {
	e, err := entryOf(u.Source)
	if err != nil {
		return err
	}
	u.SetTypeInfo(&unit.TypeInfo{
		Signature:   e.Signature(),
		Definitions: u.TopLevelDefinitions,
	})
	return nil
}

// Analyze2 copies type and expression references.
func (p *Processor) Analyze2(pc *processor.Context, u *unit.Unit) error {
	e, err := entryOf(u.Source)
	if err != nil {
		return err
	}
	for _, x := range e.Types {
		u.Types.Add(names.FromQName(names.ParseQName(x)))
	}
	for _, x := range e.Expressions {
		u.Expressions.Add(names.FromQName(names.ParseQName(x)))
	}
	return nil
}

// Generate takes the archived code as output.
func (p *Processor) Generate(pc *processor.Context, u *unit.Unit) error {
	e, err := entryOf(u.Source)
	if err != nil {
		return err
	}
	code := []byte(e.Code)
	if code == nil {
		code = []byte{}
	}
	u.SetBytecode(code)
	return nil
}

// Signature returns the catalog entry's signature.
func (p *Processor) Signature(pc *processor.Context, s *source.Source) (string, bool) {
	e, ok := lookup.EntryOf(s)
	if !ok {
		return "", false
	}
	return e.Signature(), true
}
