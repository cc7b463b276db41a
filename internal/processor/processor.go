// Package processor defines the boundary between the scheduler and the
// per-kind phase processors that do the actual compilation work.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"csb/internal/diag"
	"csb/internal/source"
	"csb/internal/unit"
)

// PathResolver resolves a path mentioned inside a source to a file.
type PathResolver interface {
	Resolve(from *source.Source, path string) source.File
}

// Context is passed to every processor call.
type Context struct {
	Ctx      context.Context
	Logger   *slog.Logger
	Diag     *diag.Sink
	Strict   bool
	Warnings bool
	Locales  []string
	Resolver PathResolver
}

// PhaseProcessor compiles one kind of source. Each call either leaves the
// unit clean or reports errors through Context.Diag; a returned error is
// reported against the source by the scheduler.
type PhaseProcessor interface {
	Preprocess(pc *Context, s *source.Source) error
	Parse1(pc *Context, s *source.Source) (*unit.Unit, error)
	Parse2(pc *Context, u *unit.Unit) error
	Analyze1(pc *Context, u *unit.Unit) error
	Analyze2(pc *Context, u *unit.Unit) error
	Analyze3(pc *Context, u *unit.Unit) error
	Analyze4(pc *Context, u *unit.Unit) error
	Generate(pc *Context, u *unit.Unit) error
	Postprocess(pc *Context, u *unit.Unit) error
}

// Signer is implemented by processors that can compute a content signature
// covering only what dependents can observe. The boolean is false when the
// kind does not support signatures.
type Signer interface {
	Signature(pc *Context, s *source.Source) (string, bool)
}

// Base provides no-op implementations for the optional phases.
type Base struct{}

func (Base) Preprocess(*Context, *source.Source) error { return nil }
func (Base) Analyze1(*Context, *unit.Unit) error       { return nil }
func (Base) Analyze3(*Context, *unit.Unit) error       { return nil }
func (Base) Analyze4(*Context, *unit.Unit) error       { return nil }
func (Base) Postprocess(*Context, *unit.Unit) error    { return nil }

// Registry maps source kinds to processors.
type Registry struct {
	processors map[string]PhaseProcessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]PhaseProcessor)}
}

// Register binds a processor to a kind, replacing any previous binding.
func (r *Registry) Register(kind string, p PhaseProcessor) {
	r.processors[kind] = p
}

// Lookup returns the processor for kind.
func (r *Registry) Lookup(kind string) (PhaseProcessor, bool) {
	p, ok := r.processors[kind]
	return p, ok
}

// MustLookup returns the processor for kind or an error naming the kind.
func (r *Registry) MustLookup(kind string) (PhaseProcessor, error) {
	p, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("no processor registered for kind %q", kind)
	}
	return p, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.processors))
	for k := range r.processors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Signature computes the signature of s with its kind's processor.
func (r *Registry) Signature(pc *Context, s *source.Source) (string, bool) {
	p, ok := r.processors[s.Kind()]
	if !ok {
		return "", false
	}
	signer, ok := p.(Signer)
	if !ok {
		return "", false
	}
	return signer.Signature(pc, s)
}

// LocalResolver resolves include paths relative to the including source's
// directory.
type LocalResolver struct{}

// Resolve implements PathResolver.
func (LocalResolver) Resolve(from *source.Source, path string) source.File {
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(from.Name()), filepath.FromSlash(path))
	}
	return source.NewLocalFile(path)
}
