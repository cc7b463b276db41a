// Package scheduler drives sources through the compilation phases. It owns
// the dependency graphs, integrates what processors discover, and decides
// which unit advances next.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"csb/internal/diag"
	"csb/internal/errors"
	"csb/internal/graph"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/resolve"
	"csb/internal/slogutil"
	"csb/internal/source"
	"csb/internal/unit"
)

// Strategy selects the scheduling algorithm.
type Strategy string

const (
	// Greedy advances each ready unit one phase per round under a cost
	// budget.
	Greedy Strategy = "greedy"
	// Conservative runs every phase over the whole source list in lock-step.
	Conservative Strategy = "conservative"
)

// Config contains scheduler configuration
type Config struct {
	Strategy                  Strategy
	Strict                    bool
	Warnings                  bool
	ShowDependencyWarnings    bool
	DropUnresolvedExpressions bool
	MaxErrors                 int
	RoundBudget               float64
	MarkupWeight              float64
	ScriptWeight              float64
	Factor                    float64
	Locales                   []string

	// Builtins are resolved before the first batch when they exist.
	Builtins []names.QName
	// IncludeClasses are compiled whether or not anything references them.
	IncludeClasses []string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Strategy:                  Greedy,
		Strict:                    true,
		DropUnresolvedExpressions: true,
		MaxErrors:                 100,
		RoundBudget:               100,
		MarkupWeight:              4.5,
		ScriptWeight:              1,
		Factor:                    1000,
	}
}

// Options are the collaborators of a scheduler.
type Options struct {
	Logger   *slog.Logger
	Diag     *diag.Sink
	Registry *processor.Registry
	Resolver *resolve.Resolver
	Arena    *unit.Arena
	// Paths resolves include paths for processors. Defaults to
	// processor.LocalResolver.
	Paths processor.PathResolver
	// Progress receives the completed percentage whenever it grows.
	Progress func(percent int)
}

// Scheduler compiles one build session. It is not safe for concurrent use.
type Scheduler struct {
	cfg      Config
	logger   *slog.Logger
	sink     *diag.Sink
	registry *processor.Registry
	resolver *resolve.Resolver
	symbols  *resolve.SymbolTable
	arena    *unit.Arena
	paths    processor.PathResolver
	progress func(int)

	ctx     context.Context
	pc      *processor.Context
	sources []*source.Source
	listed  map[string]bool
	igraph  *graph.Graph[*source.Source]
	dgraph  *graph.Graph[*source.Source]

	// processors holds the processor bound to each listed source.
	processors map[string]processor.PhaseProcessor

	stop    errors.ErrorCode
	tick    int
	percent int
}

// New creates a scheduler. The resolver's discovery callback is redirected
// so that every source it finds joins the build.
func New(cfg Config, opts Options) *Scheduler {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 100
	}
	if cfg.RoundBudget <= 0 {
		cfg.RoundBudget = 100
	}
	if cfg.Factor <= 0 {
		cfg.Factor = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	paths := opts.Paths
	if paths == nil {
		paths = processor.LocalResolver{}
	}
	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		sink:     opts.Diag,
		registry: opts.Registry,
		resolver: opts.Resolver,
		symbols:  opts.Resolver.Symbols,
		arena:    opts.Arena,
		paths:    paths,
		progress: opts.Progress,
		ctx:      context.Background(),
		listed:   make(map[string]bool),
		igraph:   graph.New[*source.Source](),
		dgraph:   graph.New[*source.Source](),

		processors: make(map[string]processor.PhaseProcessor),
	}
	s.resolver.OnDiscover(s.discover)
	return s
}

// Build compiles targets and everything they reach. useFileSpec selects the
// lock-step strategy regardless of configuration.
func (s *Scheduler) Build(ctx context.Context, targets []*source.Source, useFileSpec bool) error {
	s.begin(ctx)
	lockstep := useFileSpec || s.cfg.Strategy == Conservative

	for _, t := range targets {
		s.discover(t)
	}
	s.logger.Debug("Starting build",
		"targets", len(targets),
		"strategy", s.strategyName(lockstep),
	)

	s.resolveBuiltins()

	if err := s.batch(lockstep); err != nil {
		return err
	}
	if s.stop != "" {
		return s.stopError()
	}

	s.includeClasses()
	if s.sink.ErrorCount() > 0 {
		return s.failure()
	}
	if err := s.batch(lockstep); err != nil {
		return err
	}
	if s.stop != "" {
		return s.stopError()
	}

	for round := 0; round < 1000; round++ {
		before := len(s.sources)
		s.extraSources()
		if s.sink.ErrorCount() > 0 {
			return s.failure()
		}
		if err := s.batch(lockstep); err != nil {
			return err
		}
		if len(s.sources) == before {
			break
		}
		if s.stop != "" {
			return s.stopError()
		}
	}

	s.logger.Info("Build finished",
		"sources", len(s.sources),
		"edges", s.dgraph.NumEdges(),
	)
	return nil
}

func (s *Scheduler) begin(ctx context.Context) {
	s.ctx = ctx
	s.pc = &processor.Context{
		Ctx:      ctx,
		Logger:   s.logger,
		Diag:     s.sink,
		Strict:   s.cfg.Strict,
		Warnings: s.cfg.Warnings,
		Locales:  s.cfg.Locales,
		Resolver: s.paths,
	}
}

func (s *Scheduler) strategyName(lockstep bool) Strategy {
	if lockstep {
		return Conservative
	}
	return Greedy
}

// batch runs the selected strategy until no unit needs a reset.
func (s *Scheduler) batch(lockstep bool) error {
	for {
		if lockstep {
			s.batchLockstep()
		} else {
			s.batchGreedy()
		}
		s.adjustQNames()
		s.bindSlots()

		if s.sink.ErrorCount() > 0 {
			return s.failure()
		}
		if s.stop != "" {
			return nil
		}
		if s.resetUnfinished() == 0 {
			return nil
		}
	}
}

// resetUnfinished resets non-internal units that failed to produce output
// and clears the memoized checks of the others.
func (s *Scheduler) resetUnfinished() int {
	reset := 0
	for _, src := range s.sources {
		u := s.arena.UnitOf(src)
		if u == nil || src.IsInternal() {
			continue
		}
		if !s.arena.IsCompiled(src) {
			u.Reset()
			reset++
		} else {
			u.ClearValidity()
		}
	}
	if reset > 0 {
		s.logger.Debug("Reset unfinished units", "count", reset)
	}
	return reset
}

// discover adds a source to the build list and to both graphs. It returns
// the canonical instance for the source's name.
func (s *Scheduler) discover(src *source.Source) *source.Source {
	src = s.arena.Track(src)
	if !s.listed[src.Name()] {
		s.listed[src.Name()] = true
		s.sources = append(s.sources, src)
		s.bindProcessor(src)
	}
	s.igraph.AddVertex(src.Name(), src)
	s.dgraph.AddVertex(src.Name(), src)
	return src
}

// bindProcessor selects the processor of a newly listed source by its kind.
// A source no processor handles is failed here, once.
func (s *Scheduler) bindProcessor(src *source.Source) {
	p, err := s.registry.MustLookup(src.Kind())
	if err != nil {
		s.sink.Error(src, diag.ProcessorError, err.Error())
		return
	}
	s.processors[src.Name()] = p
}

// halted reports whether the build must stop, reporting the reason once.
func (s *Scheduler) halted() bool {
	if s.stop != "" {
		return true
	}
	if s.sink.ErrorCount() > s.cfg.MaxErrors {
		s.stop = errors.TooManyErrors
		s.sink.ErrorNamed("", diag.TooManyErrors,
			fmt.Sprintf("more than %d errors, stopping", s.cfg.MaxErrors))
		return true
	}
	if s.ctx.Err() != nil {
		s.stop = errors.ForcedStop
		s.sink.Info("", diag.ForcedStop, "compilation stopped on request")
		return true
	}
	return false
}

func (s *Scheduler) stopError() error {
	if s.stop == errors.TooManyErrors {
		return errors.New(errors.TooManyErrors, fmt.Sprintf("build stopped after %d errors", s.sink.ErrorCount()), nil)
	}
	return errors.New(errors.ForcedStop, "build stopped on request", s.ctx.Err())
}

func (s *Scheduler) failure() error {
	if s.stop == errors.TooManyErrors {
		return s.stopError()
	}
	return errors.New(errors.CompileFailed, fmt.Sprintf("build failed with %d errors", s.sink.ErrorCount()), nil)
}

// tickProgress reports progress as the share of 12 steps per source.
func (s *Scheduler) tickProgress() {
	s.tick++
	total := len(s.sources) * 12
	if total == 0 {
		return
	}
	percent := s.tick * 100 / total
	if percent > 100 {
		percent = 100
	}
	if percent > s.percent {
		s.percent = percent
		if s.progress != nil {
			s.progress(percent)
		}
	}
}

// Sources returns the build list in its current order.
func (s *Scheduler) Sources() []*source.Source {
	return s.sources
}

// Units returns the units of the build list, skipping sources without one.
func (s *Scheduler) Units() []*unit.Unit {
	out := make([]*unit.Unit, 0, len(s.sources))
	for _, src := range s.sources {
		if u := s.arena.UnitOf(src); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// Inheritance returns the inheritance graph.
func (s *Scheduler) Inheritance() *graph.Graph[*source.Source] {
	return s.igraph
}

// Dependencies returns the graph of every resolved dependency.
func (s *Scheduler) Dependencies() *graph.Graph[*source.Source] {
	return s.dgraph
}
