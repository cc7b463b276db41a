package scheduler

import (
	"fmt"

	"csb/internal/diag"
	"csb/internal/names"
	"csb/internal/source"
	"csb/internal/unit"
)

const (
	edgeInheritance = "inheritance"
	edgeDependency  = "dependency"
)

// resolveSet resolves the multi-candidate names of one dependency class of
// the unit of src and records the edges they produce. Unresolved expressions
// are reported and, if configured, dropped. Other unresolved names stay for
// the processor to report.
func (s *Scheduler) resolveSet(src *source.Source, c unit.DepClass) {
	u := s.arena.UnitOf(src)
	if u == nil {
		return
	}
	set := u.Deps(c)
	history := u.History(c)
	for _, m := range set.MultiNames() {
		q, dep, ok := s.resolver.ResolveMultiName(src, m)
		if !ok {
			if c != unit.Expressions {
				continue
			}
			if s.cfg.ShowDependencyWarnings {
				s.sink.Warning(src, diag.UnableToResolveDependency,
					fmt.Sprintf("unable to resolve dependency %s", m))
			}
			if s.cfg.DropUnresolvedExpressions {
				set.Remove(m)
			}
			continue
		}
		s.addEdge(src, dep, c)
		history.Put(m, q)
		set.Replace(m, q)
	}
}

// addEdge records a resolved dependency of src on dep.
func (s *Scheduler) addEdge(src, dep *source.Source, c unit.DepClass) {
	if dep == nil || dep.Name() == src.Name() {
		return
	}
	g := s.dgraph
	if c == unit.Inheritance {
		g = s.igraph
	}
	if g.ContainsEdge(src.Name(), dep.Name()) {
		return
	}
	s.dgraph.AddVertex(dep.Name(), dep)
	if c == unit.Inheritance {
		s.igraph.AddVertex(dep.Name(), dep)
		s.igraph.AddEdge(src.Name(), dep.Name(), edgeInheritance)
		s.dgraph.AddEdge(src.Name(), dep.Name(), edgeInheritance)
		return
	}
	s.dgraph.AddEdge(src.Name(), dep.Name(), edgeDependency)
}

func (s *Scheduler) resolveInheritance(src *source.Source) {
	s.resolveSet(src, unit.Inheritance)
}

func (s *Scheduler) resolveNamespaces(src *source.Source) {
	s.resolveSet(src, unit.Namespaces)
}

func (s *Scheduler) resolveExpressions(src *source.Source) {
	s.resolveSet(src, unit.Expressions)
}

// resolveTypes resolves types and namespaces once per unit.
func (s *Scheduler) resolveTypes(src *source.Source) {
	u := s.arena.UnitOf(src)
	if u == nil || u.HasReached(unit.ResolveType) {
		return
	}
	s.resolveSet(src, unit.Types)
	s.resolveSet(src, unit.Namespaces)
	u.MarkReached(unit.ResolveType)
}

// resolveImportStatements drops imports that name neither a package nor a
// definition known to the source path or the library.
func (s *Scheduler) resolveImportStatements(src *source.Source) {
	u := s.arena.UnitOf(src)
	if u == nil || u.HasReached(unit.ResolveImportStatements) {
		return
	}
	collab := s.resolver.Collaborators()
	hasPackage := func(ns string) bool {
		return (collab.SourcePath != nil && collab.SourcePath.HasPackage(ns)) ||
			(collab.Library != nil && collab.Library.HasPackage(ns))
	}
	hasDefinition := func(q names.QName) bool {
		return (collab.SourcePath != nil && collab.SourcePath.HasDefinition(q)) ||
			(collab.Library != nil && collab.Library.HasDefinition(q)) ||
			s.symbols.FindSourceByQName(q) != nil
	}

	pkgs := u.ImportPackages[:0]
	for _, ns := range u.ImportPackages {
		if hasPackage(ns) {
			pkgs = append(pkgs, ns)
		}
	}
	u.ImportPackages = pkgs

	defs := u.ImportDefinitions[:0]
	for _, q := range u.ImportDefinitions {
		if hasDefinition(q) {
			defs = append(defs, q)
		}
	}
	u.ImportDefinitions = defs
	u.MarkReached(unit.ResolveImportStatements)
}

// addGeneratedSources integrates the sources a processor produced while
// compiling the unit of src. Each becomes an expression dependency.
func (s *Scheduler) addGeneratedSources(src *source.Source) {
	u := s.arena.UnitOf(src)
	if u == nil {
		return
	}
	generated := u.GeneratedSources()
	if len(generated) == 0 {
		return
	}
	resources := s.resolver.Collaborators().Resources
	for _, g := range generated {
		if !s.igraph.ContainsVertex(g.Source.Name()) {
			gs := g.Source
			if resources != nil {
				gs = resources.AddResource(gs)
			}
			gs = s.discover(gs)
			s.symbols.RegisterMultiName(names.FromQName(g.QName), g.QName)
			s.symbols.RegisterQName(g.QName, gs)
			s.logger.Debug("Added generated source",
				"source", gs.Name(),
				"by", src.Name(),
			)
		}
		u.Expressions.Add(names.FromQName(g.QName))
	}
	u.ClearGeneratedSources()
}

// reconnect brings the dependencies of a unit restored from a previous build
// back into the build list and the graphs. Its names are resolved already.
func (s *Scheduler) reconnect(src *source.Source) {
	u := s.arena.UnitOf(src)
	if u == nil {
		return
	}
	for _, c := range unit.DepClasses {
		for _, q := range u.Deps(c).QNames() {
			dep := s.symbols.FindSourceByQName(q)
			if dep != nil {
				dep = s.discover(dep)
			} else if _, found, ok := s.resolver.ResolveMultiName(src, names.FromQName(q)); ok {
				dep = found
			}
			s.addEdge(src, dep, c)
		}
	}
	for _, name := range u.ResourceBundles {
		if _, dep := s.resolver.ResolveBundle(name); dep != nil {
			s.addEdge(src, dep, unit.Expressions)
		}
	}
}

// resolveBuiltins pulls in the builtin definitions that exist. Missing ones
// are not reported.
func (s *Scheduler) resolveBuiltins() {
	for _, q := range s.cfg.Builtins {
		s.resolver.ResolveMultiName(nil, names.FromQName(q))
	}
}

// includeClasses resolves the configured classes that must be compiled.
func (s *Scheduler) includeClasses() {
	for _, name := range s.cfg.IncludeClasses {
		m := names.FromQName(names.ParseQName(name))
		if _, _, ok := s.resolver.ResolveMultiName(nil, m); !ok {
			s.sink.ErrorNamed("", diag.UnableToResolveDependency,
				fmt.Sprintf("unable to resolve included class %s", name))
		}
	}
}

// extraSources resolves the loader class, extra classes and resource
// bundles recorded by every unit.
func (s *Scheduler) extraSources() {
	for _, src := range append([]*source.Source(nil), s.sources...) {
		u := s.arena.UnitOf(src)
		if u == nil || u.HasReached(unit.ExtraSources) {
			continue
		}
		classes := u.ExtraClasses
		if u.LoaderClass != "" {
			classes = append([]string{u.LoaderClass}, classes...)
		}
		for _, name := range classes {
			m := names.FromQName(names.ParseQName(name))
			q, dep, ok := s.resolver.ResolveMultiName(src, m)
			if !ok {
				s.sink.Error(src, diag.UnableToResolveDependency,
					fmt.Sprintf("unable to resolve class %s", name))
				continue
			}
			u.Expressions.Add(q)
			s.addEdge(src, dep, unit.Expressions)
		}
		for _, name := range u.ResourceBundles {
			qs, dep := s.resolver.ResolveBundle(name)
			if dep == nil {
				s.sink.Error(src, diag.UnableToResolveDependency,
					fmt.Sprintf("unable to resolve resource bundle %s", name))
				continue
			}
			u.ResourceBundleHistory[name] = qs
			s.addEdge(src, dep, unit.Expressions)
		}
		u.MarkReached(unit.ExtraSources)
	}
}

// adjustQNames rewrites dependencies on a path-owned definition whose
// declared package differs from the one it was looked up under.
func (s *Scheduler) adjustQNames() {
	for _, src := range s.sources {
		u := s.arena.UnitOf(src)
		if u == nil || !u.IsDone() || u.HasReached(unit.AdjustQNames) {
			continue
		}
		for _, c := range unit.DepClasses {
			set := u.Deps(c)
			for _, q := range set.QNames() {
				depSrc, dep := s.lookupQName(q)
				if dep == nil || !(depSrc.IsSourcePathOwner() || depSrc.IsSourceListOwner()) {
					continue
				}
				if len(dep.TopLevelDefinitions) != 1 {
					continue
				}
				def := dep.TopLevelDefinitions[0]
				if def.Local == q.Local && def.Namespace != q.Namespace {
					set.Replace(q, def)
				}
			}
		}
		u.MarkReached(unit.AdjustQNames)
	}
}

// bindSlots records, for every done unit, the slot of each resolved
// dependency that carries type information.
func (s *Scheduler) bindSlots() {
	for _, src := range s.sources {
		u := s.arena.UnitOf(src)
		if u == nil || !u.IsDone() {
			continue
		}
		for _, q := range u.DependencyQNames() {
			_, dep := s.lookupQName(q)
			if dep == nil || dep == u || !dep.HasTypeInfo() {
				continue
			}
			u.Bindings[q] = dep.TypeInfo().Slot
		}
	}
}
