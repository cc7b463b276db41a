package incremental

import (
	"fmt"
	"log/slog"
	"sort"

	"csb/internal/diag"
	"csb/internal/errors"
	"csb/internal/names"
	"csb/internal/processor"
	"csb/internal/resolve"
	"csb/internal/slogutil"
	"csb/internal/source"
	"csb/internal/unit"
)

// Config contains validator configuration
type Config struct {
	Strict bool
	// DisableOptimizations turns off the stable-signature check, so every
	// updated file invalidates its dependents.
	DisableOptimizations bool
	Locales              []string
	// Builtins are checked as an implicit dependency of every unit.
	Builtins []names.QName
}

// Options are the collaborators of a validator.
type Options struct {
	Logger   *slog.Logger
	Diag     *diag.Sink
	Registry *processor.Registry
	Resolver *resolve.Resolver
	Arena    *unit.Arena
}

// Result summarizes one validation pass.
type Result struct {
	// Updated are sources whose file changed or vanished.
	Updated []string `json:"updated"`
	// Stable are updated sources whose signature did not change. Only their
	// own unit was invalidated.
	Stable []string `json:"stable"`
	// Affected are sources invalidated because of something they depend on.
	Affected      []string                `json:"affected"`
	Invalidations map[string]Invalidation `json:"invalidations"`
	// Deleted lists the definitions of sources that no longer exist.
	Deleted []names.QName `json:"deleted,omitempty"`
}

// Count returns the number of invalidated units.
func (r *Result) Count() int {
	return len(r.Updated) + len(r.Stable) + len(r.Affected)
}

// Validator checks restored units against the current state of their files
// and collaborators.
type Validator struct {
	cfg      Config
	logger   *slog.Logger
	sink     *diag.Sink
	registry *processor.Registry
	resolver *resolve.Resolver
	arena    *unit.Arena
}

// New creates a validator.
func New(cfg Config, opts Options) *Validator {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Validator{
		cfg:      cfg,
		logger:   logger,
		sink:     opts.Diag,
		registry: opts.Registry,
		resolver: opts.Resolver,
		arena:    opts.Arena,
	}
}

// pass holds the working state of one validation.
type pass struct {
	v          *Validator
	candidates map[string]*source.Source
	owners     map[names.QName]string
	dependents map[names.QName]map[string]bool
	updated    map[string]bool
	stable     map[string]bool
	affected   map[string]bool
	reasons    map[string]Invalidation
	namespaces map[string]bool
	deleted    []names.QName
}

func (p *pass) invalidate(set map[string]bool, name string, reason Reason, detail string) {
	set[name] = true
	p.reasons[name] = Invalidation{Source: name, Reason: reason, Detail: detail}
	delete(p.candidates, name)
}

func (p *pass) sortedCandidates() []*source.Source {
	out := make([]*source.Source, 0, len(p.candidates))
	for _, name := range sortedKeys(p.candidates) {
		out = append(out, p.candidates[name])
	}
	return out
}

// Validate invalidates every restored unit that cannot be reused and seeds
// the resolver with the survivors.
func (v *Validator) Validate() (*Result, error) {
	p := &pass{
		v:          v,
		candidates: make(map[string]*source.Source),
		owners:     make(map[names.QName]string),
		dependents: make(map[names.QName]map[string]bool),
		updated:    make(map[string]bool),
		stable:     make(map[string]bool),
		affected:   make(map[string]bool),
		reasons:    make(map[string]Invalidation),
		namespaces: make(map[string]bool),
	}

	p.collect()
	p.checkResources()
	p.checkSources()
	p.checkPreference()
	p.checkDependencies()
	if v.cfg.Strict {
		p.cascade()
	}

	// Stable units keep their slot. Capture it before the unit goes.
	stableSlots := make(map[string]*unit.Unit)
	for name := range p.stable {
		stableSlots[name] = v.arena.Unit(name)
	}
	firstAffected := len(p.affected)
	p.remove()

	p.checkMeaning()
	p.remove()

	p.seed(stableSlots)

	result := &Result{
		Updated:       sortedKeys(p.updated),
		Stable:        sortedKeys(p.stable),
		Affected:      sortedKeys(p.affected),
		Invalidations: p.reasons,
		Deleted:       p.deleted,
	}

	for _, src := range p.sortedCandidates() {
		if v.arena.UnitOf(src) == nil {
			return result, errors.New(errors.InternalError,
				fmt.Sprintf("validated source %s has no unit", src.Name()), nil)
		}
	}

	if n := result.Count(); n > 0 {
		v.sink.Info("", diag.FilesChangedAffected, fmt.Sprintf(
			"%d files changed, %d affected", len(result.Updated)+len(result.Stable), len(result.Affected)))
	}
	v.logger.Debug("Validated restored units",
		"updated", len(result.Updated),
		"stable", len(result.Stable),
		"affected", len(result.Affected),
		"affectedByMeaning", len(result.Affected)-firstAffected,
	)
	return result, nil
}

// collect indexes definitions and dependents of every restored unit.
func (p *pass) collect() {
	for _, u := range p.v.arena.Units() {
		src := u.Source
		if src.IsLibraryOwner() {
			continue
		}
		for _, q := range u.TopLevelDefinitions {
			p.owners[q] = src.Name()
		}
		if !src.IsResourcesOwner() {
			p.candidates[src.Name()] = src
		}
		for _, inc := range src.UpdatedFileIncludes() {
			p.v.logger.Info("Included file updated", "include", inc, "source", src.Name())
		}
	}
	for _, name := range sortedKeys(p.candidates) {
		u := p.v.arena.Unit(name)
		for _, q := range dependencyNames(u) {
			if p.dependents[q] == nil {
				p.dependents[q] = make(map[string]bool)
			}
			p.dependents[q][name] = true
		}
	}
}

// dependencyNames returns the qualified dependencies of u, including
// multi-names with a single candidate.
func dependencyNames(u *unit.Unit) []names.QName {
	out := u.DependencyQNames()
	for _, c := range unit.DepClasses {
		for _, m := range u.Deps(c).MultiNames() {
			if qs := m.QNames(); len(qs) == 1 {
				out = append(out, qs[0])
			}
		}
	}
	return out
}

// checkResources drops generated sources that did not compile cleanly or
// whose generator changed.
func (p *pass) checkResources() {
	for _, u := range p.v.arena.Units() {
		src := u.Source
		if !src.IsResourcesOwner() {
			continue
		}
		if src.HasError() || (!u.IsDone() && !u.HasTypeInfo()) || src.IsUpdated() {
			p.invalidate(p.affected, src.Name(), ReasonNotFullyCompiled, "")
		}
	}
}

// checkSources classifies incomplete, vanished and updated sources.
func (p *pass) checkSources() {
	for _, src := range p.sortedCandidates() {
		u := p.v.arena.UnitOf(src)
		switch {
		case src.HasError() || (!src.IsInternal() && !u.IsDone() && !u.HasTypeInfo()):
			p.invalidate(p.affected, src.Name(), ReasonNotFullyCompiled, "")
		case !src.Exists():
			p.invalidate(p.updated, src.Name(), ReasonSourceNoLongerExists, "")
			for _, q := range u.TopLevelDefinitions {
				p.namespaces[q.Namespace] = true
				p.deleted = append(p.deleted, q)
			}
		case src.IsUpdated():
			if p.signatureIsStable(src) {
				p.invalidate(p.stable, src.Name(), ReasonSourceFileUpdated, "")
			} else {
				p.invalidate(p.updated, src.Name(), ReasonSourceFileUpdated, "")
			}
		}
	}
}

// signatureIsStable recomputes the signature of an updated source and
// compares it with the persisted one.
func (p *pass) signatureIsStable(src *source.Source) bool {
	if p.v.cfg.DisableOptimizations || src.Kind() == source.KindMarkup || src.Signature() == "" {
		return false
	}
	pc := &processor.Context{
		Logger:   p.v.logger,
		Diag:     p.v.sink,
		Strict:   p.v.cfg.Strict,
		Locales:  p.v.cfg.Locales,
		Resolver: processor.LocalResolver{},
	}
	current, ok := p.v.registry.Signature(pc, src)
	return ok && current == src.Signature()
}

// checkPreference invalidates path-owned sources shadowed by a file that now
// comes first.
func (p *pass) checkPreference() {
	collab := p.v.resolver.Collaborators()
	for _, src := range p.sortedCandidates() {
		switch {
		case src.IsSourcePathOwner():
			if !collab.SourcePath.CheckPreference(src) {
				p.invalidate(p.affected, src.Name(), ReasonNotSourcePathFirst, "")
			}
		case src.IsBundlePathOwner():
			if !collab.BundlePath.CheckPreference(src, p.v.cfg.Locales) {
				p.invalidate(p.affected, src.Name(), ReasonNotSourcePathFirst, "")
			}
		}
	}
}

// checkDependencies invalidates units whose dependencies are gone, changed
// identity or were updated, and, in strict mode, units with dead imports.
func (p *pass) checkDependencies() {
	collab := p.v.resolver.Collaborators()
	for _, src := range p.sortedCandidates() {
		u := p.v.arena.UnitOf(src)
		if reason, detail, ok := p.checkUnitDependencies(u); !ok {
			p.invalidate(p.affected, src.Name(), reason, detail)
			continue
		}
		if !p.v.cfg.Strict {
			continue
		}
		for _, ns := range u.ImportPackages {
			if !(collab.SourcePath.HasPackage(ns) || (collab.Library != nil && collab.Library.HasPackage(ns))) {
				p.invalidate(p.affected, src.Name(), ReasonInvalidImport, ns)
				p.namespaces[ns] = true
				break
			}
		}
		if p.affected[src.Name()] {
			continue
		}
		for _, q := range u.ImportDefinitions {
			if !(collab.SourcePath.HasDefinition(q) || (collab.Library != nil && collab.Library.HasDefinition(q))) {
				p.invalidate(p.affected, src.Name(), ReasonInvalidImport, q.String())
				p.namespaces[q.Namespace] = true
				break
			}
		}
	}
}

func (p *pass) checkUnitDependencies(u *unit.Unit) (Reason, string, bool) {
	deps := dependencyNames(u)
	builtin := make(map[names.QName]bool, len(p.v.cfg.Builtins))
	for _, q := range p.v.cfg.Builtins {
		builtin[q] = true
		deps = append(deps, q)
	}
	library := p.v.resolver.Collaborators().Library

	for _, q := range deps {
		owner, ok := p.owners[q]
		if !ok {
			if library != nil && library.HasDefinition(q) {
				continue
			}
			if u.HasTypeInfo() && !builtin[q] {
				return ReasonDependencyNotCached, q.String(), false
			}
			continue
		}
		if owner == u.Source.Name() {
			continue
		}
		depSrc := p.v.arena.Source(owner)
		dep := p.v.arena.Unit(owner)
		if u.HasTypeInfo() && (dep == nil || !dep.HasTypeInfo()) && !depSrc.IsInternal() {
			return ReasonDependencyNotCached, q.String(), false
		}
		if p.updated[owner] {
			return ReasonDependencyUpdated, q.String(), false
		}
		if p.stable[owner] || dep == nil || !u.HasTypeInfo() || !dep.HasTypeInfo() {
			continue
		}
		if bound, ok := u.Bindings[q]; ok && bound != dep.TypeInfo().Slot {
			return ReasonDependencyUpdated, q.String(), false
		}
	}
	return "", "", true
}

// cascade invalidates every transitive dependent of an updated or affected
// unit.
func (p *pass) cascade() {
	roots := append(sortedKeys(p.updated), sortedKeys(p.affected)...)
	for _, name := range roots {
		p.dependentFileModified(name)
	}
}

func (p *pass) dependentFileModified(name string) {
	u := p.v.arena.Unit(name)
	if u == nil {
		return
	}
	for _, q := range u.TopLevelDefinitions {
		for _, dependent := range sortedKeys(p.dependents[q]) {
			if p.updated[dependent] || p.affected[dependent] {
				continue
			}
			p.invalidate(p.affected, dependent, ReasonDependentFileModified, name)
			p.dependentFileModified(dependent)
		}
	}
}

// remove drops the unit of every invalidated source, reporting why, and
// forgets vanished sources.
func (p *pass) remove() {
	collab := p.v.resolver.Collaborators()
	for _, name := range sortedKeys(p.reasons) {
		inv := p.reasons[name]
		src := p.v.arena.Source(name)
		if src == nil {
			continue
		}
		if p.v.arena.Unit(name) == nil && src.Exists() {
			continue
		}
		p.v.sink.Info(name, inv.Reason.Code(), inv.message())
		p.v.resolver.Symbols.Forget(name)
		if inv.Reason == ReasonSourceNoLongerExists {
			p.v.arena.Forget(name)
			collab.SourcePath.Remove(name)
			collab.BundlePath.Remove(name)
			if collab.Resources != nil {
				collab.Resources.Remove(name)
			}
			continue
		}
		p.v.arena.Invalidate(name)
	}
	if collab.Resources != nil {
		for _, name := range collab.Resources.Refresh() {
			p.v.arena.Forget(name)
		}
		collab.Resources.RemoveNamespaces(sortedKeys(p.namespaces))
	}
}

// checkMeaning re-runs recorded inheritance resolutions against the source
// path.
func (p *pass) checkMeaning() {
	for _, src := range p.sortedCandidates() {
		u := p.v.arena.UnitOf(src)
		if u == nil {
			continue
		}
		for _, e := range u.InheritanceHistory.Entries() {
			if !p.v.resolver.ValidateMultiName(e.Name, e.QName) {
				p.invalidate(p.affected, src.Name(), ReasonMeaningChanged, e.Name.String())
				break
			}
		}
	}
}

// seed registers the surviving units with the resolver and keeps the slots
// of units updated with a stable signature.
func (p *pass) seed(stable map[string]*unit.Unit) {
	symbols := p.v.resolver.Symbols
	for _, src := range p.sortedCandidates() {
		u := p.v.arena.UnitOf(src)
		src.ClearPreprocessed()
		symbols.RegisterQNames(u.TopLevelDefinitions, src)
		for _, c := range unit.DepClasses {
			for _, e := range u.History(c).Entries() {
				symbols.RegisterMultiName(e.Name, e.QName)
			}
		}
		if u.HasTypeInfo() {
			symbols.SeedSlot(src.Name(), u.TypeInfo().Signature, u.TypeInfo().Slot)
		}
	}
	for _, name := range sortedKeys(stable) {
		u := stable[name]
		if u == nil || !u.HasTypeInfo() {
			continue
		}
		symbols.SeedSlot(name, u.TypeInfo().Signature, u.TypeInfo().Slot)
		if src := p.v.arena.Source(name); src != nil {
			symbols.RegisterQNames(u.TopLevelDefinitions, src)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
