// Package incremental decides which units restored from a previous build can
// be reused. Everything it invalidates is recompiled by the next build.
package incremental

import "csb/internal/diag"

// Reason explains why a unit was invalidated.
type Reason string

const (
	ReasonNotFullyCompiled      Reason = "not-fully-compiled"
	ReasonSourceNoLongerExists  Reason = "source-no-longer-exists"
	ReasonSourceFileUpdated     Reason = "source-file-updated"
	ReasonNotSourcePathFirst    Reason = "not-source-path-first-preference"
	ReasonDependencyNotCached   Reason = "dependency-not-cached"
	ReasonDependencyUpdated     Reason = "dependency-updated"
	ReasonInvalidImport         Reason = "invalid-import"
	ReasonDependentFileModified Reason = "dependent-file-modified"
	ReasonMeaningChanged        Reason = "meaning-changed"
)

// Code returns the diagnostic code reported for r.
func (r Reason) Code() diag.Code {
	return diag.Code(r)
}

// Invalidation records one invalidated unit.
type Invalidation struct {
	Source string `json:"source"`
	Reason Reason `json:"reason"`
	// Detail names the dependency, import or multi-name involved, if any.
	Detail string `json:"detail,omitempty"`
}

func (i Invalidation) message() string {
	switch i.Reason {
	case ReasonNotFullyCompiled:
		return "not fully compiled in the previous build"
	case ReasonSourceNoLongerExists:
		return "source no longer exists"
	case ReasonSourceFileUpdated:
		return "source file updated"
	case ReasonNotSourcePathFirst:
		return "no longer the first match on the source path"
	case ReasonDependencyNotCached:
		return "dependency " + i.Detail + " is not cached"
	case ReasonDependencyUpdated:
		return "dependency " + i.Detail + " was updated"
	case ReasonInvalidImport:
		return "import " + i.Detail + " no longer resolves"
	case ReasonDependentFileModified:
		return "depends on modified file " + i.Detail
	case ReasonMeaningChanged:
		return "name " + i.Detail + " now resolves differently"
	default:
		return string(i.Reason)
	}
}
