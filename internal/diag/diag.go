// Package diag collects compiler diagnostics and mirrors them to slog.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"csb/internal/slogutil"
	"csb/internal/source"
)

// Level is the severity of a diagnostic.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Code names a condition reported by the scheduler or the validator.
type Code string

const (
	TooManyErrors             Code = "too-many-errors"
	ForcedStop                Code = "forced-stop"
	CircularInheritance       Code = "circular-inheritance"
	AmbiguousName             Code = "ambiguous-name"
	DependencyNotCached       Code = "dependency-not-cached"
	DependencyUpdated         Code = "dependency-updated"
	NotFullyCompiled          Code = "not-fully-compiled"
	SourceNoLongerExists      Code = "source-no-longer-exists"
	InvalidImport             Code = "invalid-import"
	MeaningChanged            Code = "meaning-changed"
	SourceFileUpdated         Code = "source-file-updated"
	DependentFileModified     Code = "dependent-file-modified"
	NotSourcePathFirst        Code = "not-source-path-first-preference"
	FilesChangedAffected      Code = "files-changed-affected"
	UnableToResolveDependency Code = "unable-to-resolve-dependency"
	WrongPackageName          Code = "wrong-package-name"
	WrongDefinitionName       Code = "wrong-definition-name"
	MustHaveOneDefinition     Code = "must-have-one-definition"
	MoreThanOneDefinition     Code = "more-than-one-definition"
	UnresolvedType            Code = "unresolved-type"
	UnresolvedInheritance     Code = "unresolved-inheritance"
	UnresolvedNamespace       Code = "unresolved-namespace"
	ProcessorError            Code = "processor-error"
	InternalError             Code = "internal-error"
)

// Diagnostic is one recorded message.
type Diagnostic struct {
	Level   Level  `json:"level"`
	Code    Code   `json:"code"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	loc := d.Source
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.Source, d.Line, d.Column)
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", d.Level, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, d.Level, d.Code, d.Message)
}

// Position locates a diagnostic inside a source.
type Position struct {
	Line   int
	Column int
}

// Sink records diagnostics. Errors reported against a Source also bump that
// source's error counter, which every dependency gate inspects.
type Sink struct {
	mu       sync.Mutex
	logger   *slog.Logger
	messages []Diagnostic
	errors   int
	warnings int
}

// NewSink creates a sink that mirrors every message to logger.
func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Sink{logger: logger}
}

func (s *Sink) record(level Level, code Code, name string, pos Position, msg string) {
	d := Diagnostic{Level: level, Code: code, Source: name, Line: pos.Line, Column: pos.Column, Message: msg}

	s.mu.Lock()
	s.messages = append(s.messages, d)
	switch level {
	case LevelError:
		s.errors++
	case LevelWarning:
		s.warnings++
	}
	s.mu.Unlock()

	attrs := []slog.Attr{slog.String("code", string(code))}
	if name != "" {
		attrs = append(attrs, slog.String("source", name))
	}
	if pos.Line > 0 {
		attrs = append(attrs, slog.Int("line", pos.Line), slog.Int("column", pos.Column))
	}
	s.logger.LogAttrs(context.Background(), slogLevel(level), msg, attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func nameOf(src *source.Source) string {
	if src == nil {
		return ""
	}
	return src.NameForReporting()
}

// Error reports an error against src, which may be nil.
func (s *Sink) Error(src *source.Source, code Code, msg string) {
	s.ErrorAt(src, Position{}, code, msg)
}

// ErrorAt reports an error at a position inside src.
func (s *Sink) ErrorAt(src *source.Source, pos Position, code Code, msg string) {
	if src != nil {
		src.RecordError()
	}
	s.record(LevelError, code, nameOf(src), pos, msg)
}

// ErrorNamed reports an error against a source known only by name.
func (s *Sink) ErrorNamed(name string, code Code, msg string) {
	s.record(LevelError, code, name, Position{}, msg)
}

// Warning reports a warning against src, which may be nil.
func (s *Sink) Warning(src *source.Source, code Code, msg string) {
	s.record(LevelWarning, code, nameOf(src), Position{}, msg)
}

// WarningAt reports a warning at a position inside src.
func (s *Sink) WarningAt(src *source.Source, pos Position, code Code, msg string) {
	s.record(LevelWarning, code, nameOf(src), pos, msg)
}

// Info reports an informational message.
func (s *Sink) Info(name string, code Code, msg string) {
	s.record(LevelInfo, code, name, Position{}, msg)
}

// ErrorCount returns the number of errors recorded.
func (s *Sink) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

// WarningCount returns the number of warnings recorded.
func (s *Sink) WarningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Messages returns a copy of every recorded diagnostic in report order.
func (s *Sink) Messages() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.messages))
	copy(out, s.messages)
	return out
}

// ByCode returns the diagnostics with the given code.
func (s *Sink) ByCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range s.Messages() {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// SourcesWith returns the sorted, distinct source names reported with code.
func (s *Sink) SourcesWith(code Code) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range s.ByCode(code) {
		if d.Source != "" && !seen[d.Source] {
			seen[d.Source] = true
			out = append(out, d.Source)
		}
	}
	sort.Strings(out)
	return out
}

// Reset forgets every message and counter.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.errors = 0
	s.warnings = 0
}
