package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for build failure modes
type ErrorCode string

const (
	// CompileFailed indicates a batch finished with errors
	CompileFailed ErrorCode = "COMPILE_FAILED"
	// TooManyErrors indicates the error ceiling was exceeded
	TooManyErrors ErrorCode = "TOO_MANY_ERRORS"
	// ForcedStop indicates the build was cancelled by the caller
	ForcedStop ErrorCode = "FORCED_STOP"
	// CircularInheritance indicates an inheritance cycle among units
	CircularInheritance ErrorCode = "CIRCULAR_INHERITANCE"
	// AmbiguousName indicates a name resolved to more than one definition
	AmbiguousName ErrorCode = "AMBIGUOUS_NAME"
	// SnapshotCorrupt indicates persisted state could not be decoded
	SnapshotCorrupt ErrorCode = "SNAPSHOT_CORRUPT"
	// SnapshotVersion indicates persisted state was written by another version
	SnapshotVersion ErrorCode = "SNAPSHOT_VERSION"
	// ConfigInvalid indicates an invalid configuration value
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ManifestInvalid indicates an unreadable or inconsistent project manifest
	ManifestInvalid ErrorCode = "MANIFEST_INVALID"
	// BuildLocked indicates another process is building the same project
	BuildLocked ErrorCode = "BUILD_LOCKED"
	// InternalError indicates an unexpected scheduler state
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditFile suggests editing a file
	EditFile FixActionType = "edit-file"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Path        string        `json:"path,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
}

// CsbError represents a build error with code, message, and suggestions
type CsbError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a CsbError with the default suggested fixes for its code.
func New(code ErrorCode, message string, cause error) *CsbError {
	return &CsbError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *CsbError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *CsbError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CsbError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CsbError) WithDetails(details interface{}) *CsbError {
	e.Details = details
	return e
}

// Is matches any CsbError with the same code, so callers can write
// errors.Is(err, errors.New(errors.CompileFailed, "", nil)).
func (e *CsbError) Is(target error) bool {
	t, ok := target.(*CsbError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the code of the first CsbError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var ce *CsbError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	SnapshotCorrupt: {
		{
			Type:        RunCommand,
			Command:     "csb clean",
			Safe:        true,
			Description: "Discard the persisted build state and rebuild from scratch",
		},
	},
	SnapshotVersion: {
		{
			Type:        RunCommand,
			Command:     "csb clean",
			Safe:        true,
			Description: "Discard state written by another version",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "csb config show",
			Safe:        true,
			Description: "Show the effective configuration",
		},
	},
	ManifestInvalid: {
		{
			Type:        EditFile,
			Path:        "csb.toml",
			Description: "Fix the project manifest",
		},
	},
	BuildLocked: {
		{
			Type:        RunCommand,
			Command:     "csb sessions",
			Safe:        true,
			Description: "Wait for the other build to finish, then check its session",
		},
	},
	TooManyErrors: {
		{
			Type:        EditFile,
			Path:        ".csb/config.json",
			Description: "Raise maxErrors to see more diagnostics",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
