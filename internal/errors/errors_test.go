package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCsbError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      SnapshotCorrupt,
			message:   "failed to decode unit",
			cause:     errors.New("unexpected EOF"),
			wantParts: []string{"SNAPSHOT_CORRUPT", "failed to decode unit", "unexpected EOF"},
		},
		{
			name:      "without cause",
			code:      CompileFailed,
			message:   "3 errors",
			cause:     nil,
			wantParts: []string{"COMPILE_FAILED", "3 errors"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestCsbError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "scheduler stalled", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	errNoCause := Newf(ForcedStop, "stopped after %d units", 4)
	if errNoCause.Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}
	if errNoCause.Message != "stopped after 4 units" {
		t.Errorf("Message = %q", errNoCause.Message)
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("build failed: %w", New(CompileFailed, "2 errors", nil))

	code, ok := CodeOf(wrapped)
	if !ok || code != CompileFailed {
		t.Errorf("CodeOf() = %v, %v; want %v, true", code, ok, CompileFailed)
	}
	if !HasCode(wrapped, CompileFailed) {
		t.Error("HasCode should match wrapped code")
	}
	if HasCode(wrapped, ForcedStop) {
		t.Error("HasCode should not match a different code")
	}
	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Error("CodeOf should fail on plain errors")
	}
	if !errors.Is(wrapped, New(CompileFailed, "", nil)) {
		t.Error("errors.Is should match by code")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	fixes := GetSuggestedFixes(SnapshotCorrupt)
	if len(fixes) == 0 {
		t.Fatal("Expected fixes for SNAPSHOT_CORRUPT")
	}
	if fixes[0].Command != "csb clean" {
		t.Errorf("Command = %q, want %q", fixes[0].Command, "csb clean")
	}

	if GetSuggestedFixes(AmbiguousName) != nil {
		t.Error("Expected no fixes for AMBIGUOUS_NAME")
	}

	err := New(ConfigInvalid, "bad", nil)
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("Expected New to attach default fixes, got %d", len(err.SuggestedFixes))
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CircularInheritance, "cycle", nil).WithDetails([]string{"a.A", "a.B"})
	details, ok := err.Details.([]string)
	if !ok || len(details) != 2 {
		t.Errorf("Details = %v", err.Details)
	}
}
