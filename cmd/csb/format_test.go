package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"csb/internal/build"
	"csb/internal/diag"
	"csb/internal/graph"
	"csb/internal/project"
)

func TestFormatResponse_JSON(t *testing.T) {
	resp := map[string]interface{}{
		"key": "value",
		"num": 42,
	}

	result, err := FormatResponse(resp, FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, `"key": "value"`) {
		t.Error("JSON output missing expected key")
	}
	if !strings.Contains(result, `"num": 42`) {
		t.Error("JSON output missing expected number")
	}
}

func TestFormatResponse_UnsupportedFormat(t *testing.T) {
	_, err := FormatResponse(map[string]string{"key": "value"}, "xml")
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("error should mention unsupported format, got: %v", err)
	}
}

func TestNewBuildResponse(t *testing.T) {
	report := &build.Report{
		Sources:  4,
		Restored: 2,
		Duration: 1500 * time.Millisecond,
		Diagnostics: []diag.Diagnostic{
			{Level: diag.LevelError, Code: diag.ProcessorError, Source: "a.sc", Message: "boom"},
			{Level: diag.LevelWarning, Code: diag.ProcessorError, Message: "meh"},
			{Level: diag.LevelInfo, Code: diag.ProcessorError, Message: "fyi"},
		},
	}

	resp := newBuildResponse(report, errors.New("compile failed"))
	if resp.Success {
		t.Error("Expected a failed build")
	}
	if resp.Errors != 1 || resp.Warnings != 1 {
		t.Errorf("Expected 1 error and 1 warning, got %d and %d", resp.Errors, resp.Warnings)
	}
	if resp.Error != "compile failed" {
		t.Errorf("Expected error text, got %q", resp.Error)
	}

	out, err := FormatResponse(resp, FormatHuman)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Build FAILED") || !strings.Contains(out, "a.sc: error") {
		t.Errorf("Unexpected human output:\n%s", out)
	}
}

func TestFormatGraphHuman(t *testing.T) {
	resp := &GraphResponseCLI{
		Order: []string{"Base.sc", "Main.sc"},
		Edges: []graph.Edge{
			{From: "Main.sc", To: "Base.sc", Kind: "inheritance"},
			{From: "Main.sc", To: "Util.sc", Kind: "dependency"},
		},
		Stats: graph.GraphStats{TotalVertices: 3, TotalEdges: 2, InheritanceEdges: 1, DependencyEdges: 1, AvgOutDegree: 2.0 / 3},
	}
	out, err := FormatResponse(resp, FormatHuman)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"1. Base.sc", "Main.sc => Base.sc", "Main.sc -> Util.sc", "Sources: 3  Inheritance: 1  Dependency: 1  Avg out-degree: 0.67"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatValidateHumanEmpty(t *testing.T) {
	out, err := FormatResponse(&ValidateResponseCLI{}, FormatHuman)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "No snapshot to validate" {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestWatchFilter(t *testing.T) {
	root := t.TempDir()
	m := project.New(root)
	m.Output = "out"
	accept := watchFilter(m)

	tests := map[string]bool{
		filepath.Join(root, "src", "Main.sc"):      true,
		filepath.Join(root, "out", "Main.out"):     false,
		filepath.Join(root, ".csb", "snapshot.db"): false,
		filepath.Join(root, "outside", "Thing.sc"): true,
	}
	for path, want := range tests {
		if got := accept(path); got != want {
			t.Errorf("watchFilter(%s): expected %v, got %v", path, want, got)
		}
	}
}
