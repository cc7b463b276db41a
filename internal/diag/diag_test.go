package diag

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"csb/internal/source"
)

func TestSinkCounts(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(slog.New(slog.NewTextHandler(&buf, nil)))
	src := source.New(source.NewMemoryFile("/p/A.sc", nil, 1), source.Options{Kind: source.KindScript})

	sink.ErrorAt(src, Position{Line: 3, Column: 7}, AmbiguousName, "ambiguous")
	sink.Warning(src, UnableToResolveDependency, "cannot resolve")
	sink.Info("", FilesChangedAffected, "2 files changed")
	sink.ErrorNamed("/p/B.sc", CircularInheritance, "cycle")

	if sink.ErrorCount() != 2 {
		t.Errorf("Expected 2 errors, got %d", sink.ErrorCount())
	}
	if sink.WarningCount() != 1 {
		t.Errorf("Expected 1 warning, got %d", sink.WarningCount())
	}
	if src.ErrorCount() != 1 {
		t.Errorf("Expected source error counter 1, got %d", src.ErrorCount())
	}

	msgs := sink.Messages()
	if len(msgs) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(msgs))
	}
	if got := msgs[0].String(); got != "/p/A.sc:3:7: error [ambiguous-name] ambiguous" {
		t.Errorf("String() = %q", got)
	}

	out := buf.String()
	for _, want := range []string{"code=ambiguous-name", "source=/p/A.sc", "line=3", "column=7"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %q, got %q", want, out)
		}
	}
}

func TestSourcesWith(t *testing.T) {
	sink := NewSink(nil)
	sink.ErrorNamed("/p/C.sc", CircularInheritance, "cycle")
	sink.ErrorNamed("/p/A.sc", CircularInheritance, "cycle")
	sink.ErrorNamed("/p/A.sc", CircularInheritance, "cycle")
	sink.ErrorNamed("/p/B.sc", AmbiguousName, "ambiguous")

	got := sink.SourcesWith(CircularInheritance)
	if !reflect.DeepEqual(got, []string{"/p/A.sc", "/p/C.sc"}) {
		t.Errorf("SourcesWith() = %v", got)
	}

	sink.Reset()
	if sink.ErrorCount() != 0 || len(sink.Messages()) != 0 {
		t.Error("Expected Reset to clear everything")
	}
}
