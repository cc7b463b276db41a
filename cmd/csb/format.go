package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"csb/internal/diag"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *BuildResponseCLI:
		return formatBuildHuman(v), nil
	case *ValidateResponseCLI:
		return formatValidateHuman(v), nil
	case *GraphResponseCLI:
		return formatGraphHuman(v), nil
	case *SessionsResponseCLI:
		return formatSessionsHuman(v), nil
	default:
		return formatJSON(resp)
	}
}

func writeDiagnostics(b *strings.Builder, diags []diag.Diagnostic) {
	for _, d := range diags {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
}

func formatBuildHuman(r *BuildResponseCLI) string {
	var b strings.Builder
	writeDiagnostics(&b, r.Diagnostics)
	if r.Success {
		b.WriteString("Build succeeded")
	} else {
		b.WriteString("Build FAILED")
	}
	b.WriteString(fmt.Sprintf(" in %s\n", r.Duration))
	b.WriteString(fmt.Sprintf("  Sources:     %d\n", r.Sources))
	b.WriteString(fmt.Sprintf("  Restored:    %d\n", r.Restored))
	b.WriteString(fmt.Sprintf("  Recompiled:  %d\n", r.Invalidated))
	if r.Written > 0 {
		b.WriteString(fmt.Sprintf("  Written:     %d\n", r.Written))
	}
	if r.Errors > 0 || r.Warnings > 0 {
		b.WriteString(fmt.Sprintf("  Errors: %d  Warnings: %d\n", r.Errors, r.Warnings))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValidateHuman(r *ValidateResponseCLI) string {
	var b strings.Builder
	writeDiagnostics(&b, r.Diagnostics)
	if r.Restored == 0 {
		b.WriteString("No snapshot to validate\n")
		return strings.TrimRight(b.String(), "\n")
	}
	b.WriteString(fmt.Sprintf("Restored %d units, %d invalidated\n", r.Restored, len(r.Invalidations)))
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("\n%s (%d):\n", title, len(items)))
		for _, item := range items {
			b.WriteString("  " + item + "\n")
		}
	}
	section("Updated", r.Updated)
	section("Stable", r.Stable)
	section("Affected", r.Affected)
	if len(r.Invalidations) > 0 {
		b.WriteString("\nReasons:\n")
		for _, inv := range r.Invalidations {
			line := fmt.Sprintf("  %s: %s", inv.Source, inv.Reason)
			if inv.Detail != "" {
				line += " (" + inv.Detail + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatGraphHuman(r *GraphResponseCLI) string {
	var b strings.Builder
	b.WriteString("Inheritance order:\n")
	for i, name := range r.Order {
		b.WriteString(fmt.Sprintf("  %3d. %s\n", i+1, name))
	}
	if len(r.Cyclic) > 0 {
		b.WriteString("\nCyclic:\n")
		for _, name := range r.Cyclic {
			b.WriteString("  " + name + "\n")
		}
	}
	b.WriteString(fmt.Sprintf("\nEdges (%d):\n", len(r.Edges)))
	for _, e := range r.Edges {
		arrow := "->"
		if e.Kind == "inheritance" {
			arrow = "=>"
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n", e.From, arrow, e.To))
	}
	b.WriteString(fmt.Sprintf("\nSources: %d  Inheritance: %d  Dependency: %d  Avg out-degree: %.2f\n",
		r.Stats.TotalVertices, r.Stats.InheritanceEdges, r.Stats.DependencyEdges, r.Stats.AvgOutDegree))
	return strings.TrimRight(b.String(), "\n")
}

func formatSessionsHuman(r *SessionsResponseCLI) string {
	if len(r.Sessions) == 0 {
		return "No recorded sessions"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-36s  %-20s  %8s  %6s  %s\n", "SESSION", "STARTED", "SOURCES", "UNITS", "TOOK"))
	for _, s := range r.Sessions {
		b.WriteString(fmt.Sprintf("%-36s  %-20s  %8d  %6d  %s\n",
			s.ID,
			s.Started.Local().Format("2006-01-02 15:04:05"),
			s.Sources,
			s.Units,
			s.Finished.Sub(s.Started).Round(time.Millisecond)))
	}
	return strings.TrimRight(b.String(), "\n")
}
