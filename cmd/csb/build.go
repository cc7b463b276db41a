package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"csb/internal/build"
	"csb/internal/diag"
)

var (
	buildFormat    string
	buildStrategy  string
	buildNoCache   bool
	buildMaxErrors int
	buildProgress  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile the project incrementally",
	Long: `Compile everything the manifest names, reusing units from the previous build
whose sources and dependencies did not change.

Examples:
  csb build
  csb build --strategy conservative
  csb build --no-cache --format json`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildFormat, "format", "human", "Output format (json, human)")
	buildCmd.Flags().StringVar(&buildStrategy, "strategy", "", "Scheduling strategy (greedy, conservative)")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "Neither read nor write the snapshot")
	buildCmd.Flags().IntVar(&buildMaxErrors, "max-errors", 0, "Stop after this many errors")
	buildCmd.Flags().BoolVar(&buildProgress, "progress", false, "Report progress on stderr")
	rootCmd.AddCommand(buildCmd)
}

// BuildResponseCLI is the output of csb build
type BuildResponseCLI struct {
	Success     bool              `json:"success"`
	Sources     int               `json:"sources"`
	Restored    int               `json:"restored"`
	Invalidated int               `json:"invalidated"`
	Persisted   int               `json:"persisted"`
	Written     int               `json:"written"`
	Errors      int               `json:"errors"`
	Warnings    int               `json:"warnings"`
	Duration    string            `json:"duration"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func applyBuildFlags(w *workspace) {
	if buildStrategy != "" {
		w.cfg.Scheduler.Strategy = buildStrategy
	}
	if buildNoCache {
		w.cfg.Cache.Enabled = false
	}
	if buildMaxErrors > 0 {
		w.cfg.Scheduler.MaxErrors = buildMaxErrors
	}
}

func progressPrinter() func(int) {
	if !buildProgress {
		return nil
	}
	last := -1
	return func(percent int) {
		if percent != last {
			last = percent
			fmt.Fprintf(os.Stderr, "\r%3d%%", percent)
			if percent >= 100 {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace()
	if err != nil {
		return err
	}
	defer w.Close()
	applyBuildFlags(w)

	b, err := w.builder(progressPrinter())
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := newContext()
	defer cancel()

	report, buildErr := b.Build(ctx)
	resp := newBuildResponse(report, buildErr)
	output, err := FormatResponse(resp, OutputFormat(buildFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return buildErr
}

func newBuildResponse(report *build.Report, err error) *BuildResponseCLI {
	resp := &BuildResponseCLI{
		Success:     err == nil,
		Sources:     report.Sources,
		Restored:    report.Restored,
		Invalidated: report.Invalidated(),
		Persisted:   report.Persisted,
		Written:     report.Written,
		Duration:    report.Duration.String(),
		Diagnostics: report.Diagnostics,
	}
	for _, d := range report.Diagnostics {
		switch d.Level {
		case diag.LevelError:
			resp.Errors++
		case diag.LevelWarning:
			resp.Warnings++
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
