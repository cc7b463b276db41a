package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"csb/internal/diag"
	"csb/internal/incremental"
)

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report what the next build would recompile",
	Long: `Restore the previous snapshot and check it against the file system without
compiling anything. Every discarded unit is listed with the reason it was
discarded.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(validateCmd)
}

// ValidateResponseCLI is the output of csb validate
type ValidateResponseCLI struct {
	Restored      int                        `json:"restored"`
	Updated       []string                   `json:"updated,omitempty"`
	Stable        []string                   `json:"stable,omitempty"`
	Affected      []string                   `json:"affected,omitempty"`
	Deleted       []string                   `json:"deleted,omitempty"`
	Invalidations []incremental.Invalidation `json:"invalidations,omitempty"`
	Diagnostics   []diag.Diagnostic          `json:"diagnostics,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace()
	if err != nil {
		return err
	}
	defer w.Close()

	b, err := w.builder(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	report, err := b.Check()
	if err != nil {
		return err
	}

	resp := &ValidateResponseCLI{
		Restored:    report.Restored,
		Diagnostics: report.Diagnostics,
	}
	if v := report.Validation; v != nil {
		for _, name := range v.Updated {
			resp.Updated = append(resp.Updated, b.Display(name))
		}
		for _, name := range v.Stable {
			resp.Stable = append(resp.Stable, b.Display(name))
		}
		for _, name := range v.Affected {
			resp.Affected = append(resp.Affected, b.Display(name))
		}
		for _, q := range v.Deleted {
			resp.Deleted = append(resp.Deleted, q.String())
		}
		for _, inv := range v.Invalidations {
			inv.Source = b.Display(inv.Source)
			resp.Invalidations = append(resp.Invalidations, inv)
		}
		sort.Slice(resp.Invalidations, func(i, j int) bool {
			return resp.Invalidations[i].Source < resp.Invalidations[j].Source
		})
	}

	output, err := FormatResponse(resp, OutputFormat(validateFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
