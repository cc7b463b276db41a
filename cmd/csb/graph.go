package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"csb/internal/graph"
)

var graphFormat string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and print the dependency graph",
	Long: `Build the project and print the inheritance order of its sources followed by
every inheritance (=>) and dependency (->) edge, with graph totals.`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringVar(&graphFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(graphCmd)
}

// GraphResponseCLI is the output of csb graph
type GraphResponseCLI struct {
	Order  []string         `json:"order"`
	Cyclic []string         `json:"cyclic,omitempty"`
	Edges  []graph.Edge     `json:"edges"`
	Stats  graph.GraphStats `json:"stats"`
}

func runGraph(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := newContext()
	defer cancel()

	if _, err := b.Build(ctx); err != nil {
		w.logger.Warn("Build failed, graph may be incomplete", "error", err)
	}
	g := b.Graph()
	if g == nil {
		return fmt.Errorf("no graph available")
	}

	output, err := FormatResponse(&GraphResponseCLI{Order: g.Order, Cyclic: g.Cyclic, Edges: g.Edges, Stats: g.Stats}, OutputFormat(graphFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
