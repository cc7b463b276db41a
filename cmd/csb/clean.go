package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cleanOutput bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Discard the persisted build state",
	Long:  "Clear the snapshot so the next build compiles everything. With --output the output directory is removed too.",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanOutput, "output", false, "Also remove the output directory")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
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

	if err := b.Clean(); err != nil {
		return err
	}
	w.logger.Info("Snapshot cleared", "path", w.cfg.SnapshotPath(w.manifest.Root()))

	if out := w.manifest.OutputDir(); cleanOutput && out != "" {
		if err := os.RemoveAll(out); err != nil {
			return fmt.Errorf("failed to remove %s: %w", out, err)
		}
		w.logger.Info("Output removed", "path", out)
	}
	fmt.Println("Clean complete.")
	return nil
}
