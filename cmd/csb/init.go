package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"csb/internal/config"
	"csb/internal/errors"
	"csb/internal/project"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a csb.toml manifest and default configuration",
	Long: `Creates csb.toml and .csb/config.json in the current directory. The manifest
compiles every source under src/ and writes artifacts to out/.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing manifest and configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return errors.New(errors.InternalError, "failed to get current directory", err)
	}

	manifestFile := filepath.Join(cwd, project.ManifestFile)
	if _, statErr := os.Stat(manifestFile); statErr == nil && !initForce {
		// Already initialized is success.
		fmt.Println("csb already initialized.")
		fmt.Printf("Manifest at: %s\n", manifestFile)
		fmt.Println("\nRun 'csb init --force' to reinitialize.")
		return nil
	}

	m := project.New(cwd)
	m.Name = filepath.Base(cwd)
	m.SourcePath = []string{"src"}
	m.ExtraClasses = []string{"Main"}
	m.Output = "out"
	if err := m.Save(manifestFile); err != nil {
		return errors.New(errors.InternalError, "failed to write manifest", err)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(cwd); err != nil {
		return errors.New(errors.InternalError, "failed to write configuration", err)
	}

	fmt.Println("csb initialized successfully!")
	fmt.Printf("Manifest written to: %s\n", manifestFile)
	fmt.Printf("Configuration written to: %s\n", filepath.Join(cwd, config.Dir, "config.json"))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit csb.toml to list your targets")
	fmt.Println("  2. Run 'csb build'")
	return nil
}
