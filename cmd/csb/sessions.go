package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"csb/internal/storage"
)

var (
	sessionsFormat string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent snapshot writes",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsFormat, "format", "human", "Output format (json, human)")
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 10, "Maximum number of sessions")
	rootCmd.AddCommand(sessionsCmd)
}

// SessionsResponseCLI is the output of csb sessions
type SessionsResponseCLI struct {
	Sessions []storage.Session `json:"sessions"`
}

func runSessions(cmd *cobra.Command, args []string) error {
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

	sessions, err := b.Sessions(sessionsLimit)
	if err != nil {
		return err
	}
	output, err := FormatResponse(&SessionsResponseCLI{Sessions: sessions}, OutputFormat(sessionsFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
