package main

import (
	"fmt"
	"os"

	"csb/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code, ok := errors.CodeOf(err); ok {
			for _, fix := range errors.GetSuggestedFixes(code) {
				if fix.Command != "" {
					fmt.Fprintf(os.Stderr, "  hint: run '%s' (%s)\n", fix.Command, fix.Description)
				} else {
					fmt.Fprintf(os.Stderr, "  hint: %s (%s)\n", fix.Description, fix.Path)
				}
			}
		}
		os.Exit(1)
	}
}
