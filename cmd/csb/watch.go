package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"csb/internal/build"
	"csb/internal/config"
	"csb/internal/project"
	"csb/internal/watcher"
)

var watchFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever a source changes",
	Long: `Build once, then watch every directory the manifest reads from and rebuild
incrementally after each burst of changes. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(watchCmd)
}

// watchFilter rejects files the build writes itself.
func watchFilter(m *project.Manifest) func(string) bool {
	excluded := []string{filepath.Join(m.Root(), config.Dir)}
	if out := m.OutputDir(); out != "" {
		excluded = append(excluded, out)
	}
	return func(path string) bool {
		for _, dir := range excluded {
			if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
				return false
			}
		}
		return true
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	b, err := ws.builder(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := newContext()
	defer cancel()

	trigger := make(chan []watcher.Event, 1)
	w, err := watcher.New(watcher.Config{
		Debounce: time.Duration(ws.cfg.Watch.DebounceMs) * time.Millisecond,
		Ignore:   ws.cfg.Watch.Ignore,
		Filter:   watchFilter(ws.manifest),
	}, ws.logger, func(events []watcher.Event) {
		select {
		case trigger <- events:
		default:
			// A rebuild is already queued and will see these changes too.
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range b.WatchRoots() {
		if err := w.Add(root); err != nil {
			return err
		}
	}
	ws.logger.Info("Watching", "roots", len(b.WatchRoots()), "directories", w.Watched())

	rebuild := func(ctx context.Context) {
		report, err := b.Build(ctx)
		if ctx.Err() != nil {
			return
		}
		printWatchReport(report, err)
	}
	rebuild(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case events := <-trigger:
				manifestChanged := false
				for _, e := range events {
					ws.logger.Debug("Changed", "path", e.Path, "type", e.Type.String())
					if filepath.Base(e.Path) == project.ManifestFile {
						manifestChanged = true
					}
				}
				if manifestChanged {
					ws.logger.Warn("Manifest changed, restart watch to pick it up")
				}
				ws.logger.Info("Rebuilding", "changes", len(events))
				rebuild(gctx)
			}
		}
	})
	return g.Wait()
}

func printWatchReport(report *build.Report, err error) {
	output, ferr := FormatResponse(newBuildResponse(report, err), OutputFormat(watchFormat))
	if ferr != nil {
		fmt.Println(ferr)
		return
	}
	fmt.Println(output)
}
