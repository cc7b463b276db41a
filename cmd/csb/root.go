package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"csb/internal/build"
	"csb/internal/config"
	"csb/internal/errors"
	"csb/internal/project"
	"csb/internal/slogutil"
	"csb/internal/version"
)

var (
	verbosity    int
	quiet        bool
	logFile      string
	configPath   string
	manifestPath string
)

var rootCmd = &cobra.Command{
	Use:   "csb",
	Short: "csb - incremental compilation scheduler",
	Long: `csb compiles the sources named by a csb.toml manifest. Each build restores
the previous snapshot, recompiles only what changed or depends on a change, and
writes the new state back.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("csb version {{.Version}}\n")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write debug logs to this file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: .csb/config.json next to the manifest)")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "Project manifest (default: nearest csb.toml)")
}

// workspace is everything a command needs to talk to one project.
type workspace struct {
	manifest *project.Manifest
	cfg      *config.Config
	logger   *slog.Logger
	closeLog io.Closer
}

func (w *workspace) Close() {
	if w.closeLog != nil {
		w.closeLog.Close()
	}
}

// findManifest returns the manifest path from the flag or the nearest
// csb.toml above the working directory.
func findManifest() (string, error) {
	if manifestPath != "" {
		return manifestPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.New(errors.InternalError, "failed to get current directory", err)
	}
	return project.Find(cwd)
}

func loadConfig(root string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfigFromPath(configPath)
	} else {
		cfg, err = config.LoadConfig(root)
	}
	if err != nil {
		return nil, errors.New(errors.ConfigInvalid, "failed to load configuration", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := slogutil.Setup(cfg.Logging, slogutil.Options{
		Verbosity: verbosity,
		Quiet:     quiet,
		File:      logFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, closer, nil
}

// openWorkspace loads the manifest, its configuration and the logger.
func openWorkspace() (*workspace, error) {
	path, err := findManifest()
	if err != nil {
		return nil, err
	}
	m, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(m.Root())
	if err != nil {
		return nil, err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded project", "manifest", path, "root", m.Root())
	return &workspace{manifest: m, cfg: cfg, logger: logger, closeLog: closer}, nil
}

func (w *workspace) builder(progress func(int)) (*build.Builder, error) {
	return build.New(build.Options{
		Manifest: w.manifest,
		Config:   w.cfg,
		Logger:   w.logger,
		Progress: progress,
	})
}

// projectRoot is the manifest directory when there is one, else the working
// directory.
func projectRoot() string {
	if path, err := findManifest(); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, _ := os.Getwd()
	return cwd
}

func newContext() (context.Context, context.CancelFunc) {
	return signalContext(context.Background())
}
