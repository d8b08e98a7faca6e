// Package commands holds the kong command tree of the mdsite binary.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/mdsite/internal/config"
)

// Global is shared with every command's Run method.
type Global struct {
	Logger *slog.Logger
}

// CLI definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"mdsite.yaml" type:"path"`
	Variant string           `help:"Build only this variant (default: every variant listed in the config)"`
	Verbose bool             `short:"v" help:"Enable verbose logging and per-artifact output"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" default:"1" help:"Build the site, writing only what changed since the last build"`
	Watch    WatchCmd    `cmd:"" help:"Build, then rebuild incrementally as sources change"`
	Clean    CleanCmd    `cmd:"" help:"Remove the output and cache directories"`
	Variants VariantsCmd `cmd:"" help:"List the configured variants and their directories"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// loadConfigs returns the configuration of the selected variant, or of every
// configured variant when none is selected.
func (c *CLI) loadConfigs() ([]*config.BuildConfig, error) {
	if c.Variant != "" {
		cfg, err := config.Load(c.Config, c.Variant)
		if err != nil {
			return nil, err
		}
		return []*config.BuildConfig{cfg}, nil
	}
	return config.LoadVariants(c.Config)
}

// configFailure logs a configuration error and maps it to exit status 2.
func configFailure(err error) error {
	slog.Error("Failed to load configuration", "error", err)
	return &ExitError{Code: 2, Err: err}
}
