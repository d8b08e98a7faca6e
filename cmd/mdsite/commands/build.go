package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
	"git.home.luguber.info/inful/mdsite/internal/printer"
	"git.home.luguber.info/inful/mdsite/internal/revision"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Changed []string `help:"Paths known to have changed since the last build; runs an incremental build" type:"path" sep:","`
	Deleted []string `help:"Paths known to have been deleted since the last build" type:"path" sep:","`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfgs, err := root.loadConfigs()
	if err != nil {
		return configFailure(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := printer.New(os.Stdout, root.Verbose)
	code := 0
	for _, cfg := range cfgs {
		res := b.runOne(ctx, g, cfg)
		p.Summary(res, cfg.Variant)
		code = max(code, res.ExitCode())
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func (b *BuildCmd) runOne(ctx context.Context, g *Global, cfg *config.BuildConfig) *build.BuildResult {
	rev, err := revision.Head(cfg.Root)
	if err != nil {
		g.Logger.Warn("Could not read source revision", logfields.Error(err))
	}
	opts := []build.Option{build.WithRevision(rev)}

	changes := b.changes(cfg)
	if len(changes) == 0 {
		return build.BuildAll(ctx, cfg, opts...)
	}
	return build.BuildIncremental(ctx, cfg, changes, opts...)
}

// changes converts the --changed and --deleted flags into project-relative
// changes for cfg.
func (b *BuildCmd) changes(cfg *config.BuildConfig) []build.Change {
	var out []build.Change
	add := func(paths []string, kind build.ChangeKind) {
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				continue
			}
			out = append(out, build.Change{Path: cfg.Rel(abs), Kind: kind})
		}
	}
	add(b.Changed, build.Modified)
	add(b.Deleted, build.Deleted)
	return out
}
