package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/daemon"
	"git.home.luguber.info/inful/mdsite/internal/printer"
	"git.home.luguber.info/inful/mdsite/internal/watcher"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Debounce time.Duration `help:"Quiet window before a burst of changes is built (overrides watch.debounce)"`
	Ignore   []string      `help:"Extra doublestar patterns to ignore" sep:","`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfgs, err := root.loadConfigs()
	if err != nil {
		return configFailure(err)
	}
	if len(cfgs) > 1 {
		return configFailure(errors.New("several variants configured; select one with --variant to watch"))
	}
	cfg := cfgs[0]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := printer.New(os.Stdout, root.Verbose)
	sess, err := daemon.Watch(ctx, cfg, func(res *build.BuildResult) {
		p.Summary(res, cfg.Variant)
	}, daemon.WithWatcherOptions(watcher.Options{
		Debounce: w.Debounce,
		Ignore:   append(append([]string(nil), watcher.DefaultIgnore...), w.Ignore...),
	}))
	if err != nil {
		return configFailure(err)
	}

	<-ctx.Done()
	g.Logger.Info("Shutdown signal received, stopping watch session")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return sess.Stop(stopCtx)
}
