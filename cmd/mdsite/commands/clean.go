package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/mdsite/internal/logfields"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	KeepCache bool `help:"Keep the cache directory (and its manifest)"`
}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfgs, err := root.loadConfigs()
	if err != nil {
		return configFailure(err)
	}
	for _, cfg := range cfgs {
		dirs := []string{cfg.OutputDir}
		if !c.KeepCache {
			dirs = append(dirs, cfg.CacheDir)
		}
		for _, dir := range dirs {
			if dir == cfg.Root {
				return fmt.Errorf("refusing to remove project root %s", dir)
			}
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("remove %s: %w", dir, err)
			}
			g.Logger.Info("Removed", logfields.Path(dir))
		}
	}
	return nil
}
