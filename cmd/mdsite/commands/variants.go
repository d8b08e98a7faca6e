package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
)

// VariantsCmd implements the 'variants' command.
type VariantsCmd struct{}

func (v *VariantsCmd) Run(_ *Global, root *CLI) error {
	cfgs, err := root.loadConfigs()
	if err != nil {
		return configFailure(err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VARIANT\tOUTPUT\tCACHE\tBASE URL")
	for _, cfg := range cfgs {
		name := cfg.Variant
		if name == "" {
			name = "(default)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, cfg.Rel(cfg.OutputDir), cfg.Rel(cfg.CacheDir), cfg.BaseURL)
	}
	return tw.Flush()
}
