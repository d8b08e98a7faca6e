// Package printer renders build summaries for the terminal.
package printer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"git.home.luguber.info/inful/mdsite/internal/build"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Printer writes summaries to one writer.
type Printer struct {
	out     io.Writer
	verbose bool
}

// New returns a Printer writing to out. When verbose is set every written
// and removed artifact is listed.
func New(out io.Writer, verbose bool) *Printer {
	return &Printer{out: out, verbose: verbose}
}

// Summary prints the outcome of one build. label names the variant or is
// empty.
func (p *Printer) Summary(res *build.BuildResult, label string) {
	head := fmt.Sprintf("%s build", res.Mode)
	if label != "" {
		head += " [" + label + "]"
	}
	elapsed := res.Elapsed.Round(time.Millisecond)

	switch res.Outcome() {
	case build.OutcomeFatal:
		red.Fprintf(p.out, "✗ %s aborted after %s\n", head, elapsed)
		p.fatal(res.Fatal)
		return
	case build.OutcomePartial:
		yellow.Fprintf(p.out, "⚠ %s finished with %d failed page(s) in %s\n", head, len(res.Failed), elapsed)
	default:
		green.Fprintf(p.out, "✓ %s finished in %s\n", head, elapsed)
	}
	if res.Reason != "" {
		faint.Fprintf(p.out, "  ran as full build: %s\n", res.Reason)
	}

	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  written\t%d\n", len(res.Written))
	fmt.Fprintf(tw, "  unchanged\t%d\n", len(res.Skipped))
	fmt.Fprintf(tw, "  removed\t%d\n", len(res.Removed))
	fmt.Fprintf(tw, "  failed\t%d\n", len(res.Failed))
	_ = tw.Flush()

	if p.verbose {
		for _, a := range res.Written {
			cyan.Fprintf(p.out, "  + %s\n", a)
		}
		for _, a := range res.Removed {
			faint.Fprintf(p.out, "  - %s\n", a)
		}
	}
	if len(res.Failed) == 0 {
		return
	}

	fmt.Fprintln(p.out)
	tw = tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  SOURCE\tKIND\tERROR\n")
	for _, f := range res.Failed {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Source, f.Kind(), message(f.Err))
	}
	_ = tw.Flush()
}

func (p *Printer) fatal(err error) {
	if err == nil {
		return
	}
	ce, ok := ferrors.AsClassified(err)
	if !ok {
		fmt.Fprintf(p.out, "  %s\n", err)
		return
	}
	fmt.Fprintf(p.out, "  %s: %s\n", ce.Category(), ce.Message())
	ctx := ce.Context()
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(p.out, "    %s: %v\n", k, ctx[k])
	}
	if cause := ce.Cause(); cause != nil {
		fmt.Fprintf(p.out, "    cause: %s\n", cause)
	}
}

// message is the error text without the category prefix.
func message(err error) string {
	if ce, ok := ferrors.AsClassified(err); ok {
		msg := ce.Message()
		if v, ok := ce.Context().GetString("variable"); ok && !strings.Contains(msg, v) {
			msg += " (" + v + ")"
		}
		return msg
	}
	return err.Error()
}
