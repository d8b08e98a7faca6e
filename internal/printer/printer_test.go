package printer

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/mdsite/internal/build"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

func init() {
	color.NoColor = true
}

func TestSummarySuccess(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, true).Summary(&build.BuildResult{
		Mode:    build.ModeFull,
		Written: []string{"index.html"},
		Skipped: []string{"about/index.html"},
		Elapsed: 12 * time.Millisecond,
	}, "")

	out := buf.String()
	assert.Contains(t, out, "✓ full build finished in 12ms")
	assert.Regexp(t, `written\s+1`, out)
	assert.Regexp(t, `unchanged\s+1`, out)
	assert.Contains(t, out, "+ index.html")
}

func TestSummaryPartialListsFailures(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Summary(&build.BuildResult{
		Mode:   build.ModeIncremental,
		Reason: "",
		Failed: []build.Failure{
			{Source: "content/a.md", Err: ferrors.MissingVariable("variable is not defined").WithContext("variable", "page.author").Build()},
			{Source: "content/b.md", Err: errors.New("disk full")},
		},
	}, "de")

	out := buf.String()
	assert.Contains(t, out, "⚠ incremental build [de] finished with 2 failed page(s)")
	assert.Regexp(t, `content/a.md\s+missing_variable\s+variable is not defined \(page.author\)`, out)
	assert.Contains(t, out, "disk full")
}

func TestSummaryFatalShowsContext(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Summary(&build.BuildResult{
		Mode:  build.ModeFull,
		Fatal: ferrors.TemplateCycle("template inheritance cycle").WithContext("chain", "a -> b -> a").Build(),
	}, "")

	out := buf.String()
	assert.Contains(t, out, "✗ full build aborted")
	assert.Contains(t, out, "template_cycle: template inheritance cycle")
	assert.Contains(t, out, "chain: a -> b -> a")
}
