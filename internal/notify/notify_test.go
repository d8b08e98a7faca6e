package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/config"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

func TestNewBuildEvent(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &build.BuildResult{
		ID:      "b1",
		Mode:    build.ModeIncremental,
		Written: []string{"a/index.html"},
		Skipped: []string{"b/index.html", "c/index.html"},
		Failed: []build.Failure{{
			Source: "content/d.md",
			Err:    ferrors.MissingVariable("variable page.author is not defined").Build(),
		}},
		Started: started,
		Elapsed: 1500 * time.Microsecond,
	}

	ev := NewBuildEvent(res, "staging", "abc1234")
	assert.Equal(t, "partial", ev.Outcome)
	assert.Equal(t, 2, ev.Skipped)
	assert.InDelta(t, 1.5, ev.ElapsedMS, 0.001)
	assert.Equal(t, started.Add(1500*time.Microsecond), ev.FinishedAt)
	require.Len(t, ev.Failed, 1)
	assert.Equal(t, "missing_variable", ev.Failed[0].Kind)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"variant":"staging"`)
	assert.NotContains(t, string(data), `"fatal"`)
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(config.NotifyConfig{Subject: "mdsite.builds"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestConnectUnreachableServer(t *testing.T) {
	_, err := Connect(config.NotifyConfig{NATSURL: "nats://127.0.0.1:1", Subject: "x"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
}
