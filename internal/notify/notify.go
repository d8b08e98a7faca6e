// Package notify publishes build completion events to NATS so other
// services (preview servers, deploy hooks) can react to finished builds.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/config"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
)

// FailureEvent describes one failed page.
type FailureEvent struct {
	Source   string `json:"source"`
	Artifact string `json:"artifact,omitempty"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// BuildEvent is the JSON payload published after every build.
type BuildEvent struct {
	ID         string         `json:"id"`
	Mode       string         `json:"mode"`
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Variant    string         `json:"variant,omitempty"`
	Revision   string         `json:"revision,omitempty"`
	Written    []string       `json:"written"`
	Removed    []string       `json:"removed"`
	Skipped    int            `json:"skipped"`
	Failed     []FailureEvent `json:"failed,omitempty"`
	Fatal      string         `json:"fatal,omitempty"`
	ElapsedMS  float64        `json:"elapsed_ms"`
	FinishedAt time.Time      `json:"finished_at"`
}

// NewBuildEvent summarises res.
func NewBuildEvent(res *build.BuildResult, variant, revision string) BuildEvent {
	ev := BuildEvent{
		ID:         res.ID,
		Mode:       string(res.Mode),
		Outcome:    string(res.Outcome()),
		Reason:     res.Reason,
		Variant:    variant,
		Revision:   revision,
		Written:    append([]string{}, res.Written...),
		Removed:    append([]string{}, res.Removed...),
		Skipped:    len(res.Skipped),
		ElapsedMS:  float64(res.Elapsed.Microseconds()) / 1000,
		FinishedAt: res.Started.Add(res.Elapsed).UTC(),
	}
	for _, f := range res.Failed {
		ev.Failed = append(ev.Failed, FailureEvent{Source: f.Source, Artifact: f.Artifact, Kind: f.Kind(), Error: f.Err.Error()})
	}
	if res.Fatal != nil {
		ev.Fatal = res.Fatal.Error()
	}
	return ev
}

// Publisher sends build events to one subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials cfg.NATSURL.
func Connect(cfg config.NotifyConfig, opts ...nats.Option) (*Publisher, error) {
	if cfg.NATSURL == "" {
		return nil, ferrors.ConfigError("notify.nats_url is required").Build()
	}
	opts = append([]nats.Option{nats.Name("mdsite"), nats.MaxReconnects(-1)}, opts...)
	conn, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).Build()
	}
	slog.Info("Build notifications enabled", slog.String("url", cfg.NATSURL), slog.String("subject", cfg.Subject))
	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends ev and waits for the server to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, ev BuildEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal build event").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to publish build event").
			WithContext("subject", p.subject).Build()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to flush build event").
			WithContext("subject", p.subject).Build()
	}
	slog.Debug("Published build event", logfields.BuildID(ev.ID), logfields.Outcome(ev.Outcome))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
