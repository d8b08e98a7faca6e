package watcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/build"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// DebounceConfig tunes a Debouncer.
type DebounceConfig struct {
	// QuietWindow is how long a path must stay unchanged before its change
	// settles.
	QuietWindow time.Duration
	// MaxDelay bounds how long a path that keeps changing can be held back.
	// Zero means ten quiet windows.
	MaxDelay time.Duration
}

type event struct {
	path string
	kind build.ChangeKind
	at   time.Time
}

type pending struct {
	kind  build.ChangeKind
	first time.Time
	last  time.Time
}

// Debouncer settles bursts of events per path and hands settled changes to
// emit in batches, sorted by path. Run must be running for Add to make
// progress.
type Debouncer struct {
	cfg  DebounceConfig
	emit func([]build.Change)

	events    chan event
	done      chan struct{}
	readyOnce sync.Once
	ready     chan struct{}

	pending map[string]*pending
}

// NewDebouncer returns a Debouncer that calls emit for every settled batch.
// emit runs on the Run goroutine and must not block.
func NewDebouncer(cfg DebounceConfig, emit func([]build.Change)) (*Debouncer, error) {
	if emit == nil {
		return nil, ferrors.ValidationError("emit callback is required").Build()
	}
	if cfg.QuietWindow <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * cfg.QuietWindow
	}
	return &Debouncer{
		cfg:     cfg,
		emit:    emit,
		events:  make(chan event, 256),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		pending: make(map[string]*pending),
	}, nil
}

// Ready is closed once Run is accepting events.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.ready
}

// Add records an event for path. It returns without effect once Run has
// stopped.
func (d *Debouncer) Add(path string, kind build.ChangeKind) {
	select {
	case d.events <- event{path: path, kind: kind, at: time.Now()}:
	case <-d.done:
	}
}

// Run processes events until ctx is done. Changes still settling at that
// point are dropped.
func (d *Debouncer) Run(ctx context.Context) {
	defer close(d.done)
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	var timerC <-chan time.Time

	d.readyOnce.Do(func() { close(d.ready) })
	for {
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case ev := <-d.events:
			d.record(ev)
		case now := <-timerC:
			timerC = nil
			if batch := d.settle(now); len(batch) > 0 {
				d.emit(batch)
			}
		}
		if next, ok := d.nextDue(); ok {
			stopTimer(timer)
			timer.Reset(time.Until(next))
			timerC = timer.C
		}
	}
}

func (d *Debouncer) record(ev event) {
	p, ok := d.pending[ev.path]
	if !ok {
		d.pending[ev.path] = &pending{kind: ev.kind, first: ev.at, last: ev.at}
		return
	}
	p.kind = Merge(p.kind, ev.kind)
	p.last = ev.at
}

func (d *Debouncer) due(p *pending) time.Time {
	quiet := p.last.Add(d.cfg.QuietWindow)
	limit := p.first.Add(d.cfg.MaxDelay)
	if limit.Before(quiet) {
		return limit
	}
	return quiet
}

func (d *Debouncer) nextDue() (time.Time, bool) {
	var next time.Time
	for _, p := range d.pending {
		if t := d.due(p); next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

func (d *Debouncer) settle(now time.Time) []build.Change {
	var batch []build.Change
	for path, p := range d.pending {
		if d.due(p).After(now) {
			continue
		}
		batch = append(batch, build.Change{Path: path, Kind: p.kind})
		delete(d.pending, path)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch
}

// Merge folds a later event kind into the pending kind of the same path.
// Create then delete settles as deleted; delete then create as modified.
func Merge(prev, next build.ChangeKind) build.ChangeKind {
	switch prev {
	case build.Created:
		if next == build.Deleted {
			return build.Deleted
		}
		return build.Created
	case build.Deleted:
		if next == build.Deleted {
			return build.Deleted
		}
		return build.Modified
	default:
		if next == build.Created {
			return build.Modified
		}
		return next
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
