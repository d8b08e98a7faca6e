package daemon

import (
	"sort"
	"sync"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/watcher"
)

// changeQueue coalesces pending changes by path until the coordinator takes
// them. Producers never block.
type changeQueue struct {
	mu      sync.Mutex
	pending map[string]build.ChangeKind
	full    bool
	signal  chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{pending: make(map[string]build.ChangeKind), signal: make(chan struct{}, 1)}
}

// Push merges changes into the queue.
func (q *changeQueue) Push(changes []build.Change) {
	if len(changes) == 0 {
		return
	}
	q.mu.Lock()
	for _, ch := range changes {
		if prev, ok := q.pending[ch.Path]; ok {
			q.pending[ch.Path] = watcher.Merge(prev, ch.Kind)
			continue
		}
		q.pending[ch.Path] = ch.Kind
	}
	q.mu.Unlock()
	q.notify()
}

// PushFull requests a full rebuild.
func (q *changeQueue) PushFull() {
	q.mu.Lock()
	q.full = true
	q.mu.Unlock()
	q.notify()
}

func (q *changeQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Ready fires when work may be available.
func (q *changeQueue) Ready() <-chan struct{} {
	return q.signal
}

// Take empties the queue and returns its changes sorted by path, plus
// whether a full rebuild was requested.
func (q *changeQueue) Take() ([]build.Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	changes := make([]build.Change, 0, len(q.pending))
	for p, k := range q.pending {
		changes = append(changes, build.Change{Path: p, Kind: k})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	full := q.full
	q.pending = make(map[string]build.ChangeKind)
	q.full = false
	return changes, full
}

// Len is the number of distinct pending paths.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
