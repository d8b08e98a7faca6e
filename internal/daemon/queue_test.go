package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/mdsite/internal/build"
)

func TestChangeQueueCoalescesByPath(t *testing.T) {
	q := newChangeQueue()
	q.Push([]build.Change{{Path: "content/b.md", Kind: build.Modified}, {Path: "content/a.md", Kind: build.Created}})
	q.Push([]build.Change{{Path: "content/a.md", Kind: build.Deleted}, {Path: "content/b.md", Kind: build.Modified}})
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected a pending signal")
	}

	changes, full := q.Take()
	assert.False(t, full)
	assert.Equal(t, []build.Change{
		{Path: "content/a.md", Kind: build.Deleted},
		{Path: "content/b.md", Kind: build.Modified},
	}, changes)

	changes, full = q.Take()
	assert.Empty(t, changes)
	assert.False(t, full)
}

func TestChangeQueueFullRequest(t *testing.T) {
	q := newChangeQueue()
	q.PushFull()
	q.Push([]build.Change{{Path: "content/a.md", Kind: build.Modified}})

	changes, full := q.Take()
	assert.True(t, full)
	assert.Len(t, changes, 1)

	_, full = q.Take()
	assert.False(t, full)
}

func TestChangeQueueIgnoresEmptyPush(t *testing.T) {
	q := newChangeQueue()
	q.Push(nil)
	select {
	case <-q.Ready():
		t.Fatal("empty push must not signal")
	default:
	}
}
