package daemon

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/mdsite/internal/logfields"
)

// workerGroup tracks session goroutines so Stop can wait for them. Go
// refuses new work once stopping so Add never races with Wait.
type workerGroup struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopping bool
}

// Go starts fn under name unless the group is stopping. A panic in fn is
// logged and the worker exits.
func (g *workerGroup) Go(name string, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping {
		return false
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Session worker panicked", slog.String("worker", name), slog.Any("panic", r))
			}
		}()
		slog.Debug("Session worker started", slog.String("worker", name))
		fn()
		slog.Debug("Session worker stopped", slog.String("worker", name))
	}()
	return true
}

// StopAndWait blocks new workers and waits for running ones, bounded by ctx.
func (g *workerGroup) StopAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.stopping = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("Timed out waiting for session workers", logfields.Error(ctx.Err()))
		return ctx.Err()
	}
}
