// Package watcher turns filesystem notifications under a project's source
// roots into settled build changes.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/config"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
)

// DefaultIgnore matches editor swap, backup and scratch files.
var DefaultIgnore = []string{
	"**/*~",
	"**/*.swp",
	"**/*.swx",
	"**/.#*",
	"**/#*#",
	"**/4913",
	"**/.DS_Store",
	"**/Thumbs.db",
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the per-path quiet window. Zero uses cfg.Watch.Debounce.
	Debounce time.Duration
	// Ignore lists doublestar patterns matched against project-relative
	// paths. Nil uses DefaultIgnore.
	Ignore []string
}

// Watcher watches the content, template and asset roots recursively plus
// the configuration file's directory.
type Watcher struct {
	cfg       *config.BuildConfig
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	ignore    []string

	mu   sync.Mutex
	dirs map[string]bool
}

// New creates a Watcher that delivers settled batches to handler. handler
// runs on the debouncer goroutine and must not block.
func New(cfg *config.BuildConfig, handler func([]build.Change), opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = cfg.Watch.Debounce
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	for _, p := range opts.Ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, ferrors.ConfigError("invalid ignore pattern").WithContext("pattern", p).Build()
		}
	}
	deb, err := NewDebouncer(DebounceConfig{QuietWindow: opts.Debounce}, handler)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIO, "cannot create file watcher").Build()
	}
	w := &Watcher{cfg: cfg, fsw: fsw, debouncer: deb, ignore: opts.Ignore, dirs: make(map[string]bool)}

	for _, root := range []string{cfg.ContentDir, cfg.TemplatesDir, cfg.AssetsDir} {
		if err := w.addRecursive(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if cfg.ConfigPath != "" {
		dir := filepath.Dir(cfg.ConfigPath)
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryIO, "cannot watch config directory").
				WithContext("path", dir).Build()
		}
	}
	return w, nil
}

// Ready is closed once events are being processed.
func (w *Watcher) Ready() <-chan struct{} {
	return w.debouncer.Ready()
}

// Run delivers changes until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			slog.Warn("Error closing file watcher", logfields.Error(err))
		}
	}()
	go w.debouncer.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel := w.cfg.Rel(ev.Name)
	if w.ignored(rel) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addTree(ev.Name)
			return
		}
		w.enqueue(rel, build.Created)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.forgetDir(ev.Name) {
			// A removed directory is passed through so the build can drop
			// everything that lived under it.
			slog.Debug("Directory removed", logfields.Path(rel))
			w.debouncer.Add(rel, build.Deleted)
			return
		}
		w.enqueue(rel, build.Deleted)
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		w.enqueue(rel, build.Modified)
	}
}

func (w *Watcher) enqueue(rel string, kind build.ChangeKind) {
	if !build.Relevant(w.cfg, rel) {
		return
	}
	slog.Debug("File change detected", logfields.Path(rel), logfields.Change(kind.String()))
	w.debouncer.Add(rel, kind)
}

func (w *Watcher) ignored(rel string) bool {
	for _, p := range w.ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// addTree watches a newly created directory and reports the files already
// inside it, which may have been written before the watch was added.
func (w *Watcher) addTree(dir string) {
	if err := w.addRecursive(dir); err != nil {
		slog.Warn("Watch add failed", logfields.Path(dir), logfields.Error(err))
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel := w.cfg.Rel(p)
		if !w.ignored(rel) {
			w.enqueue(rel, build.Created)
		}
		return nil
	})
}

// addRecursive watches root and every directory below it. A missing root
// is skipped.
func (w *Watcher) addRecursive(root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			slog.Warn("Watch add failed", logfields.Path(p), logfields.Error(err))
			return nil
		}
		w.mu.Lock()
		w.dirs[p] = true
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIO, "cannot watch directory").
			WithContext("path", root).Build()
	}
	return nil
}

// forgetDir drops dir and everything below it from the watched set and
// reports whether dir was watched.
func (w *Watcher) forgetDir(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	return true
}
