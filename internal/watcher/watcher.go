// Package watcher refreshes a workflow when the working tree or the
// repository state on disk changes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	log "github.com/chmouel/lazystage/internal/log"
	"github.com/fsnotify/fsnotify"
)

var logger = log.Named("watcher")

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 300 * time.Millisecond

// gitStateNames are the entries of the git directory whose changes affect
// the status or the repository mode. Everything else there (lock files,
// objects, logs) is noise.
var gitStateNames = map[string]struct{}{
	"index":        {},
	"HEAD":         {},
	"MERGE_HEAD":   {},
	"rebase-merge": {},
	"rebase-apply": {},
}

// Refresher is refreshed after a burst of file events settles.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Options tunes a Watcher.
type Options struct {
	Debounce time.Duration
	// OnRefresh, when set, is called after every refresh with its result.
	OnRefresh func(error)
}

// Watcher watches a worktree and its git directory.
type Watcher struct {
	root      string
	gitDir    string
	refresher Refresher
	debounce  time.Duration
	onRefresh func(error)

	mu      sync.Mutex
	started bool
	fsw     *fsnotify.Watcher
	paths   map[string]struct{}
	done    chan struct{}
	stopped chan struct{}
}

// New creates a watcher for the worktree at root.
func New(root string, refresher Refresher, opts Options) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:      root,
		refresher: refresher,
		debounce:  debounce,
		onRefresh: opts.OnRefresh,
	}
}

// Start registers the watches and starts the event loop. Events are
// delivered once Start returns.
func (w *Watcher) Start(ctx context.Context) error {
	const op = lserrors.Op("watcher.Start")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	gitDir, err := resolveGitDir(w.root)
	if err != nil {
		return lserrors.E(op, lserrors.KindNotFound, w.root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}

	w.gitDir = gitDir
	w.fsw = fsw
	w.paths = make(map[string]struct{})
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	w.started = true

	w.addWatchDir(gitDir)
	w.addWatchTree(w.root)

	go w.run(ctx)
	return nil
}

// Stop stops the event loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.done)
	_ = w.fsw.Close()
	stopped := w.stopped
	w.mu.Unlock()

	<-stopped
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.stopped)

	// Stop and Reset never leave a stale tick behind since Go 1.23.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-w.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				w.maybeWatchNewDir(event.Name)
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			err := w.refresher.Refresh(ctx)
			if err != nil {
				logger.Printf("refresh after file change failed: %v", err)
			}
			if w.onRefresh != nil {
				w.onRefresh(err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Printf("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if rel, ok := within(w.gitDir, event.Name); ok {
		first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		_, state := gitStateNames[first]
		return state
	}
	return true
}

func (w *Watcher) maybeWatchNewDir(path string) {
	if _, ok := within(w.gitDir, path); ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	w.addWatchTree(path)
}

func (w *Watcher) addWatchDir(path string) {
	if _, ok := w.paths[path]; ok {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		logger.Printf("watch %s failed: %v", path, err)
		return
	}
	w.paths[path] = struct{}{}
}

// addWatchTree watches every directory below root except the git directory.
func (w *Watcher) addWatchTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || path == w.gitDir {
			return filepath.SkipDir
		}
		w.addWatchDir(path)
		return nil
	})
}

// within reports whether path is dir or below it, with the relative path.
func within(dir, path string) (string, bool) {
	if dir == "" {
		return "", false
	}
	if path == dir {
		return ".", true
	}
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
		return "", false
	}
	return path[len(dir)+1:], true
}

// resolveGitDir finds the git directory of a worktree, following the
// "gitdir:" pointer file used by linked worktrees and submodules.
func resolveGitDir(root string) (string, error) {
	dotGit := filepath.Join(root, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return dotGit, nil
	}
	data, err := os.ReadFile(dotGit) //nolint:gosec
	if err != nil {
		return "", err
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return "", lserrors.E(lserrors.KindInvalid, "malformed .git file "+dotGit)
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	return filepath.Clean(target), nil
}
