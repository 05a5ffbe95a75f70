package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	ch    chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{ch: make(chan struct{}, 16)}
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return nil
}

func (r *countingRefresher) waitForRefresh(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

func startWatcher(t *testing.T, root string, refresher Refresher) *Watcher {
	t.Helper()
	w := New(root, refresher, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return dir
}

func TestWatcherRefreshesOnWorktreeChange(t *testing.T) {
	dir := initRepo(t)
	refresher := newCountingRefresher()
	startWatcher(t, dir, refresher)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o600))
	refresher.waitForRefresh(t)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := initRepo(t)
	refresher := newCountingRefresher()
	startWatcher(t, dir, refresher)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o750))
	refresher.waitForRefresh(t)
	time.Sleep(50 * time.Millisecond)
	for len(refresher.ch) > 0 {
		<-refresher.ch
	}

	assert.Eventually(t, func() bool {
		if err := os.WriteFile(filepath.Join(sub, "b.txt"), []byte(time.Now().String()), 0o600); err != nil {
			return false
		}
		select {
		case <-refresher.ch:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := initRepo(t)
	refresher := newCountingRefresher()
	w := New(dir, refresher, Options{Debounce: 300 * time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "burst.txt"), []byte{byte('a' + i)}, 0o600))
	}
	refresher.waitForRefresh(t)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestWatcherIgnoresGitNoise(t *testing.T) {
	dir := initRepo(t)
	refresher := newCountingRefresher()
	startWatcher(t, dir, refresher)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "index.lock"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "FETCH_HEAD"), nil, 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, refresher.calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "MERGE_HEAD"), []byte("x\n"), 0o600))
	refresher.waitForRefresh(t)
}

func TestWatcherReportsRefreshResult(t *testing.T) {
	dir := initRepo(t)
	results := make(chan error, 4)
	w := New(dir, newCountingRefresher(), Options{
		Debounce:  10 * time.Millisecond,
		OnRefresh: func(err error) { results <- err },
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o600))
	select {
	case err := <-results:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh result")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	dir := initRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(dir, newCountingRefresher(), Options{}).Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStartOutsideRepository(t *testing.T) {
	w := New(t.TempDir(), newCountingRefresher(), Options{})
	require.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestRelevant(t *testing.T) {
	w := &Watcher{gitDir: filepath.Join("/repo", ".git")}
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"worktree write", fsnotify.Event{Name: "/repo/a.txt", Op: fsnotify.Write}, true},
		{"worktree chmod", fsnotify.Event{Name: "/repo/a.txt", Op: fsnotify.Chmod}, false},
		{"index", fsnotify.Event{Name: "/repo/.git/index", Op: fsnotify.Rename}, true},
		{"head", fsnotify.Event{Name: "/repo/.git/HEAD", Op: fsnotify.Write}, true},
		{"rebase dir", fsnotify.Event{Name: "/repo/.git/rebase-merge", Op: fsnotify.Create}, true},
		{"index lock", fsnotify.Event{Name: "/repo/.git/index.lock", Op: fsnotify.Create}, false},
		{"objects", fsnotify.Event{Name: "/repo/.git/objects/ab", Op: fsnotify.Create}, false},
		{"sibling with git prefix", fsnotify.Event{Name: "/repo/.gitignore", Op: fsnotify.Write}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}

func TestResolveGitDir(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		dir := initRepo(t)
		got, err := resolveGitDir(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, ".git"), got)
	})

	t.Run("pointer file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("gitdir: ../main/.git/worktrees/wt\n"), 0o600))
		got, err := resolveGitDir(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(filepath.Dir(dir), "main", ".git", "worktrees", "wt"), got)
	})

	t.Run("malformed pointer", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("nonsense"), 0o600))
		_, err := resolveGitDir(dir)
		require.Error(t, err)
	})
}
