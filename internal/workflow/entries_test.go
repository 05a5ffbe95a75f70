package workflow

import (
	"context"
	"testing"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableEntryActions(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.ChangeKind
		section models.Section
		want    []EntryAction
	}{
		{
			name:    "modified unstaged",
			kind:    models.ChangeModified,
			section: models.SectionUnstaged,
			want:    []EntryAction{EntryStage, EntryResetUnstaged, EntryDelete, EntryBlame, EntryHistory},
		},
		{
			name:    "modified staged",
			kind:    models.ChangeModified,
			section: models.SectionStaged,
			want:    []EntryAction{EntryUnstage, EntryResetStaged, EntryBlame, EntryHistory},
		},
		{
			name:    "untracked",
			kind:    models.ChangeUntracked,
			section: models.SectionUnstaged,
			want:    []EntryAction{EntryStage, EntryDelete},
		},
		{
			name:    "added staged",
			kind:    models.ChangeAdded,
			section: models.SectionStaged,
			want:    []EntryAction{EntryUnstage, EntryResetStaged},
		},
		{
			name:    "deleted unstaged",
			kind:    models.ChangeDeleted,
			section: models.SectionUnstaged,
			want:    []EntryAction{EntryStage, EntryResetUnstaged, EntryHistory},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AvailableEntryActions(models.StatusEntry{Path: "f", Kind: tt.kind}, tt.section)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatchRoutesToEngine(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{
		staged:   []models.StatusEntry{fileB},
		unstaged: []models.StatusEntry{fileA},
		blame:    []models.BlameLine{{LineNumber: 1, Author: "Jane", Text: "hello"}},
		history:  []models.CommitSummary{{Hash: "abc", Message: "init"}},
	}
	w := openWorkflow(t, engine, newMemoryDrafts())

	_, err := w.Dispatch(ctx, EntryStage, fileA, models.SectionUnstaged)
	require.NoError(t, err)
	_, err = w.Dispatch(ctx, EntryUnstage, fileB, models.SectionStaged)
	require.NoError(t, err)
	_, err = w.Dispatch(ctx, EntryResetStaged, fileB, models.SectionStaged)
	require.NoError(t, err)
	_, err = w.Dispatch(ctx, EntryResetUnstaged, fileA, models.SectionUnstaged)
	require.NoError(t, err)

	res, err := w.Dispatch(ctx, EntryBlame, fileA, models.SectionUnstaged)
	require.NoError(t, err)
	assert.Equal(t, engine.blame, res.Blame)

	res, err = w.Dispatch(ctx, EntryHistory, fileA, models.SectionUnstaged)
	require.NoError(t, err)
	assert.Equal(t, engine.history, res.History)

	assert.Equal(t, []string{
		"stage a.txt",
		"unstage dir/b.txt",
		"reset-staged dir/b.txt",
		"reset-unstaged a.txt",
		"blame a.txt",
		"history a.txt",
	}, engine.Calls())
}

func TestDispatchRejectsWrongSection(t *testing.T) {
	engine := &fakeEngine{unstaged: []models.StatusEntry{fileA}}
	w := openWorkflow(t, engine, newMemoryDrafts())

	_, err := w.Dispatch(context.Background(), EntryUnstage, fileA, models.SectionUnstaged)
	assert.True(t, lserrors.Is(err, lserrors.KindInvalid))
	_, err = w.Dispatch(context.Background(), EntryBlame, fileB, models.SectionStaged)
	assert.True(t, lserrors.Is(err, lserrors.KindInvalid))
	assert.Empty(t, engine.Calls())
}

func TestEntryOpRequiresListedEntry(t *testing.T) {
	engine := &fakeEngine{unstaged: []models.StatusEntry{fileA}}
	w := openWorkflow(t, engine, newMemoryDrafts())

	err := w.Stage(context.Background(), models.StatusEntry{Path: "ghost.txt"})
	assert.True(t, lserrors.Is(err, lserrors.KindNotFound))
	err = w.Unstage(context.Background(), fileA)
	assert.True(t, lserrors.Is(err, lserrors.KindNotFound))
	assert.Empty(t, engine.Calls())
}

func TestDeleteThenRefreshDropsSelection(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{unstaged: []models.StatusEntry{fileA}}
	w := openWorkflow(t, engine, newMemoryDrafts())

	require.NoError(t, w.Select(fileA, models.SectionUnstaged))
	_, _, ok := w.Selected()
	require.True(t, ok)

	engine.set(func(f *fakeEngine) { f.unstaged = nil })
	require.NoError(t, w.DeleteFile(ctx, fileA))

	_, _, ok = w.Selected()
	assert.False(t, ok)
	assert.Nil(t, w.Snapshot().Selected)
	_, unstaged := models.Lists(w.Snapshot().Status)
	assert.Empty(t, unstaged)
	assert.Equal(t, []string{"delete a.txt"}, engine.Calls())
}

func TestSelectionDoesNotLeakAcrossSections(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{unstaged: []models.StatusEntry{fileA}}
	w := openWorkflow(t, engine, newMemoryDrafts())
	require.NoError(t, w.Select(fileA, models.SectionUnstaged))

	// fully staged now
	engine.set(func(f *fakeEngine) {
		f.unstaged = nil
		f.staged = []models.StatusEntry{fileA}
	})
	require.NoError(t, w.Stage(ctx, fileA))

	_, _, ok := w.Selected()
	assert.False(t, ok)
	assert.True(t, lserrors.Is(w.Select(fileA, models.SectionUnstaged), lserrors.KindNotFound))
	require.NoError(t, w.Select(fileA, models.SectionStaged))
	entry, section, ok := w.Selected()
	require.True(t, ok)
	assert.Equal(t, fileA, entry)
	assert.Equal(t, models.SectionStaged, section)

	w.ClearSelection()
	_, _, ok = w.Selected()
	assert.False(t, ok)
}

func TestEntryOpFailureStillRefreshes(t *testing.T) {
	engine := &fakeEngine{unstaged: []models.StatusEntry{fileA}}
	w := openWorkflow(t, engine, newMemoryDrafts())

	engine.set(func(f *fakeEngine) {
		f.opErr = errEngine
		f.unstaged = []models.StatusEntry{fileA, fileB}
	})
	err := w.Stage(context.Background(), fileA)
	assert.True(t, lserrors.Is(err, lserrors.KindEngine))

	_, unstaged := models.Lists(w.Snapshot().Status)
	assert.Len(t, unstaged, 2)
}

func TestStageAllGating(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{staged: []models.StatusEntry{fileA}}
	w := openWorkflow(t, engine, newMemoryDrafts())

	assert.True(t, lserrors.Is(w.StageAll(ctx), lserrors.KindInvalid))
	require.NoError(t, w.UnstageAll(ctx))
	assert.Equal(t, []string{"unstage-all"}, engine.Calls())
}

func TestBlameAndHistoryRejections(t *testing.T) {
	w := openWorkflow(t, &fakeEngine{}, newMemoryDrafts())
	ctx := context.Background()

	_, err := w.Blame(ctx, models.StatusEntry{Path: "gone", Kind: models.ChangeDeleted})
	assert.True(t, lserrors.Is(err, lserrors.KindInvalid))
	_, err = w.History(ctx, models.StatusEntry{Path: "new", Kind: models.ChangeUntracked}, 0)
	assert.True(t, lserrors.Is(err, lserrors.KindInvalid))
}
