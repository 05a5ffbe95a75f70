// Package workflow drives staging and committing for one open repository.
//
// A Workflow owns the stage status, the commit message buffer and the
// selection. Mutations are delegated to an Engine and followed by a fresh
// status computation; consumers read Snapshot after each notification
// received from Subscribe.
package workflow

import (
	"context"
	"errors"
	"slices"
	"sync"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/log"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/google/uuid"
)

var logger = log.Named("workflow")

// ErrClosed is returned by operations on a closed Workflow.
var ErrClosed = errors.New("workflow closed")

// DefaultHistoryLimit bounds History when no limit is given.
const DefaultHistoryLimit = 50

// Engine performs version-control operations on one repository.
type Engine interface {
	Status(ctx context.Context) (staged, unstaged []models.StatusEntry, err error)
	RepositoryMode(ctx context.Context) (models.RepositoryMode, error)
	HasPreviousCommits(ctx context.Context) (bool, error)

	Stage(ctx context.Context, entry models.StatusEntry) error
	Unstage(ctx context.Context, entry models.StatusEntry) error
	StageAll(ctx context.Context) error
	UnstageAll(ctx context.Context) error
	ResetStaged(ctx context.Context, entry models.StatusEntry) error
	ResetUnstaged(ctx context.Context, entry models.StatusEntry) error
	DeleteFile(ctx context.Context, entry models.StatusEntry) error

	// Commit returns the hash of the new HEAD.
	Commit(ctx context.Context, message string, amend bool) (string, error)
	AbortMerge(ctx context.Context) error
	AbortRebase(ctx context.Context) error
	ContinueRebase(ctx context.Context) error
	SkipRebase(ctx context.Context) error

	Blame(ctx context.Context, path string) ([]models.BlameLine, error)
	History(ctx context.Context, path string, limit int) ([]models.CommitSummary, error)
}

// DraftStore persists the commit message buffer.
type DraftStore interface {
	Load(ctx context.Context, repoID string) (string, error)
	Save(ctx context.Context, repoID, text string) error
}

// Snapshot is a consistent view of the workflow state.
type Snapshot struct {
	Status             models.StageStatus
	Mode               models.RepositoryMode
	HasPreviousCommits bool
	Message            string
	Actions            ActionSet
	Selected           *models.EntryKey
}

// Workflow is the commit workflow of one repository.
type Workflow struct {
	engine Engine
	drafts DraftStore
	repoID string

	mu         sync.Mutex
	status     models.StageStatus
	lastLoaded *models.StageStatusLoaded
	mode       models.RepositoryMode
	hasPrev    bool
	message    string
	selection  *models.EntryKey
	generation uint64
	closed     bool
	subs       map[uuid.UUID]chan struct{}
}

// New creates a Workflow in the Loading state. Call Open to load the draft
// and compute the first status.
func New(engine Engine, drafts DraftStore, repoID string) *Workflow {
	return &Workflow{
		engine: engine,
		drafts: drafts,
		repoID: repoID,
		status: models.StageStatusLoading{},
		subs:   make(map[uuid.UUID]chan struct{}),
	}
}

// Open restores the persisted draft and performs the first refresh.
func (w *Workflow) Open(ctx context.Context) error {
	const op = lserrors.Op("workflow.Open")

	if w.drafts != nil {
		draft, err := w.drafts.Load(ctx, w.repoID)
		if err != nil {
			// a lost draft must not keep the repository from opening
			_ = logger.Errorf(err, "loading draft for %s", w.repoID)
		} else {
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				return lserrors.E(op, lserrors.KindInvalid, ErrClosed)
			}
			w.message = draft
			w.mu.Unlock()
			w.notify()
		}
	}
	return w.Refresh(ctx)
}

// Close discards in-flight results and closes every subscription.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.generation++
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	return w.snapshotOf(w.status)
}

// snapshotOf builds a snapshot around status. Loaded lists are copied so
// callers may sort or edit them without touching the last good status.
func (w *Workflow) snapshotOf(status models.StageStatus) Snapshot {
	if loaded, ok := status.(models.StageStatusLoaded); ok {
		status = models.StageStatusLoaded{
			Staged:   slices.Clone(loaded.Staged),
			Unstaged: slices.Clone(loaded.Unstaged),
		}
	}
	snap := Snapshot{
		Status:             status,
		Mode:               w.mode,
		HasPreviousCommits: w.hasPrev,
		Message:            w.message,
		Actions:            ComputeActions(status, w.mode, w.message, w.hasPrev),
	}
	if w.selection != nil {
		if _, ok := models.Contains(status, *w.selection); ok {
			key := *w.selection
			snap.Selected = &key
		}
	}
	return snap
}

// Subscribe returns a channel that receives a value after each state change.
// Notifications coalesce: a slow reader sees one pending value, then reads
// the latest Snapshot. The channel is closed by cancel or Close.
func (w *Workflow) Subscribe() (<-chan struct{}, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan struct{}, 1)
	if w.closed {
		close(ch)
		return ch, func() {}
	}
	id := uuid.New()
	w.subs[id] = ch

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			close(sub)
			delete(w.subs, id)
		}
	}
}

func (w *Workflow) notify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifyLocked()
}

func (w *Workflow) notifyLocked() {
	for _, ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Refresh recomputes the stage status. Readers see Loading until the new
// Loaded snapshot is published in one step. A refresh overtaken by a newer
// one, or finishing after Close, is dropped. On failure the last good
// snapshot is restored and a KindStatus error returned.
func (w *Workflow) Refresh(ctx context.Context) error {
	const op = lserrors.Op("workflow.Refresh")

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return lserrors.E(op, lserrors.KindInvalid, ErrClosed)
	}
	w.generation++
	gen := w.generation
	w.status = models.StageStatusLoading{}
	w.notifyLocked()
	w.mu.Unlock()

	staged, unstaged, mode, hasPrev, err := w.computeStatus(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || gen != w.generation {
		logger.Printf("dropping superseded status computation %d", gen)
		return nil
	}

	if err != nil {
		if w.lastLoaded != nil {
			w.status = *w.lastLoaded
		}
		w.notifyLocked()
		return lserrors.E(op, lserrors.KindStatus, err)
	}

	loaded := models.StageStatusLoaded{Staged: staged, Unstaged: unstaged}
	w.status = loaded
	w.lastLoaded = &loaded
	w.mode = mode
	w.hasPrev = hasPrev
	if w.selection != nil {
		if _, ok := models.Contains(loaded, *w.selection); !ok {
			w.selection = nil
		}
	}
	w.notifyLocked()
	return nil
}

func (w *Workflow) computeStatus(ctx context.Context) (staged, unstaged []models.StatusEntry, mode models.RepositoryMode, hasPrev bool, err error) {
	staged, unstaged, err = w.engine.Status(ctx)
	if err != nil {
		return nil, nil, 0, false, err
	}
	if mode, err = w.engine.RepositoryMode(ctx); err != nil {
		return nil, nil, 0, false, err
	}
	if hasPrev, err = w.engine.HasPreviousCommits(ctx); err != nil {
		return nil, nil, 0, false, err
	}
	if staged == nil {
		staged = []models.StatusEntry{}
	}
	if unstaged == nil {
		unstaged = []models.StatusEntry{}
	}
	return staged, unstaged, mode, hasPrev, nil
}

// gate returns the action set of the last loaded status, or a KindInvalid
// error when allowed rejects it.
func (w *Workflow) gate(op lserrors.Op, allowed func(Snapshot) bool, reason string) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Snapshot{}, lserrors.E(op, lserrors.KindInvalid, ErrClosed)
	}
	// judge against the last loaded lists: the Loading placeholder published
	// during a refresh reads as empty and would open the merge and skip gates
	if w.lastLoaded == nil {
		return Snapshot{}, lserrors.E(op, lserrors.KindInvalid, "status not loaded")
	}
	snap := w.snapshotOf(*w.lastLoaded)
	if !allowed(snap) {
		return snap, lserrors.E(op, lserrors.KindInvalid, reason)
	}
	return snap, nil
}

// finish refreshes after an engine call and reports the engine error first.
func (w *Workflow) finish(ctx context.Context, op lserrors.Op, engineErr error) error {
	refreshErr := w.Refresh(ctx)
	if engineErr != nil {
		return lserrors.E(op, lserrors.KindEngine, engineErr)
	}
	if errors.Is(refreshErr, ErrClosed) {
		return nil
	}
	return refreshErr
}

// clearMessage empties the buffer and the persisted draft.
func (w *Workflow) clearMessage(ctx context.Context, clearSelection bool) {
	w.mu.Lock()
	w.message = ""
	if clearSelection {
		w.selection = nil
	}
	w.notifyLocked()
	w.mu.Unlock()

	if w.drafts != nil {
		if err := w.drafts.Save(ctx, w.repoID, ""); err != nil {
			_ = logger.Errorf(err, "clearing draft for %s", w.repoID)
		}
	}
}

// Commit records the staged changes with message, or amends HEAD. On
// success the message buffer and selection are cleared; on failure both
// are left untouched.
func (w *Workflow) Commit(ctx context.Context, message string, amend bool) (string, error) {
	const op = lserrors.Op("workflow.Commit")

	_, err := w.gate(op, func(s Snapshot) bool {
		if s.Mode != models.ModeNormal {
			return false
		}
		staged, _ := models.Lists(s.Status)
		if amend {
			return CanAmend(message, staged, s.HasPreviousCommits)
		}
		return CanCommit(message, staged)
	}, "nothing to commit")
	if err != nil {
		return "", err
	}

	return w.commit(ctx, op, message, amend)
}

func (w *Workflow) commit(ctx context.Context, op lserrors.Op, message string, amend bool) (string, error) {
	hash, err := w.engine.Commit(ctx, message, amend)
	if err != nil {
		return "", w.finish(ctx, op, err)
	}
	logger.Printf("committed %s (amend=%t)", hash, amend)
	w.clearMessage(ctx, true)
	return hash, w.finish(ctx, op, nil)
}

// Merge concludes a merge once every conflict is resolved, committing with
// the buffered message.
func (w *Workflow) Merge(ctx context.Context) (string, error) {
	const op = lserrors.Op("workflow.Merge")

	snap, err := w.gate(op, func(s Snapshot) bool {
		return s.Mode == models.ModeMerging && s.Actions.Enabled(ActionMerge)
	}, "merge is not available")
	if err != nil {
		return "", err
	}
	return w.commit(ctx, op, snap.Message, false)
}

// AbortMerge abandons the merge in progress.
func (w *Workflow) AbortMerge(ctx context.Context) error {
	return w.abort(ctx, lserrors.Op("workflow.AbortMerge"), models.ModeMerging, w.engine.AbortMerge)
}

// AbortRebase abandons the rebase in progress.
func (w *Workflow) AbortRebase(ctx context.Context) error {
	return w.abort(ctx, lserrors.Op("workflow.AbortRebase"), models.ModeRebasing, w.engine.AbortRebase)
}

func (w *Workflow) abort(ctx context.Context, op lserrors.Op, mode models.RepositoryMode, call func(context.Context) error) error {
	if _, err := w.gate(op, func(s Snapshot) bool {
		return s.Mode == mode && s.Actions.Enabled(ActionAbort)
	}, "not "+mode.String()); err != nil {
		return err
	}
	if err := call(ctx); err != nil {
		return w.finish(ctx, op, err)
	}
	w.clearMessage(ctx, false)
	return w.finish(ctx, op, nil)
}

// ContinueRebase applies the resolved step and moves the rebase forward.
func (w *Workflow) ContinueRebase(ctx context.Context) error {
	const op = lserrors.Op("workflow.ContinueRebase")

	if _, err := w.gate(op, func(s Snapshot) bool {
		return s.Mode == models.ModeRebasing && s.Actions.Enabled(ActionContinue)
	}, "continue is not available"); err != nil {
		return err
	}
	return w.finish(ctx, op, w.engine.ContinueRebase(ctx))
}

// SkipRebase drops the current rebase step.
func (w *Workflow) SkipRebase(ctx context.Context) error {
	const op = lserrors.Op("workflow.SkipRebase")

	if _, err := w.gate(op, func(s Snapshot) bool {
		return s.Mode == models.ModeRebasing && s.Actions.Enabled(ActionSkip)
	}, "skip is not available"); err != nil {
		return err
	}
	return w.finish(ctx, op, w.engine.SkipRebase(ctx))
}

// UpdateCommitMessage replaces the buffer and persists it right away.
func (w *Workflow) UpdateCommitMessage(ctx context.Context, text string) error {
	const op = lserrors.Op("workflow.UpdateCommitMessage")

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return lserrors.E(op, lserrors.KindInvalid, ErrClosed)
	}
	w.message = text
	w.notifyLocked()
	w.mu.Unlock()

	if w.drafts == nil {
		return nil
	}
	if err := w.drafts.Save(ctx, w.repoID, text); err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}
	return nil
}
