package workflow

import (
	"context"
	"fmt"
	"slices"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
)

// EntryAction is a per-file action.
type EntryAction int

const (
	EntryStage EntryAction = iota
	EntryUnstage
	EntryResetStaged
	EntryResetUnstaged
	EntryDelete
	EntryBlame
	EntryHistory
)

func (a EntryAction) String() string {
	switch a {
	case EntryStage:
		return "stage"
	case EntryUnstage:
		return "unstage"
	case EntryResetStaged:
		return "reset-staged"
	case EntryResetUnstaged:
		return "reset-unstaged"
	case EntryDelete:
		return "delete"
	case EntryBlame:
		return "blame"
	case EntryHistory:
		return "history"
	default:
		panic(fmt.Sprintf("workflow: unknown entry action %d", int(a)))
	}
}

// EntryResult carries what read-only entry actions produce.
type EntryResult struct {
	Blame   []models.BlameLine
	History []models.CommitSummary
}

// AvailableEntryActions lists the actions offered for entry when it is
// listed in section.
func AvailableEntryActions(entry models.StatusEntry, section models.Section) []EntryAction {
	var actions []EntryAction
	switch section {
	case models.SectionUnstaged:
		actions = append(actions, EntryStage)
		if entry.Kind != models.ChangeUntracked {
			actions = append(actions, EntryResetUnstaged)
		}
		if entry.Kind != models.ChangeDeleted {
			actions = append(actions, EntryDelete)
		}
	case models.SectionStaged:
		actions = append(actions, EntryUnstage, EntryResetStaged)
	}

	switch entry.Kind {
	case models.ChangeAdded, models.ChangeUntracked:
		// no history yet
	case models.ChangeDeleted:
		actions = append(actions, EntryHistory)
	default:
		actions = append(actions, EntryBlame, EntryHistory)
	}
	return actions
}

// Dispatch validates action against the entry's section and kind, then
// runs it.
func (w *Workflow) Dispatch(ctx context.Context, action EntryAction, entry models.StatusEntry, section models.Section) (EntryResult, error) {
	const op = lserrors.Op("workflow.Dispatch")

	if !slices.Contains(AvailableEntryActions(entry, section), action) {
		return EntryResult{}, lserrors.E(op, lserrors.KindInvalid,
			fmt.Sprintf("%s is not available for %s %s entry %s", action, section, entry.Kind, entry.Path))
	}

	var err error
	switch action {
	case EntryStage:
		err = w.Stage(ctx, entry)
	case EntryUnstage:
		err = w.Unstage(ctx, entry)
	case EntryResetStaged:
		err = w.ResetStaged(ctx, entry)
	case EntryResetUnstaged:
		err = w.ResetUnstaged(ctx, entry)
	case EntryDelete:
		err = w.DeleteFile(ctx, entry)
	case EntryBlame:
		var lines []models.BlameLine
		lines, err = w.Blame(ctx, entry)
		return EntryResult{Blame: lines}, err
	case EntryHistory:
		var commits []models.CommitSummary
		commits, err = w.History(ctx, entry, DefaultHistoryLimit)
		return EntryResult{History: commits}, err
	}
	return EntryResult{}, err
}

// requireListed rejects entries missing from the last loaded status.
func (w *Workflow) requireListed(op lserrors.Op, entry models.StatusEntry, section models.Section) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return lserrors.E(op, lserrors.KindInvalid, ErrClosed)
	}
	if w.lastLoaded == nil {
		return lserrors.E(op, lserrors.KindInvalid, "status not loaded")
	}
	if _, ok := models.Contains(*w.lastLoaded, entry.Key(section)); !ok {
		return lserrors.E(op, lserrors.KindNotFound, fmt.Sprintf("%s is not %s", entry.Path, section))
	}
	return nil
}

func (w *Workflow) entryOp(ctx context.Context, op lserrors.Op, entry models.StatusEntry, section models.Section, call func(context.Context, models.StatusEntry) error) error {
	if err := w.requireListed(op, entry, section); err != nil {
		return err
	}
	return w.finish(ctx, op, call(ctx, entry))
}

// Stage adds an unstaged entry to the index.
func (w *Workflow) Stage(ctx context.Context, entry models.StatusEntry) error {
	return w.entryOp(ctx, lserrors.Op("workflow.Stage"), entry, models.SectionUnstaged, w.engine.Stage)
}

// Unstage moves a staged entry back to the working tree list.
func (w *Workflow) Unstage(ctx context.Context, entry models.StatusEntry) error {
	return w.entryOp(ctx, lserrors.Op("workflow.Unstage"), entry, models.SectionStaged, w.engine.Unstage)
}

// ResetStaged discards the staged change and the working tree copy.
func (w *Workflow) ResetStaged(ctx context.Context, entry models.StatusEntry) error {
	return w.entryOp(ctx, lserrors.Op("workflow.ResetStaged"), entry, models.SectionStaged, w.engine.ResetStaged)
}

// ResetUnstaged restores the working tree copy from the index.
func (w *Workflow) ResetUnstaged(ctx context.Context, entry models.StatusEntry) error {
	return w.entryOp(ctx, lserrors.Op("workflow.ResetUnstaged"), entry, models.SectionUnstaged, w.engine.ResetUnstaged)
}

// DeleteFile removes the working tree file. There is no undo.
func (w *Workflow) DeleteFile(ctx context.Context, entry models.StatusEntry) error {
	return w.entryOp(ctx, lserrors.Op("workflow.DeleteFile"), entry, models.SectionUnstaged, w.engine.DeleteFile)
}

// StageAll stages every unstaged entry.
func (w *Workflow) StageAll(ctx context.Context) error {
	const op = lserrors.Op("workflow.StageAll")

	if _, err := w.gate(op, func(s Snapshot) bool {
		_, unstaged := models.Lists(s.Status)
		return len(unstaged) > 0
	}, "nothing to stage"); err != nil {
		return err
	}
	return w.finish(ctx, op, w.engine.StageAll(ctx))
}

// UnstageAll unstages every staged entry.
func (w *Workflow) UnstageAll(ctx context.Context) error {
	const op = lserrors.Op("workflow.UnstageAll")

	if _, err := w.gate(op, func(s Snapshot) bool {
		staged, _ := models.Lists(s.Status)
		return len(staged) > 0
	}, "nothing to unstage"); err != nil {
		return err
	}
	return w.finish(ctx, op, w.engine.UnstageAll(ctx))
}

// Blame annotates the committed content of entry.
func (w *Workflow) Blame(ctx context.Context, entry models.StatusEntry) ([]models.BlameLine, error) {
	const op = lserrors.Op("workflow.Blame")

	switch entry.Kind {
	case models.ChangeAdded, models.ChangeUntracked, models.ChangeDeleted:
		return nil, lserrors.E(op, lserrors.KindInvalid, fmt.Sprintf("cannot blame %s file %s", entry.Kind, entry.Path))
	}
	lines, err := w.engine.Blame(ctx, entry.Path)
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindEngine, err)
	}
	return lines, nil
}

// History lists the commits touching entry, newest first.
func (w *Workflow) History(ctx context.Context, entry models.StatusEntry, limit int) ([]models.CommitSummary, error) {
	const op = lserrors.Op("workflow.History")

	switch entry.Kind {
	case models.ChangeAdded, models.ChangeUntracked:
		return nil, lserrors.E(op, lserrors.KindInvalid, fmt.Sprintf("%s has no history", entry.Path))
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	commits, err := w.engine.History(ctx, entry.Path, limit)
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindEngine, err)
	}
	return commits, nil
}
