package workflow

import (
	"fmt"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
)

// Select marks entry in section as the selected diff. The entry must be
// listed in the current status.
func (w *Workflow) Select(entry models.StatusEntry, section models.Section) error {
	const op = lserrors.Op("workflow.Select")

	w.mu.Lock()
	defer w.mu.Unlock()

	key := entry.Key(section)
	if _, ok := models.Contains(w.status, key); !ok {
		return lserrors.E(op, lserrors.KindNotFound, fmt.Sprintf("%s is not %s", entry.Path, section))
	}
	w.selection = &key
	w.notifyLocked()
	return nil
}

// ClearSelection drops the selection.
func (w *Workflow) ClearSelection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selection != nil {
		w.selection = nil
		w.notifyLocked()
	}
}

// Selected resolves the selection against the current status. A selection
// whose entry is no longer listed in its section reads as nothing selected.
func (w *Workflow) Selected() (models.StatusEntry, models.Section, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.selection == nil {
		return models.StatusEntry{}, 0, false
	}
	entry, ok := models.Contains(w.status, *w.selection)
	if !ok {
		return models.StatusEntry{}, 0, false
	}
	return entry, w.selection.Section, true
}
