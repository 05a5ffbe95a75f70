package workflow

import (
	"fmt"

	"github.com/chmouel/lazystage/internal/models"
)

// Action is a repository-level action offered next to the commit message.
type Action int

const (
	ActionCommit Action = iota
	ActionAmend
	ActionMerge
	ActionAbort
	ActionContinue
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionCommit:
		return "commit"
	case ActionAmend:
		return "amend"
	case ActionMerge:
		return "merge"
	case ActionAbort:
		return "abort"
	case ActionContinue:
		return "continue"
	case ActionSkip:
		return "skip"
	default:
		panic(fmt.Sprintf("workflow: unknown action %d", int(a)))
	}
}

// Button is one visible action and whether it can be triggered.
type Button struct {
	Action  Action
	Enabled bool
}

// ActionSet is everything the commit area offers for one state.
type ActionSet struct {
	Mode      models.RepositoryMode
	CanCommit bool
	CanAmend  bool
	Buttons   []Button
	// ShowMessageEditor is false while rebasing; the rebase drives messages.
	ShowMessageEditor bool
}

// Visible reports whether a is offered at all.
func (s ActionSet) Visible(a Action) bool {
	for _, b := range s.Buttons {
		if b.Action == a {
			return true
		}
	}
	return false
}

// Enabled reports whether a is offered and can be triggered.
func (s ActionSet) Enabled(a Action) bool {
	for _, b := range s.Buttons {
		if b.Action == a {
			return b.Enabled
		}
	}
	return false
}

// CanCommit is true when there is a message and something staged.
func CanCommit(message string, staged []models.StatusEntry) bool {
	return message != "" && len(staged) > 0
}

// CanAmend is true when there is a message or something staged, and a
// commit to amend.
func CanAmend(message string, staged []models.StatusEntry, hasPreviousCommits bool) bool {
	return (message != "" || len(staged) > 0) && hasPreviousCommits
}

// ComputeActions derives the action set from the current state. A Loading
// status counts as two empty lists.
func ComputeActions(status models.StageStatus, mode models.RepositoryMode, message string, hasPreviousCommits bool) ActionSet {
	staged, unstaged := models.Lists(status)

	set := ActionSet{
		Mode:              mode,
		CanCommit:         CanCommit(message, staged),
		CanAmend:          CanAmend(message, staged, hasPreviousCommits),
		ShowMessageEditor: true,
	}

	switch mode {
	case models.ModeMerging:
		set.Buttons = []Button{
			{Action: ActionAbort, Enabled: true},
			{Action: ActionMerge, Enabled: len(unstaged) == 0},
		}
	case models.ModeRebasing:
		set.ShowMessageEditor = false
		set.Buttons = []Button{{Action: ActionAbort, Enabled: true}}
		if len(staged) > 0 || len(unstaged) > 0 {
			set.Buttons = append(set.Buttons, Button{Action: ActionContinue, Enabled: len(unstaged) == 0})
		} else {
			set.Buttons = append(set.Buttons, Button{Action: ActionSkip, Enabled: true})
		}
	case models.ModeNormal:
		set.Buttons = []Button{
			{Action: ActionCommit, Enabled: set.CanCommit},
			{Action: ActionAmend, Enabled: set.CanAmend},
		}
	default:
		panic(fmt.Sprintf("workflow: unknown repository mode %d", int(mode)))
	}
	return set
}
