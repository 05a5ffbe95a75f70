package models

import (
	"fmt"
	"path"
)

// ChangeKind is the kind of change recorded for a file.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota
	ChangeAdded
	ChangeDeleted
	ChangeRenamed
	ChangeCopied
	ChangeUntracked
	ChangeConflicting
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeAdded:
		return "added"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	case ChangeCopied:
		return "copied"
	case ChangeUntracked:
		return "untracked"
	case ChangeConflicting:
		return "conflicting"
	default:
		panic(fmt.Sprintf("models: unknown change kind %d", int(k)))
	}
}

// Short returns the one-letter porcelain code for the kind.
func (k ChangeKind) Short() string {
	switch k {
	case ChangeModified:
		return "M"
	case ChangeAdded:
		return "A"
	case ChangeDeleted:
		return "D"
	case ChangeRenamed:
		return "R"
	case ChangeCopied:
		return "C"
	case ChangeUntracked:
		return "?"
	case ChangeConflicting:
		return "U"
	default:
		panic(fmt.Sprintf("models: unknown change kind %d", int(k)))
	}
}

// Section tells which list of the stage status an entry belongs to.
type Section int

const (
	SectionUnstaged Section = iota
	SectionStaged
)

func (s Section) String() string {
	if s == SectionStaged {
		return "staged"
	}
	return "unstaged"
}

// StatusEntry is one changed file. Entries are immutable snapshots; a status
// refresh replaces them wholesale.
type StatusEntry struct {
	Path string // Slash separated, relative to the worktree root
	Kind ChangeKind
}

// ParentDirectoryPath returns the directory part of Path with a trailing
// slash, or "" for files at the root.
func (e StatusEntry) ParentDirectoryPath() string {
	dir := path.Dir(e.Path)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}

// FileName returns the last element of Path.
func (e StatusEntry) FileName() string {
	return path.Base(e.Path)
}

// EntryKey identifies an entry inside a stage status.
type EntryKey struct {
	Path    string
	Section Section
}

// Key returns the identity of the entry when listed in section.
func (e StatusEntry) Key(section Section) EntryKey {
	return EntryKey{Path: e.Path, Section: section}
}

// StageStatus is either StageStatusLoading or StageStatusLoaded.
type StageStatus interface {
	isStageStatus()
}

// StageStatusLoading means a status computation is in flight and no data is
// available yet.
type StageStatusLoading struct{}

// StageStatusLoaded carries the staged and unstaged entries of one status
// computation.
type StageStatusLoaded struct {
	Staged   []StatusEntry
	Unstaged []StatusEntry
}

func (StageStatusLoading) isStageStatus() {}
func (StageStatusLoaded) isStageStatus()  {}

// Lists returns the staged and unstaged entries of status. Loading (and nil)
// yields two empty lists rather than "unknown".
func Lists(status StageStatus) (staged, unstaged []StatusEntry) {
	switch s := status.(type) {
	case StageStatusLoaded:
		return s.Staged, s.Unstaged
	case *StageStatusLoaded:
		if s == nil {
			return []StatusEntry{}, []StatusEntry{}
		}
		return s.Staged, s.Unstaged
	case StageStatusLoading, *StageStatusLoading, nil:
		return []StatusEntry{}, []StatusEntry{}
	default:
		panic(fmt.Sprintf("models: unknown stage status %T", status))
	}
}

// IsLoading reports whether status carries no data yet.
func IsLoading(status StageStatus) bool {
	switch status.(type) {
	case StageStatusLoaded, *StageStatusLoaded:
		return false
	default:
		return true
	}
}

// Contains reports whether the loaded status lists the given entry key.
func Contains(status StageStatus, key EntryKey) (StatusEntry, bool) {
	staged, unstaged := Lists(status)
	list := unstaged
	if key.Section == SectionStaged {
		list = staged
	}
	for _, e := range list {
		if e.Path == key.Path {
			return e, true
		}
	}
	return StatusEntry{}, false
}
