// Package models defines the data objects shared across lazystage packages.
package models

import (
	"fmt"
	"time"
)

// RepositoryMode is the state of the repository as far as the commit
// workflow is concerned.
type RepositoryMode int

const (
	ModeNormal RepositoryMode = iota
	ModeMerging
	ModeRebasing
)

func (m RepositoryMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeMerging:
		return "merging"
	case ModeRebasing:
		return "rebasing"
	default:
		panic(fmt.Sprintf("models: unknown repository mode %d", int(m)))
	}
}

// CommitSummary is one commit in a file history.
type CommitSummary struct {
	Hash    string
	Author  string
	Email   string
	When    time.Time
	Message string
}

// Subject returns the first line of the commit message.
func (c CommitSummary) Subject() string {
	for i, r := range c.Message {
		if r == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// BlameLine attributes one line of a file to the commit that last touched it.
type BlameLine struct {
	LineNumber int // 1-based
	Author     string
	Email      string
	Hash       string
	Date       time.Time
	Text       string
}

const (
	// DraftsFilename stores commit message drafts for the file draft store.
	DraftsFilename = "drafts.json"
	// DraftsDatabaseFilename is the default SQLite draft database.
	DraftsDatabaseFilename = "drafts.db"
)
