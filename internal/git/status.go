package git

import (
	"context"
	"errors"
	"os"
	"sort"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/go-git/go-git/v5"
)

// Status splits the working tree changes into staged and unstaged entries,
// each sorted by path. Unmerged paths are reported once, as unstaged
// conflicting entries.
func (s *Service) Status(ctx context.Context) (staged, unstaged []models.StatusEntry, err error) {
	const op = lserrors.Op("git.Status")

	if err := ctx.Err(); err != nil {
		return nil, nil, lserrors.E(op, lserrors.KindStatus, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return nil, nil, lserrors.E(op, lserrors.KindStatus, err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, nil, lserrors.E(op, lserrors.KindStatus, err)
	}
	conflicts, err := s.conflictedPaths()
	if err != nil {
		return nil, nil, lserrors.E(op, lserrors.KindStatus, err)
	}

	staged = []models.StatusEntry{}
	unstaged = []models.StatusEntry{}
	for path, fs := range st {
		if conflicts[path] {
			continue
		}
		if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
			unstaged = append(unstaged, models.StatusEntry{Path: path, Kind: models.ChangeUntracked})
			continue
		}
		if kind, ok := stagingKind(fs.Staging); ok {
			staged = append(staged, models.StatusEntry{Path: path, Kind: kind})
		}
		if kind, ok := worktreeKind(fs.Worktree); ok {
			unstaged = append(unstaged, models.StatusEntry{Path: path, Kind: kind})
		}
	}
	for path := range conflicts {
		unstaged = append(unstaged, models.StatusEntry{Path: path, Kind: models.ChangeConflicting})
	}

	sortEntries(staged)
	sortEntries(unstaged)
	return staged, unstaged, nil
}

func stagingKind(code git.StatusCode) (models.ChangeKind, bool) {
	switch code {
	case git.Added:
		return models.ChangeAdded, true
	case git.Modified:
		return models.ChangeModified, true
	case git.Deleted:
		return models.ChangeDeleted, true
	case git.Renamed:
		return models.ChangeRenamed, true
	case git.Copied:
		return models.ChangeCopied, true
	case git.UpdatedButUnmerged:
		return models.ChangeConflicting, true
	default:
		return 0, false
	}
}

func worktreeKind(code git.StatusCode) (models.ChangeKind, bool) {
	switch code {
	case git.Modified:
		return models.ChangeModified, true
	case git.Deleted:
		return models.ChangeDeleted, true
	case git.UpdatedButUnmerged:
		return models.ChangeConflicting, true
	default:
		return 0, false
	}
}

func sortEntries(entries []models.StatusEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

// conflictedPaths lists index entries holding a merge stage.
func (s *Service) conflictedPaths() (map[string]bool, error) {
	idx, err := s.repo.Storer.Index()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, e := range idx.Entries {
		// merged entries decode as stage 0
		if e.Stage > 0 {
			out[e.Name] = true
		}
	}
	return out, nil
}

// RepositoryMode derives the mode from the markers git leaves in .git.
func (s *Service) RepositoryMode(ctx context.Context) (models.RepositoryMode, error) {
	const op = lserrors.Op("git.RepositoryMode")

	if err := ctx.Err(); err != nil {
		return models.ModeNormal, lserrors.E(op, lserrors.KindStatus, err)
	}
	dir := s.gitDir()
	if dir == nil {
		return models.ModeNormal, nil
	}

	exists := func(name string) (bool, error) {
		_, err := dir.Stat(name)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	for _, marker := range []string{"rebase-merge", "rebase-apply"} {
		ok, err := exists(marker)
		if err != nil {
			return models.ModeNormal, lserrors.E(op, lserrors.KindStatus, err)
		}
		if ok {
			return models.ModeRebasing, nil
		}
	}
	ok, err := exists("MERGE_HEAD")
	if err != nil {
		return models.ModeNormal, lserrors.E(op, lserrors.KindStatus, err)
	}
	if ok {
		return models.ModeMerging, nil
	}
	return models.ModeNormal, nil
}

// HasPreviousCommits reports whether HEAD points to a commit.
func (s *Service) HasPreviousCommits(ctx context.Context) (bool, error) {
	const op = lserrors.Op("git.HasPreviousCommits")

	if err := ctx.Err(); err != nil {
		return false, lserrors.E(op, lserrors.KindStatus, err)
	}
	_, ok, err := s.headHash()
	if err != nil {
		return false, lserrors.E(op, lserrors.KindStatus, err)
	}
	return ok, nil
}
