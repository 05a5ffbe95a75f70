package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// Stage adds the working tree state of entry to the index. Resolving a
// conflict goes through the git CLI, which also drops the merge stages.
func (s *Service) Stage(ctx context.Context, entry models.StatusEntry) error {
	const op = lserrors.Op("git.Stage")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Kind == models.ChangeConflicting {
		if _, err := s.runGit(ctx, "add", "--", entry.Path); err != nil {
			return engineError(op, err)
		}
		return nil
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return engineError(op, err)
	}
	if _, err := wt.Add(entry.Path); err != nil {
		return engineError(op, err)
	}
	return nil
}

// StageAll stages every change, including untracked files and deletions.
func (s *Service) StageAll(ctx context.Context) error {
	const op = lserrors.Op("git.StageAll")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conflicts, err := s.conflictedPaths()
	if err != nil {
		return engineError(op, err)
	}
	if len(conflicts) > 0 {
		if _, err := s.runGit(ctx, "add", "--all"); err != nil {
			return engineError(op, err)
		}
		return nil
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return engineError(op, err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return engineError(op, err)
	}
	return nil
}

// Unstage puts the HEAD version of entry back into the index, or drops it
// from the index when there is no HEAD yet.
func (s *Service) Unstage(ctx context.Context, entry models.StatusEntry) error {
	const op = lserrors.Op("git.Unstage")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.unstagePath(entry.Path); err != nil {
		return engineError(op, err)
	}
	return nil
}

func (s *Service) unstagePath(p string) error {
	_, hasHead, err := s.headHash()
	if err != nil {
		return err
	}
	if !hasHead {
		idx, err := s.repo.Storer.Index()
		if err != nil {
			return err
		}
		if _, err := idx.Remove(p); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return err
		}
		return s.repo.Storer.SetIndex(idx)
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Restore(&git.RestoreOptions{Staged: true, Files: []string{p}})
}

// UnstageAll resets the index to HEAD, keeping the working tree.
func (s *Service) UnstageAll(ctx context.Context) error {
	const op = lserrors.Op("git.UnstageAll")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, hasHead, err := s.headHash()
	if err != nil {
		return engineError(op, err)
	}
	if !hasHead {
		idx, err := s.repo.Storer.Index()
		if err != nil {
			return engineError(op, err)
		}
		idx.Entries = nil
		if err := s.repo.Storer.SetIndex(idx); err != nil {
			return engineError(op, err)
		}
		return nil
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return engineError(op, err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.MixedReset}); err != nil {
		return engineError(op, err)
	}
	return nil
}

// ResetStaged discards the staged change of entry and restores the working
// tree copy from HEAD. A file new in the index stays behind as untracked.
func (s *Service) ResetStaged(ctx context.Context, entry models.StatusEntry) error {
	const op = lserrors.Op("git.ResetStaged")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.unstagePath(entry.Path); err != nil {
		return engineError(op, err)
	}
	if err := s.checkoutFromIndex(entry.Path); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
		return engineError(op, err)
	}
	return nil
}

// ResetUnstaged overwrites the working tree copy of entry with the index
// version.
func (s *Service) ResetUnstaged(ctx context.Context, entry models.StatusEntry) error {
	const op = lserrors.Op("git.ResetUnstaged")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkoutFromIndex(entry.Path); err != nil {
		if errors.Is(err, index.ErrEntryNotFound) {
			return lserrors.E(op, lserrors.KindNotFound, fmt.Sprintf("%s is not tracked", entry.Path), err)
		}
		return engineError(op, err)
	}
	return nil
}

// checkoutFromIndex writes the index blob of p into the working tree.
// go-git cannot restore the worktree alone, so the blob is copied by hand.
func (s *Service) checkoutFromIndex(p string) error {
	idx, err := s.repo.Storer.Index()
	if err != nil {
		return err
	}
	e, err := idx.Entry(p)
	if err != nil {
		return err
	}
	blob, err := s.repo.BlobObject(e.Hash)
	if err != nil {
		return err
	}
	mode, err := e.Mode.ToOSFileMode()
	if err != nil {
		return err
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return err
	}
	fs := wt.Filesystem
	if dir := path.Dir(p); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	r, err := blob.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := fs.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DeleteFile removes the working tree file of entry.
func (s *Service) DeleteFile(ctx context.Context, entry models.StatusEntry) error {
	const op = lserrors.Op("git.DeleteFile")

	if err := ctx.Err(); err != nil {
		return engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return engineError(op, err)
	}
	if err := wt.Filesystem.Remove(entry.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lserrors.E(op, lserrors.KindNotFound, entry.Path, err)
		}
		return engineError(op, err)
	}
	s.debugf("deleted %s", entry.Path)
	return nil
}
