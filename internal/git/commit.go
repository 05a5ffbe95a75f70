package git

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrEmptyMessage is returned when committing without a message.
var ErrEmptyMessage = errors.New("empty commit message")

// Commit records the index as a new commit, or replaces HEAD when amend is
// set. While a merge is in progress the commit gets every MERGE_HEAD as an
// extra parent and, without a message, uses MERGE_MSG.
func (s *Service) Commit(ctx context.Context, message string, amend bool) (string, error) {
	const op = lserrors.Op("git.Commit")

	if err := ctx.Err(); err != nil {
		return "", engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return "", engineError(op, err)
	}
	opts := &git.CommitOptions{Amend: amend, Author: s.signature()}

	var mergeHeads []plumbing.Hash
	if !amend {
		if mergeHeads, err = s.mergeHeads(); err != nil {
			return "", engineError(op, err)
		}
	}
	if len(mergeHeads) > 0 {
		head, ok, err := s.headHash()
		if err != nil {
			return "", engineError(op, err)
		}
		if ok {
			opts.Parents = append(opts.Parents, head)
		}
		opts.Parents = append(opts.Parents, mergeHeads...)
		// a merge may legitimately keep our tree
		opts.AllowEmptyCommits = true
		if strings.TrimSpace(message) == "" {
			message = s.mergeMessage()
		}
	}

	if amend {
		// rewording alone leaves the tree untouched
		opts.AllowEmptyCommits = true
		if strings.TrimSpace(message) == "" {
			if message, err = s.headMessage(); err != nil {
				return "", engineError(op, err)
			}
		}
	}

	if strings.TrimSpace(message) == "" {
		return "", lserrors.E(op, lserrors.KindInvalid, ErrEmptyMessage)
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", engineError(op, err)
	}
	if len(mergeHeads) > 0 {
		s.clearMergeState()
	}
	s.debugf("commit %s (amend=%t, parents=%d)", hash, amend, len(opts.Parents))
	return hash.String(), nil
}

func (s *Service) mergeHeads() ([]plumbing.Hash, error) {
	dir := s.gitDir()
	if dir == nil {
		return nil, nil
	}
	data, err := util.ReadFile(dir, "MERGE_HEAD")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var heads []plumbing.Hash
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !plumbing.IsHash(line) {
			return nil, errors.New("malformed MERGE_HEAD")
		}
		heads = append(heads, plumbing.NewHash(line))
	}
	return heads, sc.Err()
}

// mergeMessage returns MERGE_MSG without git's comment lines.
func (s *Service) mergeMessage() string {
	dir := s.gitDir()
	if dir == nil {
		return ""
	}
	data, err := util.ReadFile(dir, "MERGE_MSG")
	if err != nil {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (s *Service) headMessage() (string, error) {
	head, ok, err := s.headHash()
	if err != nil || !ok {
		return "", err
	}
	c, err := s.repo.CommitObject(head)
	if err != nil {
		return "", err
	}
	return c.Message, nil
}

func (s *Service) clearMergeState() {
	dir := s.gitDir()
	if dir == nil {
		return
	}
	for _, name := range []string{"MERGE_HEAD", "MERGE_MSG", "MERGE_MODE", "AUTO_MERGE"} {
		if err := dir.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.debugf("cannot remove %s: %v", name, err)
		}
	}
}

// AbortMerge runs "git merge --abort".
func (s *Service) AbortMerge(ctx context.Context) error {
	return s.cliStep(ctx, lserrors.Op("git.AbortMerge"), "merge", "--abort")
}

// AbortRebase runs "git rebase --abort".
func (s *Service) AbortRebase(ctx context.Context) error {
	return s.cliStep(ctx, lserrors.Op("git.AbortRebase"), "rebase", "--abort")
}

// ContinueRebase runs "git rebase --continue" keeping the prepared message.
func (s *Service) ContinueRebase(ctx context.Context) error {
	return s.cliStep(ctx, lserrors.Op("git.ContinueRebase"), "rebase", "--continue")
}

// SkipRebase runs "git rebase --skip".
func (s *Service) SkipRebase(ctx context.Context) error {
	return s.cliStep(ctx, lserrors.Op("git.SkipRebase"), "rebase", "--skip")
}

func (s *Service) cliStep(ctx context.Context, op lserrors.Op, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.runGit(ctx, args...); err != nil {
		return engineError(op, err)
	}
	return nil
}
