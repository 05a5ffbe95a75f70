package git

import (
	"context"
	"errors"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Blame annotates every line of path as committed in HEAD.
func (s *Service) Blame(ctx context.Context, path string) ([]models.BlameLine, error) {
	const op = lserrors.Op("git.Blame")

	if err := ctx.Err(); err != nil {
		return nil, engineError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok, err := s.headHash()
	if err != nil {
		return nil, engineError(op, err)
	}
	if !ok {
		return nil, lserrors.E(op, lserrors.KindNotFound, "no commits yet")
	}
	commit, err := s.repo.CommitObject(head)
	if err != nil {
		return nil, engineError(op, err)
	}
	result, err := git.Blame(commit, path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, lserrors.E(op, lserrors.KindNotFound, path, err)
	}
	if err != nil {
		return nil, engineError(op, err)
	}

	lines := make([]models.BlameLine, 0, len(result.Lines))
	for i, l := range result.Lines {
		lines = append(lines, models.BlameLine{
			LineNumber: i + 1,
			Author:     l.AuthorName,
			Email:      l.Author,
			Hash:       l.Hash.String(),
			Date:       l.Date,
			Text:       l.Text,
		})
	}
	return lines, nil
}

// History lists up to limit commits touching path, newest first.
func (s *Service) History(ctx context.Context, path string, limit int) ([]models.CommitSummary, error) {
	const op = lserrors.Op("git.History")

	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok, err := s.headHash()
	if err != nil {
		return nil, engineError(op, err)
	}
	if !ok {
		return []models.CommitSummary{}, nil
	}

	iter, err := s.repo.Log(&git.LogOptions{From: head, FileName: &path})
	if err != nil {
		return nil, engineError(op, err)
	}
	defer iter.Close()

	commits := []models.CommitSummary{}
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, models.CommitSummary{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
			Message: c.Message,
		})
		if limit > 0 && len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, engineError(op, err)
	}
	return commits, nil
}
