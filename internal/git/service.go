// Package git implements the lazystage engine on top of go-git, falling back
// to the git CLI for the merge and rebase steps go-git cannot perform.
package git

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/chmouel/lazystage/internal/credentials"
	lserrors "github.com/chmouel/lazystage/internal/errors"
	log "github.com/chmouel/lazystage/internal/log"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

var logger = log.Named("git")

// Options configures a Service.
type Options struct {
	// GitPath is the git executable used for merge and rebase steps.
	GitPath     string
	AuthorName  string
	AuthorEmail string
	// Credentials resolves auth for Fetch and Push. Nil means anonymous.
	Credentials *credentials.Provider
}

// Service runs repository operations for one worktree.
type Service struct {
	repo        *git.Repository
	root        string
	gitPath     string
	authorName  string
	authorEmail string
	credentials *credentials.Provider

	// go-git rewrites the whole index on every change
	mu sync.Mutex
}

// Open opens the repository containing path.
func Open(path string, opts Options) (*Service, error) {
	const op = lserrors.Op("git.Open")

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindInvalid, err)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, lserrors.E(op, lserrors.KindNotFound, abs, err)
	}
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindEngine, abs, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		// bare repositories have no staging area
		return nil, lserrors.E(op, lserrors.KindInvalid, abs, err)
	}

	gitPath := opts.GitPath
	if gitPath == "" {
		gitPath = "git"
	}
	return &Service{
		repo:        repo,
		root:        wt.Filesystem.Root(),
		gitPath:     gitPath,
		authorName:  opts.AuthorName,
		authorEmail: opts.AuthorEmail,
		credentials: opts.Credentials,
	}, nil
}

// Root returns the worktree root.
func (s *Service) Root() string {
	return s.root
}

// RepoID identifies the repository for draft storage.
func (s *Service) RepoID() string {
	return s.root
}

func (s *Service) debugf(format string, args ...any) {
	logger.Printf(format, args...)
}

// signature returns nil when no author is configured so go-git falls back
// to user.name and user.email from git config.
func (s *Service) signature() *object.Signature {
	if s.authorName == "" || s.authorEmail == "" {
		return nil
	}
	return &object.Signature{Name: s.authorName, Email: s.authorEmail, When: time.Now()}
}

// gitDir returns the filesystem of the .git directory, or nil for storages
// not backed by a filesystem.
func (s *Service) gitDir() billy.Filesystem {
	if st, ok := s.repo.Storer.(*filesystem.Storage); ok {
		return st.Filesystem()
	}
	return nil
}

func (s *Service) headHash() (plumbing.Hash, bool, error) {
	head, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return head.Hash(), true, nil
}

func engineError(op lserrors.Op, err error) error {
	return lserrors.E(op, lserrors.KindEngine, err)
}
