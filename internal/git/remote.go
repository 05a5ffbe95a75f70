package git

import (
	"context"
	"errors"
	"fmt"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// DefaultRemote is used when no remote name is given.
const DefaultRemote = "origin"

// Fetch updates the remote-tracking refs of remoteName.
func (s *Service) Fetch(ctx context.Context, remoteName string) error {
	const op = lserrors.Op("git.Fetch")

	if remoteName == "" {
		remoteName = DefaultRemote
	}
	return s.withRemoteAuth(ctx, op, remoteName, func(auth transport.AuthMethod) error {
		err := s.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: remoteName, Auth: auth})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return err
	})
}

// Push sends the configured refspecs of remoteName.
func (s *Service) Push(ctx context.Context, remoteName string) error {
	const op = lserrors.Op("git.Push")

	if remoteName == "" {
		remoteName = DefaultRemote
	}
	return s.withRemoteAuth(ctx, op, remoteName, func(auth transport.AuthMethod) error {
		err := s.repo.PushContext(ctx, &git.PushOptions{RemoteName: remoteName, Auth: auth})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return err
	})
}

// withRemoteAuth runs call without holding the repository lock, since
// credential prompts can block for a long time.
func (s *Service) withRemoteAuth(ctx context.Context, op lserrors.Op, remoteName string, call func(transport.AuthMethod) error) error {
	remote, err := s.repo.Remote(remoteName)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return lserrors.E(op, lserrors.KindNotFound, fmt.Sprintf("remote %q", remoteName), err)
	}
	if err != nil {
		return engineError(op, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return lserrors.E(op, lserrors.KindConfig, fmt.Sprintf("remote %q has no url", remoteName))
	}

	if s.credentials == nil {
		err = call(nil)
	} else {
		err = s.credentials.Run(ctx, urls[0], call)
	}
	if err != nil {
		if lserrors.Is(err, lserrors.KindAuth) {
			return lserrors.E(op, err)
		}
		return engineError(op, err)
	}
	s.debugf("%s %s done", op, remoteName)
	return nil
}
