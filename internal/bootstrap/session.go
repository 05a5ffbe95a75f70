package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/chmouel/lazystage/internal/config"
	"github.com/chmouel/lazystage/internal/credentials"
	"github.com/chmouel/lazystage/internal/drafts"
	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/git"
	"github.com/chmouel/lazystage/internal/log"
	"github.com/chmouel/lazystage/internal/utils"
	"github.com/chmouel/lazystage/internal/workflow"
	urfavecli "github.com/urfave/cli/v3"
)

// session is everything one command invocation needs.
type session struct {
	cfg   *config.AppConfig
	svc   *git.Service
	store drafts.Store
	wf    *workflow.Workflow
}

// openSession loads configuration for the repository named by --repo, opens
// the draft store and the engine, and performs the first refresh.
func (a *app) openSession(ctx context.Context, cmd *urfavecli.Command) (*session, error) {
	repoPath, err := utils.ExpandPath(cmd.String("repo"))
	if err != nil {
		return nil, lserrors.E(lserrors.KindInvalid, err)
	}

	cfg, err := config.Load(cmd.String("config-file"), repoPath, cmd.StringSlice("config"))
	if err != nil {
		return nil, err
	}
	setupDebugLog(cmd.String("debug-log"), cfg)

	var provider *credentials.Provider
	if a.credentials != nil {
		sshKey := cfg.SSHKey
		if expanded, err := utils.ExpandPath(sshKey); err == nil {
			sshKey = expanded
		}
		provider = credentials.NewProvider(a.credentials, a.prompter, sshKey)
	}

	svc, err := git.Open(repoPath, git.Options{
		GitPath:     cfg.GitPath,
		AuthorName:  cfg.AuthorName,
		AuthorEmail: cfg.AuthorEmail,
		Credentials: provider,
	})
	if err != nil {
		return nil, err
	}

	store, err := drafts.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	wf := workflow.New(svc, store, svc.RepoID())
	if err := wf.Open(ctx); err != nil {
		wf.Close()
		_ = store.Close()
		return nil, err
	}
	return &session{cfg: cfg, svc: svc, store: store, wf: wf}, nil
}

func (s *session) close() {
	s.wf.Close()
	if err := s.store.Close(); err != nil {
		log.Printf("closing draft store: %v", err)
	}
	if err := log.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing debug log: %v\n", err)
	}
}

// setupDebugLog sends the debug log to the --debug-log flag, or else to the
// configured debug_log, or discards it.
func setupDebugLog(flagPath string, cfg *config.AppConfig) {
	path := flagPath
	if path == "" {
		path = cfg.DebugLog
	}
	if path == "" {
		_ = log.SetFile("")
		return
	}
	if expanded, err := utils.ExpandPath(path); err == nil {
		path = expanded
	}
	if err := log.SetFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening debug log file %q: %v\n", path, err)
	}
	cfg.DebugLog = path
}
