package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/git"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/chmouel/lazystage/internal/watcher"
	"github.com/chmouel/lazystage/internal/workflow"
	urfavecli "github.com/urfave/cli/v3"
)

// findEntry resolves a repository-relative path in one section of the
// current status.
func findEntry(snap workflow.Snapshot, path string, section models.Section) (models.StatusEntry, error) {
	key := models.EntryKey{Path: filepath.ToSlash(filepath.Clean(path)), Section: section}
	entry, ok := models.Contains(snap.Status, key)
	if !ok {
		return models.StatusEntry{}, lserrors.E(lserrors.KindNotFound, fmt.Sprintf("%s is not %s", key.Path, section))
	}
	return entry, nil
}

// findAnyEntry prefers the unstaged copy of path, then the staged one. A
// path with no change is a tracked, unmodified file.
func findAnyEntry(snap workflow.Snapshot, path string) models.StatusEntry {
	for _, section := range []models.Section{models.SectionUnstaged, models.SectionStaged} {
		if entry, err := findEntry(snap, path, section); err == nil {
			return entry
		}
	}
	return models.StatusEntry{Path: filepath.ToSlash(filepath.Clean(path)), Kind: models.ChangeModified}
}

func requireArgs(cmd *urfavecli.Command, usage string) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return nil, lserrors.E(lserrors.KindInvalid, fmt.Sprintf("usage: lazystage %s %s", cmd.Name, usage))
	}
	return args, nil
}

// entryCommand applies fn to each path argument found in section.
func (a *app) entryCommand(name, usage string, section models.Section, fn func(*workflow.Workflow) func(context.Context, models.StatusEntry) error) *urfavecli.Command {
	return &urfavecli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<path>...",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			paths, err := requireArgs(cmd, "<path>...")
			if err != nil {
				return err
			}
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				op := fn(s.wf)
				for _, path := range paths {
					entry, err := findEntry(s.wf.Snapshot(), path, section)
					if err != nil {
						return err
					}
					if err := op(ctx, entry); err != nil {
						return err
					}
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) statusCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "status",
		Usage: "Show staged and unstaged changes",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(_ context.Context, s *session) error {
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) actionsCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "actions",
		Usage: "Show the commit actions available in the current state",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(_ context.Context, s *session) error {
				return printActions(out(cmd), s.wf.Snapshot().Actions)
			})
		},
	}
}

func (a *app) stageCommand() *urfavecli.Command {
	return a.entryCommand("stage", "Stage unstaged files", models.SectionUnstaged,
		func(wf *workflow.Workflow) func(context.Context, models.StatusEntry) error { return wf.Stage })
}

func (a *app) unstageCommand() *urfavecli.Command {
	return a.entryCommand("unstage", "Unstage staged files", models.SectionStaged,
		func(wf *workflow.Workflow) func(context.Context, models.StatusEntry) error { return wf.Unstage })
}

func (a *app) deleteCommand() *urfavecli.Command {
	return a.entryCommand("delete", "Delete files from the working tree", models.SectionUnstaged,
		func(wf *workflow.Workflow) func(context.Context, models.StatusEntry) error { return wf.DeleteFile })
}

func (a *app) stageAllCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "stage-all",
		Usage: "Stage every unstaged change",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				if err := s.wf.StageAll(ctx); err != nil {
					return err
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) unstageAllCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "unstage-all",
		Usage: "Unstage every staged change",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				if err := s.wf.UnstageAll(ctx); err != nil {
					return err
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) resetCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "reset",
		Usage:     "Discard changes to files",
		ArgsUsage: "<path>...",
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:  "staged",
				Usage: "Discard the staged change and the working tree copy",
			},
		},
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			paths, err := requireArgs(cmd, "[--staged] <path>...")
			if err != nil {
				return err
			}
			staged := cmd.Bool("staged")
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				section, reset := models.SectionUnstaged, s.wf.ResetUnstaged
				if staged {
					section, reset = models.SectionStaged, s.wf.ResetStaged
				}
				for _, path := range paths {
					entry, err := findEntry(s.wf.Snapshot(), path, section)
					if err != nil {
						return err
					}
					if err := reset(ctx, entry); err != nil {
						return err
					}
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) commitCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "commit",
		Usage: "Commit the staged changes",
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "Commit message (defaults to the saved draft)",
			},
			&urfavecli.BoolFlag{
				Name:  "amend",
				Usage: "Replace the last commit",
			},
		},
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				message := cmd.String("message")
				if message == "" {
					message = s.wf.Snapshot().Message
				}
				hash, err := s.wf.Commit(ctx, message, cmd.Bool("amend"))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out(cmd), "Committed %s\n", shortHash(hash))
				return err
			})
		},
	}
}

func (a *app) mergeCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "merge",
		Usage: "Conclude the merge in progress with the saved draft",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				hash, err := s.wf.Merge(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out(cmd), "Merged %s\n", shortHash(hash))
				return err
			})
		},
	}
}

func (a *app) abortCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "abort",
		Usage: "Abort the merge or rebase in progress",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				var err error
				switch s.wf.Snapshot().Mode {
				case models.ModeRebasing:
					err = s.wf.AbortRebase(ctx)
				default:
					// AbortMerge rejects the call outside a merge
					err = s.wf.AbortMerge(ctx)
				}
				if err != nil {
					return err
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) continueCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "continue",
		Usage: "Continue the rebase in progress",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				if err := s.wf.ContinueRebase(ctx); err != nil {
					return err
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) skipCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "skip",
		Usage: "Skip the current commit of the rebase in progress",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				if err := s.wf.SkipRebase(ctx); err != nil {
					return err
				}
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

func (a *app) messageCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "message",
		Usage:     "Show or replace the saved commit message draft",
		ArgsUsage: "[text...]",
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:  "clear",
				Usage: "Discard the draft",
			},
		},
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				args := cmd.Args().Slice()
				switch {
				case cmd.Bool("clear"):
					return s.wf.UpdateCommitMessage(ctx, "")
				case len(args) > 0:
					return s.wf.UpdateCommitMessage(ctx, strings.Join(args, " "))
				}
				if msg := s.wf.Snapshot().Message; msg != "" {
					_, err := fmt.Fprintln(out(cmd), msg)
					return err
				}
				return nil
			})
		},
	}
}

func (a *app) blameCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "blame",
		Usage:     "Show who last changed each line of a file",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			args, err := requireArgs(cmd, "<path>")
			if err != nil {
				return err
			}
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				lines, err := s.wf.Blame(ctx, findAnyEntry(s.wf.Snapshot(), args[0]))
				if err != nil {
					return err
				}
				return printBlame(out(cmd), lines)
			})
		},
	}
}

func (a *app) historyCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "history",
		Usage:     "List the commits that touched a file",
		ArgsUsage: "<path>",
		Flags: []urfavecli.Flag{
			&urfavecli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of commits",
				Value:   workflow.DefaultHistoryLimit,
			},
		},
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			args, err := requireArgs(cmd, "[--limit N] <path>")
			if err != nil {
				return err
			}
			limit := int(cmd.Int("limit"))
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				commits, err := s.wf.History(ctx, findAnyEntry(s.wf.Snapshot(), args[0]), limit)
				if err != nil {
					return err
				}
				return printHistory(out(cmd), commits)
			})
		},
	}
}

func (a *app) watchCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "watch",
		Usage: "Print the status again whenever the working tree changes",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				if !s.cfg.AutoRefresh {
					return lserrors.E(lserrors.KindConfig, "auto_refresh is disabled")
				}
				return watchStatus(ctx, cmd, s)
			})
		},
	}
}

// watchStatus prints every loaded status published by the workflow while the
// watcher refreshes it, until ctx is done.
func watchStatus(ctx context.Context, cmd *urfavecli.Command, s *session) error {
	changes, cancel := s.wf.Subscribe()
	defer cancel()

	w := watcher.New(s.svc.Root(), s.wf, watcher.Options{
		Debounce: time.Duration(s.cfg.RefreshDebounceMS) * time.Millisecond,
		OnRefresh: func(err error) {
			if err != nil {
				fmt.Fprintf(cmd.Root().ErrWriter, "Error: %v\n", err)
			}
		},
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if err := printStatus(out(cmd), s.wf.Snapshot()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			snap := s.wf.Snapshot()
			if models.IsLoading(snap.Status) {
				continue
			}
			fmt.Fprintln(out(cmd))
			if err := printStatus(out(cmd), snap); err != nil {
				return err
			}
		}
	}
}

func (a *app) remoteCommand(name, usage string, run func(*git.Service, context.Context, string) error) *urfavecli.Command {
	return &urfavecli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[remote]",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				remote := cmd.Args().First()
				if remote == "" {
					remote = git.DefaultRemote
				}
				if err := run(s.svc, ctx, remote); err != nil {
					return err
				}
				if err := s.wf.Refresh(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintf(out(cmd), "%s %s: done\n", name, remote)
				return err
			})
		},
	}
}

func (a *app) fetchCommand() *urfavecli.Command {
	return a.remoteCommand("fetch", "Fetch from a remote", (*git.Service).Fetch)
}

func (a *app) pushCommand() *urfavecli.Command {
	return a.remoteCommand("push", "Push the current branch to a remote", (*git.Service).Push)
}
