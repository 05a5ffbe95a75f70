package bootstrap

import (
	"context"
	"io"

	"github.com/chmouel/lazystage/internal/buildinfo"
	"github.com/chmouel/lazystage/internal/credentials"
	urfavecli "github.com/urfave/cli/v3"
)

// app carries the process-wide dependencies shared by every command.
type app struct {
	credentials *credentials.Cache
	prompter    credentials.Prompter
}

// NewCommand builds the lazystage root command. cache is shared by every
// remote operation of the process; prompter may be nil to never prompt.
func NewCommand(cache *credentials.Cache, prompter credentials.Prompter) *urfavecli.Command {
	a := &app{credentials: cache, prompter: prompter}
	return &urfavecli.Command{
		Name:    "lazystage",
		Usage:   "Stage, commit and resolve merges and rebases in a git repository",
		Version: buildinfo.Current().String(),
		Flags:   globalFlags(),
		Commands: []*urfavecli.Command{
			a.statusCommand(),
			a.actionsCommand(),
			a.stageCommand(),
			a.unstageCommand(),
			a.stageAllCommand(),
			a.unstageAllCommand(),
			a.resetCommand(),
			a.deleteCommand(),
			a.commitCommand(),
			a.mergeCommand(),
			a.abortCommand(),
			a.continueCommand(),
			a.skipCommand(),
			a.messageCommand(),
			a.blameCommand(),
			a.historyCommand(),
			a.watchCommand(),
			a.fetchCommand(),
			a.pushCommand(),
		},
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return a.withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				return printStatus(out(cmd), s.wf.Snapshot())
			})
		},
	}
}

// Run executes the root command with args, os.Args style.
func Run(ctx context.Context, args []string, cache *credentials.Cache, prompter credentials.Prompter) error {
	return NewCommand(cache, prompter).Run(ctx, args)
}

// withSession opens a session for the duration of fn.
func (a *app) withSession(ctx context.Context, cmd *urfavecli.Command, fn func(context.Context, *session) error) error {
	s, err := a.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

func out(cmd *urfavecli.Command) io.Writer {
	return cmd.Root().Writer
}
