package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LookupPath is used to find executables in PATH. It's exposed as a package variable
// so tests can mock it and avoid depending on system binaries being installed.
var LookupPath = exec.LookPath

func prepareAllowedCommand(ctx context.Context, gitPath string, args []string) (*exec.Cmd, error) {
	if base := filepath.Base(gitPath); base != "git" && base != "git.exe" {
		return nil, fmt.Errorf("unsupported command %q", gitPath)
	}
	resolved, err := LookupPath(gitPath)
	if err != nil {
		return nil, fmt.Errorf("git executable not found: %w", err)
	}
	// #nosec G204 -- arguments for git command come from internal logic and are not shell interpolated
	return exec.CommandContext(ctx, resolved, args...), nil
}

// runGit executes git in the worktree root. The editor is disabled so
// continue steps reuse the prepared message.
func (s *Service) runGit(ctx context.Context, args ...string) (string, error) {
	command := strings.Join(args, " ")
	if command == "" {
		command = "<empty>"
	}
	s.debugf("run: git %s (cwd=%s)", command, s.root)

	cmd, err := prepareAllowedCommand(ctx, s.gitPath, args)
	if err != nil {
		s.debugf("error: %v", err)
		return "", err
	}
	cmd.Dir = s.root
	cmd.Env = append(os.Environ(), "GIT_EDITOR=true", "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		s.debugf("error: git %s: %s", command, detail)
		return "", fmt.Errorf("git %s: %s", command, detail)
	}

	s.debugf("ok: git %s", command)
	return strings.TrimSpace(string(output)), nil
}
