package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when a prompt is needed but stdin is not a TTY.
var ErrNoTerminal = errors.New("cannot prompt for credentials: stdin is not a terminal")

// TerminalPrompter asks for credentials on the controlling terminal.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewTerminalPrompter prompts on stdin and writes questions to stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		In:           os.Stdin,
		Out:          os.Stderr,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

// UserPassword asks for the user name and password of url.
func (p *TerminalPrompter) UserPassword(ctx context.Context, url string) (string, string, error) {
	fd, err := p.terminalFd(ctx)
	if err != nil {
		return "", "", err
	}

	fmt.Fprintf(p.Out, "Introduce your remote server credentials for %s\n", url)
	fmt.Fprint(p.Out, "User: ")
	user, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", err
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return "", "", ErrPromptRejected
	}

	fmt.Fprint(p.Out, "Password: ")
	password, err := p.readPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", "", err
	}
	return user, string(password), nil
}

// SSHPassphrase asks for the passphrase protecting keyPath.
func (p *TerminalPrompter) SSHPassphrase(ctx context.Context, keyPath string) (string, error) {
	fd, err := p.terminalFd(ctx)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(p.Out, "Passphrase for %s: ", keyPath)
	passphrase, err := p.readPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	if len(passphrase) == 0 {
		return "", ErrPromptRejected
	}
	return string(passphrase), nil
}

func (p *TerminalPrompter) terminalFd(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fd := int(p.In.Fd()) //nolint:gosec
	if !p.isTerminal(fd) {
		return 0, ErrNoTerminal
	}
	return fd, nil
}
