package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// ErrPromptRejected is returned by a Prompter when the user dismisses it.
var ErrPromptRejected = errors.New("credentials prompt rejected")

// Prompter asks the user for secrets.
type Prompter interface {
	UserPassword(ctx context.Context, url string) (userName, password string, err error)
	SSHPassphrase(ctx context.Context, keyPath string) (string, error)
}

// Provider resolves go-git auth for a remote, preferring cached credentials
// and falling back to the Prompter. Prompted secrets are cached only after
// the remote operation using them succeeded.
type Provider struct {
	cache      *Cache
	prompter   Prompter
	sshKeyPath string
	readFile   func(string) ([]byte, error)
}

// NewProvider builds a Provider. prompter may be nil, in which case any
// operation needing fresh credentials fails with KindAuth.
func NewProvider(cache *Cache, prompter Prompter, sshKeyPath string) *Provider {
	return &Provider{
		cache:      cache,
		prompter:   prompter,
		sshKeyPath: sshKeyPath,
		readFile:   os.ReadFile,
	}
}

// attempt is one resolved auth method. remember caches the secrets behind it.
type attempt struct {
	auth     transport.AuthMethod
	remember func() error
}

// Run calls op with resolved auth. When op fails with an authentication
// error the user is prompted once and op is retried.
func (p *Provider) Run(ctx context.Context, remoteURL string, op func(transport.AuthMethod) error) error {
	const opName = lserrors.Op("credentials.Run")

	a, err := p.resolve(ctx, remoteURL, false)
	if err != nil {
		return err
	}
	err = op(a.auth)
	if err != nil && IsAuthError(err) {
		logger.Printf("authentication failed for %s, prompting", remoteURL)
		a, err = p.resolve(ctx, remoteURL, true)
		if err != nil {
			return err
		}
		err = op(a.auth)
	}
	if err != nil {
		if IsAuthError(err) {
			return lserrors.E(opName, lserrors.KindAuth, remoteURL, err)
		}
		return err
	}
	if a.remember != nil {
		return a.remember()
	}
	return nil
}

// IsAuthError reports whether err means the remote rejected the credentials.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	return strings.Contains(err.Error(), "unable to authenticate")
}

func (p *Provider) resolve(ctx context.Context, remoteURL string, fresh bool) (*attempt, error) {
	ep, err := transport.NewEndpoint(remoteURL)
	if err != nil {
		return nil, lserrors.E(lserrors.Op("credentials.resolve"), lserrors.KindInvalid, remoteURL, err)
	}
	switch ep.Protocol {
	case "http", "https":
		return p.resolveHTTP(ctx, remoteURL, fresh)
	case "ssh":
		user := ep.User
		if user == "" {
			user = gitssh.DefaultUsername
		}
		return p.resolveSSH(ctx, user, fresh)
	default:
		return &attempt{}, nil
	}
}

func (p *Provider) resolveHTTP(ctx context.Context, remoteURL string, fresh bool) (*attempt, error) {
	if !fresh {
		if cred, ok := p.cache.GetHTTPCredentials(remoteURL, false); ok {
			return &attempt{auth: &githttp.BasicAuth{Username: cred.UserName, Password: cred.Password}}, nil
		}
		// anonymous first, most fetches of public remotes need nothing
		return &attempt{}, nil
	}

	userName, password, err := p.prompt(func(pr Prompter) (string, string, error) {
		return pr.UserPassword(ctx, remoteURL)
	})
	if err != nil {
		return nil, err
	}
	return &attempt{
		auth: &githttp.BasicAuth{Username: userName, Password: password},
		remember: func() error {
			return p.cache.CacheHTTPCredentials(remoteURL, userName, password, false)
		},
	}, nil
}

func (p *Provider) resolveSSH(ctx context.Context, user string, fresh bool) (*attempt, error) {
	const op = lserrors.Op("credentials.resolveSSH")

	keyPath := p.sshKeyPath
	if keyPath == "" {
		return nil, lserrors.E(op, lserrors.KindConfig, "no ssh key configured")
	}
	pem, err := p.readFile(keyPath)
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindIO, keyPath, err)
	}

	if !fresh {
		if cred, ok := p.cache.GetSSHCredentials(keyPath); ok {
			auth, err := gitssh.NewPublicKeys(user, pem, cred.Password)
			if err == nil {
				return &attempt{auth: auth}, nil
			}
			logger.Printf("cached passphrase for %s rejected: %v", keyPath, err)
		} else if !keyNeedsPassphrase(pem) {
			auth, err := gitssh.NewPublicKeys(user, pem, "")
			if err != nil {
				return nil, lserrors.E(op, lserrors.KindAuth, keyPath, err)
			}
			return &attempt{auth: auth}, nil
		}
	}

	if !keyNeedsPassphrase(pem) {
		// the key itself was rejected, a passphrase cannot help
		return nil, lserrors.E(op, lserrors.KindAuth, keyPath, transport.ErrAuthorizationFailed)
	}

	passphrase, _, err := p.prompt(func(pr Prompter) (string, string, error) {
		s, err := pr.SSHPassphrase(ctx, keyPath)
		return s, "", err
	})
	if err != nil {
		return nil, err
	}
	auth, err := gitssh.NewPublicKeys(user, pem, passphrase)
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindAuth, keyPath, err)
	}
	return &attempt{
		auth: auth,
		remember: func() error {
			return p.cache.CacheSSHCredentials(keyPath, passphrase)
		},
	}, nil
}

func (p *Provider) prompt(ask func(Prompter) (string, string, error)) (string, string, error) {
	const op = lserrors.Op("credentials.prompt")
	if p.prompter == nil {
		return "", "", lserrors.E(op, lserrors.KindAuth, transport.ErrAuthenticationRequired)
	}
	first, second, err := ask(p.prompter)
	if err != nil {
		return "", "", lserrors.E(op, lserrors.KindAuth, err)
	}
	return first, second, nil
}

func keyNeedsPassphrase(pem []byte) bool {
	_, err := gossh.ParsePrivateKey(pem)
	var missing *gossh.PassphraseMissingError
	return errors.As(err, &missing)
}

// String is used in debug logs; it never includes secrets.
func (c HTTPCredentials) String() string {
	return fmt.Sprintf("http credentials for %s (user %s, lfs %t)", c.URL, c.UserName, c.IsLFS)
}

// String is used in debug logs; it never includes secrets.
func (c SSHCredentials) String() string {
	return fmt.Sprintf("ssh credentials for %s", c.SSHKey)
}
