package credentials

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

type fakePrompter struct {
	user, password string
	passphrase     string
	err            error
	userCalls      int
	sshCalls       int
}

func (f *fakePrompter) UserPassword(_ context.Context, _ string) (string, string, error) {
	f.userCalls++
	return f.user, f.password, f.err
}

func (f *fakePrompter) SSHPassphrase(_ context.Context, _ string) (string, error) {
	f.sshCalls++
	return f.passphrase, f.err
}

// basicAuthRemote accepts only the given user and password.
func basicAuthRemote(user, password string) func(transport.AuthMethod) error {
	return func(auth transport.AuthMethod) error {
		basic, ok := auth.(*githttp.BasicAuth)
		if !ok || basic == nil {
			return transport.ErrAuthenticationRequired
		}
		if basic.Username != user || basic.Password != password {
			return transport.ErrAuthorizationFailed
		}
		return nil
	}
}

func TestProviderPromptsThenCachesHTTP(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	prompter := &fakePrompter{user: "alice", password: "s3cret"}
	provider := NewProvider(cache, prompter, "")
	url := "https://example.com/repo.git"

	require.NoError(t, provider.Run(ctx, url, basicAuthRemote("alice", "s3cret")))
	assert.Equal(t, 1, prompter.userCalls)

	cred, ok := cache.GetHTTPCredentials(url, false)
	require.True(t, ok)
	assert.Equal(t, "alice", cred.UserName)

	require.NoError(t, provider.Run(ctx, url, basicAuthRemote("alice", "s3cret")))
	assert.Equal(t, 1, prompter.userCalls, "cached credentials must be reused")
}

func TestProviderDoesNotCacheRejectedCredentials(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	prompter := &fakePrompter{user: "alice", password: "wrong"}
	provider := NewProvider(cache, prompter, "")

	err := provider.Run(ctx, "https://example.com/repo.git", basicAuthRemote("alice", "s3cret"))
	require.Error(t, err)
	assert.True(t, lserrors.Is(err, lserrors.KindAuth))
	assert.Equal(t, 0, cache.Len())
}

func TestProviderPromptRejected(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	prompter := &fakePrompter{err: ErrPromptRejected}
	provider := NewProvider(cache, prompter, "")

	err := provider.Run(ctx, "https://example.com/repo.git", basicAuthRemote("alice", "s3cret"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPromptRejected)
	assert.True(t, lserrors.Is(err, lserrors.KindAuth))
}

func TestProviderWithoutPrompter(t *testing.T) {
	provider := NewProvider(newTestCache(t), nil, "")
	err := provider.Run(context.Background(), "https://example.com/repo.git", basicAuthRemote("a", "b"))
	assert.True(t, lserrors.Is(err, lserrors.KindAuth))
}

func TestProviderPassesThroughOtherErrors(t *testing.T) {
	cache := newTestCache(t)
	prompter := &fakePrompter{user: "alice", password: "s3cret"}
	provider := NewProvider(cache, prompter, "")
	boom := errors.New("network unreachable")

	err := provider.Run(context.Background(), "https://example.com/repo.git", func(transport.AuthMethod) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, prompter.userCalls)
	assert.Equal(t, 0, cache.Len())
}

func TestProviderLocalRemoteNeedsNoAuth(t *testing.T) {
	provider := NewProvider(newTestCache(t), nil, "")
	err := provider.Run(context.Background(), "/srv/git/repo.git", func(auth transport.AuthMethod) error {
		assert.Nil(t, auth)
		return nil
	})
	assert.NoError(t, err)
}

func writeKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = gossh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = gossh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func sshRemote(t *testing.T) func(transport.AuthMethod) error {
	return func(auth transport.AuthMethod) error {
		keys, ok := auth.(*gitssh.PublicKeys)
		require.True(t, ok, "expected public key auth, got %T", auth)
		assert.Equal(t, "git", keys.User)
		return nil
	}
}

func TestProviderSSHKeyWithPassphrase(t *testing.T) {
	ctx := context.Background()
	keyPath := writeKey(t, "hunter2")
	cache := newTestCache(t)
	prompter := &fakePrompter{passphrase: "hunter2"}
	provider := NewProvider(cache, prompter, keyPath)

	require.NoError(t, provider.Run(ctx, "git@example.com:org/repo.git", sshRemote(t)))
	assert.Equal(t, 1, prompter.sshCalls)

	cred, ok := cache.GetSSHCredentials(keyPath)
	require.True(t, ok)
	assert.Equal(t, "hunter2", cred.Password)

	require.NoError(t, provider.Run(ctx, "ssh://git@example.com/org/repo.git", sshRemote(t)))
	assert.Equal(t, 1, prompter.sshCalls)
}

func TestProviderSSHWrongPassphrase(t *testing.T) {
	keyPath := writeKey(t, "hunter2")
	cache := newTestCache(t)
	provider := NewProvider(cache, &fakePrompter{passphrase: "nope"}, keyPath)

	err := provider.Run(context.Background(), "git@example.com:org/repo.git", sshRemote(t))
	assert.True(t, lserrors.Is(err, lserrors.KindAuth))
	assert.Equal(t, 0, cache.Len())
}

func TestProviderSSHKeyWithoutPassphrase(t *testing.T) {
	keyPath := writeKey(t, "")
	prompter := &fakePrompter{}
	provider := NewProvider(newTestCache(t), prompter, keyPath)

	require.NoError(t, provider.Run(context.Background(), "git@example.com:org/repo.git", sshRemote(t)))
	assert.Equal(t, 0, prompter.sshCalls)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(transport.ErrAuthenticationRequired))
	assert.True(t, IsAuthError(transport.ErrAuthorizationFailed))
	assert.True(t, IsAuthError(errors.New("ssh: handshake failed: ssh: unable to authenticate")))
	assert.False(t, IsAuthError(nil))
	assert.False(t, IsAuthError(errors.New("timeout")))
}
