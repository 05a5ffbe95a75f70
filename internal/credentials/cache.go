package credentials

import (
	"sync"
	"sync/atomic"

	"github.com/chmouel/lazystage/internal/log"
)

var logger = log.Named("credentials")

// Cache holds credentials for the lifetime of the process. Entries are
// append-only: the first insert for a dedup key wins and nothing is ever
// evicted. Writers serialize on mu; readers load the published snapshot
// without locking.
type Cache struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]Credentials]
	cipher  *secretCipher
}

// NewCache creates a cache with a fresh random key.
func NewCache() (*Cache, error) {
	key, err := newRandomKey()
	if err != nil {
		return nil, err
	}
	return newCacheWithKey(key), nil
}

func newCacheWithKey(key []byte) *Cache {
	c := &Cache{cipher: &secretCipher{key: key}}
	empty := []Credentials{}
	c.entries.Store(&empty)
	return c
}

func (c *Cache) snapshot() []Credentials {
	return *c.entries.Load()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.snapshot())
}

// GetHTTPCredentials returns a decrypted copy of the HTTP entry matching both
// url and isLFS. An entry that fails to decrypt is reported as absent so the
// caller prompts again.
func (c *Cache) GetHTTPCredentials(url string, isLFS bool) (*HTTPCredentials, bool) {
	for _, entry := range c.snapshot() {
		cred, ok := entry.(HTTPCredentials)
		if !ok || cred.URL != url || cred.IsLFS != isLFS {
			continue
		}
		password, err := c.cipher.decrypt(cred.Password)
		if err != nil {
			_ = logger.Errorf(err, "cached http credentials for %s unavailable", url)
			return nil, false
		}
		cred.Password = password
		return &cred, true
	}
	return nil, false
}

// GetSSHCredentials returns a decrypted copy of the SSH entry for sshKey.
func (c *Cache) GetSSHCredentials(sshKey string) (*SSHCredentials, bool) {
	for _, entry := range c.snapshot() {
		cred, ok := entry.(SSHCredentials)
		if !ok || cred.SSHKey != sshKey {
			continue
		}
		password, err := c.cipher.decrypt(cred.Password)
		if err != nil {
			_ = logger.Errorf(err, "cached ssh credentials for %s unavailable", sshKey)
			return nil, false
		}
		cred.Password = password
		return &cred, true
	}
	return nil, false
}

// CacheHTTPCredentials stores the credentials unless an HTTP entry for url
// already exists, whatever its user name, password or LFS flag.
func (c *Cache) CacheHTTPCredentials(url, userName, password string, isLFS bool) error {
	encrypted, err := c.cipher.encrypt(password)
	if err != nil {
		return err
	}
	c.add(HTTPCredentials{URL: url, UserName: userName, Password: encrypted, IsLFS: isLFS})
	return nil
}

// CacheSSHCredentials stores the passphrase unless sshKey is already cached.
func (c *Cache) CacheSSHCredentials(sshKey, password string) error {
	encrypted, err := c.cipher.encrypt(password)
	if err != nil {
		return err
	}
	c.add(SSHCredentials{SSHKey: sshKey, Password: encrypted})
	return nil
}

func (c *Cache) add(cred Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.snapshot()
	for _, existing := range current {
		if sameVariant(existing, cred) && existing.dedupKey() == cred.dedupKey() {
			logger.Printf("skipping duplicate %T for %s", cred, cred.dedupKey())
			return
		}
	}

	next := make([]Credentials, len(current), len(current)+1)
	copy(next, current)
	next = append(next, cred)
	c.entries.Store(&next)
}

func sameVariant(a, b Credentials) bool {
	switch a.(type) {
	case HTTPCredentials:
		_, ok := b.(HTTPCredentials)
		return ok
	case SSHCredentials:
		_, ok := b.(SSHCredentials)
		return ok
	default:
		return false
	}
}
