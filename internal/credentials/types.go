// Package credentials caches authentication secrets for the lifetime of the
// process. Passwords are kept encrypted with a key that only ever lives in
// memory, and remote operations resolve their go-git auth through Provider.
package credentials

// Credentials is either SSHCredentials or HTTPCredentials.
type Credentials interface {
	// dedupKey is the identity used to reject duplicate inserts.
	dedupKey() string
}

// SSHCredentials holds the passphrase of an SSH key.
type SSHCredentials struct {
	SSHKey   string // Identity of the key, usually its path
	Password string
}

// HTTPCredentials holds a user name and password for an HTTP remote.
// IsLFS is not part of the dedup key.
type HTTPCredentials struct {
	URL      string
	UserName string
	Password string
	IsLFS    bool
}

func (c SSHCredentials) dedupKey() string  { return c.SSHKey }
func (c HTTPCredentials) dedupKey() string { return c.URL }
