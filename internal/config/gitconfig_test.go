package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertGitConfigToParseConfig(t *testing.T) {
	got := convertGitConfigToParseConfig(map[string][]string{
		"draft_store": {"redis"},
		"ssh_key":     {"~/.ssh/a", "~/.ssh/b"},
		"empty":       {},
	})
	assert.Equal(t, map[string]any{
		"draft_store": "redis",
		"ssh_key":     []any{"~/.ssh/a", "~/.ssh/b"},
	}, got)
}

func TestParseCLIConfigOverrides(t *testing.T) {
	tests := []struct {
		name      string
		overrides []string
		expected  map[string]any
		wantErr   string
	}{
		{
			name:      "single value",
			overrides: []string{"lazystage.draft_store=redis"},
			expected:  map[string]any{"draft_store": "redis"},
		},
		{
			name:      "value containing equals",
			overrides: []string{"lazystage.author_name=a=b"},
			expected:  map[string]any{"author_name": "a=b"},
		},
		{
			name:      "dash spelling",
			overrides: []string{"lazystage.auto-refresh=false"},
			expected:  map[string]any{"auto_refresh": "false"},
		},
		{
			name:      "repeated key",
			overrides: []string{"lazystage.ssh_key=a", "lazystage.ssh_key=b"},
			expected:  map[string]any{"ssh_key": []any{"a", "b"}},
		},
		{
			name:      "missing equals",
			overrides: []string{"lazystage.draft_store"},
			wantErr:   "invalid config override",
		},
		{
			name:      "wrong prefix",
			overrides: []string{"lw.draft_store=file"},
			wantErr:   "must start with",
		},
		{
			name:      "empty key",
			overrides: []string{"lazystage.=x"},
			wantErr:   "empty config key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCLIConfigOverrides(tt.overrides)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestReadGitConfigLocal(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	cfg, err := repo.Config()
	require.NoError(t, err)
	section := cfg.Raw.Section("lazystage")
	section.AddOption("draft-store", "sqlite")
	section.AddOption("ssh-key", "/keys/a")
	require.NoError(t, repo.SetConfig(cfg))

	got, err := readGitConfig(false, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"sqlite"}, got["draft_store"])
	assert.Equal(t, []string{"/keys/a"}, got["ssh_key"])
}

func TestReadGitConfigSubdirectory(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	cfg.Raw.Section("lazystage").AddOption("redis-prefix", "nested")
	require.NoError(t, repo.SetConfig(cfg))

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	got, err := readGitConfig(false, sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"nested"}, got["redis_prefix"])
}

func TestReadGitConfigNotARepository(t *testing.T) {
	got, err := readGitConfig(false, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadGitConfigGlobal(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".gitconfig"),
		[]byte("[lazystage]\n\tdraft-store = redis\n\tredis-addr = cache:6379\n"), 0o600))

	got, err := readGitConfig(true, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"redis"}, got["draft_store"])
	assert.Equal(t, []string{"cache:6379"}, got["redis_addr"])
}
