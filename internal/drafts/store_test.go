package drafts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/chmouel/lazystage/internal/config"
	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCompliance(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		factory func(t *testing.T) Store
	}{
		{
			name: "file",
			factory: func(t *testing.T) Store {
				t.Helper()
				return NewFileStore(t.TempDir())
			},
		},
		{
			name: "sqlite",
			factory: func(t *testing.T) Store {
				t.Helper()
				store, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "nested", models.DraftsDatabaseFilename))
				require.NoError(t, err)
				return store
			},
		},
		{
			name: "redis",
			factory: func(t *testing.T) Store {
				t.Helper()
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return NewRedisStore(client, "test")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.factory(t)
			t.Cleanup(func() { _ = store.Close() })
			runStoreContract(ctx, t, store)
		})
	}
}

func runStoreContract(ctx context.Context, t *testing.T, st Store) {
	t.Helper()

	text, err := st.Load(ctx, "repo-a")
	require.NoError(t, err)
	assert.Empty(t, text, "missing draft loads as empty")

	require.NoError(t, st.Save(ctx, "repo-a", "fix bug"))
	require.NoError(t, st.Save(ctx, "repo-b", "other repo"))

	text, err = st.Load(ctx, "repo-a")
	require.NoError(t, err)
	assert.Equal(t, "fix bug", text)

	require.NoError(t, st.Save(ctx, "repo-a", "fix bug\n\nwith body"))
	text, err = st.Load(ctx, "repo-a")
	require.NoError(t, err)
	assert.Equal(t, "fix bug\n\nwith body", text)

	require.NoError(t, st.Save(ctx, "repo-a", ""))
	text, err = st.Load(ctx, "repo-a")
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = st.Load(ctx, "repo-b")
	require.NoError(t, err)
	assert.Equal(t, "other repo", text)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, NewFileStore(dir).Save(ctx, "repo", "draft"))
	text, err := NewFileStore(dir).Load(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, "draft", text)
}

func TestFileStoreInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, models.DraftsFilename), []byte("{invalid"), 0o600))

	_, err := NewFileStore(dir).Load(context.Background(), "repo")
	require.Error(t, err)
	assert.True(t, lserrors.Is(err, lserrors.KindIO))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), models.DraftsDatabaseFilename)

	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "repo", "draft"))
	require.NoError(t, store.Close())

	store, err = OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	text, err := store.Load(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, "draft", text)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.DraftDir = t.TempDir()
	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.DraftStore = BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), models.DraftsDatabaseFilename)
	store, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	mr := miniredis.RunT(t)
	cfg.DraftStore = BackendRedis
	cfg.RedisAddr = mr.Addr()
	store, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Close())

	cfg.DraftStore = "etcd"
	_, err = Open(ctx, cfg)
	assert.True(t, lserrors.Is(err, lserrors.KindConfig))
}

func TestRedisStoreKeyLayout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, "repo", "draft"))
	got, err := mr.Get("lazystage:draft:repo")
	require.NoError(t, err)
	assert.Equal(t, "draft", got)
}
