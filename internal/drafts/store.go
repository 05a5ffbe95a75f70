// Package drafts persists commit message drafts per repository so a draft
// survives leaving and reopening the commit view or the whole application.
package drafts

import (
	"context"
	"fmt"
	"strings"

	"github.com/chmouel/lazystage/internal/config"
	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/redis/go-redis/v9"
)

// Store loads and saves the draft of one repository. Loading a repository
// without a draft returns "" and no error. Saving "" clears the draft.
type Store interface {
	Load(ctx context.Context, repoID string) (string, error)
	Save(ctx context.Context, repoID, text string) error
	Close() error
}

// Backend names accepted by the draft_store setting.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	const op = lserrors.Op("drafts.Open")

	switch strings.ToLower(cfg.DraftStore) {
	case "", BackendFile:
		return NewFileStore(cfg.DraftDir), nil
	case BackendSQLite:
		return OpenSQLiteStore(ctx, cfg.SQLitePath)
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, lserrors.E(op, lserrors.KindIO, cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return nil, lserrors.E(op, lserrors.KindConfig, fmt.Sprintf("unknown draft store %q", cfg.DraftStore))
	}
}
