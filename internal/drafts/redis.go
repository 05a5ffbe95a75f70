package drafts

import (
	"context"
	"errors"
	"strings"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each draft under its own key, which lets several
// machines share drafts for the same repository ID.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

// NewRedisStore wraps rdb. Keys are "<prefix>:draft:<repoID>".
func NewRedisStore(rdb redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "lazystage"
	}
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(parts ...string) string {
	return strings.Join(append([]string{s.keyPrefix}, parts...), ":")
}

// Load returns the draft for repoID.
func (s *RedisStore) Load(ctx context.Context, repoID string) (string, error) {
	text, err := s.rdb.Get(ctx, s.key("draft", repoID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", lserrors.E(lserrors.Op("drafts.RedisStore.Load"), lserrors.KindIO, err)
	}
	return text, nil
}

// Save stores the draft for repoID.
func (s *RedisStore) Save(ctx context.Context, repoID, text string) error {
	var err error
	if text == "" {
		err = s.rdb.Del(ctx, s.key("draft", repoID)).Err()
	} else {
		err = s.rdb.Set(ctx, s.key("draft", repoID), text, 0).Err()
	}
	if err != nil {
		return lserrors.E(lserrors.Op("drafts.RedisStore.Save"), lserrors.KindIO, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
