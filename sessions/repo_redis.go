package sessions

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

const redisSessionKey = "ssoclient:session"

// RedisRepo persists the session record in Redis so separate processes of
// the same client context observe one shared session.
type RedisRepo struct {
	rdb *redis.Client
	key string
}

// NewRedisRepo creates a Redis-backed session repository. namespace isolates
// independent client contexts sharing one Redis database.
func NewRedisRepo(rdb *redis.Client, namespace string) *RedisRepo {
	key := redisSessionKey
	if namespace != "" {
		key = redisSessionKey + ":" + namespace
	}
	return &RedisRepo{rdb: rdb, key: key}
}

func (r *RedisRepo) Get(ctx context.Context) (*Session, error) {
	payload, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ssoerrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] redis GET")
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] unmarshal session")
	}
	return &s, nil
}

func (r *RedisRepo) Upsert(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("[RedisRepo.Upsert] session cannot be nil")
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] marshal session")
	}

	// Expiry decisions (including the sliding Extend) belong to the Manager,
	// so the record itself carries no Redis TTL.
	if err := r.rdb.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] redis SET")
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Delete] redis DEL")
	}
	return nil
}
