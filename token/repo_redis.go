package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

const (
	redisTokenKey      = "ssoclient:token"
	redisDenyKeyPrefix = "ssoclient:denylist:"
)

func digest(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// RedisRepo persists the token record in Redis so other processes of the
// same client context observe refreshes without re-fetching.
type RedisRepo struct {
	rdb *redis.Client
	key string
}

// NewRedisRepo creates a Redis-backed token repository. namespace isolates
// independent client contexts sharing one Redis database.
func NewRedisRepo(rdb *redis.Client, namespace string) *RedisRepo {
	key := redisTokenKey
	if namespace != "" {
		key = redisTokenKey + ":" + namespace
	}
	return &RedisRepo{rdb: rdb, key: key}
}

func (r *RedisRepo) Get(ctx context.Context) (*Token, error) {
	payload, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ssoerrors.ErrNoToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] redis GET")
	}

	var tok Token
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] unmarshal token")
	}
	return &tok, nil
}

func (r *RedisRepo) Upsert(ctx context.Context, tok *Token) error {
	if tok == nil {
		return errors.New("[RedisRepo.Upsert] token cannot be nil")
	}

	payload, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] marshal token")
	}

	// Refresh tokens outlive the access token, so the record itself carries
	// no Redis TTL; expiry is enforced by the Manager on read.
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

// RedisDenylist stores revoked-token digests with a TTL matching the token's
// remaining lifetime, so entries expire on their own.
type RedisDenylist struct {
	rdb     *redis.Client
	nowFunc func() time.Time
}

// NewRedisDenylist creates a Redis-backed denylist.
func NewRedisDenylist(rdb *redis.Client) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, nowFunc: time.Now}
}

func (d *RedisDenylist) Add(ctx context.Context, rawToken string, exp time.Time) error {
	ttl := exp.Sub(d.nowFunc())
	if ttl <= 0 {
		return nil // already expired, nothing to deny
	}
	if err := d.rdb.Set(ctx, redisDenyKeyPrefix+digest(rawToken), 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisDenylist.Add] redis SET")
	}
	return nil
}

func (d *RedisDenylist) Contains(ctx context.Context, rawToken string) bool {
	n, err := d.rdb.Exists(ctx, redisDenyKeyPrefix+digest(rawToken)).Result()
	return err == nil && n > 0
}

// Cleanup is a no-op: Redis TTLs expire entries server side.
func (d *RedisDenylist) Cleanup(ctx context.Context) {}
