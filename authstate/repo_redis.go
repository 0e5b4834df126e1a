package authstate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

const redisKeyPrefix = "ssoclient:flow:"

// RedisRepo persists auth flow records in Redis with a TTL, so outstanding
// attempts survive a process restart and expire on their own.
type RedisRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRepo creates a Redis-backed flow repository. A non-positive ttl
// falls back to the default flow lifetime.
func NewRedisRepo(rdb *redis.Client, ttl time.Duration) *RedisRepo {
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	return &RedisRepo{rdb: rdb, ttl: ttl}
}

func (r *RedisRepo) Upsert(ctx context.Context, state string, flow *Flow) error {
	if state == "" {
		return errors.New("[RedisRepo.Upsert] state cannot be empty")
	}
	if flow == nil {
		return errors.New("[RedisRepo.Upsert] flow cannot be nil")
	}

	payload, err := json.Marshal(flow)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] marshal")
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+state, payload, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] redis SET")
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("[RedisRepo.Get] state cannot be empty")
	}

	payload, err := r.rdb.Get(ctx, redisKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ssoerrors.ErrStateNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] redis GET")
	}
	return unmarshalFlow(payload)
}

// Consume uses GETDEL so retrieval and deletion are a single Redis command;
// two callers racing on the same state can never both succeed.
func (r *RedisRepo) Consume(ctx context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("[RedisRepo.Consume] state cannot be empty")
	}

	payload, err := r.rdb.GetDel(ctx, redisKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ssoerrors.ErrStateNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Consume] redis GETDEL")
	}
	return unmarshalFlow(payload)
}

func (r *RedisRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return errors.New("[RedisRepo.Delete] state cannot be empty")
	}
	if err := r.rdb.Del(ctx, redisKeyPrefix+state).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Delete] redis DEL")
	}
	return nil
}

func unmarshalFlow(payload []byte) (*Flow, error) {
	var flow Flow
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo] unmarshal flow")
	}
	return &flow, nil
}
